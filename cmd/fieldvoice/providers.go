package main

import (
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/fieldvoice/internal/config"
	"github.com/MrWong99/fieldvoice/internal/observe"
	"github.com/MrWong99/fieldvoice/internal/resilience"
	"github.com/MrWong99/fieldvoice/pkg/provider/gemini"
	"github.com/MrWong99/fieldvoice/pkg/provider/llm"
	"github.com/MrWong99/fieldvoice/pkg/provider/llm/anyllm"
	geminillm "github.com/MrWong99/fieldvoice/pkg/provider/llm/gemini"
	oaillm "github.com/MrWong99/fieldvoice/pkg/provider/llm/openai"
	"github.com/MrWong99/fieldvoice/pkg/provider/stt"
	"github.com/MrWong99/fieldvoice/pkg/provider/stt/deepgram"
	"github.com/MrWong99/fieldvoice/pkg/provider/stt/whisper"
	"github.com/MrWong99/fieldvoice/pkg/provider/tts"
	"github.com/MrWong99/fieldvoice/pkg/provider/tts/coqui"
	"github.com/MrWong99/fieldvoice/pkg/provider/tts/elevenlabs"
	geminitts "github.com/MrWong99/fieldvoice/pkg/provider/tts/gemini"
	oaitts "github.com/MrWong99/fieldvoice/pkg/provider/tts/openai"
)

// defaultProviderTimeout bounds a single provider HTTP call unless the entry
// sets options.timeout.
const defaultProviderTimeout = 60 * time.Second

// providers holds the failover-wrapped backends the advisor talks to.
// stt is nil when no transcription backend is configured.
type providers struct {
	llm    *resilience.LLMFallback
	vision *resilience.LLMFallback
	tts    *resilience.TTSFallback
	stt    *resilience.STTFallback
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// gemini and openai have native clients that accept images.
	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		return geminillm.New(entry.APIKey, entry.Model, geminiClientOptions(entry)...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		opts := []oaillm.Option{oaillm.WithHTTPClient(observe.HTTPClient(optDuration(entry.Options, "timeout", defaultProviderTimeout)))}
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// The rest go through any-llm-go and are text only. ollama ignores the
	// API key and reads its address from BaseURL.
	for _, providerName := range anyllm.Backends() {
		if providerName == "gemini" || providerName == "openai" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && providerName != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("gemini", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []geminitts.Option{geminitts.WithClientOptions(geminiClientOptions(entry)...)}
		if entry.Model != "" {
			opts = append(opts, geminitts.WithModel(entry.Model))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, geminitts.WithDefaultVoice(voice))
		}
		return geminitts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []oaitts.Option{oaitts.WithTimeout(optDuration(entry.Options, "timeout", defaultProviderTimeout))}
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, oaitts.WithDefaultVoice(voice))
		}
		if instr := optString(entry.Options, "instructions"); instr != "" {
			opts = append(opts, oaitts.WithInstructions(instr))
		}
		return oaitts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []elevenlabs.Option{elevenlabs.WithHTTPClient(observe.HTTPClient(optDuration(entry.Options, "timeout", defaultProviderTimeout)))}
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(voice))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []coqui.Option{coqui.WithHTTPClient(observe.HTTPClient(optDuration(entry.Options, "timeout", defaultProviderTimeout)))}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	// whisper is a self-hosted whisper.cpp server addressed by BaseURL.
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{
			whisper.WithHTTPClient(observe.HTTPClient(optDuration(entry.Options, "timeout", defaultProviderTimeout))),
		}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if rms, ok := optFloat(entry.Options, "silence_threshold"); ok {
			opts = append(opts, whisper.WithSilenceThreshold(rms))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	slog.Debug("registered providers", "llm", reg.LLMNames(), "tts", reg.TTSNames(), "stt", reg.STTNames())
}

// geminiClientOptions builds the REST client options shared by the Gemini LLM
// and TTS providers. Calls go through an instrumented HTTP client.
func geminiClientOptions(entry config.ProviderEntry) []gemini.Option {
	opts := []gemini.Option{
		gemini.WithHTTPClient(observe.HTTPClient(optDuration(entry.Options, "timeout", defaultProviderTimeout))),
	}
	if entry.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
	}
	return opts
}

// buildProviders instantiates every configured provider and wraps each kind
// in a failover group. Vision reuses the LLM group when no vision provider is
// configured.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providers, error) {
	fbCfg := breakerConfig(cfg.Resilience, observe.DefaultMetrics())
	ps := &providers{}

	var err error
	if ps.llm, err = buildLLM("llm", cfg.Providers.LLM, reg, fbCfg); err != nil {
		return nil, err
	}
	if cfg.Providers.Vision.Name == "" {
		ps.vision = ps.llm
	} else if ps.vision, err = buildLLM("vision", cfg.Providers.Vision, reg, fbCfg); err != nil {
		return nil, err
	}
	if !ps.vision.Capabilities().SupportsVision {
		slog.Warn("no configured vision provider accepts images, plant photo analysis will fail",
			"providers", ps.vision.Group().Names())
	}

	primary, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ps.tts = resilience.NewTTSFallback(primary, cfg.Providers.TTS.Name, fbCfg)
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)
	for i, fb := range cfg.Providers.TTS.Fallbacks {
		p, err := reg.CreateTTS(fb)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %d %q: %w", i, fb.Name, err)
		}
		ps.tts.AddFallback(fb.Name, p)
		slog.Info("provider created", "kind", "tts", "name", fb.Name, "fallback", i)
	}

	if cfg.Providers.STT.Name == "" {
		slog.Info("no stt provider configured, recorded questions are rejected")
		return ps, nil
	}
	rec, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	ps.stt = resilience.NewSTTFallback(rec, cfg.Providers.STT.Name, fbCfg)
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)
	for i, fb := range cfg.Providers.STT.Fallbacks {
		p, err := reg.CreateSTT(fb)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %d %q: %w", i, fb.Name, err)
		}
		ps.stt.AddFallback(fb.Name, p)
		slog.Info("provider created", "kind", "stt", "name", fb.Name, "fallback", i)
	}

	return ps, nil
}

func buildLLM(kind string, entry config.ProviderEntry, reg *config.Registry, fbCfg resilience.FallbackConfig) (*resilience.LLMFallback, error) {
	primary, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	group := resilience.NewLLMFallback(primary, entry.Name, fbCfg)
	slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model)

	for i, fb := range entry.Fallbacks {
		p, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("create %s fallback %d %q: %w", kind, i, fb.Name, err)
		}
		group.AddFallback(fb.Name, p)
		slog.Info("provider created", "kind", kind, "name", fb.Name, "model", fb.Model, "fallback", i)
	}
	return group, nil
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optFloat reads a number from opts. YAML decodes whole numbers as int, so
// both are accepted.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// optDuration reads a duration such as "30s" from opts, returning def when the
// key is absent or unparsable.
func optDuration(opts map[string]any, key string, def time.Duration) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		slog.Warn("ignoring invalid provider option", "key", key, "value", s)
		return def
	}
	return d
}
