package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/MrWong99/fieldvoice/internal/i18n"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"gemini", "openai", "elevenlabs", "coqui"},
	"stt": {"whisper", "deepgram"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and validates
// the result. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields of cfg with the package defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Audio.DefaultSampleRate == 0 {
		cfg.Audio.DefaultSampleRate = DefaultSampleRate
	}
	if cfg.Advisor.DefaultLanguage == "" {
		cfg.Advisor.DefaultLanguage = DefaultLanguage
	}
	if cfg.Advisor.Voice == "" {
		cfg.Advisor.Voice = DefaultVoice
	}
	if cfg.Advisor.MaxImageBytes == 0 {
		cfg.Advisor.MaxImageBytes = DefaultMaxImageBytes
	}
	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = DefaultMaxFailures
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = DefaultResetTimeout
	}
	if cfg.Resilience.HalfOpenMax == 0 {
		cfg.Resilience.HalfOpenMax = DefaultHalfOpenMax
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes %d must not be negative", cfg.Server.MaxBodyBytes))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %g must be between 0 and 1", r))
	}

	// Providers
	errs = append(errs, validateEntry("providers.llm", "llm", cfg.Providers.LLM, true)...)
	errs = append(errs, validateEntry("providers.vision", "llm", cfg.Providers.Vision, false)...)
	errs = append(errs, validateEntry("providers.tts", "tts", cfg.Providers.TTS, true)...)
	errs = append(errs, validateEntry("providers.stt", "stt", cfg.Providers.STT, false)...)

	// Audio
	if cfg.Audio.DefaultSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.default_sample_rate %d must be positive", cfg.Audio.DefaultSampleRate))
	}
	if cfg.Audio.OutputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate %d must not be negative", cfg.Audio.OutputSampleRate))
	}

	// Advisor
	if cfg.Advisor.DefaultLanguage != "" {
		if _, err := i18n.ParseLanguage(cfg.Advisor.DefaultLanguage); err != nil {
			errs = append(errs, fmt.Errorf("advisor.default_language: %w", err))
		}
	}
	if cfg.Advisor.MaxImageBytes < 0 {
		errs = append(errs, fmt.Errorf("advisor.max_image_bytes %d must not be negative", cfg.Advisor.MaxImageBytes))
	}
	if cfg.Advisor.Temperature < 0 || cfg.Advisor.Temperature > 2 {
		errs = append(errs, fmt.Errorf("advisor.temperature %.2f is out of range [0, 2]", cfg.Advisor.Temperature))
	}
	if cfg.Advisor.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("advisor.max_tokens %d must not be negative", cfg.Advisor.MaxTokens))
	}
	if cfg.Server.MaxBodyBytes > 0 && int64(cfg.Advisor.MaxImageBytes) > cfg.Server.MaxBodyBytes {
		slog.Warn("advisor.max_image_bytes exceeds server.max_body_bytes; large uploads are cut off by the body limit",
			"max_image_bytes", cfg.Advisor.MaxImageBytes,
			"max_body_bytes", cfg.Server.MaxBodyBytes,
		)
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", cfg.Resilience.ResetTimeout))
	}
	if cfg.Resilience.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("resilience.half_open_max %d must not be negative", cfg.Resilience.HalfOpenMax))
	}

	return errors.Join(errs...)
}

// validateEntry checks one provider entry and its fallbacks.
func validateEntry(path, kind string, e ProviderEntry, required bool) []error {
	var errs []error
	if e.Name == "" {
		if required {
			errs = append(errs, fmt.Errorf("%s.name is required", path))
		}
		if len(e.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s.fallbacks requires %s.name", path, path))
		}
		return errs
	}
	validateProviderName(kind, e.Name)
	for i, fb := range e.Fallbacks {
		prefix := fmt.Sprintf("%s.fallbacks[%d]", path, i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if len(fb.Fallbacks) > 0 {
			slog.Warn("nested provider fallbacks are ignored", "entry", prefix)
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
