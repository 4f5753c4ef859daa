package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/fieldvoice/internal/config"
	"github.com/MrWong99/fieldvoice/pkg/provider/llm"
	llmmock "github.com/MrWong99/fieldvoice/pkg/provider/llm/mock"
	"github.com/MrWong99/fieldvoice/pkg/provider/stt"
	sttmock "github.com/MrWong99/fieldvoice/pkg/provider/stt/mock"
	"github.com/MrWong99/fieldvoice/pkg/provider/tts"
	ttsmock "github.com/MrWong99/fieldvoice/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  max_body_bytes: 4194304

providers:
  llm:
    name: gemini
    api_key: g-test
    model: gemini-2.5-flash
    fallbacks:
      - name: openai
        api_key: sk-test
        model: gpt-4o-mini
  vision:
    name: openai
    api_key: sk-test
    model: gpt-4o
  tts:
    name: gemini
    api_key: g-test
    model: gemini-2.5-flash-preview-tts
    fallbacks:
      - name: elevenlabs
        api_key: el-test
        options:
          output_format: pcm_16000
  stt:
    name: whisper
    base_url: http://localhost:8081
    fallbacks:
      - name: deepgram
        api_key: dg-test

audio:
  default_sample_rate: 24000
  output_sample_rate: 16000
  trust_declared_rate: false

advisor:
  default_language: hi
  voice: Kore
  max_image_bytes: 2097152
  temperature: 0.3
  max_tokens: 512

resilience:
  max_failures: 3
  reset_timeout: 45s
  half_open_max: 2
`

const minimalYAML = `
providers:
  llm:
    name: gemini
  tts:
    name: gemini
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Server.MaxBodyBytes != 4<<20 {
		t.Errorf("server.max_body_bytes: got %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.Providers.LLM.Name != "gemini" {
		t.Errorf("providers.llm.name: got %q, want %q", cfg.Providers.LLM.Name, "gemini")
	}
	if len(cfg.Providers.LLM.Fallbacks) != 1 || cfg.Providers.LLM.Fallbacks[0].Model != "gpt-4o-mini" {
		t.Errorf("providers.llm.fallbacks: got %+v", cfg.Providers.LLM.Fallbacks)
	}
	if cfg.Providers.Vision.Model != "gpt-4o" {
		t.Errorf("providers.vision.model: got %q", cfg.Providers.Vision.Model)
	}
	if got := cfg.Providers.TTS.Fallbacks[0].Options["output_format"]; got != "pcm_16000" {
		t.Errorf("providers.tts.fallbacks[0].options.output_format: got %v", got)
	}
	if cfg.Providers.STT.BaseURL != "http://localhost:8081" || cfg.Providers.STT.Fallbacks[0].Name != "deepgram" {
		t.Errorf("providers.stt: got %+v", cfg.Providers.STT)
	}
	if cfg.Audio.DefaultSampleRate != 24000 || cfg.Audio.OutputSampleRate != 16000 {
		t.Errorf("audio rates: got %d/%d", cfg.Audio.DefaultSampleRate, cfg.Audio.OutputSampleRate)
	}
	if cfg.Audio.TrustDeclared() {
		t.Error("audio.trust_declared_rate: expected false")
	}
	if cfg.Advisor.DefaultLanguage != "hi" || cfg.Advisor.Voice != "Kore" {
		t.Errorf("advisor: got %+v", cfg.Advisor)
	}
	if cfg.Advisor.Temperature != 0.3 || cfg.Advisor.MaxTokens != 512 {
		t.Errorf("advisor generation: got %v/%d", cfg.Advisor.Temperature, cfg.Advisor.MaxTokens)
	}
	if cfg.Resilience.ResetTimeout != 45*time.Second {
		t.Errorf("resilience.reset_timeout: got %s, want 45s", cfg.Resilience.ResetTimeout)
	}
	if cfg.Resilience.MaxFailures != 3 || cfg.Resilience.HalfOpenMax != 2 {
		t.Errorf("resilience: got %+v", cfg.Resilience)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Server.MaxBodyBytes != config.DefaultMaxBodyBytes {
		t.Errorf("max_body_bytes: got %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.Audio.DefaultSampleRate != 16000 {
		t.Errorf("default_sample_rate: got %d, want 16000", cfg.Audio.DefaultSampleRate)
	}
	if !cfg.Audio.TrustDeclared() {
		t.Error("trust_declared_rate should default to true")
	}
	if cfg.Advisor.Voice != "Iapetus" {
		t.Errorf("voice: got %q, want Iapetus", cfg.Advisor.Voice)
	}
	if cfg.Advisor.DefaultLanguage != "en" {
		t.Errorf("default_language: got %q, want en", cfg.Advisor.DefaultLanguage)
	}
	if cfg.Advisor.MaxImageBytes != config.DefaultMaxImageBytes {
		t.Errorf("max_image_bytes: got %d", cfg.Advisor.MaxImageBytes)
	}
	if cfg.Resilience.ResetTimeout != config.DefaultResetTimeout {
		t.Errorf("reset_timeout: got %s", cfg.Resilience.ResetTimeout)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	yaml := minimalYAML + `
crops:
  - name: millet
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "crops") {
		t.Errorf("error should mention the unknown field, got: %v", err)
	}
}

func TestLoadFromReader_EmptyRequiresProviders(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(""))
	if err == nil {
		t.Fatal("expected error for empty config, got nil")
	}
	for _, want := range []string{"providers.llm.name", "providers.tts.name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_InvalidLogLevel(t *testing.T) {
	yaml := minimalYAML + `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

// ── Registry: unknown provider ────────────────────────────────────────────────

func TestRegistry_UnknownLLM(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_UnknownTTS(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateTTS(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_UnknownSTT(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got %v", err)
	}
}

// ── Registry with registered factories ───────────────────────────────────────

func TestRegistry_RegisteredLLM(t *testing.T) {
	reg := config.NewRegistry()
	want := &llmmock.Provider{}
	var gotEntry config.ProviderEntry
	reg.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return want, nil
	})
	got, err := reg.CreateLLM(config.ProviderEntry{Name: "stub", Model: "m1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
	if gotEntry.Model != "m1" {
		t.Errorf("factory received model %q, want m1", gotEntry.Model)
	}
}

func TestRegistry_RegisteredTTS(t *testing.T) {
	reg := config.NewRegistry()
	want := &ttsmock.Provider{}
	reg.RegisterTTS("stub", func(e config.ProviderEntry) (tts.Provider, error) {
		return want, nil
	})
	got, err := reg.CreateTTS(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
}

func TestRegistry_RegisteredSTT(t *testing.T) {
	reg := config.NewRegistry()
	want := &sttmock.Provider{}
	var gotURL string
	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		gotURL = e.BaseURL
		return want, nil
	})
	got, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper", BaseURL: "http://asr:8080"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
	if gotURL != "http://asr:8080" {
		t.Errorf("factory received base_url %q", gotURL)
	}
	if names := reg.STTNames(); len(names) != 1 || names[0] != "whisper" {
		t.Errorf("STTNames: got %v", names)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterLLM("broken", func(e config.ProviderEntry) (llm.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := config.NewRegistry()
	for _, name := range []string{"openai", "gemini", "anthropic"} {
		reg.RegisterLLM(name, func(config.ProviderEntry) (llm.Provider, error) { return nil, nil })
	}
	reg.RegisterTTS("coqui", func(config.ProviderEntry) (tts.Provider, error) { return nil, nil })

	got := strings.Join(reg.LLMNames(), ",")
	if got != "anthropic,gemini,openai" {
		t.Errorf("LLMNames: got %q", got)
	}
	if got := reg.TTSNames(); len(got) != 1 || got[0] != "coqui" {
		t.Errorf("TTSNames: got %v", got)
	}
}
