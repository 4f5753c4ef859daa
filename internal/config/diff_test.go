package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/fieldvoice/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	a, b := validConfig(), validConfig()

	d := config.Diff(a, b)
	if d.Changed() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	a, b := validConfig(), validConfig()
	b.Server.LogLevel = config.LogDebug

	d := config.Diff(a, b)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("got %+v, want log level change to debug", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level change must not need a restart: %v", d.RestartRequired)
	}
}

func TestDiff_VoiceChanged(t *testing.T) {
	t.Parallel()
	a, b := validConfig(), validConfig()
	b.Advisor.Voice = "Kore"

	d := config.Diff(a, b)
	if !d.VoiceChanged || d.NewVoice != "Kore" {
		t.Errorf("got %+v, want voice change to Kore", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("voice change must not need a restart: %v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		section string
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":1" }, "server.listen_addr"},
		{"tls", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "a", KeyFile: "b"} }, "server.tls"},
		{"sample ratio", func(c *config.Config) { c.Server.TraceSampleRatio = 0.25 }, "server.trace_sample_ratio"},
		{"body limit", func(c *config.Config) { c.Server.MaxBodyBytes = 1 << 20 }, "server.max_body_bytes"},
		{"shutdown timeout", func(c *config.Config) { c.Server.ShutdownTimeout = time.Minute }, "server.shutdown_timeout"},
		{"provider model", func(c *config.Config) { c.Providers.LLM.Model = "other" }, "providers"},
		{"provider fallback", func(c *config.Config) {
			c.Providers.TTS.Fallbacks = []config.ProviderEntry{{Name: "openai"}}
		}, "providers"},
		{"stt added", func(c *config.Config) { c.Providers.STT = config.ProviderEntry{Name: "whisper"} }, "providers"},
		{"advisor language", func(c *config.Config) { c.Advisor.DefaultLanguage = "hi" }, "advisor"},
		{"advisor vocabulary", func(c *config.Config) { c.Advisor.Vocabulary = []string{"jowar"} }, "advisor"},
		{"audio rate", func(c *config.Config) { c.Audio.OutputSampleRate = 8000 }, "audio"},
		{"resilience", func(c *config.Config) { c.Resilience.HalfOpenMax = 4 }, "resilience"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a, b := validConfig(), validConfig()
			tc.mutate(b)

			d := config.Diff(a, b)
			if !slices.Contains(d.RestartRequired, tc.section) {
				t.Errorf("RestartRequired = %v, want it to contain %q", d.RestartRequired, tc.section)
			}
			if d.LogLevelChanged || d.VoiceChanged {
				t.Errorf("unexpected hot change: %+v", d)
			}
		})
	}
}
