// Package config provides the configuration schema, loader, and provider registry
// for the fieldvoice advisory service.
package config

import "time"

// LogLevel controls log verbosity for the fieldvoice server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [LoadFromReader] to fields left empty.
const (
	DefaultListenAddr      = ":8080"
	DefaultMaxBodyBytes    = 10 << 20
	DefaultSampleRate      = 16000
	DefaultLanguage        = "en"
	DefaultVoice           = "Iapetus"
	DefaultMaxImageBytes   = 8 << 20
	DefaultMaxFailures     = 5
	DefaultResetTimeout    = 30 * time.Second
	DefaultHalfOpenMax     = 1
	DefaultShutdownTimeout = 10 * time.Second
)

// Config is the root configuration structure for fieldvoice.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Audio      AudioConfig      `yaml:"audio"`
	Advisor    AdvisorConfig    `yaml:"advisor"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds network and logging settings for the HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MaxBodyBytes caps request bodies, including image uploads.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// ShutdownTimeout bounds graceful shutdown after the context is cancelled.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// TraceSampleRatio is the fraction of new traces kept, in [0, 1].
	// Zero (the default) and one both keep every trace.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig selects the backends for each advisory stage. Each entry
// names a provider registered in the [Registry].
type ProvidersConfig struct {
	// LLM answers spoken questions.
	LLM ProviderEntry `yaml:"llm"`

	// Vision analyses plant photos. When Name is empty the LLM entry is used.
	Vision ProviderEntry `yaml:"vision"`

	// TTS reads answers aloud.
	TTS ProviderEntry `yaml:"tts"`

	// STT transcribes recorded questions for clients that cannot run speech
	// recognition themselves. Optional; when Name is empty the transcription
	// endpoint answers 501.
	STT ProviderEntry `yaml:"stt"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gemini-2.5-flash").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails or its circuit
	// breaker is open. Nested fallbacks are ignored.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// AudioConfig controls how raw PCM from the TTS backend is interpreted.
type AudioConfig struct {
	// DefaultSampleRate is assumed when the backend's MIME type carries no rate.
	DefaultSampleRate int `yaml:"default_sample_rate"`

	// OutputSampleRate resamples answers before WAV encoding. 0 keeps the
	// backend's rate.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// TrustDeclaredRate uses the rate= parameter of the backend's MIME type
	// when present. Defaults to true.
	TrustDeclaredRate *bool `yaml:"trust_declared_rate"`
}

// TrustDeclared reports the effective value of TrustDeclaredRate.
func (a AudioConfig) TrustDeclared() bool {
	return a.TrustDeclaredRate == nil || *a.TrustDeclaredRate
}

// AdvisorConfig holds defaults for the advisory flows.
type AdvisorConfig struct {
	// DefaultLanguage is used when a request names no supported language.
	DefaultLanguage string `yaml:"default_language"`

	// Voice is the TTS voice ID.
	Voice string `yaml:"voice"`

	// MaxImageBytes caps uploaded plant photos.
	MaxImageBytes int `yaml:"max_image_bytes"`

	// Temperature and MaxTokens are sent with every completion; zero leaves
	// the provider default.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// Vocabulary replaces the built-in list of terms that transcripts are
	// corrected against. Nil keeps the built-in list.
	Vocabulary []string `yaml:"vocabulary"`
}

// ResilienceConfig configures the circuit breaker in front of each provider.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}
