// Package openai provides a TTS provider backed by the OpenAI speech API.
// Audio is requested in the "pcm" response format: headerless 16-bit
// little-endian mono at 24 kHz.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/fieldvoice/pkg/provider/tts"
)

const (
	// DefaultModel is the speech model used when none is configured.
	DefaultModel = "gpt-4o-mini-tts"

	// DefaultVoice is used when a request names no voice.
	DefaultVoice = "alloy"

	// SampleRate is the fixed rate of the API's pcm response format.
	SampleRate = 24000

	// MIMEType describes the audio this provider returns.
	MIMEType = "audio/L16;codec=pcm;rate=24000"
)

var voices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

// Provider implements tts.Provider using the OpenAI speech endpoint.
type Provider struct {
	client       oai.Client
	model        string
	voice        string
	instructions string
}

var _ tts.Provider = (*Provider)(nil)

type config struct {
	baseURL      string
	model        string
	voice        string
	instructions string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the speech model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithDefaultVoice sets the voice used when a request names none.
func WithDefaultVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithInstructions sets speaking-style instructions, honoured by the
// gpt-4o-mini-tts family.
func WithInstructions(s string) Option {
	return func(c *config) { c.instructions = s }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	cfg := &config{model: DefaultModel, voice: DefaultVoice}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.model == "" {
		cfg.model = DefaultModel
	}
	if cfg.voice == "" {
		cfg.voice = DefaultVoice
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        cfg.model,
		voice:        cfg.voice,
		instructions: cfg.instructions,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, tts.ErrEmptyText
	}
	voice := req.Voice.ID
	if voice == "" {
		voice = p.voice
	}

	params := oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if p.instructions != "" {
		params.Instructions = param.NewOpt(p.instructions)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	return &tts.Speech{MIMEType: MIMEType, PCM: raw}, nil
}

// ListVoices returns the static catalogue of OpenAI voices.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	out := make([]tts.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		out = append(out, tts.VoiceProfile{ID: v, Name: v, Provider: "openai"})
	}
	return out, nil
}
