// Package gemini provides a TTS provider backed by Gemini's speech generation
// models. Audio comes back as base64 inline data, typically declared as
// "audio/L16;codec=pcm;rate=24000".
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/fieldvoice/pkg/audio/pcm"
	"github.com/MrWong99/fieldvoice/pkg/provider/gemini"
	"github.com/MrWong99/fieldvoice/pkg/provider/tts"
)

const (
	// DefaultModel is the Gemini TTS model used when none is configured.
	DefaultModel = "gemini-2.5-flash-preview-tts"

	// DefaultVoice is the prebuilt voice used when a request names none.
	DefaultVoice = "Iapetus"
)

// ErrNoAudio is returned when the response carries no audio inline data.
var ErrNoAudio = errors.New("gemini tts: response contains no audio")

// prebuiltVoices is the catalogue of Gemini prebuilt voices.
var prebuiltVoices = []string{
	"Achernar", "Achird", "Algenib", "Algieba", "Alnilam", "Aoede", "Autonoe",
	"Callirrhoe", "Charon", "Despina", "Enceladus", "Erinome", "Fenrir",
	"Gacrux", "Iapetus", "Kore", "Laomedeia", "Leda", "Orus", "Puck",
	"Pulcherrima", "Rasalgethi", "Sadachbia", "Sadaltager", "Schedar",
	"Sulafat", "Umbriel", "Vindemiatrix", "Zephyr", "Zubenelgenubi",
}

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel overrides the TTS model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithDefaultVoice sets the voice used when a request does not name one.
func WithDefaultVoice(voice string) Option {
	return func(p *Provider) {
		if voice != "" {
			p.voice = voice
		}
	}
}

// WithClientOptions forwards options to the underlying REST client.
func WithClientOptions(opts ...gemini.Option) Option {
	return func(p *Provider) { p.clientOpts = append(p.clientOpts, opts...) }
}

// Provider implements tts.Provider on top of a [gemini.Client].
type Provider struct {
	client     *gemini.Client
	clientOpts []gemini.Option
	model      string
	voice      string
}

var _ tts.Provider = (*Provider)(nil)

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	p := &Provider{model: DefaultModel, voice: DefaultVoice}
	for _, o := range opts {
		o(p)
	}
	client, err := gemini.New(apiKey, p.clientOpts...)
	if err != nil {
		return nil, err
	}
	p.client = client
	return p, nil
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

	body := &gemini.Request{
		Contents: []gemini.Content{{Parts: []gemini.Part{gemini.TextPart(req.Text)}}},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &gemini.SpeechConfig{
				VoiceConfig:  gemini.VoiceConfig{PrebuiltVoiceConfig: gemini.PrebuiltVoiceConfig{VoiceName: voice}},
				LanguageCode: req.LanguageCode,
			},
		},
	}

	resp, err := p.client.GenerateContent(ctx, p.model, body)
	if err != nil {
		return nil, err
	}
	part, err := resp.FirstPart()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoAudio, err)
	}
	inline := part.InlineData
	if inline == nil || inline.Data == "" {
		return nil, ErrNoAudio
	}
	if !strings.HasPrefix(strings.ToLower(inline.MIMEType), "audio/") {
		return nil, fmt.Errorf("%w: got %q", ErrNoAudio, inline.MIMEType)
	}

	raw, err := pcm.DecodeBase64(inline.Data)
	if err != nil {
		return nil, fmt.Errorf("gemini tts: %w", err)
	}
	return &tts.Speech{MIMEType: inline.MIMEType, PCM: raw}, nil
}

// ListVoices returns the static catalogue of prebuilt Gemini voices.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	out := make([]tts.VoiceProfile, 0, len(prebuiltVoices))
	for _, name := range prebuiltVoices {
		out = append(out, tts.VoiceProfile{ID: name, Name: name, Provider: "gemini"})
	}
	return out, nil
}
