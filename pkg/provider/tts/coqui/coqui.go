// Package coqui speaks through a self-hosted Coqui TTS server, for
// deployments that cannot reach a cloud speech API.
//
// The stock server (ghcr.io/coqui-ai/tts-cpu) synthesises on GET /api/tts and
// describes its model on GET /details. The XTTS v2 API server synthesises on
// POST /tts_to_audio/ and lists voices on GET /studio_speakers. Select it with
// WithAPIMode(APIModeXTTS). Both answer with a WAV file, which is unwrapped
// with [wav.Parse] so callers get tagged PCM like from any other backend.
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("hi"))
//	speech, err := p.Synthesize(ctx, tts.Request{Text: "..."})
package coqui

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/fieldvoice/pkg/audio/wav"
	"github.com/MrWong99/fieldvoice/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	pathSynth       = "/api/tts"
	pathDetails     = "/details"
	pathXTTSSynth   = "/tts_to_audio/"
	pathXTTSSpeaker = "/studio_speakers"
)

// APIMode names the server flavour.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

// Option configures a [Provider].
type Option func(*Provider)

// WithLanguage sets the language used when a request names none. Default "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.lang = lang }
}

// WithHTTPClient replaces the HTTP client. Default: 30 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithAPIMode selects the server flavour. Default [APIModeStandard].
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.mode = mode }
}

// Provider is a [tts.Provider] for one Coqui server. Safe for concurrent use.
type Provider struct {
	baseURL string
	lang    string
	mode    APIMode
	client  *http.Client
}

// New returns a Provider for the server at baseURL, e.g. "http://localhost:5002".
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("coqui: server URL must not be empty")
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		lang:    "en",
		mode:    APIModeStandard,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	if p.mode != APIModeStandard && p.mode != APIModeXTTS {
		return nil, fmt.Errorf("coqui: unknown API mode %q", p.mode)
	}
	return p, nil
}

type xttsBody struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, tts.ErrEmptyText
	}
	lang := p.lang
	if base, _, _ := strings.Cut(req.LanguageCode, "-"); base != "" {
		lang = strings.ToLower(base)
	}

	var (
		httpReq *http.Request
		err     error
	)
	switch p.mode {
	case APIModeXTTS:
		body, _ := json.Marshal(xttsBody{Text: req.Text, SpeakerWav: req.Voice.ID, Language: lang})
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+pathXTTSSynth, bytes.NewReader(body))
		if err == nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
	default:
		q := url.Values{"text": {req.Text}}
		if req.Voice.ID != "" {
			q.Set("speaker_id", req.Voice.ID)
		}
		if lang != "" {
			q.Set("language_id", lang)
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+pathSynth+"?"+q.Encode(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("coqui: build request: %w", err)
	}

	raw, err := p.fetch(httpReq, "audio/wav")
	if err != nil {
		return nil, err
	}
	hdr, pcmData, err := wav.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	return &tts.Speech{MIMEType: fmt.Sprintf("audio/L16;codec=pcm;rate=%d", hdr.SampleRate), PCM: pcmData}, nil
}

// ListVoices asks the server for its speakers. A single-speaker standard
// model yields one voice named after the model.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	path := pathDetails
	if p.mode == APIModeXTTS {
		path = pathXTTSSpeaker
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: build request: %w", err)
	}
	raw, err := p.fetch(httpReq, "application/json")
	if err != nil {
		return nil, err
	}

	if p.mode == APIModeXTTS {
		var speakers map[string]json.RawMessage
		if err := json.Unmarshal(raw, &speakers); err != nil {
			return nil, fmt.Errorf("coqui: decode speakers: %w", err)
		}
		return voices(slices.Collect(maps.Keys(speakers)), map[string]string{"type": "studio"}), nil
	}

	var details struct {
		ModelName string   `json:"model_name"`
		Speakers  []string `json:"speakers"`
	}
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, fmt.Errorf("coqui: decode details: %w", err)
	}
	if len(details.Speakers) > 0 {
		return voices(details.Speakers, map[string]string{"type": "speaker", "model_name": details.ModelName}), nil
	}
	model := cmp.Or(details.ModelName, "default")
	return voices([]string{model}, map[string]string{"type": "single-speaker", "model_name": model}), nil
}

func (p *Provider) fetch(req *http.Request, accept string) ([]byte, error) {
	req.Header.Set("Accept", accept)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read %s: %w", req.URL.Path, err)
	}
	return b, nil
}

func voices(ids []string, meta map[string]string) []tts.VoiceProfile {
	out := make([]tts.VoiceProfile, 0, len(ids))
	for _, id := range slices.Sorted(slices.Values(ids)) {
		out = append(out, tts.VoiceProfile{ID: id, Name: id, Provider: "coqui", Metadata: maps.Clone(meta)})
	}
	return out
}
