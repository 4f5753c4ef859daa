// Package elevenlabs speaks through the ElevenLabs stream-input WebSocket.
// An utterance goes out as one text message plus a flush; the base64 PCM
// frames are gathered until the server marks the stream final or closes it.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/fieldvoice/pkg/audio/pcm"
	"github.com/MrWong99/fieldvoice/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// Frames carry base64 audio and grow with sentence length.
const readLimit = 8 << 20

// Option configures a [Provider].
type Option func(*Provider)

// WithModel sets the model ID. Default "eleven_flash_v2_5".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat sets the audio format. Only pcm_<rate> formats are accepted.
// Default "pcm_16000".
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.format = format }
}

// WithDefaultVoice sets the voice used when a request names none.
func WithDefaultVoice(voiceID string) Option {
	return func(p *Provider) { p.voice = voiceID }
}

// WithHTTPClient replaces the client used for the voice catalogue. The
// WebSocket is bounded by the request context instead.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithBaseURLs points the WebSocket and REST calls elsewhere.
func WithBaseURLs(wsBase, httpBase string) Option {
	return func(p *Provider) {
		p.wsBase = strings.TrimRight(wsBase, "/")
		p.restBase = strings.TrimRight(httpBase, "/")
	}
}

// Provider is a [tts.Provider] backed by ElevenLabs.
type Provider struct {
	apiKey     string
	model      string
	format     string
	sampleRate int
	voice      string
	wsBase     string
	restBase   string
	client     *http.Client
}

// New returns a Provider authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    "eleven_flash_v2_5",
		format:   "pcm_16000",
		wsBase:   "wss://api.elevenlabs.io",
		restBase: "https://api.elevenlabs.io",
		client:   http.DefaultClient,
	}
	for _, o := range opts {
		o(p)
	}
	rate, ok := strings.CutPrefix(p.format, "pcm_")
	if !ok {
		return nil, fmt.Errorf("elevenlabs: output format %q is not raw PCM", p.format)
	}
	n, err := strconv.Atoi(rate)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("elevenlabs: output format %q has no valid sample rate", p.format)
	}
	p.sampleRate = n
	return p, nil
}

type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type audioFrame struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error,omitempty"`
}

func (p *Provider) streamURL(voiceID, languageCode string) string {
	q := url.Values{"model_id": {p.model}, "output_format": {p.format}}
	if lang, _, _ := strings.Cut(languageCode, "-"); lang != "" {
		q.Set("language_code", lang)
	}
	return p.wsBase + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input?" + q.Encode()
}

func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, tts.ErrEmptyText
	}
	voiceID := req.Voice.ID
	if voiceID == "" {
		voiceID = p.voice
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voice ID must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voiceID, req.LanguageCode), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	// The opening message authenticates and must be a single space; the
	// empty one flushes.
	for _, m := range []textMessage{
		{Text: " ", XiAPIKey: p.apiKey, VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}},
		{Text: text + " "},
		{Text: ""},
	} {
		b, _ := json.Marshal(m)
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return nil, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	audio, err := collect(ctx, conn)
	if err != nil {
		return nil, err
	}
	conn.Close(websocket.StatusNormalClosure, "done")
	return &tts.Speech{MIMEType: fmt.Sprintf("audio/L16;codec=pcm;rate=%d", p.sampleRate), PCM: audio}, nil
}

func collect(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var buf bytes.Buffer
	for {
		_, msg, err := conn.Read(ctx)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var f audioFrame
		if err := json.Unmarshal(msg, &f); err != nil {
			return nil, fmt.Errorf("elevenlabs: decode frame: %w", err)
		}
		if f.Error != "" {
			return nil, fmt.Errorf("elevenlabs: server error: %s", f.Error)
		}
		if f.Audio != "" {
			chunk, err := pcm.DecodeBase64(f.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: %w", err)
			}
			buf.Write(chunk)
		}
		if f.IsFinal {
			return buf.Bytes(), nil
		}
	}
}

// ListVoices returns every voice the API key can use.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.restBase+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: status %d", resp.StatusCode)
	}

	var body struct {
		Voices []struct {
			ID       string            `json:"voice_id"`
			Name     string            `json:"name"`
			Category string            `json:"category"`
			Labels   map[string]string `json:"labels"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("elevenlabs: decode voices: %w", err)
	}
	out := make([]tts.VoiceProfile, 0, len(body.Voices))
	for _, v := range body.Voices {
		meta := maps.Clone(v.Labels)
		if meta == nil {
			meta = map[string]string{}
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		out = append(out, tts.VoiceProfile{ID: v.ID, Name: v.Name, Provider: "elevenlabs", Metadata: meta})
	}
	return out, nil
}
