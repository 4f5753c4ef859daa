// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
//
// A clip is sent in fixed-size binary frames followed by a CloseStream
// message; Deepgram then flushes its final results and closes the socket.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/fieldvoice/pkg/audio/pcm"
	"github.com/MrWong99/fieldvoice/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// chunkMs of audio go into each binary frame.
	chunkMs = 100
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "nova-2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code used when a request names none.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the streaming endpoint (ws:// or wss://). Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams req.PCM to Deepgram and joins the final results.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
	if len(req.PCM) == 0 {
		return nil, stt.ErrEmptyAudio
	}
	if len(req.PCM)%pcm.BytesPerSample != 0 {
		return nil, fmt.Errorf("deepgram: %w: %d bytes", pcm.ErrTruncatedSampleData, len(req.PCM))
	}
	rate := req.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}

	wsURL, err := p.buildURL(req, rate)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	var finals []result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return writeClip(gctx, conn, req.PCM, rate) })
	g.Go(func() error {
		var err error
		finals, err = readFinals(gctx, conn)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	t := join(finals)
	if t.Text == "" {
		return nil, stt.ErrNoSpeech
	}
	t.Language = req.Language
	if t.Language == "" {
		t.Language = p.language
	}
	t.Duration = stt.ClipDuration(req.PCM, rate)
	return t, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for req.
func (p *Provider) buildURL(req stt.Request, rate int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(rate))
	q.Set("channels", "1")

	for _, kw := range req.Keywords {
		// Deepgram keyword format: word:boost (e.g., "urea:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// writeClip sends audio in chunkMs frames and then asks Deepgram to flush.
func writeClip(ctx context.Context, conn *websocket.Conn, audio []byte, rate int) error {
	chunk := max(rate*chunkMs/1000*pcm.BytesPerSample, pcm.BytesPerSample)
	for off := 0; off < len(audio); off += chunk {
		end := min(off+chunk, len(audio))
		if err := conn.Write(ctx, websocket.MessageBinary, audio[off:end]); err != nil {
			return fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// readFinals collects final Results until Deepgram closes the socket.
func readFinals(ctx context.Context, conn *websocket.Conn) ([]result, error) {
	var finals []result
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return finals, nil
			}
			return nil, fmt.Errorf("deepgram: read: %w", err)
		}
		r, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		if r.final {
			finals = append(finals, r)
		}
		if r.fromFinalize {
			return finals, nil
		}
	}
}

// ---- wire format ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// result is one parsed Results message.
type result struct {
	text         string
	confidence   float64
	words        []stt.WordDetail
	final        bool
	fromFinalize bool
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message.
// Returns (result, true) on success, or (zero, false) if the message should be ignored.
func parseDeepgramResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	if resp.Type != "Results" {
		return result{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	return result{
		text:         strings.TrimSpace(alt.Transcript),
		confidence:   alt.Confidence,
		words:        words,
		final:        resp.IsFinal,
		fromFinalize: resp.FromFinalize,
	}, true
}

// join concatenates the non-empty finals. Confidence is the mean over them.
func join(finals []result) *stt.Transcript {
	t := &stt.Transcript{}
	var parts []string
	var conf float64
	for _, r := range finals {
		if r.text == "" {
			continue
		}
		parts = append(parts, r.text)
		conf += r.confidence
		t.Words = append(t.Words, r.words...)
	}
	if len(parts) > 0 {
		t.Text = strings.Join(parts, " ")
		t.Confidence = conf / float64(len(parts))
	}
	return t
}
