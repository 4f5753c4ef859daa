// Package whisper provides an STT provider backed by a whisper.cpp server.
//
// It talks to a running whisper-server binary, which exposes POST /inference
// taking a WAV upload. Before uploading, leading and trailing silence is cut
// with an energy detector; a clip with no frame above the threshold is
// reported as [stt.ErrNoSpeech] without contacting the server.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("hi"))
//	t, err := p.Transcribe(ctx, stt.Request{PCM: pcm, SampleRate: 16000})
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/fieldvoice/pkg/audio/pcm"
	"github.com/MrWong99/fieldvoice/pkg/audio/wav"
	"github.com/MrWong99/fieldvoice/pkg/provider/stt"
)

const (
	// defaultRMSThreshold is the root-mean-square energy level (in 16-bit PCM
	// units) below which a frame is considered silent. The maximum possible value
	// for 16-bit audio is 32 767; 300 corresponds to near-silence.
	defaultRMSThreshold = 300.0

	// frameMs is the window the silence detector works on.
	frameMs = 20

	// paddingMs of silence is kept around the detected speech so word onsets
	// are not clipped.
	paddingMs = 200

	defaultLanguage   = "en"
	defaultSampleRate = 16000
	defaultTimeout    = 30 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base", "small"). When empty the server uses whichever model it
// was started with, which is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language sent to the whisper.cpp server when a request
// names none. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSilenceThreshold sets the RMS level below which a frame counts as
// silence. Zero disables silence trimming.
func WithSilenceThreshold(rms float64) Option {
	return func(p *Provider) {
		p.rmsThreshold = rms
	}
}

// WithHTTPClient replaces the HTTP client. Defaults to a client with a 30 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL    string
	model        string
	language     string
	rmsThreshold float64
	httpClient   *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:    strings.TrimRight(serverURL, "/"),
		language:     defaultLanguage,
		rmsThreshold: defaultRMSThreshold,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
	if len(req.PCM) == 0 {
		return nil, stt.ErrEmptyAudio
	}
	if len(req.PCM)%pcm.BytesPerSample != 0 {
		return nil, fmt.Errorf("whisper: %w: %d bytes", pcm.ErrTruncatedSampleData, len(req.PCM))
	}
	rate := req.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}

	speech := req.PCM
	if p.rmsThreshold > 0 {
		speech = trimSilence(req.PCM, rate, p.rmsThreshold)
		if len(speech) == 0 {
			return nil, stt.ErrNoSpeech
		}
	}

	lang := baseLanguage(req.Language)
	if lang == "" {
		lang = p.language
	}

	text, err := p.infer(ctx, speech, rate, lang)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, stt.ErrNoSpeech
	}
	return &stt.Transcript{
		Text:     text,
		Language: lang,
		Duration: stt.ClipDuration(req.PCM, rate),
	}, nil
}

// infer encodes audio as a WAV file and POSTs it to the whisper.cpp /inference
// endpoint as multipart/form-data. It returns the transcribed text or an error.
func (p *Provider) infer(ctx context.Context, audio []byte, sampleRate int, lang string) (string, error) {
	file, err := wav.EncodePCM(audio, sampleRate)
	if err != nil {
		return "", fmt.Errorf("whisper: encode wav: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "question.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(file); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{"response_format": "json", "language": lang, "model": p.model}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// ---- helpers ----------------------------------------------------------------

// trimSilence drops the silent frames before the first and after the last
// frame whose RMS reaches threshold, keeping paddingMs on each side. It
// returns nil when every frame is silent.
func trimSilence(audio []byte, sampleRate int, threshold float64) []byte {
	frameBytes := sampleRate * frameMs / 1000 * pcm.BytesPerSample
	if frameBytes <= 0 {
		return audio
	}

	first, last := -1, -1
	for off := 0; off < len(audio); off += frameBytes {
		end := min(off+frameBytes, len(audio))
		if computeRMS(audio[off:end]) >= threshold {
			if first < 0 {
				first = off
			}
			last = end
		}
	}
	if first < 0 {
		return nil
	}

	pad := sampleRate * paddingMs / 1000 * pcm.BytesPerSample
	start := max(first-pad, 0)
	stop := min(last+pad, len(audio))
	return audio[start:stop]
}

// computeRMS returns the root-mean-square energy of a 16-bit signed
// little-endian PCM buffer. Returns 0 for buffers shorter than one sample.
// The result is expressed in the same units as PCM sample values (0 to 32767).
func computeRMS(audio []byte) float64 {
	n := len(audio) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(audio[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// baseLanguage reduces a BCP-47 tag to the ISO 639-1 code whisper expects:
// "hi-IN" → "hi".
func baseLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
