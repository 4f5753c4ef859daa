package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/fieldvoice/pkg/audio/pcm"
	apiclient "github.com/MrWong99/fieldvoice/pkg/provider/gemini"
	"github.com/MrWong99/fieldvoice/pkg/provider/tts"
	"github.com/MrWong99/fieldvoice/pkg/provider/tts/gemini"
)

func fakeServer(t *testing.T, status int, body string, seen chan<- apiclient.Request) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req apiclient.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if seen != nil {
			seen <- req
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newProvider(t *testing.T, srv *httptest.Server) *gemini.Provider {
	t.Helper()
	p, err := gemini.New("test-key", gemini.WithClientOptions(apiclient.WithBaseURL(srv.URL)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestSynthesize(t *testing.T) {
	t.Parallel()
	seen := make(chan apiclient.Request, 1)
	srv := fakeServer(t, http.StatusOK, `{"candidates": [{"content": {"parts": [
		{"inlineData": {"mimeType": "audio/L16;codec=pcm;rate=24000", "data": "AAD/f2QA"}}
	]}}]}`, seen)
	p := newProvider(t, srv)

	speech, err := p.Synthesize(context.Background(), tts.Request{Text: "Apply urea.", LanguageCode: "en-US"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if speech.MIMEType != "audio/L16;codec=pcm;rate=24000" {
		t.Errorf("mime type: got %q", speech.MIMEType)
	}
	samples, err := pcm.Samples(speech.PCM)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	want := []int16{0, 32767, 100}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample %d: want %d, got %d", i, want[i], samples[i])
		}
	}

	req := <-seen
	gc := req.GenerationConfig
	if gc == nil || len(gc.ResponseModalities) != 1 || gc.ResponseModalities[0] != "AUDIO" {
		t.Fatalf("response modalities: %+v", gc)
	}
	if gc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != gemini.DefaultVoice {
		t.Errorf("voice: got %q", gc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
	}
	if gc.SpeechConfig.LanguageCode != "en-US" {
		t.Errorf("language: got %q", gc.SpeechConfig.LanguageCode)
	}
}

func TestSynthesize_VoiceOverride(t *testing.T) {
	t.Parallel()
	seen := make(chan apiclient.Request, 1)
	srv := fakeServer(t, http.StatusOK, `{"candidates": [{"content": {"parts": [
		{"inlineData": {"mimeType": "audio/L16;rate=24000", "data": "AAA="}}
	]}}]}`, seen)
	p := newProvider(t, srv)

	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "x", Voice: tts.VoiceProfile{ID: "Kore"}}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	req := <-seen
	if got := req.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Kore" {
		t.Errorf("voice: want Kore, got %q", got)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"no candidates", http.StatusOK, `{"candidates": []}`, gemini.ErrNoAudio},
		{"text instead of audio", http.StatusOK, `{"candidates": [{"content": {"parts": [{"text": "hi"}]}}]}`, gemini.ErrNoAudio},
		{"non-audio mime", http.StatusOK, `{"candidates": [{"content": {"parts": [{"inlineData": {"mimeType": "image/png", "data": "AAA="}}]}}]}`, gemini.ErrNoAudio},
		{"corrupt base64", http.StatusOK, `{"candidates": [{"content": {"parts": [{"inlineData": {"mimeType": "audio/L16", "data": "AA!A"}}]}}]}`, pcm.ErrInvalidEncoding},
		{"server error", http.StatusInternalServerError, `oops`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newProvider(t, fakeServer(t, tt.status, tt.body, nil))
			_, err := p.Synthesize(context.Background(), tts.Request{Text: "hello"})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("want %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()
	p, err := gemini.New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "  "}); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("want ErrEmptyText, got %v", err)
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()
	p, _ := gemini.New("test-key")
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	found := false
	for _, v := range voices {
		if v.Provider != "gemini" {
			t.Errorf("voice %q: provider %q", v.ID, v.Provider)
		}
		if v.ID == gemini.DefaultVoice {
			found = true
		}
	}
	if !found {
		t.Errorf("default voice %q missing from catalogue", gemini.DefaultVoice)
	}
}

func TestNew_EmptyKey(t *testing.T) {
	t.Parallel()
	if _, err := gemini.New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}
