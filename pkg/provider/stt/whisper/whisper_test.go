package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/fieldvoice/pkg/audio/pcm"
	"github.com/MrWong99/fieldvoice/pkg/audio/wav"
	"github.com/MrWong99/fieldvoice/pkg/provider/stt"
	"github.com/MrWong99/fieldvoice/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// upload is what the fake server saw in one /inference request.
type upload struct {
	wav      []byte
	language string
	model    string
	format   string
}

// newMockServer creates a test server that answers POST /inference with
// responseText and forwards every parsed upload on the returned channel.
func newMockServer(t *testing.T, responseText string, calls *atomic.Int32) (*httptest.Server, <-chan upload) {
	t.Helper()
	uploads := make(chan upload, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file field: %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		f.Close()
		uploads <- upload{
			wav:      data,
			language: r.FormValue("language"),
			model:    r.FormValue("model"),
			format:   r.FormValue("response_format"),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv, uploads
}

// makeSpeechPCM generates a 440 Hz sine whose RMS (≈ 7071) is well above the
// silence threshold.
func makeSpeechPCM(samples, rate int) []byte {
	const amplitude = 10_000.0
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func makeSilencePCM(samples int) []byte {
	return make([]byte, samples*2)
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_UploadsWAV(t *testing.T) {
	t.Parallel()
	srv, uploads := newMockServer(t, "  when should I sow wheat  ", nil)
	p, err := whisper.New(srv.URL, whisper.WithModel("small"))
	if err != nil {
		t.Fatal(err)
	}

	audio := makeSpeechPCM(8000, 16000)
	got, err := p.Transcribe(context.Background(), stt.Request{PCM: audio, SampleRate: 16000, Language: "hi-IN"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "when should I sow wheat" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Language != "hi" {
		t.Errorf("Language = %q, want hi", got.Language)
	}
	if got.Duration != 500*time.Millisecond {
		t.Errorf("Duration = %s, want 500ms", got.Duration)
	}

	up := <-uploads
	if up.language != "hi" || up.model != "small" || up.format != "json" {
		t.Errorf("form fields = %+v", up)
	}
	samples, rate, err := wav.Decode(up.wav)
	if err != nil {
		t.Fatalf("uploaded file is not a canonical WAV: %v", err)
	}
	if rate != 16000 || len(samples) != 8000 {
		t.Errorf("uploaded WAV: rate %d, %d samples", rate, len(samples))
	}
}

func TestTranscribe_TrimsSilence(t *testing.T) {
	t.Parallel()
	srv, uploads := newMockServer(t, "urea", nil)
	p, _ := whisper.New(srv.URL)

	// 1 s silence, 0.5 s tone, 1 s silence at 16 kHz.
	var audio []byte
	audio = append(audio, makeSilencePCM(16000)...)
	audio = append(audio, makeSpeechPCM(8000, 16000)...)
	audio = append(audio, makeSilencePCM(16000)...)

	if _, err := p.Transcribe(context.Background(), stt.Request{PCM: audio, SampleRate: 16000}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	up := <-uploads
	samples, _, err := wav.Decode(up.wav)
	if err != nil {
		t.Fatal(err)
	}
	// Speech plus at most 200 ms padding on each side.
	if len(samples) < 8000 || len(samples) > 8000+2*3200+320 {
		t.Errorf("trimmed clip has %d samples, want about 8000 to 14400", len(samples))
	}
	if up.language != "en" {
		t.Errorf("default language = %q, want en", up.language)
	}
}

func TestTranscribe_SilenceSkipsServer(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv, _ := newMockServer(t, "ghost", &calls)
	p, _ := whisper.New(srv.URL)

	_, err := p.Transcribe(context.Background(), stt.Request{PCM: makeSilencePCM(16000), SampleRate: 16000})
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("server called %d times for silence", n)
	}
}

func TestTranscribe_ThresholdDisabledSendsEverything(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv, _ := newMockServer(t, "hmm", &calls)
	p, _ := whisper.New(srv.URL, whisper.WithSilenceThreshold(0))

	if _, err := p.Transcribe(context.Background(), stt.Request{PCM: makeSilencePCM(1600)}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if calls.Load() != 1 {
		t.Error("expected one server call with trimming disabled")
	}
}

func TestTranscribe_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty audio", func(t *testing.T) {
		t.Parallel()
		p, _ := whisper.New("http://127.0.0.1:1")
		if _, err := p.Transcribe(context.Background(), stt.Request{}); !errors.Is(err, stt.ErrEmptyAudio) {
			t.Errorf("err = %v, want ErrEmptyAudio", err)
		}
	})

	t.Run("odd length", func(t *testing.T) {
		t.Parallel()
		p, _ := whisper.New("http://127.0.0.1:1")
		_, err := p.Transcribe(context.Background(), stt.Request{PCM: []byte{1, 2, 3}})
		if !errors.Is(err, pcm.ErrTruncatedSampleData) {
			t.Errorf("err = %v, want ErrTruncatedSampleData", err)
		}
	})

	t.Run("empty transcript", func(t *testing.T) {
		t.Parallel()
		srv, _ := newMockServer(t, "   ", nil)
		p, _ := whisper.New(srv.URL)
		_, err := p.Transcribe(context.Background(), stt.Request{PCM: makeSpeechPCM(1600, 16000)})
		if !errors.Is(err, stt.ErrNoSpeech) {
			t.Errorf("err = %v, want ErrNoSpeech", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		}))
		t.Cleanup(srv.Close)
		p, _ := whisper.New(srv.URL)
		_, err := p.Transcribe(context.Background(), stt.Request{PCM: makeSpeechPCM(1600, 16000)})
		if err == nil || errors.Is(err, stt.ErrNoSpeech) {
			t.Errorf("err = %v, want an HTTP error", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		srv, _ := newMockServer(t, "x", nil)
		p, _ := whisper.New(srv.URL)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Transcribe(ctx, stt.Request{PCM: makeSpeechPCM(1600, 16000)})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}
