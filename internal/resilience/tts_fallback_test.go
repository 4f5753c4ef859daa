package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/fieldvoice/pkg/provider/tts"
	ttsmock "github.com/MrWong99/fieldvoice/pkg/provider/tts/mock"
)

func speech(rate string, pcm ...byte) *tts.Speech {
	return &tts.Speech{MIMEType: "audio/L16;rate=" + rate, PCM: pcm}
}

func TestTTSFallback_Synthesize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name           string
		primary        *ttsmock.Provider
		secondary      *ttsmock.Provider
		wantMIME       string
		wantErr        error
		secondaryCalls int
		wantAvailable  bool
	}{
		{
			name:          "primary speaks",
			primary:       &ttsmock.Provider{SynthesizeResult: speech("24000", 1, 2)},
			secondary:     &ttsmock.Provider{SynthesizeResult: speech("16000", 3, 4)},
			wantMIME:      "audio/L16;rate=24000",
			wantAvailable: true,
		},
		{
			name:           "secondary takes over",
			primary:        &ttsmock.Provider{SynthesizeErr: errors.New("gemini: status 500")},
			secondary:      &ttsmock.Provider{SynthesizeResult: speech("16000", 3, 4)},
			wantMIME:       "audio/L16;rate=16000",
			secondaryCalls: 1,
			wantAvailable:  true,
		},
		{
			name:           "both down",
			primary:        &ttsmock.Provider{SynthesizeErr: errors.New("gemini: status 500")},
			secondary:      &ttsmock.Provider{SynthesizeErr: errors.New("coqui: status 502")},
			wantErr:        ErrAllFailed,
			secondaryCalls: 1,
		},
		{
			name:          "empty text is the caller's fault",
			primary:       &ttsmock.Provider{SynthesizeErr: tts.ErrEmptyText},
			secondary:     &ttsmock.Provider{},
			wantErr:       tts.ErrEmptyText,
			wantAvailable: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fb := NewTTSFallback(tt.primary, "gemini", FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1}})
			fb.AddFallback("coqui", tt.secondary)

			req := tts.Request{Text: "Irrigate tonight.", Voice: tts.VoiceProfile{ID: "Kore"}, LanguageCode: "hi-IN"}
			got, err := fb.Synthesize(context.Background(), req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Synthesize: %v", err)
			} else if got.MIMEType != tt.wantMIME {
				t.Errorf("MIMEType = %q, want %q", got.MIMEType, tt.wantMIME)
			}

			calls := tt.secondary.Calls()
			if len(calls) != tt.secondaryCalls {
				t.Fatalf("secondary called %d times, want %d", len(calls), tt.secondaryCalls)
			}
			for _, c := range calls {
				if c.Req.Text != req.Text || c.Req.Voice.ID != req.Voice.ID || c.Req.LanguageCode != req.LanguageCode {
					t.Errorf("secondary got %+v, want the unchanged request", c.Req)
				}
			}
			if got := fb.Group().Available(); got != tt.wantAvailable {
				t.Errorf("Available() = %v, want %v", got, tt.wantAvailable)
			}
		})
	}
}

func TestTTSFallback_ListVoices(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{ListVoicesErr: errors.New("gemini: status 503")}
	secondary := &ttsmock.Provider{ListVoicesResult: []tts.VoiceProfile{{ID: "p225"}, {ID: "p300"}}}

	fb := NewTTSFallback(primary, "gemini", FallbackConfig{})
	fb.AddFallback("coqui", secondary)

	voices, err := fb.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 || voices[0].ID != "p225" {
		t.Errorf("voices = %+v, want the secondary's catalogue", voices)
	}
}
