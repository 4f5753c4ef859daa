package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/fieldvoice/pkg/provider/stt"
	sttmock "github.com/MrWong99/fieldvoice/pkg/provider/stt/mock"
)

func TestSTTFallback_Transcribe_Failover(t *testing.T) {
	primary := &sttmock.Provider{TranscribeErr: errors.New("whisper: connection refused")}
	secondary := &sttmock.Provider{TranscribeResult: &stt.Transcript{Text: "leaf curl on cotton"}}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("deepgram", secondary)

	req := stt.Request{PCM: []byte{1, 0, 2, 0}, SampleRate: 16000, Language: "hi-IN"}
	got, err := fb.Transcribe(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "leaf curl on cotton" {
		t.Errorf("Text = %q, want secondary's", got.Text)
	}
	if calls := secondary.Calls(); len(calls) != 1 || calls[0].Req.Language != "hi-IN" {
		t.Errorf("secondary calls = %+v", calls)
	}
	if names := fb.Group().Names(); len(names) != 2 || names[1] != "deepgram" {
		t.Errorf("Names() = %v", names)
	}
}

func TestSTTFallback_NoSpeechIsNotRetried(t *testing.T) {
	primary := &sttmock.Provider{TranscribeErr: fmt.Errorf("whisper: %w", stt.ErrNoSpeech)}
	secondary := &sttmock.Provider{TranscribeResult: &stt.Transcript{Text: "ghost"}}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})
	fb.AddFallback("deepgram", secondary)

	for range 3 {
		_, err := fb.Transcribe(context.Background(), stt.Request{PCM: []byte{0, 0}})
		if !errors.Is(err, stt.ErrNoSpeech) {
			t.Fatalf("err = %v, want ErrNoSpeech", err)
		}
	}
	if len(secondary.Calls()) != 0 {
		t.Errorf("secondary called %d times for a silent clip", len(secondary.Calls()))
	}
	if !fb.Group().Available() {
		t.Error("silent clips must not open the primary's breaker")
	}
}

func TestSTTFallback_AllFail(t *testing.T) {
	fb := NewSTTFallback(&sttmock.Provider{TranscribeErr: errors.New("down")}, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})

	_, err := fb.Transcribe(context.Background(), stt.Request{PCM: []byte{0, 0}})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if fb.Group().Available() {
		t.Error("breaker should be open after MaxFailures")
	}
}
