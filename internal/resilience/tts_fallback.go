package resilience

import (
	"context"

	"github.com/MrWong99/fieldvoice/pkg/provider/tts"
)

// TTSFallback is a [tts.Provider] that fails over across a [FallbackGroup].
// The requested voice is passed to every entry as is; an entry that does not
// know it speaks with its own default voice.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback returns a group with primary as its first entry.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends p to the failover order.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) { f.group.AddFallback(name, p) }

func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (*tts.Speech, error) {
		return p.Synthesize(ctx, req)
	})
}

func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// Group returns the underlying group.
func (f *TTSFallback) Group() *FallbackGroup[tts.Provider] { return f.group }
