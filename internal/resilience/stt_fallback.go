package resilience

import (
	"context"

	"github.com/MrWong99/fieldvoice/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that fails over across a [FallbackGroup].
// [stt.ErrNoSpeech] describes the recording, so it is returned at once
// instead of trying the next entry.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback returns a group with primary as its first entry.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends p to the failover order.
func (f *STTFallback) AddFallback(name string, p stt.Provider) { f.group.AddFallback(name, p) }

func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (*stt.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
}

// Group returns the underlying group.
func (f *STTFallback) Group() *FallbackGroup[stt.Provider] { return f.group }
