package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/fieldvoice/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that fails over across a [FallbackGroup].
// Requests with images go only to entries that report vision support, so a
// text-only model never answers a photo question blind.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback returns a group with primary as its first entry.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends p to the failover order.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.group.AddFallback(name, p) }

func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var eligible func(llm.Provider) bool
	if len(req.Images) > 0 {
		eligible = func(p llm.Provider) bool { return p.Capabilities().SupportsVision }
	}
	resp, err := ExecuteEligible(f.group, eligible, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
	if errors.Is(err, ErrNoEligible) {
		return nil, fmt.Errorf("resilience: no provider accepts images: %w", llm.ErrVisionUnsupported)
	}
	return resp, err
}

// Capabilities are the primary's, with SupportsVision set when any entry
// accepts images.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	caps := f.group.members[0].value.Capabilities()
	for _, m := range f.group.members[1:] {
		caps.SupportsVision = caps.SupportsVision || m.value.Capabilities().SupportsVision
	}
	return caps
}

// Group returns the underlying group.
func (f *LLMFallback) Group() *FallbackGroup[llm.Provider] { return f.group }
