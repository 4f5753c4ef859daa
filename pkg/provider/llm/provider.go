// Package llm defines the Provider interface for the generative text backends
// that answer farmers' questions and diagnose plant photos.
//
// A provider wraps a remote model API (Gemini, OpenAI, or any backend reachable
// through any-llm-go) behind a single request/response call. Requests may carry
// inline images; callers should check Capabilities().SupportsVision before
// sending them.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines and
// must return promptly when ctx is cancelled.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails, if ctx is cancelled before the
	// completion arrives, or if req carries images and the backend cannot
	// accept them ([ErrVisionUnsupported]).
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing what this provider's
	// underlying model supports. Constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}
