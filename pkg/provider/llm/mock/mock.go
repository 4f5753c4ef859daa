// Package mock is a scriptable [llm.Provider] for tests.
//
//	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Apply urea."}}
//	p := &mock.Provider{Respond: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
//	    return &llm.CompletionResponse{Content: req.Messages[0].Content}, nil
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/fieldvoice/pkg/provider/llm"
)

// CompleteCall is one recorded Complete invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider answers Complete from Respond when set, otherwise with
// CompleteResponse and CompleteErr. Every call is recorded.
type Provider struct {
	CompleteResponse  *llm.CompletionResponse
	CompleteErr       error
	Respond           func(llm.CompletionRequest) (*llm.CompletionResponse, error)
	ModelCapabilities llm.ModelCapabilities

	mu    sync.Mutex
	calls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, CompleteCall{Ctx: ctx, Req: req})
	p.mu.Unlock()

	if p.Respond != nil {
		return p.Respond(req)
	}
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	return p.CompleteResponse, nil
}

func (p *Provider) Capabilities() llm.ModelCapabilities { return p.ModelCapabilities }

// Calls returns the recorded calls in order.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompleteCall(nil), p.calls...)
}
