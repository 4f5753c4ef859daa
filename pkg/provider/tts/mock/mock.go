// Package mock is a scriptable [tts.Provider] for tests.
//
//	p := &mock.Provider{SynthesizeResult: &tts.Speech{MIMEType: "audio/L16;rate=24000", PCM: pcm}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/fieldvoice/pkg/provider/tts"
)

// SynthesizeCall is one recorded Synthesize invocation.
type SynthesizeCall struct {
	Ctx context.Context
	Req tts.Request
}

// Provider answers Synthesize from Speak when set, otherwise with
// SynthesizeResult and SynthesizeErr. ListVoices returns its fixed fields.
type Provider struct {
	SynthesizeResult *tts.Speech
	SynthesizeErr    error
	Speak            func(tts.Request) (*tts.Speech, error)
	ListVoicesResult []tts.VoiceProfile
	ListVoicesErr    error

	mu    sync.Mutex
	calls []SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	p.mu.Lock()
	p.calls = append(p.calls, SynthesizeCall{Ctx: ctx, Req: req})
	p.mu.Unlock()

	switch {
	case p.Speak != nil:
		return p.Speak(req)
	case p.SynthesizeErr != nil:
		return nil, p.SynthesizeErr
	}
	return p.SynthesizeResult, nil
}

func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls returns the recorded Synthesize calls in order.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SynthesizeCall(nil), p.calls...)
}
