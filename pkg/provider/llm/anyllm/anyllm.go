// Package anyllm answers text questions through
// github.com/mozilla-ai/any-llm-go, which puts Anthropic, DeepSeek, Mistral,
// Groq, Ollama, llama.cpp and llamafile (plus OpenAI and Gemini) behind one
// completion call.
//
// Only text turns are forwarded. A request with images fails with
// [llm.ErrVisionUnsupported], which the fallback group treats as a reason to
// skip this provider for photos.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/fieldvoice/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

var errNoChoices = errors.New("anyllm: response has no choices")

type backendFunc func(...anyllmlib.Option) (anyllmlib.Provider, error)

// backends maps a provider name to its any-llm-go constructor. The generic
// constructors return concrete types, hence the adapters.
var backends = map[string]backendFunc{
	"anthropic": adapt(anthropic.New),
	"deepseek":  adapt(deepseek.New),
	"gemini":    adapt(gemini.New),
	"groq":      adapt(groq.New),
	"llamacpp":  adapt(llamacpp.New),
	"llamafile": adapt(llamafile.New),
	"mistral":   adapt(mistral.New),
	"ollama":    adapt(ollama.New),
	"openai":    adapt(anyllmoai.New),
}

func adapt[P anyllmlib.Provider](fn func(...anyllmlib.Option) (P, error)) backendFunc {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		return fn(opts...)
	}
}

// Backends lists the provider names [New] accepts, sorted.
func Backends() []string {
	return slices.Sorted(maps.Keys(backends))
}

// Provider is an [llm.Provider] on top of one any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
	caps    llm.ModelCapabilities
}

// New connects to the backend called name (see [Backends]) and uses model for
// every completion. Without an API key option the backend reads its usual
// environment variable, e.g. ANTHROPIC_API_KEY. Ollama needs no key and
// defaults to http://localhost:11434.
func New(name, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	ctor, ok := backends[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unknown backend %q (known: %s)", name, strings.Join(Backends(), ", "))
	}
	backend, err := ctor(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %s backend: %w", name, err)
	}
	return &Provider{backend: backend, model: model, caps: modelCapabilities(model)}, nil
}

// Complete sends the system prompt and text turns. MaxTokens above the
// model's output limit is lowered to the limit.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Images) > 0 {
		return nil, fmt.Errorf("anyllm: %w", llm.ErrVisionUnsupported)
	}
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errNoChoices
	}
	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

// Capabilities reports the model's limits. Vision is always false.
func (p *Provider) Capabilities() llm.ModelCapabilities { return p.caps }

func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		n := req.MaxTokens
		if p.caps.MaxOutputTokens > 0 {
			n = min(n, p.caps.MaxOutputTokens)
		}
		params.MaxTokens = &n
	}
	return params
}

// familyLimits is matched by prefix against the lower-cased model name;
// the first hit wins.
var familyLimits = []struct {
	prefix        string
	window, limit int
}{
	{"gpt-4o", 128_000, 16_384},
	{"claude", 200_000, 8_192},
	{"gemini", 1_048_576, 8_192},
	{"deepseek", 64_000, 8_192},
	{"mistral", 32_000, 4_096},
	{"llama3", 128_000, 4_096},
}

// modelCapabilities falls back to an 8k window with 2k output for unknown
// local models, which is what small quantised models usually ship with.
func modelCapabilities(model string) llm.ModelCapabilities {
	lower := strings.ToLower(model)
	for _, f := range familyLimits {
		if strings.HasPrefix(lower, f.prefix) {
			return llm.ModelCapabilities{ContextWindow: f.window, MaxOutputTokens: f.limit}
		}
	}
	return llm.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 2_048}
}
