// Package openai answers questions and reads plant photos through the OpenAI
// chat completions API. Photos travel as data URLs on the last user turn.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/fieldvoice/pkg/audio/pcm"
	"github.com/MrWong99/fieldvoice/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

var errNoChoices = errors.New("openai: response has no choices")

// Provider is an [llm.Provider] for one OpenAI chat model.
type Provider struct {
	client oai.Client
	model  string
	caps   llm.ModelCapabilities
}

// Option adds a request option to every call.
type Option func(*[]option.RequestOption)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithBaseURL(url)) }
}

// WithOrganization sends the organization header.
func WithOrganization(org string) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithOrganization(org)) }
}

// WithHTTPClient replaces the HTTP client, e.g. with one that has a timeout
// and tracing.
func WithHTTPClient(c *http.Client) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithHTTPClient(c)) }
}

// New returns a Provider for model, authenticated with apiKey.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: apiKey must not be empty")
	case model == "":
		return nil, errors.New("openai: model must not be empty")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: model, caps: modelCapabilities(model)}, nil
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Images) > 0 && !p.caps.SupportsVision {
		return nil, fmt.Errorf("openai: model %q: %w", p.model, llm.ErrVisionUnsupported)
	}
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errNoChoices
	}
	u := resp.Usage
	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(u.PromptTokens),
			CompletionTokens: int(u.CompletionTokens),
			TotalTokens:      int(u.TotalTokens),
		},
	}, nil
}

func (p *Provider) Capabilities() llm.ModelCapabilities { return p.caps }

// modelFamilies is matched by prefix against the lower-cased model name;
// more specific prefixes come first. Unknown models get a 128k window,
// 4k output and no vision.
var modelFamilies = []struct {
	prefix string
	caps   llm.ModelCapabilities
}{
	{"gpt-4o", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384, SupportsVision: true}},
	{"gpt-4.1", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384, SupportsVision: true}},
	{"gpt-4-turbo", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096, SupportsVision: true}},
	{"gpt-4", llm.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 4_096}},
	{"gpt-3.5-turbo", llm.ModelCapabilities{ContextWindow: 16_385, MaxOutputTokens: 4_096}},
	{"o1-mini", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 65_536}},
	{"o3-mini", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 65_536}},
	{"o1", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsVision: true}},
	{"o3", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsVision: true}},
}

func modelCapabilities(model string) llm.ModelCapabilities {
	lower := strings.ToLower(model)
	for _, f := range modelFamilies {
		if strings.HasPrefix(lower, f.prefix) {
			return f.caps
		}
	}
	return llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}
}

func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	n := len(req.Messages)
	if n == 0 {
		return oai.ChatCompletionNewParams{}, errors.New("openai: request has no messages")
	}
	if len(req.Images) > 0 && req.Messages[n-1].Role != "user" {
		return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: images need a final user turn, got role %q", req.Messages[n-1].Role)
	}

	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, n+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages[:n-1] {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		msgs = append(msgs, msg)
	}
	last, err := convertMessage(req.Messages[n-1])
	if len(req.Images) > 0 {
		last, err = userWithImages(req.Messages[n-1].Content, req.Images), nil
	}
	if err != nil {
		return oai.ChatCompletionNewParams{}, err
	}
	msgs = append(msgs, last)

	params := oai.ChatCompletionNewParams{Model: shared.ChatModel(p.model), Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "user":
		return oai.UserMessage(m.Content), nil
	case "assistant":
		return oai.AssistantMessage(m.Content), nil
	case "system":
		return oai.SystemMessage(m.Content), nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
}

func userWithImages(text string, images []llm.Image) oai.ChatCompletionMessageParamUnion {
	parts := []oai.ChatCompletionContentPartUnionParam{oai.TextContentPart(text)}
	for _, img := range images {
		url := "data:" + img.MIMEType + ";base64," + pcm.EncodeBase64(img.Data)
		parts = append(parts, oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{URL: url}))
	}
	return oai.UserMessage(parts)
}
