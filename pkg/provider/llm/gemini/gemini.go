// Package gemini provides a text and vision LLM provider backed by the Gemini
// generateContent REST endpoint.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/fieldvoice/pkg/provider/gemini"
	"github.com/MrWong99/fieldvoice/pkg/provider/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider on top of a [gemini.Client].
type Provider struct {
	client *gemini.Client
	model  string
}

// New creates a Provider. An empty model selects [DefaultModel]. opts are
// forwarded to the underlying REST client.
func New(apiKey, model string, opts ...gemini.Option) (*Provider, error) {
	client, err := gemini.New(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultModel
	}
	return &Provider{client: client, model: model}, nil
}

// Complete implements llm.Provider. Images are attached as inline data parts
// after the text of the final user turn.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	body, err := buildRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.GenerateContent(ctx, p.model, body)
	if err != nil {
		return nil, err
	}

	out := &llm.CompletionResponse{Content: resp.Text()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return out, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	caps := llm.ModelCapabilities{
		ContextWindow:   1_048_576,
		MaxOutputTokens: 8_192,
		SupportsVision:  true,
	}
	if strings.Contains(strings.ToLower(p.model), "1.5-pro") {
		caps.ContextWindow = 2_097_152
	}
	return caps
}

func buildRequest(req llm.CompletionRequest) (*gemini.Request, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("gemini: request has no messages")
	}

	body := &gemini.Request{}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &gemini.Content{Parts: []gemini.Part{gemini.TextPart(req.SystemPrompt)}}
	}

	last := len(req.Messages) - 1
	for i, m := range req.Messages {
		var role string
		switch m.Role {
		case "user":
			role = "user"
		case "assistant":
			role = "model"
		case "system":
			// Gemini has no system turn; fold it into the instruction.
			if body.SystemInstruction == nil {
				body.SystemInstruction = &gemini.Content{}
			}
			body.SystemInstruction.Parts = append(body.SystemInstruction.Parts, gemini.TextPart(m.Content))
			continue
		default:
			return nil, fmt.Errorf("gemini: unknown message role %q", m.Role)
		}

		c := gemini.Content{Role: role, Parts: []gemini.Part{gemini.TextPart(m.Content)}}
		if i == last && len(req.Images) > 0 {
			if role != "user" {
				return nil, fmt.Errorf("gemini: images require a final user message, got role %q", m.Role)
			}
			for _, img := range req.Images {
				c.Parts = append(c.Parts, gemini.InlinePart(img.MIMEType, img.Data))
			}
		}
		body.Contents = append(body.Contents, c)
	}

	if req.Temperature != 0 || req.MaxTokens > 0 {
		gc := &gemini.GenerationConfig{MaxOutputTokens: req.MaxTokens}
		if req.Temperature != 0 {
			t := req.Temperature
			gc.Temperature = &t
		}
		body.GenerationConfig = gc
	}
	return body, nil
}
