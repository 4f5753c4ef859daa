package llm

import "errors"

// ErrVisionUnsupported means the request carried images the backend cannot take.
var ErrVisionUnsupported = errors.New("llm: provider does not accept image input")

// Message is one conversation turn. Role is "system", "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// Image is an undecoded photo, e.g. MIMEType "image/jpeg" with the raw bytes.
type Image struct {
	MIMEType string
	Data     []byte
}

// CompletionRequest is a conversation to continue. Messages must end with a
// user turn; Images belong to that turn. Zero Temperature or MaxTokens leaves
// the backend default in place.
type CompletionRequest struct {
	Messages     []Message
	Images       []Image
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// Usage is the token count the backend billed.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the assistant's reply. Content is empty when the
// model returned no text.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// ModelCapabilities are the limits of one model. ContextWindow counts input
// and output tokens together.
type ModelCapabilities struct {
	ContextWindow   int
	MaxOutputTokens int
	SupportsVision  bool
}

// UserText is a request holding a single user turn.
func UserText(text string) CompletionRequest {
	return CompletionRequest{Messages: []Message{{Role: "user", Content: text}}}
}
