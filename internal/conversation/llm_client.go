package conversation

import "context"

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Image is an inline image part sent alongside the prompt.
type Image struct {
	MIMEType string
	Data     []byte
}

type LLMRequest struct {
	Model       string
	System      []string
	Prompt      string
	Image       *Image
	Schema      *ResponseSchema
	MaxTokens   int32
	Temperature float32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient is the reasoning function. Implementations make exactly one call
// per Complete.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
