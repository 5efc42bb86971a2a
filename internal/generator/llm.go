// Package generator turns a candidate's corpus into a post-ready commentary
// string, delegating text generation to an external LLM service.
package generator

import "context"

// Request is one generation call.
type Request struct {
	Prompt      string
	Temperature float64
	// AllowWebContext lets the provider augment the prompt with live web
	// retrieval. Only the analysis stage sets this.
	AllowWebContext bool
}

// Usage is the provider's token accounting, kept for observability.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// LLMClient abstracts the model provider so it can be replaced or mocked.
type LLMClient interface {
	Generate(ctx context.Context, req Request) (string, Usage, error)
}
