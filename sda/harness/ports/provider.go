package harnessports

import (
	"context"
)

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	Model    string            // model name, e.g. gpt-4o-mini
	System   string            // system prompt, sent separately from the history
	Messages []Message         // trimmed history, never containing the system message
	Tools    []ToolSpec        // tool declarations available to the model
	Meta     map[string]string // lightweight metadata for tracing
}

// Options controls sampling and limits.
type Options struct {
	MaxNewTokens int
	Temperature  float32
	// ParallelToolCalls is always false for the agent loop; kept explicit for providers.
	ParallelToolCalls bool
}

// Usage captures token accounting for cost/telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's response.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
	Usage     *Usage // optional usage information
}

// Provider is the abstraction for all LLM backends. Tools travel with each call; nothing is bound to the model.
type Provider interface {
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
}
