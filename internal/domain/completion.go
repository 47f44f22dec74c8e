package domain

import "context"

// Completer is a stateless chat-completion provider.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// CompletionRequest is a single system+user exchange.
type CompletionRequest struct {
	// Operation names the call site for metrics and logs (e.g. "traits").
	Operation    string
	SystemPrompt string
	UserContent  string
	// JSON asks the provider for a JSON object response.
	JSON        bool
	Temperature float64
	MaxTokens   int
}

// CompletionResult carries the raw text and token usage.
type CompletionResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
