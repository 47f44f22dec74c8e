package domain

import (
	"context"
	"sync"
)

type tokenUsageKey struct{}

// TokenUsage accumulates provider usage for one search. Pipeline stages run
// concurrently, so every mutation goes through the mutex.
type TokenUsage struct {
	mu               sync.Mutex
	llmCalls         int
	completionTokens int
	embeddingCalls   int
	embeddingTokens  int
}

// TokenUsageSnapshot is an immutable copy of TokenUsage.
type TokenUsageSnapshot struct {
	LLMCalls         int `json:"llm_calls"`
	CompletionTokens int `json:"completion_tokens"`
	EmbeddingCalls   int `json:"embedding_calls"`
	EmbeddingTokens  int `json:"embedding_tokens"`
}

// NewContextWithTokenUsage returns a context carrying a fresh usage collector.
func NewContextWithTokenUsage(ctx context.Context) (context.Context, *TokenUsage) {
	u := &TokenUsage{}
	return context.WithValue(ctx, tokenUsageKey{}, u), u
}

// TokenUsageFromContext returns the collector, or nil when none is set.
func TokenUsageFromContext(ctx context.Context) *TokenUsage {
	u, _ := ctx.Value(tokenUsageKey{}).(*TokenUsage)
	return u
}

// AddCompletion records one LLM call.
func (u *TokenUsage) AddCompletion(tokens int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.llmCalls++
	u.completionTokens += tokens
	u.mu.Unlock()
}

// AddEmbedding records one embedding call, including cache hits with zero tokens.
func (u *TokenUsage) AddEmbedding(tokens int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.embeddingCalls++
	u.embeddingTokens += tokens
	u.mu.Unlock()
}

// Snapshot returns the current totals.
func (u *TokenUsage) Snapshot() TokenUsageSnapshot {
	if u == nil {
		return TokenUsageSnapshot{}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return TokenUsageSnapshot{
		LLMCalls:         u.llmCalls,
		CompletionTokens: u.completionTokens,
		EmbeddingCalls:   u.embeddingCalls,
		EmbeddingTokens:  u.embeddingTokens,
	}
}
