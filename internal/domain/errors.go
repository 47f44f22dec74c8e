package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized signals a request without an authenticated user.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidQuery signals a search query rejected before the pipeline starts.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrQuotaExceeded signals that the caller spent the daily search quota.
	ErrQuotaExceeded = errors.New("search quota exceeded")
	// ErrTokenBudgetExceeded signals an exhausted provider token budget.
	ErrTokenBudgetExceeded = errors.New("token budget exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrLLMProviderError signals a completion provider failure.
	ErrLLMProviderError = errors.New("llm provider error")
	// ErrMalformedResponse signals model output that does not match the expected shape.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrUnknownField signals a predicate comparison on a field outside the profile schema.
	ErrUnknownField = errors.New("unknown predicate field")
	// ErrInvalidPredicate signals a structurally invalid search predicate.
	ErrInvalidPredicate = errors.New("invalid predicate")
	// ErrRetrievalExhausted signals that every retrieval path failed.
	ErrRetrievalExhausted = errors.New("no candidates could be retrieved")
	// ErrSearchTimeout signals that a search exceeded its overall deadline.
	ErrSearchTimeout = errors.New("search timed out")
)

// QueryError wraps ErrInvalidQuery with the reason shown to the client.
type QueryError struct {
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidQuery.Error(), e.Reason)
}

func (e *QueryError) Unwrap() error { return ErrInvalidQuery }

// NewQueryError creates an invalid query error.
func NewQueryError(reason string) error {
	return &QueryError{Reason: reason}
}
