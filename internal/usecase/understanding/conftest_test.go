package understanding

import (
	"context"
	"sync"

	"github.com/kailas-cloud/netscout/internal/domain"
)

// mockCompleter replays replies in order, repeating the last one.
type mockCompleter struct {
	mu       sync.Mutex
	replies  []string
	err      error
	calls    int
	requests []domain.CompletionRequest
}

func (m *mockCompleter) Complete(_ context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.requests = append(m.requests, req)
	if m.err != nil {
		return domain.CompletionResult{}, m.err
	}
	i := min(m.calls-1, len(m.replies)-1)
	return domain.CompletionResult{Text: m.replies[i]}, nil
}

func opts() Options {
	return Options{MaxAttempts: 2, MaxTraits: 8}
}
