package synthesis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/predicate"
)

type mockCompleter struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []domain.CompletionRequest
}

func (m *mockCompleter) Complete(_ context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return domain.CompletionResult{}, m.err
	}
	i := min(len(m.requests)-1, len(m.replies)-1)
	return domain.CompletionResult{Text: m.replies[i]}, nil
}

// blockingCompleter never answers before its context ends.
type blockingCompleter struct {
	calls atomic.Int32
}

func (b *blockingCompleter) Complete(ctx context.Context, _ domain.CompletionRequest) (domain.CompletionResult, error) {
	b.calls.Add(1)
	<-ctx.Done()
	return domain.CompletionResult{}, ctx.Err()
}

type mockPlanCache struct {
	plans  map[string]*predicate.Predicate
	putErr error
	puts   int
}

func newMockPlanCache() *mockPlanCache {
	return &mockPlanCache{plans: make(map[string]*predicate.Predicate)}
}

func (m *mockPlanCache) Get(_ context.Context, fp string) (*predicate.Predicate, bool) {
	p, ok := m.plans[fp]
	return p.Clone(), ok
}

func (m *mockPlanCache) Put(_ context.Context, fp string, p *predicate.Predicate) error {
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.plans[fp] = p.Clone()
	return nil
}

var errStoreDown = errors.New("store down")
