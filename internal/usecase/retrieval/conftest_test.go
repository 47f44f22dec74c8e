package retrieval

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/candidate"
	"github.com/kailas-cloud/netscout/internal/domain/predicate"
)

var errBoom = errors.New("boom")

type mockProfiles struct {
	mu         sync.Mutex
	hits       []candidate.Hit
	execErr    error
	fetchErr   error
	fetched    []string
	missing    map[string]bool
	execCalled bool
}

func (m *mockProfiles) ExecutePredicate(_ context.Context, _ string, _ *predicate.Predicate) ([]candidate.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execCalled = true
	return m.hits, m.execErr
}

func (m *mockProfiles) FetchProfiles(_ context.Context, _ string, ids []string) ([]candidate.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = ids
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]candidate.Candidate, 0, len(ids))
	for _, id := range ids {
		if m.missing[id] {
			continue
		}
		out = append(out, candidate.Candidate{Summary: candidate.Summary{ID: id, FullName: "Name " + id}})
	}
	return out, nil
}

type mockVectors struct {
	hits  []candidate.Hit
	err   error
	delay time.Duration
	vec   []float32
}

func (m *mockVectors) NearestNeighbors(ctx context.Context, _ string, vec []float32, _ float64, _ int) ([]candidate.Hit, error) {
	m.vec = vec
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.hits, m.err
}

type mockEmbedder struct {
	err   error
	texts []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.texts = append(m.texts, text)
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

type mockCompleter struct {
	text string
	err  error
	reqs []domain.CompletionRequest
}

func (m *mockCompleter) Complete(_ context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	m.reqs = append(m.reqs, req)
	return domain.CompletionResult{Text: m.text}, m.err
}

func structuredHit(id string, branch int) candidate.Hit {
	return candidate.Hit{ID: id, Provenance: candidate.Provenance{Source: candidate.SourceStructured, Branch: branch}}
}

func vectorHit(id string, sim float64) candidate.Hit {
	return candidate.Hit{ID: id, Provenance: candidate.Provenance{Source: candidate.SourceVector, Similarity: sim}}
}

func somePredicate() *predicate.Predicate {
	return &predicate.Predicate{Limit: 100, Clauses: []predicate.Clause{{Comparisons: []predicate.Comparison{
		predicate.ILike("experience.company", "google"),
	}}}}
}
