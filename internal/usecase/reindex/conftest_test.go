package reindex

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/candidate"
)

var errBoom = errors.New("boom")

type mockSource struct {
	ids      []string
	listErr  error
	fetchErr error
	afters   []string
}

func (m *mockSource) ListProfileIDs(_ context.Context, _, after string, limit int, _ bool) ([]string, error) {
	m.afters = append(m.afters, after)
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []string
	for _, id := range m.ids {
		if id > after {
			out = append(out, id)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockSource) FetchProfiles(_ context.Context, _ string, ids []string) ([]candidate.Candidate, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]candidate.Candidate, len(ids))
	for i, id := range ids {
		out[i] = candidate.Candidate{Summary: candidate.Summary{ID: id, FullName: id}}
	}
	return out, nil
}

// mockEmbedder fails any batch containing a profile named in failOn.
type mockEmbedder struct {
	mu     sync.Mutex
	failOn string
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{1}}, nil
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.failOn != "" && slices.ContainsFunc(texts, func(s string) bool { return strings.Contains(s, m.failOn) }) {
		return domain.BatchEmbeddingResult{}, errBoom
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

type mockWriter struct {
	writes []map[string][]float32
	err    error
}

func (m *mockWriter) WriteVectors(_ context.Context, _ string, vectors map[string][]float32) error {
	m.writes = append(m.writes, vectors)
	return m.err
}

type mockColumn struct {
	got map[string][]float32
}

func (m *mockColumn) UpdateEmbeddings(_ context.Context, vectors map[string][]float32) error {
	m.got = vectors
	return nil
}

type mockIndex struct {
	ensureCalls int
	upserts     int
	owner       string
}

func (m *mockIndex) EnsureIndex(_ context.Context) error {
	m.ensureCalls++
	return nil
}

func (m *mockIndex) Upsert(_ context.Context, ownerID string, _ map[string][]float32) error {
	m.upserts++
	m.owner = ownerID
	return nil
}
