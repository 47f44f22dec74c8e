package embcache

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/db"
	"github.com/kailas-cloud/netscout/internal/domain"
)

// fakeProvider returns a vector whose first component is the text length.
type fakeProvider struct {
	mu      sync.Mutex
	single  []string
	batches [][]string
	err     error
}

func vectorFor(text string) []float32 {
	return []float32{float32(len(text)), 1}
}

func (f *fakeProvider) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.single = append(f.single, text)
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	return domain.EmbeddingResult{Embedding: vectorFor(text), PromptTokens: 4, TotalTokens: 4}, nil
}

func (f *fakeProvider) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, texts)
	if f.err != nil {
		return domain.BatchEmbeddingResult{}, f.err
	}
	out := domain.BatchEmbeddingResult{PromptTokens: 4 * len(texts), TotalTokens: 4 * len(texts)}
	for _, t := range texts {
		out.Embeddings = append(out.Embeddings, vectorFor(t))
	}
	return out, nil
}

// memKV is an in-memory store that can be told to fail.
type memKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
	reads  int
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, &db.Error{Op: db.OpGet, Key: key, Err: db.ErrKeyNotFound}
	}
	return v, nil
}

func (m *memKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memKV) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out
}

func newTestCache(t *testing.T, model string) (*CachedEmbedder, *fakeProvider, *memKV) {
	t.Helper()
	p := &fakeProvider{}
	kv := newMemKV()
	c := New(p, kv, Options{KeyPrefix: "netscout:", Model: model, TTL: 24 * time.Hour}, nil, zap.NewNop())
	return c, p, kv
}

func hasPrefixAll(keys []string, prefix string) bool {
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			return false
		}
	}
	return true
}
