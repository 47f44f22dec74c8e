package embcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/domain"
)

func TestEmbed_MissThenHit(t *testing.T) {
	c, p, kv := newTestCache(t, "text-embedding-3-small")
	ctx := context.Background()

	first, err := c.Embed(ctx, "rust engineers in berlin")
	if err != nil {
		t.Fatalf("first Embed: %v", err)
	}
	if first.TotalTokens != 4 {
		t.Errorf("miss TotalTokens = %d, want 4", first.TotalTokens)
	}

	second, err := c.Embed(ctx, "rust engineers in berlin")
	if err != nil {
		t.Fatalf("second Embed: %v", err)
	}
	if len(p.single) != 1 {
		t.Errorf("provider calls = %d, want 1", len(p.single))
	}
	if second.TotalTokens != 0 || second.PromptTokens != 0 {
		t.Errorf("hit reported tokens %d/%d", second.PromptTokens, second.TotalTokens)
	}
	if second.Embedding[0] != first.Embedding[0] || second.Embedding[1] != first.Embedding[1] {
		t.Errorf("cached vector %v != %v", second.Embedding, first.Embedding)
	}

	keys := kv.keys()
	if len(keys) != 1 || !hasPrefixAll(keys, "netscout:emb:") {
		t.Errorf("keys = %v", keys)
	}
	if ttl := kv.ttls[keys[0]]; ttl != 24*time.Hour {
		t.Errorf("ttl = %v", ttl)
	}
}

func TestEmbed_KeysScopedByModel(t *testing.T) {
	small, _, _ := newTestCache(t, "text-embedding-3-small")
	large, _, _ := newTestCache(t, "text-embedding-3-large")
	if small.key("same text") == large.key("same text") {
		t.Error("different models must not share cache keys")
	}
	if small.key("a") == small.key("b") {
		t.Error("different texts must not share cache keys")
	}
}

func TestEmbed_ProviderErrorNotCached(t *testing.T) {
	c, p, kv := newTestCache(t, "m")
	p.err = domain.ErrEmbeddingProviderError

	if _, err := c.Embed(context.Background(), "x"); !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("err = %v", err)
	}
	if len(kv.keys()) != 0 {
		t.Error("a failed embedding must not be cached")
	}
}

func TestEmbed_StoreFailuresAreMisses(t *testing.T) {
	c, p, kv := newTestCache(t, "m")
	kv.getErr = errors.New("connection reset")
	kv.setErr = errors.New("connection reset")

	res, err := c.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("Embed should survive store errors: %v", err)
	}
	if len(res.Embedding) == 0 || len(p.single) != 1 {
		t.Errorf("res = %+v, provider calls = %d", res, len(p.single))
	}
}

func TestEmbed_CorruptRecordIsMiss(t *testing.T) {
	c, p, kv := newTestCache(t, "m")
	kv.data[c.key("x")] = []byte{recordVersion, 9, 0, 0, 0, 1, 2}

	if _, err := c.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(p.single) != 1 {
		t.Errorf("provider calls = %d, want 1", len(p.single))
	}
	if vec, err := decodeRecord(kv.data[c.key("x")]); err != nil || len(vec) != 2 {
		t.Errorf("record not rewritten: %v %v", vec, err)
	}
}

func TestBatchEmbed_OnlyMissesReachProvider(t *testing.T) {
	c, p, _ := newTestCache(t, "m")
	ctx := context.Background()
	if _, err := c.Embed(ctx, "bb"); err != nil {
		t.Fatal(err)
	}

	res, err := c.BatchEmbed(ctx, []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if len(p.batches) != 1 || len(p.batches[0]) != 2 {
		t.Fatalf("batches = %v, want one batch of the two misses", p.batches)
	}
	for i, want := range []float32{1, 2, 3} {
		if res.Embeddings[i][0] != want {
			t.Errorf("vector %d = %v, want first component %v", i, res.Embeddings[i], want)
		}
	}
	if res.TotalTokens != 8 {
		t.Errorf("TotalTokens = %d, want 8 (misses only)", res.TotalTokens)
	}
}

func TestBatchEmbed_DuplicatesEmbeddedOnce(t *testing.T) {
	c, p, kv := newTestCache(t, "m")

	res, err := c.BatchEmbed(context.Background(), []string{"dup", "other", "dup"})
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if len(p.batches) != 1 || len(p.batches[0]) != 2 {
		t.Fatalf("batches = %v", p.batches)
	}
	if res.Embeddings[0] == nil || res.Embeddings[2] == nil || res.Embeddings[0][0] != res.Embeddings[2][0] {
		t.Errorf("duplicates got different vectors: %v", res.Embeddings)
	}
	if len(kv.keys()) != 2 {
		t.Errorf("stored %d records, want 2", len(kv.keys()))
	}
}

func TestBatchEmbed_AllHitsSkipProvider(t *testing.T) {
	c, p, _ := newTestCache(t, "m")
	ctx := context.Background()
	if _, err := c.BatchEmbed(ctx, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}

	res, err := c.BatchEmbed(ctx, []string{"b", "a"})
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if len(p.batches) != 1 {
		t.Errorf("provider batches = %d, want 1", len(p.batches))
	}
	if res.TotalTokens != 0 {
		t.Errorf("TotalTokens = %d, want 0", res.TotalTokens)
	}
}

func TestBatchEmbed_ProviderError(t *testing.T) {
	c, p, _ := newTestCache(t, "m")
	p.err = errors.New("upstream 500")

	if _, err := c.BatchEmbed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestBatchEmbed_Empty(t *testing.T) {
	c, p, kv := newTestCache(t, "m")
	res, err := c.BatchEmbed(context.Background(), nil)
	if err != nil || res.Embeddings != nil {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
	if len(p.batches) != 0 || kv.reads != 0 {
		t.Error("empty batch must not touch provider or store")
	}
}

func TestCachedEmbedder_CountsLookups(t *testing.T) {
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "lookups"}, []string{"result"})
	c := New(&fakeProvider{}, newMemKV(), Options{Model: "m"}, lookups, zap.NewNop())
	ctx := context.Background()

	_, _ = c.Embed(ctx, "x")
	_, _ = c.Embed(ctx, "x")
	_, _ = c.BatchEmbed(ctx, []string{"x", "y"})

	if got := testutil.ToFloat64(lookups.WithLabelValues("hit")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(lookups.WithLabelValues("miss")); got != 2 {
		t.Errorf("misses = %v, want 2", got)
	}
}

func TestDecodeRecord_Rejects(t *testing.T) {
	good := encodeRecord([]float32{0.25, -1})
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"short", good[:3]},
		{"wrong version", append([]byte{recordVersion + 1}, good[1:]...)},
		{"truncated", good[:len(good)-1]},
		{"zero dims", []byte{recordVersion, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeRecord(tt.raw); err == nil {
				t.Error("expected error")
			}
		})
	}

	vec, err := decodeRecord(good)
	if err != nil || len(vec) != 2 || vec[0] != 0.25 || vec[1] != -1 {
		t.Errorf("decode(good) = %v, %v", vec, err)
	}
}
