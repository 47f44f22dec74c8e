// Package embcache keeps provider embeddings in the key-value store so that
// repeated queries and unchanged profiles are not re-embedded.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/db"
	"github.com/kailas-cloud/netscout/internal/domain"
)

// recordVersion prefixes every stored vector. Bump it when the layout changes.
const recordVersion byte = 1

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options configures key layout and expiry.
type Options struct {
	KeyPrefix string
	// Model scopes keys so a model switch never serves vectors from the old one.
	Model string
	TTL   time.Duration
}

// CachedEmbedder wraps an embedder with a read-through vector cache.
type CachedEmbedder struct {
	inner   domain.Embedder
	store   store
	opts    Options
	lookups *prometheus.CounterVec
	logger  *zap.Logger
}

// New wraps inner. lookups is labelled by result (hit, miss) and may be nil.
func New(inner domain.Embedder, s store, opts Options, lookups *prometheus.CounterVec, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{inner: inner, store: s, opts: opts, lookups: lookups, logger: logger}
}

// Embed serves text from the cache or the inner embedder. Hits report zero tokens.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.key(text)
	if vec, ok := c.load(ctx, key); ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	res, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	c.save(ctx, key, res.Embedding)
	return res, nil
}

// BatchEmbed looks every text up, then embeds the distinct misses in one inner
// call. Repeated texts in a batch are embedded once. Output follows input order.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	pending := make(map[string][]int)
	var misses, missKeys []string

	for i, text := range texts {
		if at, seen := pending[text]; seen {
			pending[text] = append(at, i)
			continue
		}
		key := c.key(text)
		if vec, ok := c.load(ctx, key); ok {
			out.Embeddings[i] = vec
			continue
		}
		pending[text] = []int{i}
		misses = append(misses, text)
		missKeys = append(missKeys, key)
	}
	if len(misses) == 0 {
		return out, nil
	}

	res, err := domain.EmbedAll(ctx, c.inner, misses)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed %d uncached texts: %w", len(misses), err)
	}
	if len(res.Embeddings) != len(misses) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("got %d vectors for %d texts: %w",
			len(res.Embeddings), len(misses), domain.ErrEmbeddingProviderError)
	}

	for j, text := range misses {
		vec := res.Embeddings[j]
		for _, i := range pending[text] {
			out.Embeddings[i] = vec
		}
		c.save(ctx, missKeys[j], vec)
	}
	out.PromptTokens = res.PromptTokens
	out.TotalTokens = res.TotalTokens
	return out, nil
}

func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	return domain.CheckHealth(ctx, c.inner)
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.opts.Model + "\x00" + text))
	return c.opts.KeyPrefix + "emb:" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) count(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}

// load treats every failure as a miss; the store is an optimization only.
func (c *CachedEmbedder) load(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("embedding cache read failed", zap.String("key", key), zap.Error(err))
		}
		c.count("miss")
		return nil, false
	}
	vec, err := decodeRecord(raw)
	if err != nil {
		c.logger.Warn("embedding cache record unreadable", zap.String("key", key), zap.Error(err))
		c.count("miss")
		return nil, false
	}
	c.count("hit")
	return vec, true
}

func (c *CachedEmbedder) save(ctx context.Context, key string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	if err := c.store.SetWithTTL(ctx, key, encodeRecord(vec), c.opts.TTL); err != nil {
		c.logger.Warn("embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// encodeRecord lays a vector out as version byte, uint32 dimension count,
// then little-endian float32 components.
func encodeRecord(vec []float32) []byte {
	buf := make([]byte, 5+4*len(vec))
	buf[0] = recordVersion
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(vec))) //nolint:gosec // dimensions fit in uint32
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[5+4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeRecord(raw []byte) ([]float32, error) {
	if len(raw) < 5 {
		return nil, fmt.Errorf("record too short: %d bytes", len(raw))
	}
	if raw[0] != recordVersion {
		return nil, fmt.Errorf("record version %d, want %d", raw[0], recordVersion)
	}
	dims := int(binary.LittleEndian.Uint32(raw[1:5]))
	if dims == 0 || len(raw) != 5+4*dims {
		return nil, fmt.Errorf("record holds %d bytes for %d dimensions", len(raw)-5, dims)
	}
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[5+4*i:]))
	}
	return vec, nil
}
