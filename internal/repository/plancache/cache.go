// Package plancache stores synthesized predicates so identical inputs replay
// the identical plan.
package plancache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/db"
	"github.com/kailas-cloud/netscout/internal/domain/predicate"
)

// store is the consumer interface for the plan cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache persists predicates as JSON under {prefix}plan:{fingerprint}.
type Cache struct {
	store  store
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a plan cache.
func New(s store, keyPrefix string, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{store: s, prefix: keyPrefix + "plan:", ttl: ttl, logger: logger}
}

// Get returns the cached predicate for a fingerprint. A miss, a store failure or
// an entry that no longer validates are all reported as (nil, false).
func (c *Cache) Get(ctx context.Context, fingerprint string) (*predicate.Predicate, bool) {
	key := c.prefix + fingerprint
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to read cached plan", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var p predicate.Predicate
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("Failed to decode cached plan", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if err := p.Validate(); err != nil {
		c.logger.Warn("Cached plan no longer valid", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &p, true
}

// Put stores the predicate under the fingerprint.
func (c *Cache) Put(ctx context.Context, fingerprint string, p *predicate.Predicate) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	if err := c.store.SetWithTTL(ctx, c.prefix+fingerprint, data, c.ttl); err != nil {
		return fmt.Errorf("store plan: %w", err)
	}
	return nil
}
