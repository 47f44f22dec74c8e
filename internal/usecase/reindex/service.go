// Package reindex backfills profile embeddings into the configured vector backend.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/candidate"
	"github.com/kailas-cloud/netscout/internal/logger"
)

type profileSource interface {
	ListProfileIDs(ctx context.Context, ownerID, after string, limit int, missingOnly bool) ([]string, error)
	FetchProfiles(ctx context.Context, ownerID string, ids []string) ([]candidate.Candidate, error)
}

// VectorWriter stores profile vectors in a vector backend.
type VectorWriter interface {
	WriteVectors(ctx context.Context, ownerID string, vectors map[string][]float32) error
}

// Options tunes a backfill run.
type Options struct {
	PageSize  int
	BatchSize int
	Workers   int
	// MissingOnly skips profiles that already carry an embedding in Postgres.
	MissingOnly bool
}

// Stats summarizes a run.
type Stats struct {
	Pages    int `json:"pages"`
	Profiles int `json:"profiles"`
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// Service runs backfills.
type Service struct {
	source   profileSource
	embedder domain.Embedder
	writer   VectorWriter
	opts     Options
}

// New creates a reindex service.
func New(source profileSource, embedder domain.Embedder, writer VectorWriter, opts Options) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = 200
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Service{source: source, embedder: embedder, writer: writer, opts: opts}
}

// Run embeds every eligible profile of ownerID page by page. Failed batches
// are counted and skipped; store errors abort the run.
func (s *Service) Run(ctx context.Context, ownerID string) (Stats, error) {
	pool, err := ants.NewPool(s.opts.Workers)
	if err != nil {
		return Stats{}, fmt.Errorf("reindex pool: %w", err)
	}
	defer pool.Release()

	ctx, log := logger.With(ctx, zap.String("owner_id", ownerID))
	var stats Stats
	after := ""
	for {
		ids, err := s.source.ListProfileIDs(ctx, ownerID, after, s.opts.PageSize, s.opts.MissingOnly)
		if err != nil {
			return stats, fmt.Errorf("list page after %q: %w", after, err)
		}
		if len(ids) == 0 {
			return stats, nil
		}
		after = ids[len(ids)-1]
		stats.Pages++

		profiles, err := s.source.FetchProfiles(ctx, ownerID, ids)
		if err != nil {
			return stats, fmt.Errorf("fetch page: %w", err)
		}
		stats.Profiles += len(profiles)

		vectors, failed := s.embedPage(ctx, pool, profiles)
		stats.Failed += failed
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("reindex: %w", err)
		}
		if len(vectors) > 0 {
			if err := s.writer.WriteVectors(ctx, ownerID, vectors); err != nil {
				return stats, fmt.Errorf("write vectors: %w", err)
			}
		}
		stats.Embedded += len(vectors)
		log.Info("reindex page done",
			zap.String("owner_id", ownerID),
			zap.Int("page", stats.Pages),
			zap.Int("embedded", len(vectors)),
			zap.Int("failed", failed),
		)

		if len(ids) < s.opts.PageSize {
			return stats, nil
		}
	}
}

func (s *Service) embedPage(ctx context.Context, pool *ants.Pool, profiles []candidate.Candidate) (map[string][]float32, int) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		vectors = make(map[string][]float32, len(profiles))
		failed  int
	)
	log := logger.FromContext(ctx)

	for start := 0; start < len(profiles); start += s.opts.BatchSize {
		batch := profiles[start:min(start+s.opts.BatchSize, len(profiles))]
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			res, err := s.embedBatch(ctx, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed += len(batch)
				log.Warn("reindex batch failed", zap.Int("size", len(batch)), zap.Error(err))
				return
			}
			for i, c := range batch {
				vectors[c.ID] = res[i]
			}
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			failed += len(batch)
			mu.Unlock()
		}
	}
	wg.Wait()
	return vectors, failed
}

func (s *Service) embedBatch(ctx context.Context, batch []candidate.Candidate) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text()
	}

	res, err := domain.EmbedAll(ctx, s.embedder, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(res.Embeddings) != len(batch) {
		return nil, errors.New("embedding count mismatch")
	}
	return res.Embeddings, nil
}
