// Package profile is the PostgreSQL profile store: structured predicate
// execution, pgvector nearest-neighbor search and profile hydration.
package profile

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kailas-cloud/netscout/internal/domain/candidate"
	"github.com/kailas-cloud/netscout/internal/domain/predicate"
)

//go:embed schema.sql
var schemaSQL string

// Config holds connection pool settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Dimensions sizes the embedding column created by EnsureSchema.
	Dimensions int
}

// Store reads profiles owned by a user. All statements are parameterized.
type Store struct {
	db         *sql.DB
	dimensions int
}

// Open connects to PostgreSQL through lib/pq.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return &Store{db: db, dimensions: cfg.Dimensions}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close() //nolint:wrapcheck // shutdown path
}

// EnsureSchema creates the profile tables and the pgvector extension if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	dims := s.dimensions
	if dims <= 0 {
		dims = 1536
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(schemaSQL, dims)); err != nil {
		return fmt.Errorf("ensure schema: %w", wrapPQ(ctx, err))
	}
	return nil
}

// ExecutePredicate returns matching profile ids ordered by first-matched clause.
func (s *Store) ExecutePredicate(ctx context.Context, ownerID string, p *predicate.Predicate) ([]candidate.Hit, error) {
	q, err := compilePredicate(ownerID, p)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("execute predicate: %w", wrapPQ(ctx, err))
	}
	defer rows.Close()

	var hits []candidate.Hit
	for rows.Next() {
		var h candidate.Hit
		if err := rows.Scan(&h.ID, &h.Provenance.Branch); err != nil {
			return nil, fmt.Errorf("scan predicate row: %w", err)
		}
		h.Provenance.Source = candidate.SourceStructured
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("execute predicate: %w", wrapPQ(ctx, err))
	}
	return hits, nil
}

// NearestNeighbors runs a pgvector cosine search over the owner's profiles and
// keeps hits whose normalized similarity reaches threshold.
func (s *Store) NearestNeighbors(
	ctx context.Context, ownerID string, vec []float32, threshold float64, limit int,
) ([]candidate.Hit, error) {
	const stmt = `SELECT id, embedding <=> $2::vector AS distance FROM profiles
WHERE owner_id = $1 AND embedding IS NOT NULL ORDER BY distance LIMIT $3`

	rows, err := s.db.QueryContext(ctx, stmt, ownerID, vectorLiteral(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", wrapPQ(ctx, err))
	}
	defer rows.Close()

	var hits []candidate.Hit
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("scan neighbor row: %w", err)
		}
		sim := cosineSimilarity(distance)
		if sim < threshold {
			continue
		}
		hits = append(hits, candidate.Hit{
			ID:         id,
			Provenance: candidate.Provenance{Source: candidate.SourceVector, Similarity: sim},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", wrapPQ(ctx, err))
	}
	return hits, nil
}

// ListProfileIDs pages through an owner's profile ids in id order.
// With missingOnly only profiles without a stored embedding are returned.
func (s *Store) ListProfileIDs(
	ctx context.Context, ownerID, after string, limit int, missingOnly bool,
) ([]string, error) {
	const stmt = `SELECT id FROM profiles
WHERE owner_id = $1 AND id > $2 AND ($3 = false OR embedding IS NULL) ORDER BY id LIMIT $4`

	rows, err := s.db.QueryContext(ctx, stmt, ownerID, after, missingOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", wrapPQ(ctx, err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan profile id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list profiles: %w", wrapPQ(ctx, err))
	}
	return ids, nil
}

// UpdateEmbeddings writes profile vectors in one transaction.
func (s *Store) UpdateEmbeddings(ctx context.Context, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", wrapPQ(ctx, err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE profiles SET embedding = $2::vector, updated_at = now() WHERE id = $1`)
	if err != nil {
		return fmt.Errorf("prepare update: %w", wrapPQ(ctx, err))
	}
	defer stmt.Close()

	for id, vec := range vectors {
		if _, err := stmt.ExecContext(ctx, id, vectorLiteral(vec)); err != nil {
			return fmt.Errorf("update embedding %s: %w", id, wrapPQ(ctx, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", wrapPQ(ctx, err))
	}
	return nil
}

// wrapPQ surfaces statement cancellation as the context error and keeps the
// Postgres error code in the message otherwise.
func wrapPQ(ctx context.Context, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "57014" && ctx.Err() != nil { // query_canceled
			return ctx.Err()
		}
		return fmt.Errorf("postgres %s (%s): %w", pqErr.Code.Name(), pqErr.Code, err)
	}
	if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		return errors.Join(err, ctx.Err())
	}
	return err
}
