package reindex

import (
	"context"
	"fmt"
)

type embeddingColumn interface {
	UpdateEmbeddings(ctx context.Context, vectors map[string][]float32) error
}

// PostgresWriter stores vectors in the profiles.embedding pgvector column.
type PostgresWriter struct {
	store embeddingColumn
}

// NewPostgresWriter creates a pgvector writer.
func NewPostgresWriter(store embeddingColumn) *PostgresWriter {
	return &PostgresWriter{store: store}
}

// WriteVectors updates the embedding column. Ownership is implied by profile id.
func (w *PostgresWriter) WriteVectors(ctx context.Context, _ string, vectors map[string][]float32) error {
	if err := w.store.UpdateEmbeddings(ctx, vectors); err != nil {
		return fmt.Errorf("pgvector: %w", err)
	}
	return nil
}

type profileIndex interface {
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, ownerID string, vectors map[string][]float32) error
}

// IndexWriter stores vectors as hashes under the Redis FT profile index.
type IndexWriter struct {
	index   profileIndex
	ensured bool
}

// NewIndexWriter creates a Redis index writer.
func NewIndexWriter(index profileIndex) *IndexWriter {
	return &IndexWriter{index: index}
}

// WriteVectors creates the index on first use, then upserts the vectors.
func (w *IndexWriter) WriteVectors(ctx context.Context, ownerID string, vectors map[string][]float32) error {
	if !w.ensured {
		if err := w.index.EnsureIndex(ctx); err != nil {
			return fmt.Errorf("redis index: %w", err)
		}
		w.ensured = true
	}
	if err := w.index.Upsert(ctx, ownerID, vectors); err != nil {
		return fmt.Errorf("redis index: %w", err)
	}
	return nil
}
