// Package vectorindex keeps profile embeddings in a Redis FT index and serves
// nearest-neighbor queries scoped to one owner.
package vectorindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kailas-cloud/netscout/internal/db"
	"github.com/kailas-cloud/netscout/internal/domain/candidate"
)

const (
	fieldOwner   = "owner_id"
	fieldProfile = "profile_id"
	fieldVector  = "vector"

	hnswM              = 16
	hnswEFConstruction = 200
)

// store is the consumer interface for the vector index (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Index stores one hash per profile under {prefix}profile:{id}.
type Index struct {
	store      store
	name       string
	keyPrefix  string
	dimensions int
}

// New creates a profile vector index handle.
func New(s store, prefix string, dimensions int) *Index {
	return &Index{
		store:      s,
		name:       prefix + "profiles:idx",
		keyPrefix:  prefix + "profile:",
		dimensions: dimensions,
	}
}

// Definition returns the FT index schema.
func (x *Index) Definition() (*db.IndexDefinition, error) {
	def, err := db.NewIndex(x.name).
		Prefix(x.keyPrefix).
		Tag(fieldOwner).
		Tag(fieldProfile).
		VectorHNSW(fieldVector, x.dimensions, db.DistanceCosine, hnswM, hnswEFConstruction).
		Build()
	if err != nil {
		return nil, fmt.Errorf("profile index definition: %w", err)
	}
	return def, nil
}

// EnsureIndex creates the FT index when it does not exist yet.
func (x *Index) EnsureIndex(ctx context.Context) error {
	exists, err := x.store.IndexExists(ctx, x.name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", x.name, err)
	}
	if exists {
		return nil
	}
	def, err := x.Definition()
	if err != nil {
		return err
	}
	if err := x.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", x.name, err)
	}
	return nil
}

// Upsert writes profile vectors for one owner in a single round-trip.
func (x *Index) Upsert(ctx context.Context, ownerID string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, 0, len(vectors))
	for id, vec := range vectors {
		if len(vec) != x.dimensions {
			return fmt.Errorf("profile %s: vector has %d dimensions, index expects %d", id, len(vec), x.dimensions)
		}
		items = append(items, db.HashSetItem{
			Key: x.keyPrefix + id,
			Fields: map[string]string{
				fieldOwner:   ownerID,
				fieldProfile: id,
				fieldVector:  encodeVector(vec),
			},
		})
	}
	if err := x.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert %d profile vectors: %w", len(items), err)
	}
	return nil
}


// NearestNeighbors returns the owner's closest profiles with similarity >= threshold.
func (x *Index) NearestNeighbors(
	ctx context.Context, ownerID string, vec []float32, threshold float64, limit int,
) ([]candidate.Hit, error) {
	res, err := x.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    x.name,
		VectorField:  fieldVector,
		Tags:         []db.TagFilter{{Field: fieldOwner, Value: ownerID}},
		Vector:       vec,
		K:            limit,
		ReturnFields: []string{fieldProfile},
	})
	if err != nil {
		return nil, fmt.Errorf("profile knn: %w", err)
	}

	hits := make([]candidate.Hit, 0, len(res.Entries))
	for _, e := range res.Entries {
		if e.Score < threshold {
			continue
		}
		id := e.Fields[fieldProfile]
		if id == "" {
			id = strings.TrimPrefix(e.Key, x.keyPrefix)
		}
		hits = append(hits, candidate.Hit{
			ID:         id,
			Provenance: candidate.Provenance{Source: candidate.SourceVector, Similarity: e.Score},
		})
	}
	return hits, nil
}

func encodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
