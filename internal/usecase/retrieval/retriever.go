// Package retrieval runs the structured and vector candidate paths and
// merges them into one capped, deduplicated list.
package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/candidate"
	"github.com/kailas-cloud/netscout/internal/domain/predicate"
	"github.com/kailas-cloud/netscout/internal/domain/trait"
	"github.com/kailas-cloud/netscout/internal/logger"
	"github.com/kailas-cloud/netscout/internal/metrics"
)

// profileStore executes predicates and hydrates profiles.
type profileStore interface {
	ExecutePredicate(ctx context.Context, ownerID string, p *predicate.Predicate) ([]candidate.Hit, error)
	FetchProfiles(ctx context.Context, ownerID string, ids []string) ([]candidate.Candidate, error)
}

// vectorSearcher finds profiles near a query vector.
type vectorSearcher interface {
	NearestNeighbors(ctx context.Context, ownerID string, vec []float32, threshold float64, limit int) ([]candidate.Hit, error)
}

// Options tunes retrieval.
type Options struct {
	Limit       int
	Threshold   float64
	HyDE        bool
	PathTimeout time.Duration
	Temperature float64
}

// Request is one retrieval.
type Request struct {
	OwnerID   string
	Query     string
	Traits    []trait.Trait
	Predicate *predicate.Predicate
}

// Outcome is the merged candidate list plus per-path diagnostics.
type Outcome struct {
	Candidates     []candidate.Candidate `json:"-"`
	StructuredHits int                   `json:"structured_hits"`
	VectorHits     int                   `json:"vector_hits"`
	Merged         int                   `json:"merged"`
	HyDE           bool                  `json:"hyde"`
	StructuredErr  string                `json:"structured_error,omitempty"`
	VectorErr      string                `json:"vector_error,omitempty"`
}

// Retriever runs both retrieval paths concurrently.
type Retriever struct {
	profiles profileStore
	vectors  vectorSearcher
	embedder domain.Embedder
	llm      domain.Completer
	opts     Options
}

// New creates a retriever. llm is only used when HyDE is enabled and may be nil.
func New(profiles profileStore, vectors vectorSearcher, embedder domain.Embedder, llm domain.Completer, opts Options) *Retriever {
	if opts.Limit <= 0 || opts.Limit > predicate.MaxLimit {
		opts.Limit = predicate.MaxLimit
	}
	if opts.PathTimeout <= 0 {
		opts.PathTimeout = 10 * time.Second
	}
	return &Retriever{profiles: profiles, vectors: vectors, embedder: embedder, llm: llm, opts: opts}
}

// Retrieve returns up to Limit candidates. Structured hits come first in
// branch order, then vector hits by similarity. A profile found by both keeps
// its structured provenance. When one path fails the other one's results are
// returned; when every attempted path fails the error wraps ErrRetrievalExhausted.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (Outcome, error) {
	var (
		out                  Outcome
		structured, vector   []candidate.Hit
		structErr, vectorErr error
		g                    errgroup.Group
	)

	if req.Predicate != nil {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, r.opts.PathTimeout)
			defer cancel()
			start := time.Now()
			structured, structErr = r.profiles.ExecutePredicate(pctx, req.OwnerID, req.Predicate)
			observe(candidate.SourceStructured, start, len(structured), structErr)
			return nil
		})
	}
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(ctx, r.opts.PathTimeout)
		defer cancel()
		start := time.Now()
		vector, out.HyDE, vectorErr = r.vectorPath(pctx, req)
		observe(candidate.SourceVector, start, len(vector), vectorErr)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("retrieve: %w", err)
	}

	log := logger.FromContext(ctx)
	if structErr != nil {
		out.StructuredErr = structErr.Error()
		log.Warn("structured retrieval failed", zap.Error(structErr))
	}
	if vectorErr != nil {
		out.VectorErr = vectorErr.Error()
		log.Warn("vector retrieval failed", zap.Error(vectorErr))
	}
	structuredOK := req.Predicate != nil && structErr == nil
	if !structuredOK && vectorErr != nil {
		return out, fmt.Errorf("%w: %w", domain.ErrRetrievalExhausted, errors.Join(structErr, vectorErr))
	}

	out.StructuredHits = len(structured)
	out.VectorHits = len(vector)
	hits := merge(structured, vector, r.opts.Limit)
	out.Merged = len(hits)
	if len(hits) == 0 {
		out.Candidates = []candidate.Candidate{}
		return out, nil
	}

	ids := make([]string, len(hits))
	byID := make(map[string]candidate.Provenance, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		byID[h.ID] = h.Provenance
	}
	cands, err := r.profiles.FetchProfiles(ctx, req.OwnerID, ids)
	if err != nil {
		return out, fmt.Errorf("hydrate candidates: %w", err)
	}
	for i := range cands {
		cands[i].Provenance = byID[cands[i].ID]
		cands[i].Rank = i
	}
	out.Candidates = cands
	return out, nil
}

func (r *Retriever) vectorPath(ctx context.Context, req Request) ([]candidate.Hit, bool, error) {
	text, hyde := req.Query, false
	if r.opts.HyDE && r.llm != nil {
		if doc, err := r.hypothetical(ctx, req); err == nil {
			text, hyde = doc, true
		} else if ctx.Err() == nil {
			logger.FromContext(ctx).Warn("hyde generation failed, embedding raw query", zap.Error(err))
		}
	}

	emb, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, hyde, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.vectors.NearestNeighbors(ctx, req.OwnerID, emb.Embedding, r.opts.Threshold, r.opts.Limit)
	if err != nil {
		return nil, hyde, fmt.Errorf("nearest neighbors: %w", err)
	}
	return hits, hyde, nil
}

const hydePrompt = `Write a short professional profile (headline, one current role, education, a few skills)
for a person who perfectly matches the search below. Plain text only, at most 120 words.`

func (r *Retriever) hypothetical(ctx context.Context, req Request) (string, error) {
	var b strings.Builder
	b.WriteString("Search: ")
	b.WriteString(req.Query)
	for _, t := range req.Traits {
		b.WriteString("\n- ")
		b.WriteString(t.Text)
	}
	res, err := r.llm.Complete(ctx, domain.CompletionRequest{
		Operation:    "hyde",
		SystemPrompt: hydePrompt,
		UserContent:  b.String(),
		Temperature:  r.opts.Temperature,
		MaxTokens:    256,
	})
	if err != nil {
		return "", fmt.Errorf("hyde: %w", err)
	}
	doc := strings.TrimSpace(res.Text)
	if doc == "" {
		return "", errors.New("hyde: empty document")
	}
	return doc, nil
}

// merge unions both hit lists by id and caps the result.
func merge(structured, vector []candidate.Hit, limit int) []candidate.Hit {
	s := slices.Clone(structured)
	slices.SortStableFunc(s, func(a, b candidate.Hit) int {
		return cmp.Compare(a.Provenance.Branch, b.Provenance.Branch)
	})
	v := slices.Clone(vector)
	slices.SortStableFunc(v, func(a, b candidate.Hit) int {
		if c := cmp.Compare(b.Provenance.Similarity, a.Provenance.Similarity); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	similarity := make(map[string]float64, len(v))
	for _, h := range v {
		if _, ok := similarity[h.ID]; !ok {
			similarity[h.ID] = h.Provenance.Similarity
		}
	}

	out := make([]candidate.Hit, 0, min(limit, len(s)+len(v)))
	seen := make(map[string]bool, len(s)+len(v))
	for _, list := range [][]candidate.Hit{s, v} {
		for _, h := range list {
			if len(out) == limit {
				return out
			}
			if h.ID == "" || seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			if h.Provenance.Source == candidate.SourceStructured {
				h.Provenance.Similarity = similarity[h.ID]
			}
			out = append(out, h)
		}
	}
	return out
}

func observe(source candidate.Source, start time.Time, hits int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	} else {
		metrics.CandidatesRetrieved.WithLabelValues(string(source)).Observe(float64(hits))
	}
	metrics.StageDuration.WithLabelValues("retrieval_"+string(source), status).Observe(time.Since(start).Seconds())
}
