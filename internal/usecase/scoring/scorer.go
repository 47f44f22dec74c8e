// Package scoring grades candidates against traits in bounded concurrent batches.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/candidate"
	"github.com/kailas-cloud/netscout/internal/domain/score"
	"github.com/kailas-cloud/netscout/internal/domain/trait"
	"github.com/kailas-cloud/netscout/internal/logger"
	"github.com/kailas-cloud/netscout/internal/metrics"
	"github.com/kailas-cloud/netscout/internal/usecase/structured"
)

const scoringPrompt = `You grade LinkedIn profiles against search traits.

For every candidate and every trait answer with one score:
- "Yes": the profile clearly satisfies the trait.
- "Kind Of": the profile partially or plausibly satisfies it.
- "No": it does not, or the profile says nothing about it.

evidence must quote or closely reference the profile text that supports the score.
When the score is "No" because the profile lacks the information, use exactly "Insufficient information".
Score every trait for every candidate. Refer to traits by trait_index.

Respond with a JSON object only:
{"candidates": [{"id": "...", "trait_scores": [{"trait_index": 0, "score": "Yes", "evidence": "..."}]}]}`

// Options tunes the scorer.
type Options struct {
	BatchSize    int
	MaxInFlight  int
	BatchTimeout time.Duration
	MaxAttempts  int
	Temperature  float64
	Weights      score.Weights
}

// Report is the scored result set and failure accounting.
type Report struct {
	Results          []score.Result `json:"-"`
	Batches          int            `json:"batches"`
	FailedBatches    int            `json:"failed_batches,omitempty"`
	FailedCandidates int            `json:"failed_candidates,omitempty"`
}

// Partial reports whether any score was defaulted.
func (r Report) Partial() bool {
	return r.FailedBatches > 0 || r.FailedCandidates > 0
}

// Scorer runs scoring batches on a process-wide worker pool.
type Scorer struct {
	llm  domain.Completer
	pool *ants.Pool
	opts Options
}

// New creates a scorer with a pool of MaxInFlight workers.
func New(llm domain.Completer, opts Options) (*Scorer, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 4
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 45 * time.Second
	}
	if opts.Weights == (score.Weights{}) {
		opts.Weights = score.DefaultWeights()
	}
	pool, err := ants.NewPool(opts.MaxInFlight)
	if err != nil {
		return nil, fmt.Errorf("scoring pool: %w", err)
	}
	return &Scorer{llm: llm, pool: pool, opts: opts}, nil
}

// Release stops the worker pool.
func (s *Scorer) Release() {
	s.pool.Release()
}

type batchOutcome struct {
	scores map[string][]score.TraitScore
	// incomplete holds candidates with at least one defaulted pair.
	incomplete map[string]bool
	err        error
}

// Score grades every candidate against every trait. A failed batch or a
// missing pair becomes No with "Insufficient information" and the result is
// marked partial; candidates are never dropped. Only context errors are returned.
func (s *Scorer) Score(ctx context.Context, cands []candidate.Candidate, traits []trait.Trait) (Report, error) {
	report := Report{Results: make([]score.Result, 0, len(cands))}
	if len(cands) == 0 {
		return report, nil
	}
	if len(traits) == 0 {
		for _, c := range cands {
			report.Results = append(report.Results, score.NewResult(c, nil, s.opts.Weights, false))
		}
		score.Sort(report.Results)
		return report, nil
	}

	batches := split(cands, s.opts.BatchSize)
	report.Batches = len(batches)
	outcomes := make([]batchOutcome, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = s.scoreBatch(ctx, batch, traits)
		})
		if err != nil {
			wg.Done()
			outcomes[i] = batchOutcome{err: fmt.Errorf("submit batch: %w", err)}
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Report{}, fmt.Errorf("score: %w", err)
	}

	log := logger.FromContext(ctx)
	for i, batch := range batches {
		o := outcomes[i]
		status := "ok"
		if o.err != nil {
			status = "error"
			report.FailedBatches++
			log.Warn("scoring batch failed", zap.Int("batch", i), zap.Int("candidates", len(batch)), zap.Error(o.err))
		}
		metrics.ScoringBatchesTotal.WithLabelValues(status).Inc()

		for _, c := range batch {
			scores, ok := o.scores[c.ID]
			partial := o.err != nil || !ok || o.incomplete[c.ID]
			if !ok {
				scores = defaults(traits)
			}
			if partial {
				report.FailedCandidates++
			}
			report.Results = append(report.Results, score.NewResult(c, scores, s.opts.Weights, partial))
		}
	}
	score.Sort(report.Results)
	return report, nil
}

type scoreWire struct {
	TraitIndex json.RawMessage `json:"trait_index"`
	Trait      string          `json:"trait"`
	Score      string          `json:"score"`
	Evidence   string          `json:"evidence"`
}

type candidateWire struct {
	ID          string      `json:"id"`
	TraitScores []scoreWire `json:"trait_scores"`
}

type batchWire struct {
	Candidates *[]candidateWire `json:"candidates"`
}

func (s *Scorer) scoreBatch(ctx context.Context, batch []candidate.Candidate, traits []trait.Trait) batchOutcome {
	if err := ctx.Err(); err != nil {
		return batchOutcome{err: err}
	}
	bctx, cancel := context.WithTimeout(ctx, s.opts.BatchTimeout)
	defer cancel()

	start := time.Now()
	wire, err := structured.Complete(bctx, s.llm, domain.CompletionRequest{
		Operation:    "scoring",
		SystemPrompt: scoringPrompt,
		UserContent:  batchInput(batch, traits),
		Temperature:  s.opts.Temperature,
	}, s.opts.MaxAttempts, func(w *batchWire) error {
		if w.Candidates == nil {
			return errors.New("missing candidates")
		}
		return nil
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StageDuration.WithLabelValues("scoring_batch", status).Observe(time.Since(start).Seconds())
	if err != nil {
		return batchOutcome{err: err}
	}
	return associate(*wire.Candidates, batch, traits)
}

// associate maps model output back onto the batch by candidate id and trait index.
func associate(got []candidateWire, batch []candidate.Candidate, traits []trait.Trait) batchOutcome {
	inBatch := make(map[string]bool, len(batch))
	for _, c := range batch {
		inBatch[c.ID] = true
	}

	out := batchOutcome{scores: make(map[string][]score.TraitScore), incomplete: make(map[string]bool)}
	for _, cw := range got {
		id := strings.TrimSpace(cw.ID)
		if !inBatch[id] {
			continue
		}
		if _, dup := out.scores[id]; dup {
			continue
		}

		byTrait := make(map[int]score.TraitScore, len(traits))
		for _, sw := range cw.TraitScores {
			ref := trait.RefFromJSON(sw.TraitIndex)
			if ref == "" {
				ref = sw.Trait
			}
			t, ok := trait.Resolve(traits, ref)
			if !ok {
				continue
			}
			v, ok := score.ParseVerdict(sw.Score)
			if !ok {
				continue
			}
			if _, dup := byTrait[t.Index]; dup {
				continue
			}
			evidence := strings.TrimSpace(sw.Evidence)
			if v == score.No && evidence == "" {
				evidence = score.InsufficientInformation
			}
			byTrait[t.Index] = score.TraitScore{TraitIndex: t.Index, Trait: t.Text, Score: v, Evidence: evidence}
		}

		scores := make([]score.TraitScore, len(traits))
		for i, t := range traits {
			ts, ok := byTrait[t.Index]
			if !ok {
				ts = score.Insufficient(t)
				out.incomplete[id] = true
			}
			scores[i] = ts
		}
		out.scores[id] = scores
	}
	return out
}

func defaults(traits []trait.Trait) []score.TraitScore {
	out := make([]score.TraitScore, len(traits))
	for i, t := range traits {
		out[i] = score.Insufficient(t)
	}
	return out
}

func batchInput(batch []candidate.Candidate, traits []trait.Trait) string {
	var b strings.Builder
	b.WriteString("Traits:\n")
	for _, t := range traits {
		fmt.Fprintf(&b, "%d. %s\n", t.Index, t.Text)
	}
	for _, c := range batch {
		fmt.Fprintf(&b, "\n=== Candidate id: %s ===\n", c.ID)
		b.WriteString(c.Text())
		b.WriteByte('\n')
	}
	return b.String()
}

func split(cands []candidate.Candidate, size int) [][]candidate.Candidate {
	out := make([][]candidate.Candidate, 0, (len(cands)+size-1)/size)
	for start := 0; start < len(cands); start += size {
		out = append(out, cands[start:min(start+size, len(cands))])
	}
	return out
}
