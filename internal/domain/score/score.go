// Package score holds the per-trait verdict model and the aggregate ranking function.
package score

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/kailas-cloud/netscout/internal/domain/candidate"
	"github.com/kailas-cloud/netscout/internal/domain/trait"
)

// Verdict is the three-valued trait match.
type Verdict string

// Verdicts.
const (
	Yes    Verdict = "Yes"
	KindOf Verdict = "Kind Of"
	No     Verdict = "No"
)

// InsufficientInformation is the evidence for a No verdict without supporting text.
// Clients rely on the exact string to tell "checked but absent" from "not evaluated".
const InsufficientInformation = "Insufficient information"

// ParseVerdict normalizes model spellings such as "kind_of", "KindOf" or "partial".
func ParseVerdict(raw string) (Verdict, bool) {
	s := strings.ToLower(raw)
	s = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
	switch s {
	case "yes", "true", "y":
		return Yes, true
	case "kindof", "partial", "partially", "somewhat", "maybe":
		return KindOf, true
	case "no", "false", "n":
		return No, true
	default:
		return "", false
	}
}

// TraitScore is the verdict for one (candidate, trait) pair.
type TraitScore struct {
	TraitIndex int     `json:"trait_index"`
	Trait      string  `json:"trait"`
	Score      Verdict `json:"score"`
	Evidence   string  `json:"evidence"`
}

// Insufficient returns the default No score for a trait.
func Insufficient(t trait.Trait) TraitScore {
	return TraitScore{TraitIndex: t.Index, Trait: t.Text, Score: No, Evidence: InsufficientInformation}
}

// Weights maps verdicts to numbers for aggregation.
type Weights struct {
	Yes    float64 `json:"yes"`
	KindOf float64 `json:"kind_of"`
	No     float64 `json:"no"`
}

// DefaultWeights counts Kind Of as half a match.
func DefaultWeights() Weights {
	return Weights{Yes: 1, KindOf: 0.5, No: 0}
}

func (w Weights) of(v Verdict) float64 {
	switch v {
	case Yes:
		return w.Yes
	case KindOf:
		return w.KindOf
	default:
		return w.No
	}
}

// Aggregate is the mean weight over traits, or 0 with no traits.
func (w Weights) Aggregate(scores []TraitScore) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += w.of(s.Score)
	}
	return sum / float64(len(scores))
}

// MatchPercent converts an aggregate into the 0-100 figure the UI shows.
func (w Weights) MatchPercent(aggregate float64) int {
	top := max(w.Yes, w.KindOf, w.No)
	if top <= 0 {
		return 0
	}
	return int(math.Round(aggregate / top * 100))
}

// Result is a candidate with its per-trait verdicts and rank score.
type Result struct {
	Candidate      candidate.Summary `json:"candidate"`
	TraitScores    []TraitScore      `json:"trait_scores"`
	AggregateScore float64           `json:"aggregate_score"`
	MatchPercent   int               `json:"match_percent"`
	// Partial marks results whose scores were defaulted after a scoring failure.
	Partial bool `json:"partial,omitempty"`
	Rank    int  `json:"-"`
}

// NewResult computes the aggregate for a candidate's scores.
func NewResult(c candidate.Candidate, scores []TraitScore, w Weights, partial bool) Result {
	if scores == nil {
		scores = []TraitScore{}
	}
	agg := w.Aggregate(scores)
	return Result{
		Candidate:      c.Summary,
		TraitScores:    scores,
		AggregateScore: agg,
		MatchPercent:   w.MatchPercent(agg),
		Partial:        partial,
		Rank:           c.Rank,
	}
}

// Sort orders results by aggregate descending, then retrieval rank, then id.
func Sort(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.AggregateScore, a.AggregateScore); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Rank, b.Rank); c != 0 {
			return c
		}
		return cmp.Compare(a.Candidate.ID, b.Candidate.ID)
	})
}
