// Package synthesis compiles traits and key phrases into a structured
// search predicate.
package synthesis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/keyphrase"
	"github.com/kailas-cloud/netscout/internal/domain/predicate"
	"github.com/kailas-cloud/netscout/internal/domain/section"
	"github.com/kailas-cloud/netscout/internal/domain/trait"
	"github.com/kailas-cloud/netscout/internal/logger"
	"github.com/kailas-cloud/netscout/internal/usecase/structured"
)

// fingerprintVersion changes whenever compilation rules change so stale plans miss.
const fingerprintVersion = "v1"

// Sources of a synthesized predicate.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
	SourceCache    = "cache"
	SourceNone     = "none"
)

type planCache interface {
	Get(ctx context.Context, fingerprint string) (*predicate.Predicate, bool)
	Put(ctx context.Context, fingerprint string, p *predicate.Predicate) error
}

// Options tunes the synthesizer.
type Options struct {
	MaxAttempts int
	Temperature float64
	Limit       int
	MaxClauses  int
	// CallTimeout bounds the model exchange. When it expires the
	// deterministic compiler answers instead.
	CallTimeout time.Duration
}

// Output is the synthesizer result. A nil Predicate means similarity-only retrieval.
type Output struct {
	Predicate  *predicate.Predicate `json:"predicate"`
	Reasoning  string               `json:"reasoning,omitempty"`
	Source     string               `json:"source"`
	Rejections []string             `json:"rejections,omitempty"`
}

// Synthesizer turns understanding output into a predicate.
type Synthesizer struct {
	llm   domain.Completer
	cache planCache
	opts  Options
}

// New creates a synthesizer. cache may be nil.
func New(llm domain.Completer, cache planCache, opts Options) *Synthesizer {
	if opts.Limit <= 0 || opts.Limit > predicate.MaxLimit {
		opts.Limit = predicate.MaxLimit
	}
	if opts.MaxClauses <= 0 || opts.MaxClauses > predicate.MaxClauses {
		opts.MaxClauses = predicate.MaxClauses
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = structured.DefaultAttempts
	}
	return &Synthesizer{llm: llm, cache: cache, opts: opts}
}

type proposal struct {
	Predicate *predicate.Predicate `json:"predicate"`
	Reasoning string               `json:"reasoning"`
}

// Synthesize compiles a predicate. Model output is normalized, broadened and
// validated; an unknown field or illegal operator triggers one regeneration
// with the rejection reason, then the deterministic compiler takes over.
// A provider error or an expired CallTimeout both end in the compiler. Only
// errors of ctx itself are returned.
func (s *Synthesizer) Synthesize(
	ctx context.Context, traits []trait.Trait, phrases []keyphrase.KeyPhrase, sections []section.ID,
) (Output, error) {
	if len(traits) == 0 && len(phrases) == 0 {
		return Output{Source: SourceNone}, nil
	}

	fp := Fingerprint(traits, phrases, sections)
	if s.cache != nil {
		if p, ok := s.cache.Get(ctx, fp); ok {
			return Output{Predicate: p, Source: SourceCache}, nil
		}
	}

	mctx := ctx
	if s.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
	}
	out, err := s.fromModel(mctx, traits, phrases, sections)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Output{}, fmt.Errorf("synthesize: %w", ctxErr)
		}
		logger.FromContext(ctx).Warn("predicate synthesis fell back to compiler", zap.Error(err))
		out.Predicate = compileFallback(phrases, s.opts.Limit, s.opts.MaxClauses)
		out.Source = SourceFallback
		if out.Predicate == nil {
			out.Source = SourceNone
		}
	}

	if s.cache != nil && out.Source == SourceModel {
		if err := s.cache.Put(ctx, fp, out.Predicate); err != nil {
			logger.FromContext(ctx).Warn("plan cache put failed", zap.Error(err))
		}
	}
	return out, nil
}

// fromModel returns the rejections seen so far alongside any error.
func (s *Synthesizer) fromModel(
	ctx context.Context, traits []trait.Trait, phrases []keyphrase.KeyPhrase, sections []section.ID,
) (Output, error) {
	out := Output{Source: SourceModel}
	input := synthesisInput(traits, phrases, sections)
	prompt := fmt.Sprintf(synthesisPrompt, predicate.Describe(), s.opts.Limit, s.opts.Limit)

	for round := 0; round < 2; round++ {
		user := input
		if len(out.Rejections) > 0 {
			user += fmt.Sprintf(rejectionNote, out.Rejections[len(out.Rejections)-1])
		}
		prop, err := structured.Complete(ctx, s.llm, domain.CompletionRequest{
			Operation:    "query_synthesis",
			SystemPrompt: prompt,
			UserContent:  user,
			Temperature:  s.opts.Temperature,
		}, s.opts.MaxAttempts, func(p *proposal) error {
			if p.Predicate == nil || len(p.Predicate.Clauses) == 0 {
				return errors.New("missing predicate")
			}
			return nil
		})
		if err != nil {
			return out, err
		}

		p, err := s.accept(prop.Predicate, len(traits))
		if err == nil {
			out.Predicate = p
			out.Reasoning = prop.Reasoning
			return out, nil
		}
		out.Rejections = append(out.Rejections, err.Error())
		logger.FromContext(ctx).Warn("synthesized predicate rejected",
			zap.Int("round", round+1), zap.Error(err))
	}
	return out, fmt.Errorf("predicate rejected twice: %w", domain.ErrInvalidPredicate)
}

// accept normalizes, validates and broadens a model proposal.
func (s *Synthesizer) accept(raw *predicate.Predicate, traitCount int) (*predicate.Predicate, error) {
	p := &predicate.Predicate{Limit: raw.Limit}
	for _, cl := range raw.Clauses {
		cmps := make([]predicate.Comparison, len(cl.Comparisons))
		for i, c := range cl.Comparisons {
			c = c.Normalize()
			if c.Trait != nil && (*c.Trait < 0 || *c.Trait >= traitCount) {
				c.Trait = nil
			}
			cmps[i] = c
		}
		p.Clauses = append(p.Clauses, predicate.Clause{Comparisons: cmps})
	}
	if p.Limit < 1 || p.Limit > s.opts.Limit {
		p.Limit = s.opts.Limit
	}
	// Clause count is capped by refine, so only check the comparisons here.
	for i, cl := range p.Clauses {
		if len(cl.Comparisons) == 0 {
			return nil, fmt.Errorf("%w: clause %d is empty", domain.ErrInvalidPredicate, i)
		}
		for _, c := range cl.Comparisons {
			if err := c.Validate(); err != nil {
				return nil, fmt.Errorf("clause %d: %w", i, err)
			}
		}
	}

	p = refine(p, s.opts.Limit, s.opts.MaxClauses)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Fingerprint hashes the synthesizer inputs. Identical inputs share a plan.
func Fingerprint(traits []trait.Trait, phrases []keyphrase.KeyPhrase, sections []section.ID) string {
	sorted := make([]keyphrase.KeyPhrase, len(phrases))
	copy(sorted, phrases)
	keyphrase.Sort(sorted)

	data, _ := json.Marshal(struct {
		Version  string                `json:"v"`
		Traits   []trait.Trait         `json:"t"`
		Phrases  []keyphrase.KeyPhrase `json:"p"`
		Sections []section.ID          `json:"s"`
	}{fingerprintVersion, traits, sorted, sections})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func synthesisInput(traits []trait.Trait, phrases []keyphrase.KeyPhrase, sections []section.ID) string {
	var b strings.Builder
	b.WriteString("Traits:\n")
	for _, t := range traits {
		fmt.Fprintf(&b, "%d. %s\n", t.Index, t.Text)
	}
	b.WriteString("Key phrases:\n")
	for _, kp := range phrases {
		fmt.Fprintf(&b, "- %q (trait %d, %s, confidence %.2f)\n", kp.Phrase, kp.TraitIndex, kp.Section, kp.Confidence)
	}
	if len(phrases) == 0 {
		b.WriteString("- none\n")
	}
	b.WriteString("Relevant sections: ")
	if len(sections) == 0 {
		b.WriteString("any")
	}
	for i, sec := range sections {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(sec))
	}
	return b.String()
}
