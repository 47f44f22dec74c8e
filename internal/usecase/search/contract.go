package search

import (
	"context"

	"github.com/kailas-cloud/netscout/internal/domain/candidate"
	"github.com/kailas-cloud/netscout/internal/domain/keyphrase"
	"github.com/kailas-cloud/netscout/internal/domain/section"
	"github.com/kailas-cloud/netscout/internal/domain/trait"
	domusage "github.com/kailas-cloud/netscout/internal/domain/usage"
	"github.com/kailas-cloud/netscout/internal/usecase/retrieval"
	"github.com/kailas-cloud/netscout/internal/usecase/scoring"
	"github.com/kailas-cloud/netscout/internal/usecase/synthesis"
	"github.com/kailas-cloud/netscout/internal/usecase/understanding"
)

// SectionClassifier maps a query to relevant profile sections.
type SectionClassifier interface {
	Classify(ctx context.Context, query string) (understanding.SectionsOutput, error)
}

// TraitExtractor derives traits from a query.
type TraitExtractor interface {
	Extract(ctx context.Context, query string) (understanding.TraitsOutput, error)
}

// KeyPhraseExpander broadens traits into key phrases.
type KeyPhraseExpander interface {
	Expand(ctx context.Context, query string, traits []trait.Trait, sections []section.ID) (understanding.KeyPhrasesOutput, error)
}

// QuerySynthesizer compiles understanding output into a predicate.
type QuerySynthesizer interface {
	Synthesize(
		ctx context.Context, traits []trait.Trait, phrases []keyphrase.KeyPhrase, sections []section.ID,
	) (synthesis.Output, error)
}

// CandidateRetriever runs the structured and vector retrieval paths.
type CandidateRetriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (retrieval.Outcome, error)
}

// TraitScorer scores candidates against traits.
type TraitScorer interface {
	Score(ctx context.Context, cands []candidate.Candidate, traits []trait.Trait) (scoring.Report, error)
}

// QuotaConsumer charges one search against a user's quota.
type QuotaConsumer interface {
	Consume(ctx context.Context, userID string) (domusage.Quota, error)
}

// Stages bundles the pipeline collaborators.
type Stages struct {
	Classifier  SectionClassifier
	Extractor   TraitExtractor
	Expander    KeyPhraseExpander
	Synthesizer QuerySynthesizer
	Retriever   CandidateRetriever
	Scorer      TraitScorer
}
