package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/candidate"
	"github.com/kailas-cloud/netscout/internal/domain/keyphrase"
	"github.com/kailas-cloud/netscout/internal/domain/predicate"
	"github.com/kailas-cloud/netscout/internal/domain/score"
	"github.com/kailas-cloud/netscout/internal/domain/section"
	"github.com/kailas-cloud/netscout/internal/domain/step"
	"github.com/kailas-cloud/netscout/internal/domain/trait"
	domusage "github.com/kailas-cloud/netscout/internal/domain/usage"
	"github.com/kailas-cloud/netscout/internal/usecase/retrieval"
	"github.com/kailas-cloud/netscout/internal/usecase/scoring"
	"github.com/kailas-cloud/netscout/internal/usecase/synthesis"
	"github.com/kailas-cloud/netscout/internal/usecase/understanding"
)

var errProvider = errors.New("provider down")

type mockClassifier struct {
	delay time.Duration
	err   error
}

func (m *mockClassifier) Classify(ctx context.Context, _ string) (understanding.SectionsOutput, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	domain.TokenUsageFromContext(ctx).AddCompletion(10)
	if m.err != nil {
		return understanding.SectionsOutput{}, m.err
	}
	return understanding.SectionsOutput{Sections: []section.ID{section.Experience}, Confidence: 0.9}, nil
}

type mockExtractor struct {
	err error
}

func (m *mockExtractor) Extract(ctx context.Context, _ string) (understanding.TraitsOutput, error) {
	domain.TokenUsageFromContext(ctx).AddCompletion(20)
	if m.err != nil {
		return understanding.TraitsOutput{}, m.err
	}
	return understanding.TraitsOutput{Traits: trait.FromStrings([]string{"Interned at Google"}, 0)}, nil
}

type mockExpander struct {
	gotTraits   []trait.Trait
	gotSections []section.ID
}

func (m *mockExpander) Expand(
	_ context.Context, _ string, traits []trait.Trait, sections []section.ID,
) (understanding.KeyPhrasesOutput, error) {
	m.gotTraits, m.gotSections = traits, sections
	if len(traits) == 0 {
		return understanding.KeyPhrasesOutput{KeyPhrases: []keyphrase.KeyPhrase{}}, nil
	}
	return understanding.KeyPhrasesOutput{KeyPhrases: []keyphrase.KeyPhrase{
		{Phrase: "Google", TraitIndex: 0, Trait: traits[0].Text, Section: section.Experience, Confidence: 1},
	}}, nil
}

// blockingCompleter holds every call until its context ends.
type blockingCompleter struct{}

func (blockingCompleter) Complete(ctx context.Context, _ domain.CompletionRequest) (domain.CompletionResult, error) {
	<-ctx.Done()
	return domain.CompletionResult{}, ctx.Err()
}

type mockSynthesizer struct {
	err error
}

func (m *mockSynthesizer) Synthesize(
	_ context.Context, traits []trait.Trait, _ []keyphrase.KeyPhrase, _ []section.ID,
) (synthesis.Output, error) {
	if m.err != nil {
		return synthesis.Output{}, m.err
	}
	if len(traits) == 0 {
		return synthesis.Output{Source: synthesis.SourceNone}, nil
	}
	p := &predicate.Predicate{
		Clauses: []predicate.Clause{{Comparisons: []predicate.Comparison{predicate.ILike("experience.company", "Google")}}},
		Limit:   predicate.MaxLimit,
	}
	return synthesis.Output{Predicate: p, Source: synthesis.SourceModel}, nil
}

// mockRetriever blocks until ctx ends when block is set.
type mockRetriever struct {
	block   bool
	err     error
	started chan struct{}
	once    sync.Once
	got     retrieval.Request
}

func (m *mockRetriever) Retrieve(ctx context.Context, req retrieval.Request) (retrieval.Outcome, error) {
	m.got = req
	if m.started != nil {
		m.once.Do(func() { close(m.started) })
	}
	if m.block {
		<-ctx.Done()
		return retrieval.Outcome{}, ctx.Err()
	}
	if m.err != nil {
		return retrieval.Outcome{}, m.err
	}
	cands := []candidate.Candidate{
		{Summary: candidate.Summary{ID: "a", FullName: "Ada"}, Rank: 0},
		{Summary: candidate.Summary{ID: "b", FullName: "Bob"}, Rank: 1},
	}
	return retrieval.Outcome{Candidates: cands, StructuredHits: 2, Merged: 2}, nil
}

type mockScorer struct {
	partial bool
	called  bool
}

func (m *mockScorer) Score(_ context.Context, cands []candidate.Candidate, traits []trait.Trait) (scoring.Report, error) {
	m.called = true
	w := score.DefaultWeights()
	rep := scoring.Report{Batches: 1}
	for i, c := range cands {
		scores := make([]score.TraitScore, 0, len(traits))
		for _, t := range traits {
			v := score.Yes
			if i > 0 {
				v = score.No
			}
			scores = append(scores, score.TraitScore{TraitIndex: t.Index, Trait: t.Text, Score: v, Evidence: "quote"})
		}
		rep.Results = append(rep.Results, score.NewResult(c, scores, w, m.partial && i > 0))
	}
	if m.partial {
		rep.FailedBatches = 1
		rep.FailedCandidates = 1
	}
	score.Sort(rep.Results)
	return rep, nil
}

type mockQuota struct {
	err   error
	calls int
}

func (m *mockQuota) Consume(_ context.Context, _ string) (domusage.Quota, error) {
	m.calls++
	return domusage.NewQuota(10, m.calls, 0), m.err
}

type fixture struct {
	classifier  *mockClassifier
	extractor   *mockExtractor
	expander    *mockExpander
	synthesizer *mockSynthesizer
	retriever   *mockRetriever
	scorer      *mockScorer
	quota       *mockQuota
}

func newFixture() *fixture {
	return &fixture{
		classifier:  &mockClassifier{},
		extractor:   &mockExtractor{},
		expander:    &mockExpander{},
		synthesizer: &mockSynthesizer{},
		retriever:   &mockRetriever{},
		scorer:      &mockScorer{},
		quota:       &mockQuota{},
	}
}

func (f *fixture) service(opts Options) *Service {
	return New(Stages{
		Classifier:  f.classifier,
		Extractor:   f.extractor,
		Expander:    f.expander,
		Synthesizer: f.synthesizer,
		Retriever:   f.retriever,
		Scorer:      f.scorer,
	}, f.quota, opts)
}

// collect drains the stream, failing if it does not close in time.
func collect(t *testing.T, ch <-chan step.Event) []step.Event {
	t.Helper()
	var out []step.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("stream did not close, got %d events", len(out))
			return nil
		}
	}
}

// trace renders events as "name" or "step:stage:status".
func trace(events []step.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		if ts, ok := ev.Data.(step.ThinkingStep); ok {
			out[i] = "step:" + string(ts.Name) + ":" + string(ts.Status)
			continue
		}
		out[i] = string(ev.Name)
	}
	return out
}

func findStep(events []step.Event, stage step.Stage, status step.Status) (step.ThinkingStep, bool) {
	for _, ev := range events {
		if ts, ok := ev.Data.(step.ThinkingStep); ok && ts.Name == stage && ts.Status == status {
			return ts, true
		}
	}
	return step.ThinkingStep{}, false
}
