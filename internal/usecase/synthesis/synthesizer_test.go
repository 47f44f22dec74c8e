package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/keyphrase"
	"github.com/kailas-cloud/netscout/internal/domain/section"
	"github.com/kailas-cloud/netscout/internal/domain/trait"
)

var (
	internTraits  = []trait.Trait{{Index: 0, Text: "Interned at Google during summer"}}
	internPhrases = []keyphrase.KeyPhrase{
		{Phrase: "Google", TraitIndex: 0, Section: section.Experience, Confidence: 0.9},
		{Phrase: "intern", TraitIndex: 0, Section: section.Experience, Confidence: 0.8},
	}
	internSections = []section.ID{section.Experience}
)

const internReply = `{"predicate": {"any_of": [{"all_of": [
	{"field": "experience.title", "operator": "ilike", "value": "%intern%", "trait": 0},
	{"field": "experience.title", "operator": "ILIKE", "value": "summer", "trait": 0},
	{"field": "Experience.Company", "operator": "ILIKE", "value": "google", "trait": 0}
]}], "limit": 500}, "reasoning": "title variants at google"}`

func newSynth(llm *mockCompleter, cache planCache) *Synthesizer {
	return New(llm, cache, Options{MaxAttempts: 1, Limit: 100})
}

func TestSynthesize_ModelPredicateIsBroadened(t *testing.T) {
	llm := &mockCompleter{replies: []string{internReply}}
	out, err := newSynth(llm, nil).Synthesize(context.Background(), internTraits, internPhrases, internSections)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if out.Source != SourceModel {
		t.Errorf("source = %q", out.Source)
	}
	want := "(experience.title ILIKE '%intern%' AND experience.company ILIKE '%google%') OR " +
		"(experience.title ILIKE '%summer%' AND experience.company ILIKE '%google%') LIMIT 100"
	if got := out.Predicate.String(); got != want {
		t.Errorf("predicate = %s\nwant %s", got, want)
	}
	if out.Reasoning != "title variants at google" {
		t.Errorf("reasoning = %q", out.Reasoning)
	}
	if !strings.Contains(llm.requests[0].SystemPrompt, "experience.company (text: = or ILIKE)") {
		t.Error("prompt should describe the schema")
	}
}

func TestSynthesize_UnknownFieldRegeneratesOnce(t *testing.T) {
	llm := &mockCompleter{replies: []string{
		`{"predicate": {"any_of": [{"all_of": [{"field": "experience.salary", "operator": "=", "value": "100k"}]}], "limit": 10}}`,
		internReply,
	}}
	out, err := newSynth(llm, nil).Synthesize(context.Background(), internTraits, internPhrases, internSections)
	if err != nil {
		t.Fatal(err)
	}
	if len(llm.requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(llm.requests))
	}
	if !strings.Contains(llm.requests[1].UserContent, "experience.salary") {
		t.Errorf("regeneration should carry the rejection: %q", llm.requests[1].UserContent)
	}
	if out.Source != SourceModel || len(out.Rejections) != 1 {
		t.Errorf("out = %+v", out)
	}
}

func TestSynthesize_FallsBackAfterSecondRejection(t *testing.T) {
	bad := `{"predicate": {"any_of": [{"all_of": [{"field": "users.password", "operator": "=", "value": "x"}]}], "limit": 10}}`
	llm := &mockCompleter{replies: []string{bad, bad}}
	cache := newMockPlanCache()

	out, err := newSynth(llm, cache).Synthesize(context.Background(), internTraits, internPhrases, internSections)
	if err != nil {
		t.Fatal(err)
	}
	if len(llm.requests) != 2 {
		t.Errorf("requests = %d, want 2", len(llm.requests))
	}
	if out.Source != SourceFallback || len(out.Rejections) != 2 {
		t.Fatalf("out = %+v", out)
	}
	if err := out.Predicate.Validate(); err != nil {
		t.Fatalf("fallback predicate invalid: %v", err)
	}
	if !strings.Contains(out.Predicate.String(), "experience.company ILIKE '%Google%'") {
		t.Errorf("fallback = %s", out.Predicate)
	}
	if cache.puts != 0 {
		t.Error("fallback plans must not be cached")
	}
}

func TestSynthesize_ProviderErrorFallsBack(t *testing.T) {
	llm := &mockCompleter{err: domain.ErrLLMProviderError}
	out, err := newSynth(llm, nil).Synthesize(context.Background(), internTraits, internPhrases, internSections)
	if err != nil {
		t.Fatal(err)
	}
	if out.Source != SourceFallback || out.Predicate == nil {
		t.Errorf("out = %+v", out)
	}
}

func TestSynthesize_CallTimeoutFallsBack(t *testing.T) {
	llm := &blockingCompleter{}
	s := New(llm, nil, Options{MaxAttempts: 1, Limit: 100, CallTimeout: 20 * time.Millisecond})

	out, err := s.Synthesize(context.Background(), internTraits, internPhrases, internSections)
	if err != nil {
		t.Fatalf("a call timeout must not fail synthesis: %v", err)
	}
	if out.Source != SourceFallback || out.Predicate == nil {
		t.Fatalf("out = %+v, want the compiled fallback", out)
	}
	if !strings.Contains(out.Predicate.String(), "experience.company ILIKE '%Google%'") {
		t.Errorf("fallback dropped key phrases: %s", out.Predicate)
	}
	if llm.calls.Load() == 0 {
		t.Error("model was never asked")
	}
}

func TestSynthesize_ParentDeadlineIsReturned(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s := New(&blockingCompleter{}, nil, Options{MaxAttempts: 1, Limit: 100, CallTimeout: time.Minute})

	_, err := s.Synthesize(ctx, internTraits, internPhrases, internSections)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want the caller's deadline", err)
	}
}

func TestSynthesize_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	llm := &mockCompleter{err: context.Canceled}
	_, err := newSynth(llm, nil).Synthesize(ctx, internTraits, internPhrases, internSections)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestSynthesize_NothingToMatch(t *testing.T) {
	llm := &mockCompleter{replies: []string{internReply}}
	out, err := newSynth(llm, nil).Synthesize(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Predicate != nil || out.Source != SourceNone || len(llm.requests) != 0 {
		t.Errorf("out = %+v, requests = %d", out, len(llm.requests))
	}
}

func TestSynthesize_TraitsWithoutPhrasesAndFailingModel(t *testing.T) {
	llm := &mockCompleter{err: domain.ErrLLMProviderError}
	out, err := newSynth(llm, nil).Synthesize(context.Background(), internTraits, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Predicate != nil || out.Source != SourceNone {
		t.Errorf("out = %+v", out)
	}
}

func TestSynthesize_CachedPlanIsReused(t *testing.T) {
	cache := newMockPlanCache()
	llm := &mockCompleter{replies: []string{internReply}}
	s := newSynth(llm, cache)

	first, err := s.Synthesize(context.Background(), internTraits, internPhrases, internSections)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Synthesize(context.Background(), internTraits, internPhrases, internSections)
	if err != nil {
		t.Fatal(err)
	}
	if len(llm.requests) != 1 {
		t.Errorf("requests = %d, want 1", len(llm.requests))
	}
	if second.Source != SourceCache || second.Predicate.String() != first.Predicate.String() {
		t.Errorf("second = %+v", second)
	}
}

func TestSynthesize_CachePutFailureIsNotFatal(t *testing.T) {
	cache := newMockPlanCache()
	cache.putErr = errStoreDown
	llm := &mockCompleter{replies: []string{internReply}}
	out, err := newSynth(llm, cache).Synthesize(context.Background(), internTraits, internPhrases, internSections)
	if err != nil || out.Predicate == nil {
		t.Fatalf("out = %+v, err = %v", out, err)
	}
}

func TestFingerprint(t *testing.T) {
	reordered := []keyphrase.KeyPhrase{internPhrases[1], internPhrases[0]}
	a := Fingerprint(internTraits, internPhrases, internSections)
	if b := Fingerprint(internTraits, reordered, internSections); a != b {
		t.Error("phrase order must not change the fingerprint")
	}
	if c := Fingerprint(internTraits, internPhrases, []section.ID{section.Education}); a == c {
		t.Error("sections must change the fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d", len(a))
	}
}

func TestCompileFallback(t *testing.T) {
	phrases := []keyphrase.KeyPhrase{
		{Phrase: "Palo Alto", TraitIndex: 1, Section: section.Profile, Confidence: 0.9},
		{Phrase: "Columbia", TraitIndex: 0, Section: section.Education, Confidence: 0.9},
		{Phrase: "k8s", TraitIndex: 2, Section: section.Skills, Confidence: 0.4},
	}
	p := compileFallback(phrases, 100, 64)
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	first := p.Clauses[0].Comparisons[0]
	if first.Field != "education.school" || first.Value != "Columbia" {
		t.Errorf("first clause = %s, want the lowest trait first", p.Clauses[0])
	}
	s := p.String()
	for _, want := range []string{"profiles.location ILIKE '%san francisco%'", "experience.location ILIKE '%oakland%'", "skills.name ILIKE '%k8s%'"} {
		if !strings.Contains(s, want) {
			t.Errorf("fallback missing %s", want)
		}
	}
	for _, cl := range p.Clauses {
		if len(cl.Comparisons) != 1 {
			t.Errorf("fallback clauses hold one comparison, got %s", cl)
		}
	}
	if compileFallback(nil, 100, 64) != nil {
		t.Error("no phrases should compile to nil")
	}
}

func TestCompileFallback_CapKeepsEveryTrait(t *testing.T) {
	var phrases []keyphrase.KeyPhrase
	for ti := 0; ti < 8; ti++ {
		for i := 0; i < 4; i++ {
			phrases = append(phrases, keyphrase.KeyPhrase{
				Phrase:     fmt.Sprintf("phrase %d-%d", ti, i),
				TraitIndex: ti,
				Section:    section.Experience,
				Confidence: 0.9,
			})
		}
	}

	p := compileFallback(phrases, 100, 64)
	if len(p.Clauses) != 64 {
		t.Fatalf("clauses = %d, want 64", len(p.Clauses))
	}
	cov := traitCoverage(p)
	for ti := 0; ti < 8; ti++ {
		if cov[ti] != 8 {
			t.Errorf("trait %d clauses = %d, want an even share of 8", ti, cov[ti])
		}
	}
}
