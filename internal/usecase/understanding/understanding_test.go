package understanding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/section"
	"github.com/kailas-cloud/netscout/internal/domain/trait"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		replies []string
		want    []section.ID
		wantErr error
		calls   int
	}{
		{
			name:    "ordered set",
			replies: []string{`{"relevant_sections": ["Education", "experience", "education"], "confidence": 0.9}`},
			want:    []section.ID{section.Education, section.Experience},
			calls:   1,
		},
		{
			name:    "empty list is valid",
			replies: []string{`{"relevant_sections": [], "confidence": 0.2}`},
			want:    []section.ID{},
			calls:   1,
		},
		{
			name:    "unknown section retried",
			replies: []string{`{"relevant_sections": ["hobbies"], "confidence": 0.5}`, `{"relevant_sections": ["skills"], "confidence": 0.5}`},
			want:    []section.ID{section.Skills},
			calls:   2,
		},
		{
			name:    "confidence out of range",
			replies: []string{`{"relevant_sections": ["skills"], "confidence": 3}`},
			wantErr: domain.ErrMalformedResponse,
			calls:   2,
		},
		{
			name:    "missing field",
			replies: []string{`{"sections": ["skills"]}`},
			wantErr: domain.ErrMalformedResponse,
			calls:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockCompleter{replies: tt.replies}
			got, err := NewClassifier(llm, opts()).Classify(context.Background(), "Columbia grads at startups")
			if llm.calls != tt.calls {
				t.Errorf("calls = %d, want %d", llm.calls, tt.calls)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if len(got.Sections) != len(tt.want) {
				t.Fatalf("sections = %v, want %v", got.Sections, tt.want)
			}
			for i := range tt.want {
				if got.Sections[i] != tt.want[i] {
					t.Errorf("sections[%d] = %q, want %q", i, got.Sections[i], tt.want[i])
				}
			}
		})
	}
}

func TestClassify_RequestsJSON(t *testing.T) {
	llm := &mockCompleter{replies: []string{`{"relevant_sections": ["skills"], "confidence": 1}`}}
	if _, err := NewClassifier(llm, opts()).Classify(context.Background(), "rust developers"); err != nil {
		t.Fatal(err)
	}
	req := llm.requests[0]
	if !req.JSON || req.Operation != "sections" || req.UserContent != "rust developers" {
		t.Errorf("request = %+v", req)
	}
}

func TestClassify_ProviderError(t *testing.T) {
	llm := &mockCompleter{err: domain.ErrLLMProviderError}
	_, err := NewClassifier(llm, opts()).Classify(context.Background(), "q")
	if !errors.Is(err, domain.ErrLLMProviderError) {
		t.Fatalf("err = %v", err)
	}
	if llm.calls != 1 {
		t.Errorf("provider errors must not be retried, calls = %d", llm.calls)
	}
}

func TestExtract(t *testing.T) {
	llm := &mockCompleter{replies: []string{
		`{"traits": ["Graduated from Columbia University", "  ", "graduated from columbia university", "Works at a startup"], "reasoning": "two conditions"}`,
	}}
	got, err := NewTraitExtractor(llm, opts()).Extract(context.Background(), "Columbia grads at startups")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := []trait.Trait{{Index: 0, Text: "Graduated from Columbia University"}, {Index: 1, Text: "Works at a startup"}}
	if len(got.Traits) != len(want) {
		t.Fatalf("traits = %+v", got.Traits)
	}
	for i := range want {
		if got.Traits[i] != want[i] {
			t.Errorf("traits[%d] = %+v, want %+v", i, got.Traits[i], want[i])
		}
	}
	if got.Reasoning != "two conditions" {
		t.Errorf("reasoning = %q", got.Reasoning)
	}
}

func TestExtract_CapsTraits(t *testing.T) {
	llm := &mockCompleter{replies: []string{`{"traits": ["Knows Go", "Knows Rust", "Knows Zig"]}`}}
	o := opts()
	o.MaxTraits = 2
	got, err := NewTraitExtractor(llm, o).Extract(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Traits) != 2 {
		t.Errorf("traits = %d, want 2", len(got.Traits))
	}
	if !strings.Contains(llm.requests[0].SystemPrompt, "At most 2 traits") {
		t.Error("prompt should state the cap")
	}
}

func TestExtract_EmptyIsValid(t *testing.T) {
	llm := &mockCompleter{replies: []string{`{"traits": []}`}}
	got, err := NewTraitExtractor(llm, opts()).Extract(context.Background(), "people")
	if err != nil {
		t.Fatal(err)
	}
	if got.Traits == nil || len(got.Traits) != 0 {
		t.Errorf("traits = %#v, want empty non-nil", got.Traits)
	}
}

func TestExtract_Malformed(t *testing.T) {
	llm := &mockCompleter{replies: []string{`{"traits": "Knows Go"}`}}
	_, err := NewTraitExtractor(llm, opts()).Extract(context.Background(), "q")
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("err = %v", err)
	}
}

func TestExpand(t *testing.T) {
	traits := []trait.Trait{{Index: 0, Text: "Interned at Google"}, {Index: 1, Text: "Studied computer science"}}
	llm := &mockCompleter{replies: []string{`{"key_phrases": [
		{"phrase": "Google", "corresponding_trait": 0, "relevant_section": "experience", "confidence": 0.95},
		{"phrase": "SWE Intern", "corresponding_trait": "Interned at Google", "relevant_section": "experience", "confidence": 1.4},
		{"phrase": "CS", "corresponding_trait": "trait 1", "relevant_section": "education", "confidence": 0.8},
		{"phrase": "google", "corresponding_trait": 0, "relevant_section": "experience", "confidence": 0.5},
		{"phrase": "Alphabet", "corresponding_trait": 7, "relevant_section": "experience", "confidence": 0.6},
		{"phrase": "Gardening", "corresponding_trait": 0, "relevant_section": "hobbies", "confidence": 0.6},
		{"phrase": "  ", "corresponding_trait": 0, "relevant_section": "experience", "confidence": 0.6}
	]}`}}

	got, err := NewKeyPhraseExpander(llm, opts()).Expand(context.Background(), "google interns in cs", traits, []section.ID{section.Experience})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got.Dropped != 3 {
		t.Errorf("dropped = %d, want 3", got.Dropped)
	}
	want := []string{"SWE Intern", "Google", "CS"}
	if len(got.KeyPhrases) != len(want) {
		t.Fatalf("phrases = %+v", got.KeyPhrases)
	}
	for i, w := range want {
		if got.KeyPhrases[i].Phrase != w {
			t.Errorf("phrases[%d] = %q, want %q", i, got.KeyPhrases[i].Phrase, w)
		}
	}
	if got.KeyPhrases[0].Confidence != 1 {
		t.Errorf("confidence not clamped: %v", got.KeyPhrases[0].Confidence)
	}
	if got.KeyPhrases[2].TraitIndex != 1 || got.KeyPhrases[2].Trait != "Studied computer science" {
		t.Errorf("trait not resolved: %+v", got.KeyPhrases[2])
	}

	in := llm.requests[0].UserContent
	if !strings.Contains(in, "1. Studied computer science") || !strings.Contains(in, "Relevant sections: experience") {
		t.Errorf("input = %q", in)
	}
}

func TestExpand_NoTraitsSkipsModel(t *testing.T) {
	llm := &mockCompleter{replies: []string{`{}`}}
	got, err := NewKeyPhraseExpander(llm, opts()).Expand(context.Background(), "q", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if llm.calls != 0 {
		t.Errorf("calls = %d, want 0", llm.calls)
	}
	if got.KeyPhrases == nil || len(got.KeyPhrases) != 0 {
		t.Errorf("phrases = %#v", got.KeyPhrases)
	}
}

func TestExpand_AnySection(t *testing.T) {
	traits := []trait.Trait{{Index: 0, Text: "Knows Kubernetes"}}
	llm := &mockCompleter{replies: []string{`{"key_phrases": [{"phrase": "k8s", "corresponding_trait": 0, "relevant_section": "skill", "confidence": 0.7}]}`}}
	got, err := NewKeyPhraseExpander(llm, opts()).Expand(context.Background(), "q", traits, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.KeyPhrases) != 1 || got.KeyPhrases[0].Section != section.Skills {
		t.Errorf("phrases = %+v", got.KeyPhrases)
	}
	if !strings.Contains(llm.requests[0].UserContent, "Relevant sections: any") {
		t.Errorf("input = %q", llm.requests[0].UserContent)
	}
}
