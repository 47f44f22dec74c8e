// Package understanding holds the query-understanding stages: section
// classification, trait extraction and key-phrase expansion.
package understanding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/domain/keyphrase"
	"github.com/kailas-cloud/netscout/internal/domain/section"
	"github.com/kailas-cloud/netscout/internal/domain/trait"
	"github.com/kailas-cloud/netscout/internal/usecase/structured"
)

// Options tunes every stage in this package.
type Options struct {
	MaxAttempts int
	Temperature float64
	MaxTraits   int
}

// SectionsOutput is the classifier result.
type SectionsOutput struct {
	Sections   []section.ID `json:"relevant_sections"`
	Confidence float64      `json:"confidence"`
	Reasoning  string       `json:"reasoning,omitempty"`
}

// TraitsOutput is the trait extractor result.
type TraitsOutput struct {
	Traits    []trait.Trait `json:"traits"`
	Reasoning string        `json:"reasoning,omitempty"`
}

// KeyPhrasesOutput is the expander result.
type KeyPhrasesOutput struct {
	KeyPhrases []keyphrase.KeyPhrase `json:"key_phrases"`
	// Dropped counts phrases discarded for referencing no known trait or section.
	Dropped   int    `json:"dropped,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Classifier maps a query to relevant profile sections.
type Classifier struct {
	llm  domain.Completer
	opts Options
}

// NewClassifier creates a section classifier.
func NewClassifier(llm domain.Completer, opts Options) *Classifier {
	return &Classifier{llm: llm, opts: opts}
}

type sectionsWire struct {
	RelevantSections *[]string `json:"relevant_sections"`
	Confidence       float64   `json:"confidence"`
	Reasoning        string    `json:"reasoning"`
}

// Classify returns the sections the query is about. An empty list is valid.
func (c *Classifier) Classify(ctx context.Context, query string) (SectionsOutput, error) {
	var parsed []section.ID
	wire, err := structured.Complete(ctx, c.llm, domain.CompletionRequest{
		Operation:    "sections",
		SystemPrompt: classifierPrompt,
		UserContent:  query,
		Temperature:  c.opts.Temperature,
	}, c.opts.MaxAttempts, func(w *sectionsWire) error {
		if w.RelevantSections == nil {
			return errors.New("missing relevant_sections")
		}
		if w.Confidence < 0 || w.Confidence > 1 {
			return fmt.Errorf("confidence %v out of range", w.Confidence)
		}
		ids, err := section.ParseList(*w.RelevantSections)
		if err != nil {
			return err
		}
		parsed = ids
		return nil
	})
	if err != nil {
		return SectionsOutput{}, fmt.Errorf("classify sections: %w", err)
	}
	if parsed == nil {
		parsed = []section.ID{}
	}
	return SectionsOutput{Sections: parsed, Confidence: wire.Confidence, Reasoning: wire.Reasoning}, nil
}

// TraitExtractor derives verb-first traits from a query.
type TraitExtractor struct {
	llm  domain.Completer
	opts Options
}

// NewTraitExtractor creates a trait extractor.
func NewTraitExtractor(llm domain.Completer, opts Options) *TraitExtractor {
	if opts.MaxTraits <= 0 {
		opts.MaxTraits = 8
	}
	return &TraitExtractor{llm: llm, opts: opts}
}

type traitsWire struct {
	Traits    *[]string `json:"traits"`
	Reasoning string    `json:"reasoning"`
}

// Extract returns indexed traits. Blank and duplicate traits are dropped and
// the list is capped; an empty list is a valid result.
func (e *TraitExtractor) Extract(ctx context.Context, query string) (TraitsOutput, error) {
	wire, err := structured.Complete(ctx, e.llm, domain.CompletionRequest{
		Operation:    "traits",
		SystemPrompt: fmt.Sprintf(traitsPrompt, e.opts.MaxTraits),
		UserContent:  query,
		Temperature:  e.opts.Temperature,
	}, e.opts.MaxAttempts, func(w *traitsWire) error {
		if w.Traits == nil {
			return errors.New("missing traits")
		}
		return nil
	})
	if err != nil {
		return TraitsOutput{}, fmt.Errorf("extract traits: %w", err)
	}
	return TraitsOutput{Traits: trait.FromStrings(*wire.Traits, e.opts.MaxTraits), Reasoning: wire.Reasoning}, nil
}

// KeyPhraseExpander broadens each trait into search phrases.
type KeyPhraseExpander struct {
	llm  domain.Completer
	opts Options
}

// NewKeyPhraseExpander creates a key-phrase expander.
func NewKeyPhraseExpander(llm domain.Completer, opts Options) *KeyPhraseExpander {
	return &KeyPhraseExpander{llm: llm, opts: opts}
}

type phraseWire struct {
	Phrase     string          `json:"phrase"`
	Trait      json.RawMessage `json:"corresponding_trait"`
	Section    string          `json:"relevant_section"`
	Confidence float64         `json:"confidence"`
}

type keyPhrasesWire struct {
	KeyPhrases *[]phraseWire `json:"key_phrases"`
	Reasoning  string        `json:"reasoning"`
}

// Expand generates key phrases for traits. With no traits it returns an empty
// result without calling the model.
func (k *KeyPhraseExpander) Expand(
	ctx context.Context, query string, traits []trait.Trait, sections []section.ID,
) (KeyPhrasesOutput, error) {
	if len(traits) == 0 {
		return KeyPhrasesOutput{KeyPhrases: []keyphrase.KeyPhrase{}}, nil
	}

	wire, err := structured.Complete(ctx, k.llm, domain.CompletionRequest{
		Operation:    "key_phrases",
		SystemPrompt: keyPhrasesPrompt,
		UserContent:  expandInput(query, traits, sections),
		Temperature:  k.opts.Temperature,
	}, k.opts.MaxAttempts, func(w *keyPhrasesWire) error {
		if w.KeyPhrases == nil {
			return errors.New("missing key_phrases")
		}
		return nil
	})
	if err != nil {
		return KeyPhrasesOutput{}, fmt.Errorf("expand key phrases: %w", err)
	}

	out := KeyPhrasesOutput{KeyPhrases: make([]keyphrase.KeyPhrase, 0, len(*wire.KeyPhrases)), Reasoning: wire.Reasoning}
	seen := make(map[string]bool)
	for _, p := range *wire.KeyPhrases {
		kp, ok := resolvePhrase(p, traits)
		if !ok {
			out.Dropped++
			continue
		}
		key := fmt.Sprintf("%d|%s|%s", kp.TraitIndex, kp.Section, strings.ToLower(kp.Phrase))
		if seen[key] {
			continue
		}
		seen[key] = true
		out.KeyPhrases = append(out.KeyPhrases, kp)
	}
	keyphrase.Sort(out.KeyPhrases)
	return out, nil
}

func resolvePhrase(p phraseWire, traits []trait.Trait) (keyphrase.KeyPhrase, bool) {
	phrase := strings.Join(strings.Fields(p.Phrase), " ")
	if phrase == "" {
		return keyphrase.KeyPhrase{}, false
	}
	sec, err := section.Parse(p.Section)
	if err != nil {
		return keyphrase.KeyPhrase{}, false
	}
	t, ok := trait.Resolve(traits, trait.RefFromJSON(p.Trait))
	if !ok {
		return keyphrase.KeyPhrase{}, false
	}
	return keyphrase.KeyPhrase{
		Phrase:     phrase,
		TraitIndex: t.Index,
		Trait:      t.Text,
		Section:    sec,
		Confidence: keyphrase.ClampConfidence(p.Confidence),
	}, true
}

func expandInput(query string, traits []trait.Trait, sections []section.ID) string {
	var b strings.Builder
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\nTraits:\n")
	for _, t := range traits {
		fmt.Fprintf(&b, "%d. %s\n", t.Index, t.Text)
	}
	if len(sections) > 0 {
		names := make([]string, len(sections))
		for i, s := range sections {
			names[i] = string(s)
		}
		b.WriteString("Relevant sections: ")
		b.WriteString(strings.Join(names, ", "))
	} else {
		b.WriteString("Relevant sections: any")
	}
	return b.String()
}
