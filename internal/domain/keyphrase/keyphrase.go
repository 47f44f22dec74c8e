// Package keyphrase models recall-broadening phrases tied to a trait.
package keyphrase

import (
	"cmp"
	"slices"

	"github.com/kailas-cloud/netscout/internal/domain/section"
)

// KeyPhrase is a synonym, abbreviation or variant of a trait, aimed at one section.
// Phrases only ever add OR-branches to a predicate.
type KeyPhrase struct {
	Phrase     string     `json:"phrase"`
	TraitIndex int        `json:"trait_index"`
	Trait      string     `json:"corresponding_trait"`
	Section    section.ID `json:"relevant_section"`
	Confidence float64    `json:"confidence"`
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	return min(1, max(0, c))
}

// Sort orders phrases by trait index, then confidence descending, then text.
// The order is total so identical inputs always compile to identical predicates.
func Sort(phrases []KeyPhrase) {
	slices.SortStableFunc(phrases, func(a, b KeyPhrase) int {
		if c := cmp.Compare(a.TraitIndex, b.TraitIndex); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Phrase, b.Phrase); c != 0 {
			return c
		}
		return cmp.Compare(a.Section, b.Section)
	})
}
