// Package trait models the discrete conditions a candidate should satisfy.
package trait

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Trait is one verb-first claim with a stable index used to correlate scores.
type Trait struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// FromStrings builds an indexed trait list. Blank entries and
// case-insensitive duplicates are dropped, and at most max traits are kept (max <= 0 means no cap).
func FromStrings(texts []string, max int) []Trait {
	out := make([]Trait, 0, len(texts))
	seen := make(map[string]bool, len(texts))
	for _, raw := range texts {
		text := strings.Join(strings.Fields(raw), " ")
		if text == "" {
			continue
		}
		key := strings.ToLower(text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Trait{Index: len(out), Text: text})
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// Texts returns the trait phrases in index order.
func Texts(traits []Trait) []string {
	out := make([]string, len(traits))
	for i, t := range traits {
		out[i] = t.Text
	}
	return out
}

// Resolve finds the trait a model referred to. It accepts the exact text
// (case-insensitive), a bare index, or forms like "trait 2" / "#2".
func Resolve(traits []Trait, ref string) (Trait, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Trait{}, false
	}
	norm := strings.ToLower(strings.Join(strings.Fields(ref), " "))
	for _, t := range traits {
		if strings.ToLower(t.Text) == norm {
			return t, true
		}
	}

	idx := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(norm, "trait"), "#"))
	if n, err := strconv.Atoi(idx); err == nil {
		return ByIndex(traits, n)
	}
	return Trait{}, false
}

// ByIndex returns the trait with the given index.
func ByIndex(traits []Trait, index int) (Trait, bool) {
	for _, t := range traits {
		if t.Index == index {
			return t, true
		}
	}
	return Trait{}, false
}

// RefFromJSON reads a model's trait reference, which may be a JSON string or
// an integral number, for use with Resolve. Anything else yields "".
func RefFromJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n float64
	if json.Unmarshal(raw, &n) != nil || n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
		return ""
	}
	return strconv.Itoa(int(n))
}
