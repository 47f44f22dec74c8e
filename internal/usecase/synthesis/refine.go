package synthesis

import (
	"slices"

	"github.com/kailas-cloud/netscout/internal/domain/predicate"
)

// temporalFields hold "is current" flags. They only ever rank, never filter.
var temporalFields = []string{predicate.CurrentRoleField, "education.is_current"}

// refine rewrites a normalized predicate into its broadened DNF form:
// trait split, same-field split, location expansion, temporal relaxation,
// then dedup and caps. The clause cap is shared round-robin across traits so
// one heavily expanded trait cannot crowd out the others. The input is not
// modified.
func refine(p *predicate.Predicate, limit, maxClauses int) *predicate.Predicate {
	groups := groupByTrait(p.Clone().Clauses)
	seen := make(map[string]bool)
	for g, clauses := range groups {
		for _, pass := range []func(predicate.Clause) []predicate.Clause{
			splitSameField,
			expandLocations,
			relaxTemporal,
		} {
			next := make([]predicate.Clause, 0, len(clauses))
			for _, cl := range clauses {
				next = append(next, pass(cl)...)
				if len(next) >= maxClauses*4 {
					break
				}
			}
			clauses = next
		}
		groups[g] = uniqueClauses(clauses, seen)
	}

	out := &predicate.Predicate{Limit: p.Limit}
	if out.Limit < 1 || out.Limit > limit {
		out.Limit = limit
	}
	for round := 0; len(out.Clauses) < maxClauses; round++ {
		added := false
		for _, clauses := range groups {
			if round >= len(clauses) || len(out.Clauses) == maxClauses {
				continue
			}
			out.Clauses = append(out.Clauses, clauses[round])
			added = true
		}
		if !added {
			break
		}
	}
	return out
}

// groupByTrait splits every clause by trait and groups the results by the
// trait they serve, in order of first appearance. Unattributed clauses
// share one group.
func groupByTrait(clauses []predicate.Clause) [][]predicate.Clause {
	var groups [][]predicate.Clause
	at := make(map[int]int)
	for _, cl := range clauses {
		for _, part := range splitByTrait(cl) {
			key := -1
			if traits := part.Traits(); len(traits) > 0 {
				key = traits[0]
			}
			g, ok := at[key]
			if !ok {
				g = len(groups)
				at[key] = g
				groups = append(groups, nil)
			}
			groups[g] = append(groups[g], part)
		}
	}
	return groups
}

// uniqueClauses drops empty clauses and any clause already recorded in seen.
func uniqueClauses(clauses []predicate.Clause, seen map[string]bool) []predicate.Clause {
	out := make([]predicate.Clause, 0, len(clauses))
	for _, cl := range clauses {
		cl = dedupeComparisons(cl)
		if len(cl.Comparisons) == 0 {
			continue
		}
		key := cl.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, cl)
	}
	return out
}

// splitByTrait keeps conditions from unrelated traits out of one clause.
// Unattributed comparisons are copied into every split.
func splitByTrait(cl predicate.Clause) []predicate.Clause {
	traits := cl.Traits()
	if len(traits) <= 1 {
		return []predicate.Clause{cl}
	}
	out := make([]predicate.Clause, 0, len(traits))
	for _, t := range traits {
		var cmps []predicate.Comparison
		for _, c := range cl.Comparisons {
			if c.Trait == nil || *c.Trait == t {
				cmps = append(cmps, c)
			}
		}
		out = append(out, predicate.Clause{Comparisons: cmps})
	}
	return out
}

// splitSameField turns several ILIKEs on one field into alternatives:
// title ILIKE intern AND title ILIKE summer becomes two clauses.
func splitSameField(cl predicate.Clause) []predicate.Clause {
	groups := make(map[string][]int)
	var order []string
	for i, c := range cl.Comparisons {
		if c.Op != predicate.OpILike {
			continue
		}
		if _, ok := groups[c.Field]; !ok {
			order = append(order, c.Field)
		}
		groups[c.Field] = append(groups[c.Field], i)
	}

	var choices [][]int
	for _, f := range order {
		if len(groups[f]) > 1 {
			choices = append(choices, groups[f])
		}
	}
	if len(choices) == 0 {
		return []predicate.Clause{cl}
	}

	excluded := func(pick []int) map[int]bool {
		m := make(map[int]bool)
		for gi, g := range choices {
			for _, idx := range g {
				if idx != g[pick[gi]] {
					m[idx] = true
				}
			}
		}
		return m
	}

	var out []predicate.Clause
	forEachPick(choices, func(pick []int) {
		skip := excluded(pick)
		cmps := make([]predicate.Comparison, 0, len(cl.Comparisons))
		for i, c := range cl.Comparisons {
			if !skip[i] {
				cmps = append(cmps, c)
			}
		}
		out = append(out, predicate.Clause{Comparisons: cmps})
	})
	return out
}

// expandLocations replaces each location ILIKE with every (region term,
// location field) alternative.
func expandLocations(cl predicate.Clause) []predicate.Clause {
	var (
		positions []int
		alts      [][]predicate.Comparison
	)
	for i, c := range cl.Comparisons {
		f, ok := predicate.Lookup(c.Field)
		if !ok || !f.Location || c.Op != predicate.OpILike {
			continue
		}
		var opts []predicate.Comparison
		for _, term := range regionTerms(c.Value) {
			for _, field := range predicate.LocationFields() {
				alt := predicate.ILike(field, term)
				alt.Trait = c.Trait
				opts = append(opts, alt.Normalize())
			}
		}
		if len(opts) == 0 {
			continue
		}
		positions = append(positions, i)
		alts = append(alts, opts)
	}
	if len(positions) == 0 {
		return []predicate.Clause{cl}
	}

	choices := make([][]int, len(alts))
	for i, a := range alts {
		choices[i] = make([]int, len(a))
		for j := range a {
			choices[i][j] = j
		}
	}

	var out []predicate.Clause
	forEachPick(choices, func(pick []int) {
		cmps := slices.Clone(cl.Comparisons)
		for gi, pos := range positions {
			cmps[pos] = alts[gi][pick[gi]]
		}
		out = append(out, predicate.Clause{Comparisons: cmps})
	})
	return out
}

// relaxTemporal follows a clause that requires "is current" with a copy that
// does not, so strict matches rank first and missing end dates still match.
func relaxTemporal(cl predicate.Clause) []predicate.Clause {
	relaxed := make([]predicate.Comparison, 0, len(cl.Comparisons))
	for _, c := range cl.Comparisons {
		if c.Op == predicate.OpEquals && c.Value == "true" && slices.Contains(temporalFields, c.Field) {
			continue
		}
		relaxed = append(relaxed, c)
	}
	if len(relaxed) == len(cl.Comparisons) || len(relaxed) == 0 {
		return []predicate.Clause{cl}
	}
	return []predicate.Clause{cl, {Comparisons: relaxed}}
}

func dedupeComparisons(cl predicate.Clause) predicate.Clause {
	seen := make(map[string]bool, len(cl.Comparisons))
	out := make([]predicate.Comparison, 0, len(cl.Comparisons))
	for _, c := range cl.Comparisons {
		k := c.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return predicate.Clause{Comparisons: out}
}

// forEachPick enumerates the cartesian product of choices, first group slowest.
func forEachPick(choices [][]int, fn func(pick []int)) {
	pick := make([]int, len(choices))
	for {
		fn(slices.Clone(pick))
		i := len(pick) - 1
		for ; i >= 0; i-- {
			pick[i]++
			if pick[i] < len(choices[i]) {
				break
			}
			pick[i] = 0
		}
		if i < 0 {
			return
		}
	}
}
