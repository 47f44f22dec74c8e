package synthesis

import "strings"

// regions groups place names that recruiters treat as one market.
var regions = [][]string{
	{"bay area", "palo alto", "san francisco", "oakland", "san jose", "mountain view", "menlo park"},
	{"new york", "nyc", "manhattan", "brooklyn", "jersey city"},
	{"seattle", "bellevue", "redmond", "kirkland"},
	{"los angeles", "santa monica", "pasadena", "culver city"},
	{"boston", "cambridge", "somerville"},
	{"washington", "arlington", "bethesda", "alexandria"},
	{"london", "greater london", "shoreditch"},
	{"austin", "round rock"},
	{"chicago", "evanston"},
	{"berlin", "potsdam"},
	{"toronto", "waterloo", "mississauga"},
}

var regionIndex = func() map[string]int {
	m := make(map[string]int)
	for i, members := range regions {
		for _, term := range members {
			m[term] = i
		}
	}
	return m
}()

// regionTerms returns term followed by the rest of its region, lowercased and
// deduplicated. Unknown places expand to themselves.
func regionTerms(term string) []string {
	norm := strings.ToLower(strings.Join(strings.Fields(term), " "))
	if norm == "" {
		return nil
	}
	out := []string{norm}
	i, ok := regionIndex[placeKey(norm)]
	if !ok {
		return out
	}
	for _, m := range regions[i] {
		if m != norm {
			out = append(out, m)
		}
	}
	return out
}

// placeKey drops a trailing state or country ("palo alto, ca") and a
// "greater"/"area" decoration before the region lookup.
func placeKey(norm string) string {
	if i := strings.IndexByte(norm, ','); i > 0 {
		norm = strings.TrimSpace(norm[:i])
	}
	if _, ok := regionIndex[norm]; ok {
		return norm
	}
	norm = strings.TrimPrefix(norm, "greater ")
	norm = strings.TrimSuffix(norm, " area")
	norm = strings.TrimSuffix(norm, " metro")
	return norm
}

// isPlace reports whether term names a known region member.
func isPlace(term string) bool {
	_, ok := regionIndex[placeKey(strings.ToLower(strings.Join(strings.Fields(term), " ")))]
	return ok
}
