package synthesis

import (
	"github.com/kailas-cloud/netscout/internal/domain/keyphrase"
	"github.com/kailas-cloud/netscout/internal/domain/predicate"
	"github.com/kailas-cloud/netscout/internal/domain/section"
)

// sectionFields are the text columns a key phrase for a section is matched against.
var sectionFields = map[section.ID][]string{
	section.Profile:        {"profiles.headline", "profiles.summary"},
	section.Experience:     {"experience.title", "experience.company", "experience.description"},
	section.Education:      {"education.school", "education.degree", "education.field_of_study"},
	section.Skills:         {"skills.name"},
	section.Certifications: {"certifications.name", "certifications.authority"},
	section.Projects:       {"projects.title", "projects.description"},
}

// compileFallback builds a predicate without the model: one single-ILIKE
// clause per (phrase, field). Phrases only ever add branches. Place names
// also match the profile location, which refine spreads across regions and
// location fields. Returns nil when there is nothing to match on.
func compileFallback(phrases []keyphrase.KeyPhrase, limit, maxClauses int) *predicate.Predicate {
	if len(phrases) == 0 {
		return nil
	}
	sorted := make([]keyphrase.KeyPhrase, len(phrases))
	copy(sorted, phrases)
	keyphrase.Sort(sorted)

	p := &predicate.Predicate{Limit: limit}
	for _, kp := range sorted {
		fields := sectionFields[kp.Section]
		if isPlace(kp.Phrase) {
			fields = append([]string{"profiles.location"}, fields...)
		}
		for _, f := range fields {
			c := predicate.ILike(f, kp.Phrase).ForTrait(kp.TraitIndex).Normalize()
			p.Clauses = append(p.Clauses, predicate.Clause{Comparisons: []predicate.Comparison{c}})
		}
	}
	if len(p.Clauses) == 0 {
		return nil
	}
	return refine(p, limit, maxClauses)
}
