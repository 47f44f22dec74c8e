// Package section enumerates the profile sections a query can target.
package section

import (
	"fmt"
	"strings"
)

// ID identifies one profile section.
type ID string

// Known sections, in canonical order.
const (
	Profile        ID = "profile"
	Experience     ID = "experience"
	Education      ID = "education"
	Skills         ID = "skills"
	Certifications ID = "certifications"
	Projects       ID = "projects"
)

var all = []ID{Profile, Experience, Education, Skills, Certifications, Projects}

// All returns every section in canonical order.
func All() []ID {
	out := make([]ID, len(all))
	copy(out, all)
	return out
}

// Valid reports whether id is a known section.
func (id ID) Valid() bool {
	for _, s := range all {
		if s == id {
			return true
		}
	}
	return false
}

// Parse normalizes a raw identifier. Matching is case-insensitive and
// tolerates the singular forms models like to produce.
func Parse(raw string) (ID, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "skill":
		s = string(Skills)
	case "certification":
		s = string(Certifications)
	case "project":
		s = string(Projects)
	case "experiences":
		s = string(Experience)
	}
	id := ID(s)
	if !id.Valid() {
		return "", fmt.Errorf("unknown section %q", raw)
	}
	return id, nil
}

// ParseList parses raw identifiers into an ordered set, keeping first occurrences.
func ParseList(raw []string) ([]ID, error) {
	out := make([]ID, 0, len(raw))
	seen := make(map[ID]bool, len(raw))
	for _, r := range raw {
		id, err := Parse(r)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

// Contains reports whether ids includes id.
func Contains(ids []ID, id ID) bool {
	for _, s := range ids {
		if s == id {
			return true
		}
	}
	return false
}
