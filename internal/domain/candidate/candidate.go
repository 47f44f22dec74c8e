// Package candidate models profiles returned by retrieval, before scoring.
package candidate

import (
	"strings"

	"github.com/kailas-cloud/netscout/internal/domain/section"
)

// Source names the retrieval path that produced a candidate.
type Source string

// Retrieval paths.
const (
	SourceStructured Source = "structured"
	SourceVector     Source = "vector"
)

// Provenance explains why a candidate was retrieved.
type Provenance struct {
	Source Source `json:"source"`
	// Branch is the index of the first predicate clause the profile matched.
	Branch int `json:"branch"`
	// Similarity is the normalized vector similarity in [0,1], when known.
	Similarity float64 `json:"similarity,omitempty"`
}

// Hit is a bare retrieval result before hydration.
type Hit struct {
	ID         string
	Provenance Provenance
}

// Summary is the part of a profile safe to return to the client.
type Summary struct {
	ID         string     `json:"id"`
	FullName   string     `json:"full_name"`
	Headline   string     `json:"headline,omitempty"`
	Location   string     `json:"location,omitempty"`
	ProfileURL string     `json:"profile_url,omitempty"`
	PictureURL string     `json:"picture_url,omitempty"`
	Provenance Provenance `json:"provenance"`
}

// Candidate is a hydrated profile with free-text sections.
type Candidate struct {
	Summary
	Sections map[section.ID]string
	// Rank is the 0-based retrieval position, used as a scoring tie-breaker.
	Rank int
}

// Text renders every non-empty section in canonical order for model prompts.
func (c Candidate) Text() string {
	var b strings.Builder
	b.WriteString("Name: ")
	b.WriteString(c.FullName)
	if c.Headline != "" {
		b.WriteString("\nHeadline: ")
		b.WriteString(c.Headline)
	}
	if c.Location != "" {
		b.WriteString("\nLocation: ")
		b.WriteString(c.Location)
	}
	for _, id := range section.All() {
		text := strings.TrimSpace(c.Sections[id])
		if text == "" {
			continue
		}
		b.WriteString("\n[")
		b.WriteString(string(id))
		b.WriteString("]\n")
		b.WriteString(text)
	}
	return b.String()
}
