package candidate

import (
	"testing"

	"github.com/kailas-cloud/netscout/internal/domain/section"
)

func TestCandidate_Text(t *testing.T) {
	c := Candidate{
		Summary: Summary{ID: "p1", FullName: "Ada Lovelace", Location: "London"},
		Sections: map[section.ID]string{
			section.Skills:     "Mathematics, Analytical Engine",
			section.Experience: "Collaborator at Babbage & Co",
			section.Projects:   "   ",
		},
	}
	want := "Name: Ada Lovelace\nLocation: London\n[experience]\nCollaborator at Babbage & Co\n" +
		"[skills]\nMathematics, Analytical Engine"
	if got := c.Text(); got != want {
		t.Errorf("Text() =\n%q\nwant\n%q", got, want)
	}
}
