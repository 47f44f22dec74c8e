package section

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{"experience", Experience, false},
		{"  Education ", Education, false},
		{"SKILL", Skills, false},
		{"certification", Certifications, false},
		{"projects", Projects, false},
		{"hobbies", "", true},
		{"", "", true},
	}
	for _, tc := range tests {
		got, err := Parse(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("Parse(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseList_DedupKeepsOrder(t *testing.T) {
	got, err := ParseList([]string{"skills", "experience", "Skills", "profile"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []ID{Skills, Experience, Profile}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseList_RejectsUnknown(t *testing.T) {
	if _, err := ParseList([]string{"experience", "interests"}); err == nil {
		t.Fatal("expected error for unknown section")
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	a := All()
	a[0] = "mutated"
	if All()[0] != Profile {
		t.Error("All must not expose internal slice")
	}
}
