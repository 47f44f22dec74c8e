package predicate

import (
	"slices"
	"strings"
)

// Kind is the storage type of a schema field; it constrains legal operators.
type Kind int

const (
	// KindText is a free-text column.
	KindText Kind = iota
	// KindBool is a boolean column.
	KindBool
	// KindArray is a text[] column.
	KindArray
)

// Tables of the profile schema. Every table other than profiles joins on profile_id.
const (
	TableProfiles       = "profiles"
	TableExperience     = "experience"
	TableEducation      = "education"
	TableSkills         = "skills"
	TableCertifications = "certifications"
	TableProjects       = "projects"
)

// Field is one column the synthesizer may reference.
type Field struct {
	Name     string // qualified, e.g. "experience.title"
	Table    string
	Column   string
	Kind     Kind
	Location bool
}

// CurrentRoleField marks an open-ended (current) position.
const CurrentRoleField = "experience.is_current"

var schema = buildSchema(
	Field{Table: TableProfiles, Column: "full_name", Kind: KindText},
	Field{Table: TableProfiles, Column: "headline", Kind: KindText},
	Field{Table: TableProfiles, Column: "summary", Kind: KindText},
	Field{Table: TableProfiles, Column: "industry", Kind: KindText},
	Field{Table: TableProfiles, Column: "location", Kind: KindText, Location: true},
	Field{Table: TableProfiles, Column: "skills", Kind: KindArray},
	Field{Table: TableExperience, Column: "title", Kind: KindText},
	Field{Table: TableExperience, Column: "company", Kind: KindText},
	Field{Table: TableExperience, Column: "description", Kind: KindText},
	Field{Table: TableExperience, Column: "employment_type", Kind: KindText},
	Field{Table: TableExperience, Column: "location", Kind: KindText, Location: true},
	Field{Table: TableExperience, Column: "is_current", Kind: KindBool},
	Field{Table: TableEducation, Column: "school", Kind: KindText},
	Field{Table: TableEducation, Column: "degree", Kind: KindText},
	Field{Table: TableEducation, Column: "field_of_study", Kind: KindText},
	Field{Table: TableEducation, Column: "location", Kind: KindText, Location: true},
	Field{Table: TableEducation, Column: "is_current", Kind: KindBool},
	Field{Table: TableSkills, Column: "name", Kind: KindText},
	Field{Table: TableCertifications, Column: "name", Kind: KindText},
	Field{Table: TableCertifications, Column: "authority", Kind: KindText},
	Field{Table: TableProjects, Column: "title", Kind: KindText},
	Field{Table: TableProjects, Column: "description", Kind: KindText},
)

func buildSchema(fields ...Field) map[string]Field {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		f.Name = f.Table + "." + f.Column
		m[f.Name] = f
	}
	return m
}

// Lookup returns the schema field for a qualified name, ignoring case.
func Lookup(name string) (Field, bool) {
	f, ok := schema[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Fields returns every schema field sorted by name.
func Fields() []Field {
	out := make([]Field, 0, len(schema))
	for _, f := range schema {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b Field) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// LocationFields returns the names of every location column, sorted.
func LocationFields() []string {
	var out []string
	for _, f := range Fields() {
		if f.Location {
			out = append(out, f.Name)
		}
	}
	return out
}

// Allows reports whether op is legal for the field kind.
func (f Field) Allows(op Operator) bool {
	switch f.Kind {
	case KindText:
		return op == OpEquals || op == OpILike
	case KindBool:
		return op == OpEquals
	case KindArray:
		return op == OpContains
	default:
		return false
	}
}

// Describe renders the schema for model prompts, one field per line.
func Describe() string {
	var b strings.Builder
	for _, f := range Fields() {
		b.WriteString("- ")
		b.WriteString(f.Name)
		switch f.Kind {
		case KindText:
			b.WriteString(" (text: = or ILIKE)")
		case KindBool:
			b.WriteString(" (boolean: =)")
		case KindArray:
			b.WriteString(" (text array: @>)")
		}
		b.WriteByte('\n')
	}
	return b.String()
}
