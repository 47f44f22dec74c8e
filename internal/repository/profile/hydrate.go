package profile

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/kailas-cloud/netscout/internal/domain/candidate"
	"github.com/kailas-cloud/netscout/internal/domain/section"
)

type experienceRow struct {
	Title, Company, Location, EmploymentType, Description string
	Current                                              bool
	Start, End                                           sql.NullTime
}

type educationRow struct {
	School, Degree, Field, Location string
	Current                         bool
	StartYear, EndYear              sql.NullInt64
}

type certificationRow struct {
	Name, Authority string
}

type projectRow struct {
	Title, Description string
}

type profileRow struct {
	Card     candidate.Summary
	About    string
	Industry string
	Skills   []string
}

// FetchProfiles loads full profiles for ids, returned in the order of ids.
// Ids that do not exist or belong to another owner are skipped.
func (s *Store) FetchProfiles(ctx context.Context, ownerID string, ids []string) ([]candidate.Candidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	base, err := s.fetchBase(ctx, ownerID, ids)
	if err != nil {
		return nil, err
	}
	if len(base) == 0 {
		return nil, nil
	}

	present := make([]string, 0, len(base))
	for id := range base {
		present = append(present, id)
	}

	exp, err := s.fetchExperience(ctx, present)
	if err != nil {
		return nil, err
	}
	edu, err := s.fetchEducation(ctx, present)
	if err != nil {
		return nil, err
	}
	skills, err := s.fetchPairs(ctx, `SELECT profile_id, name, '' FROM skills WHERE profile_id = ANY($1) ORDER BY profile_id, name`, present)
	if err != nil {
		return nil, err
	}
	certs, err := s.fetchPairs(ctx,
		`SELECT profile_id, name, COALESCE(authority, '') FROM certifications WHERE profile_id = ANY($1) ORDER BY profile_id, name`, present)
	if err != nil {
		return nil, err
	}
	projects, err := s.fetchPairs(ctx,
		`SELECT profile_id, title, COALESCE(description, '') FROM projects WHERE profile_id = ANY($1) ORDER BY profile_id, title`, present)
	if err != nil {
		return nil, err
	}

	out := make([]candidate.Candidate, 0, len(base))
	for _, id := range ids {
		row, ok := base[id]
		if !ok {
			continue
		}
		skillNames := append([]string(nil), row.Skills...)
		for _, p := range skills[id] {
			skillNames = append(skillNames, p[0])
		}
		var certRows []certificationRow
		for _, p := range certs[id] {
			certRows = append(certRows, certificationRow{Name: p[0], Authority: p[1]})
		}
		var projRows []projectRow
		for _, p := range projects[id] {
			projRows = append(projRows, projectRow{Title: p[0], Description: p[1]})
		}

		out = append(out, candidate.Candidate{
			Summary: row.Card,
			Sections: compactSections(map[section.ID]string{
				section.Profile:        renderProfile(row),
				section.Experience:     renderExperience(exp[id]),
				section.Education:      renderEducation(edu[id]),
				section.Skills:         renderSkills(skillNames),
				section.Certifications: renderCertifications(certRows),
				section.Projects:       renderProjects(projRows),
			}),
		})
	}
	return out, nil
}

func (s *Store) fetchBase(ctx context.Context, ownerID string, ids []string) (map[string]profileRow, error) {
	const stmt = `SELECT id, full_name, COALESCE(headline, ''), COALESCE(summary, ''), COALESCE(industry, ''),
COALESCE(location, ''), skills, COALESCE(profile_url, ''), COALESCE(picture_url, '')
FROM profiles WHERE owner_id = $1 AND id = ANY($2)`

	rows, err := s.db.QueryContext(ctx, stmt, ownerID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("fetch profiles: %w", wrapPQ(ctx, err))
	}
	defer rows.Close()

	out := make(map[string]profileRow, len(ids))
	for rows.Next() {
		var r profileRow
		if err := rows.Scan(&r.Card.ID, &r.Card.FullName, &r.Card.Headline, &r.About, &r.Industry,
			&r.Card.Location, pq.Array(&r.Skills), &r.Card.ProfileURL, &r.Card.PictureURL); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out[r.Card.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch profiles: %w", wrapPQ(ctx, err))
	}
	return out, nil
}

func (s *Store) fetchExperience(ctx context.Context, ids []string) (map[string][]experienceRow, error) {
	const stmt = `SELECT profile_id, COALESCE(title, ''), COALESCE(company, ''), COALESCE(location, ''),
COALESCE(employment_type, ''), COALESCE(description, ''), is_current, start_date, end_date
FROM experience WHERE profile_id = ANY($1)
ORDER BY profile_id, is_current DESC, start_date DESC NULLS LAST`

	rows, err := s.db.QueryContext(ctx, stmt, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("fetch experience: %w", wrapPQ(ctx, err))
	}
	defer rows.Close()

	out := make(map[string][]experienceRow)
	for rows.Next() {
		var id string
		var r experienceRow
		if err := rows.Scan(&id, &r.Title, &r.Company, &r.Location, &r.EmploymentType,
			&r.Description, &r.Current, &r.Start, &r.End); err != nil {
			return nil, fmt.Errorf("scan experience: %w", err)
		}
		out[id] = append(out[id], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch experience: %w", wrapPQ(ctx, err))
	}
	return out, nil
}

func (s *Store) fetchEducation(ctx context.Context, ids []string) (map[string][]educationRow, error) {
	const stmt = `SELECT profile_id, COALESCE(school, ''), COALESCE(degree, ''), COALESCE(field_of_study, ''),
COALESCE(location, ''), is_current, start_year, end_year
FROM education WHERE profile_id = ANY($1)
ORDER BY profile_id, is_current DESC, end_year DESC NULLS LAST`

	rows, err := s.db.QueryContext(ctx, stmt, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("fetch education: %w", wrapPQ(ctx, err))
	}
	defer rows.Close()

	out := make(map[string][]educationRow)
	for rows.Next() {
		var id string
		var r educationRow
		if err := rows.Scan(&id, &r.School, &r.Degree, &r.Field, &r.Location,
			&r.Current, &r.StartYear, &r.EndYear); err != nil {
			return nil, fmt.Errorf("scan education: %w", err)
		}
		out[id] = append(out[id], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch education: %w", wrapPQ(ctx, err))
	}
	return out, nil
}

// fetchPairs loads (profile_id, a, b) rows for the simple child tables.
func (s *Store) fetchPairs(ctx context.Context, stmt string, ids []string) (map[string][][2]string, error) {
	rows, err := s.db.QueryContext(ctx, stmt, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("fetch section: %w", wrapPQ(ctx, err))
	}
	defer rows.Close()

	out := make(map[string][][2]string)
	for rows.Next() {
		var id string
		var p [2]string
		if err := rows.Scan(&id, &p[0], &p[1]); err != nil {
			return nil, fmt.Errorf("scan section row: %w", err)
		}
		out[id] = append(out[id], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch section: %w", wrapPQ(ctx, err))
	}
	return out, nil
}

func compactSections(m map[section.ID]string) map[section.ID]string {
	for k, v := range m {
		if strings.TrimSpace(v) == "" {
			delete(m, k)
		}
	}
	return m
}

// renderProfile covers fields not already in the candidate header.
func renderProfile(r profileRow) string {
	var lines []string
	if r.Industry != "" {
		lines = append(lines, "Industry: "+r.Industry)
	}
	if r.About != "" {
		lines = append(lines, "About: "+r.About)
	}
	return strings.Join(lines, "\n")
}

func renderExperience(rows []experienceRow) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		var b strings.Builder
		b.WriteString("- ")
		b.WriteString(joinNonEmpty(" at ", r.Title, r.Company))
		if r.EmploymentType != "" {
			fmt.Fprintf(&b, " (%s)", r.EmploymentType)
		}
		if r.Location != "" {
			fmt.Fprintf(&b, ", %s", r.Location)
		}
		if span := dateSpan(r.Start, r.End, r.Current); span != "" {
			fmt.Fprintf(&b, " [%s]", span)
		}
		if r.Description != "" {
			b.WriteString(": ")
			b.WriteString(oneLine(r.Description))
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

func renderEducation(rows []educationRow) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		var b strings.Builder
		b.WriteString("- ")
		b.WriteString(joinNonEmpty(", ", r.School, joinNonEmpty(" in ", r.Degree, r.Field)))
		if r.Location != "" {
			fmt.Fprintf(&b, " (%s)", r.Location)
		}
		switch {
		case r.Current && r.StartYear.Valid:
			fmt.Fprintf(&b, " [%d - present]", r.StartYear.Int64)
		case r.Current:
			b.WriteString(" [present]")
		case r.StartYear.Valid && r.EndYear.Valid:
			fmt.Fprintf(&b, " [%d - %d]", r.StartYear.Int64, r.EndYear.Int64)
		case r.EndYear.Valid:
			fmt.Fprintf(&b, " [%d]", r.EndYear.Int64)
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

func renderSkills(names []string) string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		k := strings.ToLower(n)
		if n == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, n)
	}
	return strings.Join(out, ", ")
}

func renderCertifications(rows []certificationRow) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, "- "+joinNonEmpty(" by ", r.Name, r.Authority))
	}
	return strings.Join(lines, "\n")
}

func renderProjects(rows []projectRow) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		line := "- " + r.Title
		if r.Description != "" {
			line += ": " + oneLine(r.Description)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func dateSpan(start, end sql.NullTime, current bool) string {
	const layout = "2006-01"
	switch {
	case start.Valid && current:
		return start.Time.Format(layout) + " - present"
	case current:
		return "present"
	case start.Valid && end.Valid:
		return start.Time.Format(layout) + " - " + end.Time.Format(layout)
	case start.Valid:
		return start.Time.Format(layout)
	default:
		return ""
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
