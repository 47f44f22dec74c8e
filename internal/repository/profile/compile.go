package profile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/kailas-cloud/netscout/internal/domain/predicate"
)

// tableAliases fixes the alias of every schema table in compiled SQL.
var tableAliases = map[string]string{
	predicate.TableProfiles:       "p",
	predicate.TableExperience:     "e",
	predicate.TableEducation:      "ed",
	predicate.TableSkills:         "s",
	predicate.TableCertifications: "c",
	predicate.TableProjects:       "pr",
}

// query is a compiled statement with positional arguments.
type query struct {
	SQL  string
	Args []any
}

// compilePredicate renders a validated predicate as one parameterized SELECT.
// Each row carries the index of the first clause it satisfied, so callers can
// rank strict branches ahead of relaxed ones. Values never reach the SQL text.
func compilePredicate(ownerID string, p *predicate.Predicate) (query, error) {
	if err := p.Validate(); err != nil {
		return query{}, err //nolint:wrapcheck // domain error passes through
	}

	args := []any{ownerID}
	bind := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	clauses := make([]string, len(p.Clauses))
	for i, cl := range p.Clauses {
		parts := make([]string, len(cl.Comparisons))
		for j, c := range cl.Comparisons {
			expr, err := compileComparison(c, bind)
			if err != nil {
				return query{}, fmt.Errorf("clause %d: %w", i, err)
			}
			parts[j] = expr
		}
		clauses[i] = "(" + strings.Join(parts, " AND ") + ")"
	}

	var b strings.Builder
	b.WriteString("SELECT p.id, MIN(CASE")
	for i, cl := range clauses {
		fmt.Fprintf(&b, " WHEN %s THEN %d", cl, i)
	}
	b.WriteString(" END) AS branch FROM profiles p")
	for _, table := range p.Tables() {
		fmt.Fprintf(&b, " LEFT JOIN %s %s ON %s.profile_id = p.id", table, tableAliases[table], tableAliases[table])
	}
	b.WriteString(" WHERE p.owner_id = $1 AND (")
	b.WriteString(strings.Join(clauses, " OR "))
	b.WriteString(") GROUP BY p.id ORDER BY branch, p.id LIMIT ")
	b.WriteString(bind(p.Limit))

	return query{SQL: b.String(), Args: args}, nil
}

func compileComparison(c predicate.Comparison, bind func(any) string) (string, error) {
	f, ok := predicate.Lookup(c.Field)
	if !ok {
		return "", fmt.Errorf("unknown field %q", c.Field)
	}
	col := tableAliases[f.Table] + "." + f.Column

	switch {
	case c.Op == predicate.OpILike:
		return col + " ILIKE " + bind("%"+escapeLike(c.Value)+"%"), nil
	case c.Op == predicate.OpContains:
		return col + " @> " + bind(pq.Array(c.Values)) + "::text[]", nil
	case f.Kind == predicate.KindBool:
		v, err := strconv.ParseBool(c.Value)
		if err != nil {
			return "", fmt.Errorf("%s: %w", f.Name, err)
		}
		return col + " = " + bind(v), nil
	default:
		return "lower(" + col + ") = lower(" + bind(c.Value) + ")", nil
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes LIKE metacharacters in a term match literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// vectorLiteral renders a pgvector input literal.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// cosineSimilarity maps pgvector cosine distance in [0,2] to similarity in [0,1].
func cosineSimilarity(distance float64) float64 {
	return min(1, max(0, 1-distance/2))
}
