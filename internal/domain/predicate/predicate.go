// Package predicate models the structured search filter: an OR of AND-clauses
// over a fixed profile schema, always carrying a row cap.
package predicate

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/kailas-cloud/netscout/internal/domain"
)

// MaxLimit is the hard cap on rows a predicate may return.
const MaxLimit = 100

// MaxClauses bounds the number of OR-branches.
const MaxClauses = 64

// Operator is an atomic comparison operator.
type Operator string

// Supported operators.
const (
	OpEquals   Operator = "="
	OpILike    Operator = "ILIKE"
	OpContains Operator = "@>"
)

// Comparison is one atomic condition. ILIKE values hold the bare term;
// substring wildcards are added when the predicate is compiled.
type Comparison struct {
	Field  string   `json:"field"`
	Op     Operator `json:"operator"`
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
	// Trait is the index of the trait this condition serves, when known.
	Trait *int `json:"trait,omitempty"`
}

// Clause is an AND of comparisons.
type Clause struct {
	Comparisons []Comparison `json:"all_of"`
}

// Predicate is an OR of clauses with a row cap.
type Predicate struct {
	Clauses []Clause `json:"any_of"`
	Limit   int      `json:"limit"`
}

// ILike builds a case-insensitive substring comparison.
func ILike(field, term string) Comparison {
	return Comparison{Field: field, Op: OpILike, Value: term}
}

// Equals builds an equality comparison.
func Equals(field, value string) Comparison {
	return Comparison{Field: field, Op: OpEquals, Value: value}
}

// IsTrue builds a boolean equality comparison.
func IsTrue(field string) Comparison {
	return Comparison{Field: field, Op: OpEquals, Value: "true"}
}

// Contains builds an array containment comparison.
func Contains(field string, values ...string) Comparison {
	return Comparison{Field: field, Op: OpContains, Values: values}
}

// ForTrait returns a copy of c attributed to trait index i.
func (c Comparison) ForTrait(i int) Comparison {
	c.Trait = &i
	return c
}

// Normalize canonicalizes field case, operator spelling and ILIKE wildcards.
func (c Comparison) Normalize() Comparison {
	c.Field = strings.ToLower(strings.TrimSpace(c.Field))
	c.Op = Operator(strings.ToUpper(strings.TrimSpace(string(c.Op))))
	if c.Op == "LIKE" || c.Op == "~~*" {
		c.Op = OpILike
	}
	if c.Op == "CONTAINS" {
		c.Op = OpContains
	}
	c.Value = strings.TrimSpace(c.Value)
	if c.Op == OpILike {
		c.Value = strings.TrimSpace(strings.Trim(c.Value, "%"))
	}
	if c.Op == OpEquals {
		if f, ok := Lookup(c.Field); ok && f.Kind == KindBool {
			c.Value = strings.ToLower(c.Value)
		}
	}
	if len(c.Values) > 0 {
		vals := make([]string, 0, len(c.Values))
		for _, v := range c.Values {
			if v = strings.TrimSpace(v); v != "" {
				vals = append(vals, v)
			}
		}
		c.Values = vals
	}
	return c.clone()
}

func (c Comparison) clone() Comparison {
	c.Values = slices.Clone(c.Values)
	if c.Trait != nil {
		t := *c.Trait
		c.Trait = &t
	}
	return c
}

// Validate checks the comparison against the schema.
func (c Comparison) Validate() error {
	f, ok := Lookup(c.Field)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownField, c.Field)
	}
	if !f.Allows(c.Op) {
		return fmt.Errorf("%w: operator %q not allowed on %s", domain.ErrInvalidPredicate, c.Op, f.Name)
	}
	switch f.Kind {
	case KindText:
		if c.Value == "" {
			return fmt.Errorf("%w: empty value for %s", domain.ErrInvalidPredicate, f.Name)
		}
	case KindBool:
		if c.Value != "true" && c.Value != "false" {
			return fmt.Errorf("%w: %s expects true or false, got %q", domain.ErrInvalidPredicate, f.Name, c.Value)
		}
	case KindArray:
		if len(c.Values) == 0 {
			return fmt.Errorf("%w: empty value list for %s", domain.ErrInvalidPredicate, f.Name)
		}
	}
	return nil
}

// Key is an order-insensitive identity for the comparison's semantics.
func (c Comparison) Key() string {
	v := c.Value
	if c.Op == OpILike {
		v = strings.ToLower(v)
	}
	return c.Field + " " + string(c.Op) + " " + v + "|" + strings.Join(c.Values, ",")
}

func (c Comparison) String() string {
	switch c.Op {
	case OpILike:
		return fmt.Sprintf("%s ILIKE '%%%s%%'", c.Field, c.Value)
	case OpContains:
		return fmt.Sprintf("%s @> {%s}", c.Field, strings.Join(c.Values, ","))
	default:
		if f, ok := Lookup(c.Field); ok && f.Kind == KindBool {
			return fmt.Sprintf("%s = %s", c.Field, c.Value)
		}
		return fmt.Sprintf("%s = '%s'", c.Field, c.Value)
	}
}

// Key is an order-insensitive identity for the clause.
func (cl Clause) Key() string {
	keys := make([]string, len(cl.Comparisons))
	for i, c := range cl.Comparisons {
		keys[i] = c.Key()
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)
	return strings.Join(keys, " AND ")
}

// Traits returns the distinct trait indexes referenced by the clause, sorted.
func (cl Clause) Traits() []int {
	var out []int
	for _, c := range cl.Comparisons {
		if c.Trait != nil && !slices.Contains(out, *c.Trait) {
			out = append(out, *c.Trait)
		}
	}
	slices.Sort(out)
	return out
}

func (cl Clause) String() string {
	parts := make([]string, len(cl.Comparisons))
	for i, c := range cl.Comparisons {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// Validate checks limit, clause count and every comparison.
func (p *Predicate) Validate() error {
	if p == nil {
		return errors.New("nil predicate")
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d, got %d", domain.ErrInvalidPredicate, MaxLimit, p.Limit)
	}
	if len(p.Clauses) == 0 {
		return fmt.Errorf("%w: at least one clause is required", domain.ErrInvalidPredicate)
	}
	if len(p.Clauses) > MaxClauses {
		return fmt.Errorf("%w: %d clauses exceeds %d", domain.ErrInvalidPredicate, len(p.Clauses), MaxClauses)
	}
	for i, cl := range p.Clauses {
		if len(cl.Comparisons) == 0 {
			return fmt.Errorf("%w: clause %d is empty", domain.ErrInvalidPredicate, i)
		}
		for _, c := range cl.Comparisons {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("clause %d: %w", i, err)
			}
		}
	}
	return nil
}

// Tables returns the non-profile tables the predicate touches, sorted.
func (p *Predicate) Tables() []string {
	var out []string
	for _, cl := range p.Clauses {
		for _, c := range cl.Comparisons {
			f, ok := Lookup(c.Field)
			if !ok || f.Table == TableProfiles || slices.Contains(out, f.Table) {
				continue
			}
			out = append(out, f.Table)
		}
	}
	slices.SortFunc(out, func(a, b string) int { return cmp.Compare(tableOrder(a), tableOrder(b)) })
	return out
}

func tableOrder(t string) int {
	switch t {
	case TableExperience:
		return 1
	case TableEducation:
		return 2
	case TableSkills:
		return 3
	case TableCertifications:
		return 4
	case TableProjects:
		return 5
	default:
		return 0
	}
}

// String renders the predicate as a SQL-like expression for logs and step data.
func (p *Predicate) String() string {
	if p == nil {
		return ""
	}
	parts := make([]string, len(p.Clauses))
	for i, cl := range p.Clauses {
		parts[i] = cl.String()
	}
	return strings.Join(parts, " OR ") + " LIMIT " + strconv.Itoa(p.Limit)
}

// Clone returns a deep copy.
func (p *Predicate) Clone() *Predicate {
	if p == nil {
		return nil
	}
	out := &Predicate{Limit: p.Limit, Clauses: make([]Clause, len(p.Clauses))}
	for i, cl := range p.Clauses {
		cmps := make([]Comparison, len(cl.Comparisons))
		for j, c := range cl.Comparisons {
			cmps[j] = c.clone()
		}
		out.Clauses[i] = Clause{Comparisons: cmps}
	}
	return out
}
