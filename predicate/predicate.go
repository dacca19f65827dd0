// Package predicate translates a structured predicate tree into
// parameterized SQL plus a matching parameter vector (spec.md §4.3),
// grounded on the teacher's clause-building in database/sqlite/generator.go
// (CreateTable/FormatColumnDefinition assemble SQL fragments the same way:
// build strings.Builder fragments, join with separators, collect args
// alongside).
package predicate

import (
	"fmt"
	"strings"

	"github.com/embedkit/embedkit/errs"
)

// Predicate is a structured where-clause description, recognizing the
// keys from spec.md §4.3. Equality holds implicit equality fields
// (top-level field:value pairs not under a recognized operator key).
type Predicate struct {
	Equality           map[string]any
	Like               map[string]string
	GreaterThan        map[string]any
	LessThan           map[string]any
	GreaterThanOrEqual map[string]any
	LessThanOrEqual    map[string]any
	NotEqual           map[string]any
	Or                 []Predicate
	OrSet              bool // distinguishes "OR absent" from "OR: []"
}

// IsEmpty reports whether the predicate contains no clauses at all.
func (p Predicate) IsEmpty() bool {
	return len(p.Equality) == 0 && len(p.Like) == 0 && len(p.GreaterThan) == 0 &&
		len(p.LessThan) == 0 && len(p.GreaterThanOrEqual) == 0 && len(p.LessThanOrEqual) == 0 &&
		len(p.NotEqual) == 0 && !p.OrSet
}

// IsVacuouslyFalse reports the "OR: []" identity-false case from spec.md
// §4.3: an explicit empty disjunction, which makes the whole predicate false
// whatever other clauses it carries, so callers short-circuit to an empty
// result without touching the engine.
func (p Predicate) IsVacuouslyFalse() bool {
	return p.OrSet && len(p.Or) == 0
}

// IsMeaningful reports whether p carries at least one condition, the bar
// update/delete must clear to avoid MissingPredicate.
func (p Predicate) IsMeaningful() bool {
	return !p.IsEmpty()
}

// Compiled is a SQL WHERE fragment (without the leading "WHERE ") plus its
// positional parameter vector, in clause-emission order.
type Compiled struct {
	SQL    string
	Params []any
}

// Compile translates p into a Compiled fragment per the ordering rule in
// spec.md §4.3: implicit equality, LIKE, comparisons, OR — each AND-combined.
func Compile(p Predicate) Compiled {
	var clauses []string
	var params []any

	for _, f := range sortedKeys(p.Equality) {
		clauses = append(clauses, fmt.Sprintf("%s = ?", quoteIdent(f)))
		params = append(params, p.Equality[f])
	}
	for _, f := range sortedKeys(p.Like) {
		clauses = append(clauses, fmt.Sprintf("%s LIKE ?", quoteIdent(f)))
		params = append(params, p.Like[f])
	}
	for _, f := range sortedKeys(p.GreaterThan) {
		clauses = append(clauses, fmt.Sprintf("%s > ?", quoteIdent(f)))
		params = append(params, p.GreaterThan[f])
	}
	for _, f := range sortedKeys(p.LessThan) {
		clauses = append(clauses, fmt.Sprintf("%s < ?", quoteIdent(f)))
		params = append(params, p.LessThan[f])
	}
	for _, f := range sortedKeys(p.GreaterThanOrEqual) {
		clauses = append(clauses, fmt.Sprintf("%s >= ?", quoteIdent(f)))
		params = append(params, p.GreaterThanOrEqual[f])
	}
	for _, f := range sortedKeys(p.LessThanOrEqual) {
		clauses = append(clauses, fmt.Sprintf("%s <= ?", quoteIdent(f)))
		params = append(params, p.LessThanOrEqual[f])
	}
	for _, f := range sortedKeys(p.NotEqual) {
		clauses = append(clauses, fmt.Sprintf("%s != ?", quoteIdent(f)))
		params = append(params, p.NotEqual[f])
	}

	if p.OrSet && len(p.Or) > 0 {
		var branches []string
		for _, sub := range p.Or {
			c := Compile(sub)
			if c.SQL == "" {
				continue
			}
			branches = append(branches, "("+c.SQL+")")
			params = append(params, c.Params...)
		}
		if len(branches) == 1 {
			clauses = append(clauses, branches[0])
		} else if len(branches) > 1 {
			clauses = append(clauses, "("+strings.Join(branches, " OR ")+")")
		}
	}

	return Compiled{SQL: strings.Join(clauses, " AND "), Params: params}
}

// WhereClause renders a Compiled fragment as a full "WHERE ..." clause, or
// the empty string if there are no clauses to emit (spec.md §4.3: "Emit
// WHERE only if at least one non-empty clause exists").
func (c Compiled) WhereClause() string {
	if c.SQL == "" {
		return ""
	}
	return "WHERE " + c.SQL
}

// RequireMeaningful enforces the update/delete safety gate from spec.md
// §4.3, returning errs.MissingPredicate if p carries no condition.
func RequireMeaningful(p Predicate) error {
	if !p.IsMeaningful() {
		return errs.New(errs.MissingPredicate, "update/delete requires a meaningful predicate")
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}

// sortStrings is a tiny insertion sort; predicate maps are small (single
// digits of fields per query) so this avoids pulling in sort for one call.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
