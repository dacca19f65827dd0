package table

import (
	"context"

	"github.com/embedkit/embedkit/predicate"
	"github.com/embedkit/embedkit/schema"
)

// Query is a thin fluent builder mirroring Select, per spec.md §4.5. It
// only rearranges call sites; semantics are identical to the Table methods
// it delegates to.
type Query struct {
	table *Table
	where predicate.Predicate
	cols  []string
	limit int
	skip  int
}

// Q starts a fluent query against t.
func (t *Table) Q() *Query {
	return &Query{table: t}
}

// Where adds implicit-equality fields.
func (q *Query) Where(field string, value any) *Query {
	if q.where.Equality == nil {
		q.where.Equality = map[string]any{}
	}
	q.where.Equality[field] = value
	return q
}

// WhereLike adds a LIKE clause.
func (q *Query) WhereLike(field, pattern string) *Query {
	if q.where.Like == nil {
		q.where.Like = map[string]string{}
	}
	q.where.Like[field] = pattern
	return q
}

// WhereOr adds a disjunction branch.
func (q *Query) WhereOr(branches ...predicate.Predicate) *Query {
	q.where.Or = append(q.where.Or, branches...)
	q.where.OrSet = true
	return q
}

// Select restricts the returned columns.
func (q *Query) Select(cols ...string) *Query {
	q.cols = cols
	return q
}

// SelectAll clears any column restriction, returning every column.
func (q *Query) SelectAll() *Query {
	q.cols = nil
	return q
}

// Limit sets the row limit.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Skip sets the row offset.
func (q *Query) Skip(n int) *Query {
	q.skip = n
	return q
}

// Execute runs the query and returns all matching rows.
func (q *Query) Execute(ctx context.Context) ([]schema.Row, error) {
	return q.table.Select(ctx, SelectOptions{Where: q.where, Select: q.cols, Limit: q.limit, Skip: q.skip})
}

// First returns the first matching row, or nil.
func (q *Query) First(ctx context.Context) (schema.Row, error) {
	return q.table.FindFirst(ctx, q.where, q.cols)
}

// Count returns the number of matching rows.
func (q *Query) Count(ctx context.Context) (int, error) {
	return q.table.Count(ctx, q.where)
}

// Exists reports whether any row matches.
func (q *Query) Exists(ctx context.Context) (bool, error) {
	return q.table.Exists(ctx, q.where)
}
