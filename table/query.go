package table

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/embedkit/embedkit/codec"
	"github.com/embedkit/embedkit/errs"
	"github.com/embedkit/embedkit/predicate"
	"github.com/embedkit/embedkit/schema"
)

// queryRowScan runs a single-row query and scans it into dest, since Querier
// exposes QueryContext rather than the narrower *sql.Row API.
func queryRowScan(ctx context.Context, db Querier, query string, args []any, dest ...any) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return fmt.Errorf("query returned no rows: %s", query)
	}
	if err := rows.Scan(dest...); err != nil {
		return err
	}
	return rows.Err()
}

// Count returns the number of rows matching where.
func (t *Table) Count(ctx context.Context, where predicate.Predicate) (int, error) {
	if where.IsVacuouslyFalse() {
		return 0, nil
	}
	compiled := predicate.Compile(where)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", quoteIdent(t.schema.Name), compiled.WhereClause())

	var n int
	err := t.withRetry(func() error {
		return queryRowScan(ctx, t.db, query, compiled.Params, &n)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// FindFirst returns the first row matching where, or nil if none match,
// implemented as select(..., limit:1) per spec.md §4.4.
func (t *Table) FindFirst(ctx context.Context, where predicate.Predicate, selectCols []string) (schema.Row, error) {
	rows, err := t.Select(ctx, SelectOptions{Where: where, Select: selectCols, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Exists reports whether any row matches where, via SELECT 1 ... LIMIT 1.
func (t *Table) Exists(ctx context.Context, where predicate.Predicate) (bool, error) {
	if where.IsVacuouslyFalse() {
		return false, nil
	}
	compiled := predicate.Compile(where)
	query := fmt.Sprintf("SELECT 1 FROM %s %s LIMIT 1", quoteIdent(t.schema.Name), compiled.WhereClause())

	found := false
	err := t.withRetry(func() error {
		rows, qerr := t.db.QueryContext(ctx, query, compiled.Params...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		found = rows.Next()
		return rows.Err()
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Distinct returns the distinct raw values of column matching where, capped
// at limit when limit > 0.
func (t *Table) Distinct(ctx context.Context, column string, where predicate.Predicate, limit int) ([]any, error) {
	if where.IsVacuouslyFalse() {
		return nil, nil
	}
	col, ok := t.schema.Column(column)
	if !ok {
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("unknown column %q", column))
	}

	compiled := predicate.Compile(where)
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s %s", quoteIdent(column), quoteIdent(t.schema.Name), compiled.WhereClause())
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var values []any
	err := t.withRetry(func() error {
		values = nil
		rows, qerr := t.db.QueryContext(ctx, query, compiled.Params...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		for rows.Next() {
			var raw any
			if err := rows.Scan(&raw); err != nil {
				return err
			}
			v, derr := codec.DecodeValue(col, raw)
			if derr != nil {
				return derr
			}
			values = append(values, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// AggregateFunc is one of the functions recognized by Aggregate.
type AggregateFunc string

const (
	AggSum   AggregateFunc = "SUM"
	AggAvg   AggregateFunc = "AVG"
	AggMin   AggregateFunc = "MIN"
	AggMax   AggregateFunc = "MAX"
	AggCount AggregateFunc = "COUNT"
)

// Aggregate computes one or more aggregate functions over column, keyed by
// function name.
func (t *Table) Aggregate(ctx context.Context, column string, fns []AggregateFunc, where predicate.Predicate) (map[AggregateFunc]float64, error) {
	if len(fns) == 0 {
		return nil, errs.New(errs.InvalidArgument, "aggregate requires at least one function")
	}
	if _, ok := t.schema.Column(column); !ok {
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("unknown column %q", column))
	}

	var exprs []string
	for _, fn := range fns {
		exprs = append(exprs, fmt.Sprintf("%s(%s)", fn, quoteIdent(column)))
	}
	compiled := predicate.Compile(where)
	query := fmt.Sprintf("SELECT %s FROM %s %s", strings.Join(exprs, ", "), quoteIdent(t.schema.Name), compiled.WhereClause())

	results := make(map[AggregateFunc]float64, len(fns))
	err := t.withRetry(func() error {
		dest := make([]any, len(fns))
		ptrs := make([]any, len(fns))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := queryRowScan(ctx, t.db, query, compiled.Params, ptrs...); err != nil {
			return err
		}
		for i, fn := range fns {
			results[fn] = asFloat(dest[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

// OrderBy configures Paginate's ORDER BY clause.
type OrderBy struct {
	Column    string
	Direction string // ASC (default) or DESC
}

// Page is Paginate's result, per spec.md §4.4.
type Page struct {
	Data       []schema.Row
	Total      int
	PageNum    int
	PageSize   int
	TotalPages int
}

// Paginate returns one page of results matching where, ordered per orderBy.
// Out-of-range pages return an empty Data slice with metadata unchanged.
func (t *Table) Paginate(ctx context.Context, page, pageSize int, where predicate.Predicate, selectCols []string, orderBy *OrderBy) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}

	total, err := t.Count(ctx, where)
	if err != nil {
		return Page{}, err
	}
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))

	result := Page{Total: total, PageNum: page, PageSize: pageSize, TotalPages: totalPages}
	if where.IsVacuouslyFalse() || (page-1)*pageSize >= total {
		return result, nil
	}

	columnsSQL := "*"
	if len(selectCols) > 0 {
		columnsSQL = joinQuoted(selectCols)
	}
	compiled := predicate.Compile(where)
	query := fmt.Sprintf("SELECT %s FROM %s", columnsSQL, quoteIdent(t.schema.Name))
	if w := compiled.WhereClause(); w != "" {
		query += " " + w
	}
	if orderBy != nil && orderBy.Column != "" {
		dir := "ASC"
		if strings.EqualFold(orderBy.Direction, "DESC") {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s", quoteIdent(orderBy.Column), dir)
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)

	var rows []schema.Row
	err = t.withRetry(func() error {
		rows = nil
		r, qerr := t.db.QueryContext(ctx, query, compiled.Params...)
		if qerr != nil {
			return qerr
		}
		defer r.Close()
		decoded, derr := scanRows(r, t.schema)
		if derr != nil {
			return derr
		}
		rows = decoded
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	result.Data = rows
	return result, nil
}
