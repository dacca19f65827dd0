// Package table implements the per-table CRUD façade (spec.md §4.4),
// grounded on the teacher's database.Driver/database.SQLGenerator split in
// database/interface.go: a façade borrows a connection and a schema
// descriptor and never owns connection lifecycle itself.
package table

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/embedkit/embedkit/codec"
	"github.com/embedkit/embedkit/errs"
	"github.com/embedkit/embedkit/internal/logging"
	"github.com/embedkit/embedkit/predicate"
	"github.com/embedkit/embedkit/schema"
	"go.uber.org/zap"
)

// Querier is the subset of *sql.DB/*sql.Conn/*sql.Tx a Table needs. A table
// façade borrows one rather than owning a connection, per spec.md §3
// ("A Table façade borrows the manager's connection and schema").
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Table is the type-safe CRUD façade over one schema.Table.
type Table struct {
	db     Querier
	schema schema.Table
	logger *zap.Logger
}

// New constructs a Table façade bound to db for the given schema. logger may
// be nil, in which case a no-op logger is used.
func New(db Querier, t schema.Table, logger *zap.Logger) *Table {
	return &Table{db: db, schema: t, logger: logging.Or(logger)}
}

// Name returns the underlying table's name.
func (t *Table) Name() string { return t.schema.Name }

// SelectOptions configures Select.
type SelectOptions struct {
	Where  predicate.Predicate
	Select []string
	Limit  int
	Skip   int
}

// Select runs a SELECT, decoding each row via codec.DecodeRow. Empty
// opts.Select means "*"; limit/skip below zero are InvalidArgument.
func (t *Table) Select(ctx context.Context, opts SelectOptions) ([]schema.Row, error) {
	if opts.Limit < 0 || opts.Skip < 0 {
		return nil, errs.New(errs.InvalidArgument, "limit and skip must be >= 0")
	}
	if opts.Where.IsVacuouslyFalse() {
		return nil, nil
	}

	columnsSQL := "*"
	if len(opts.Select) > 0 {
		columnsSQL = joinQuoted(opts.Select)
	}

	compiled := predicate.Compile(opts.Where)
	query := fmt.Sprintf("SELECT %s FROM %s", columnsSQL, quoteIdent(t.schema.Name))
	if where := compiled.WhereClause(); where != "" {
		query += " " + where
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Skip > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Skip)
	}

	var rows []schema.Row
	err := t.withRetry(func() error {
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
		return nil, err
	}
	return rows, nil
}

func scanRows(r *sql.Rows, tbl schema.Table) ([]schema.Row, error) {
	cols, err := r.Columns()
	if err != nil {
		return nil, err
	}
	var out []schema.Row
	for r.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := r.Scan(ptrs...); err != nil {
			return nil, err
		}
		row, err := codec.DecodeRow(tbl, cols, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, r.Err()
}

// Insert inserts rows within a single transaction, executing the same INSERT
// text for every row; the statement is not explicitly prepared.
func (t *Table) Insert(ctx context.Context, rows []schema.Row) error {
	if len(rows) == 0 {
		return errs.New(errs.InvalidArgument, "insert requires at least one row")
	}
	for _, row := range rows {
		if err := schema.ValidateInsertRow(t.schema, row); err != nil {
			return errs.Wrap(errs.InvalidArgument, "insert row validation", err)
		}
	}

	return t.withRetry(func() error {
		cols := insertColumns(t.schema, rows[0])
		query := buildInsertSQL(t.schema.Name, cols)

		tx, err := beginIfPossible(ctx, t.db)
		if err != nil {
			return errs.Classify("insert", err)
		}
		if tx == nil {
			for _, row := range rows {
				if err := t.execInsert(ctx, t.db, query, cols, row); err != nil {
					return err
				}
			}
			return nil
		}
		for _, row := range rows {
			if err := t.execInsert(ctx, tx, query, cols, row); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return errs.Classify("insert commit", err)
		}
		return nil
	})
}

func (t *Table) execInsert(ctx context.Context, q Querier, query string, cols []string, row schema.Row) error {
	args, err := encodeArgs(t.schema, cols, row)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "encode insert row", err)
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return errs.Classify("insert", err)
	}
	return nil
}

func insertColumns(tbl schema.Table, sample schema.Row) []string {
	var cols []string
	for _, c := range tbl.Columns {
		if _, present := sample[c.Name]; present {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

func buildInsertSQL(tableName string, cols []string) string {
	placeholders := make([]string, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		quoted[i] = quoteIdent(c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(tableName), joinComma(quoted), joinComma(placeholders))
}

func encodeArgs(tbl schema.Table, cols []string, row schema.Row) ([]any, error) {
	args := make([]any, len(cols))
	for i, name := range cols {
		col, _ := tbl.Column(name)
		v, err := codec.EncodeValue(col, row[name])
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func beginIfPossible(ctx context.Context, q Querier) (*sql.Tx, error) {
	if db, ok := q.(interface {
		BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
	}); ok {
		return db.BeginTx(ctx, nil)
	}
	return nil, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func joinQuoted(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func joinComma(items []string) string {
	return strings.Join(items, ", ")
}
