package table

import (
	"context"
	"fmt"
	"strings"

	"github.com/embedkit/embedkit/codec"
	"github.com/embedkit/embedkit/errs"
	"github.com/embedkit/embedkit/predicate"
	"github.com/embedkit/embedkit/schema"
)

// BulkInsert inserts rows in chunks of batchSize (default 1000), each chunk
// under its own transaction, and returns the engine-assigned row id for each
// input row in input order, per spec.md §4.4.
func (t *Table) BulkInsert(ctx context.Context, rows []schema.Row, batchSize int) ([]int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	ids := make([]int64, 0, len(rows))
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		chunkIDs, err := t.bulkInsertChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		ids = append(ids, chunkIDs...)
	}
	return ids, nil
}

func (t *Table) bulkInsertChunk(ctx context.Context, rows []schema.Row) ([]int64, error) {
	ids := make([]int64, len(rows))
	err := t.withRetry(func() error {
		tx, txErr := beginIfPossible(ctx, t.db)
		exec := t.db
		if tx != nil {
			exec = tx
		} else if txErr != nil {
			return errs.Classify("bulkInsert", txErr)
		}
		for i, row := range rows {
			if err := schema.ValidateInsertRow(t.schema, row); err != nil {
				if tx != nil {
					_ = tx.Rollback()
				}
				return errs.Wrap(errs.InvalidArgument, "bulkInsert row validation", err)
			}
			cols := insertColumns(t.schema, row)
			query := buildInsertSQL(t.schema.Name, cols)
			args, encErr := encodeArgs(t.schema, cols, row)
			if encErr != nil {
				if tx != nil {
					_ = tx.Rollback()
				}
				return errs.Wrap(errs.InvalidArgument, "encode bulkInsert row", encErr)
			}
			res, execErr := exec.ExecContext(ctx, query, args...)
			if execErr != nil {
				if tx != nil {
					_ = tx.Rollback()
				}
				return errs.Classify("bulkInsert", execErr)
			}
			id, _ := res.LastInsertId()
			ids[i] = id
		}
		if tx != nil {
			if err := tx.Commit(); err != nil {
				return errs.Classify("bulkInsert commit", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// UpsertOptions configures Upsert.
type UpsertOptions struct {
	ConflictColumns []string
	UpdateColumns   []string // optional; defaults to all non-conflict columns present in the row
}

// Upsert emits INSERT ... ON CONFLICT(conflictCols) DO UPDATE SET col =
// excluded.col, per spec.md §4.4.
func (t *Table) Upsert(ctx context.Context, rows []schema.Row, opts UpsertOptions) error {
	if len(rows) == 0 {
		return errs.New(errs.InvalidArgument, "upsert requires at least one row")
	}
	if len(opts.ConflictColumns) == 0 {
		return errs.New(errs.InvalidArgument, "upsert requires conflictColumns")
	}

	return t.withRetry(func() error {
		tx, txErr := beginIfPossible(ctx, t.db)
		exec := t.db
		if tx != nil {
			exec = tx
		} else if txErr != nil {
			return errs.Classify("upsert", txErr)
		}
		for _, row := range rows {
			cols := insertColumns(t.schema, row)
			updateCols := opts.UpdateColumns
			if len(updateCols) == 0 {
				updateCols = nonConflictColumns(cols, opts.ConflictColumns)
			}
			query := buildUpsertSQL(t.schema.Name, cols, opts.ConflictColumns, updateCols)
			args, encErr := encodeArgs(t.schema, cols, row)
			if encErr != nil {
				if tx != nil {
					_ = tx.Rollback()
				}
				return errs.Wrap(errs.InvalidArgument, "encode upsert row", encErr)
			}
			if _, err := exec.ExecContext(ctx, query, args...); err != nil {
				if tx != nil {
					_ = tx.Rollback()
				}
				return errs.Classify("upsert", err)
			}
		}
		if tx != nil {
			if err := tx.Commit(); err != nil {
				return errs.Classify("upsert commit", err)
			}
		}
		return nil
	})
}

func nonConflictColumns(cols, conflictCols []string) []string {
	conflict := map[string]bool{}
	for _, c := range conflictCols {
		conflict[c] = true
	}
	var out []string
	for _, c := range cols {
		if !conflict[c] {
			out = append(out, c)
		}
	}
	return out
}

func buildUpsertSQL(tableName string, cols, conflictCols, updateCols []string) string {
	insertSQL := buildInsertSQL(tableName, cols)
	if len(updateCols) == 0 {
		return insertSQL + " ON CONFLICT DO NOTHING"
	}
	var sets []string
	for _, c := range updateCols {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", quoteIdent(c), quoteIdent(c)))
	}
	return fmt.Sprintf("%s ON CONFLICT(%s) DO UPDATE SET %s",
		insertSQL, joinQuoted(conflictCols), strings.Join(sets, ", "))
}

// Update applies values to every row matching where, failing MissingPredicate
// if where is empty/meaningless and InvalidArgument (via errs.InvalidArgument,
// tagged "EmptyUpdate") if values is empty, per spec.md §4.4.
func (t *Table) Update(ctx context.Context, where predicate.Predicate, values schema.Row) error {
	if err := predicate.RequireMeaningful(where); err != nil {
		return err
	}
	if len(values) == 0 {
		return errs.New(errs.InvalidArgument, "EmptyUpdate: values must not be empty")
	}
	if err := schema.ValidateUpdateValues(t.schema, values); err != nil {
		return errs.Wrap(errs.InvalidArgument, "update value validation", err)
	}

	cols := make([]string, 0, len(values))
	for name := range values {
		cols = append(cols, name)
	}
	sortStringsInPlace(cols)

	var sets []string
	args := make([]any, 0, len(cols))
	for _, name := range cols {
		col, _ := t.schema.Column(name)
		v, err := codec.EncodeValue(col, values[name])
		if err != nil {
			return errs.Wrap(errs.InvalidArgument, "encode update value", err)
		}
		sets = append(sets, fmt.Sprintf("%s = ?", quoteIdent(name)))
		args = append(args, v)
	}

	compiled := predicate.Compile(where)
	query := fmt.Sprintf("UPDATE %s SET %s %s", quoteIdent(t.schema.Name), strings.Join(sets, ", "), compiled.WhereClause())
	args = append(args, compiled.Params...)

	return t.withRetry(func() error {
		if _, err := t.db.ExecContext(ctx, query, args...); err != nil {
			return errs.Classify("update", err)
		}
		return nil
	})
}

// Delete removes rows matching where, same predicate safety as Update.
func (t *Table) Delete(ctx context.Context, where predicate.Predicate) error {
	if err := predicate.RequireMeaningful(where); err != nil {
		return err
	}
	if where.IsVacuouslyFalse() {
		return nil
	}
	compiled := predicate.Compile(where)
	query := fmt.Sprintf("DELETE FROM %s %s", quoteIdent(t.schema.Name), compiled.WhereClause())

	return t.withRetry(func() error {
		if _, err := t.db.ExecContext(ctx, query, compiled.Params...); err != nil {
			return errs.Classify("delete", err)
		}
		return nil
	})
}

func sortStringsInPlace(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
