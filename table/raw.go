package table

import (
	"context"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/embedkit/embedkit/ddl"
	"github.com/embedkit/embedkit/errs"
	"github.com/embedkit/embedkit/predicate"
	"github.com/embedkit/embedkit/schema"
)

// CreateIndex delegates to the ddl emitter to create an index on this table.
func (t *Table) CreateIndex(ctx context.Context, indexName string, columns []string, unique bool) error {
	if len(columns) == 0 {
		return errs.New(errs.InvalidArgument, "createIndex requires at least one column")
	}
	sql := ddl.CreateIndex(t.schema.Name, indexName, columns, unique)
	return t.withRetry(func() error {
		if _, err := t.db.ExecContext(ctx, sql); err != nil {
			return errs.Classify("createIndex", err)
		}
		return nil
	})
}

// DropIndex delegates to the ddl emitter to drop an index.
func (t *Table) DropIndex(ctx context.Context, indexName string) error {
	sql := ddl.DropIndex(indexName)
	return t.withRetry(func() error {
		if _, err := t.db.ExecContext(ctx, sql); err != nil {
			return errs.Classify("dropIndex", err)
		}
		return nil
	})
}

// RawQuery runs an arbitrary parameterized SELECT. If sqlText references
// this table's name (case-insensitive substring match), rows are decoded
// via the table's schema; otherwise values pass through raw, per spec.md
// §4.4's documented heuristic.
func (t *Table) RawQuery(ctx context.Context, sqlText string, params []any) ([]schema.Row, error) {
	decode := strings.Contains(strings.ToLower(sqlText), strings.ToLower(t.schema.Name))

	var rows []schema.Row
	err := t.withRetry(func() error {
		rows = nil
		r, qerr := t.db.QueryContext(ctx, sqlText, params...)
		if qerr != nil {
			return qerr
		}
		defer r.Close()
		if decode {
			decoded, derr := scanRows(r, t.schema)
			if derr != nil {
				return derr
			}
			rows = decoded
			return nil
		}
		cols, cerr := r.Columns()
		if cerr != nil {
			return cerr
		}
		for r.Next() {
			raw := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range raw {
				ptrs[i] = &raw[i]
			}
			if err := r.Scan(ptrs...); err != nil {
				return err
			}
			row := make(schema.Row, len(cols))
			for i, c := range cols {
				row[c] = raw[i]
			}
			rows = append(rows, row)
		}
		return r.Err()
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RawQueryAs behaves like RawQuery but always decodes against this table's
// schema, an escape hatch for when the table-name heuristic misfires (e.g. a
// query that joins in via an alias).
func (t *Table) RawQueryAs(ctx context.Context, sqlText string, params []any) ([]schema.Row, error) {
	var rows []schema.Row
	err := t.withRetry(func() error {
		rows = nil
		r, qerr := t.db.QueryContext(ctx, sqlText, params...)
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

// ColumnStats describes one column within GetTableStats' result.
type ColumnStats struct {
	Name     string
	Type     string
	Nullable bool
	Primary  bool
}

// TableStats is GetTableStats' result, per spec.md §4.4.
type TableStats struct {
	Name          string
	RecordCount   int
	Columns       []ColumnStats
	Indexes       []string
	EstimatedSize string
}

// GetTableStats reports row count, column/index metadata, and an estimated
// on-disk size. Size is approximated as totalDBSizeBytes multiplied by this
// table's row count and divided by totalRowsAcrossTables (zero when
// totalRowsAcrossTables is zero).
func (t *Table) GetTableStats(ctx context.Context, totalDBSizeBytes int64, totalRowsAcrossTables int) (TableStats, error) {
	count, err := t.Count(ctx, predicate.Predicate{})
	if err != nil {
		return TableStats{}, err
	}

	stats := TableStats{Name: t.schema.Name, RecordCount: count}
	for _, c := range t.schema.Columns {
		stats.Columns = append(stats.Columns, ColumnStats{
			Name:     c.Name,
			Type:     c.Kind.StorageType(),
			Nullable: c.Nullable,
			Primary:  c.Primary,
		})
	}

	idxRows, err := t.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ?
	`, t.schema.Name)
	if err != nil {
		return TableStats{}, errs.Classify("getTableStats", err)
	}
	defer idxRows.Close()
	for idxRows.Next() {
		var name string
		if err := idxRows.Scan(&name); err != nil {
			return TableStats{}, err
		}
		stats.Indexes = append(stats.Indexes, name)
	}

	share := int64(0)
	if totalRowsAcrossTables > 0 {
		share = totalDBSizeBytes * int64(count) / int64(totalRowsAcrossTables)
	}
	stats.EstimatedSize = humanize.Bytes(uint64(share))
	return stats, nil
}
