package ddl

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/embedkit/embedkit/schema"
)

// IntrospectedColumn mirrors one row of PRAGMA table_info, grounded on the
// teacher's GetColumns in database/sqlite/introspector.go.
type IntrospectedColumn struct {
	Name         string
	Type         string
	Nullable     bool
	IsPrimaryKey bool
	Default      *string
}

// IntrospectedTable is a table reconstructed purely from engine metadata,
// used by lifecycle restore/merge to rebuild DDL for a foreign database
// without needing the original schema.Table.
type IntrospectedTable struct {
	Name    string
	Columns []IntrospectedColumn
	Indexes []string // CREATE INDEX statements, taken verbatim from sqlite_master
}

// ListTables returns user table names, excluding sqlite_ internal tables.
func ListTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// IntrospectTable reads one table's column and index metadata via PRAGMA.
func IntrospectTable(ctx context.Context, db *sql.DB, tableName string) (IntrospectedTable, error) {
	tbl := IntrospectedTable{Name: tableName}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", tableName))
	if err != nil {
		return tbl, fmt.Errorf("table_info(%s): %w", tableName, err)
	}
	for rows.Next() {
		var cid, notNull, pk int
		var col IntrospectedColumn
		var defaultVal sql.NullString
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultVal, &pk); err != nil {
			rows.Close()
			return tbl, err
		}
		col.Nullable = notNull == 0
		col.IsPrimaryKey = pk > 0
		if defaultVal.Valid {
			col.Default = &defaultVal.String
		}
		tbl.Columns = append(tbl.Columns, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return tbl, err
	}

	idxRows, err := db.QueryContext(ctx, `
		SELECT sql FROM sqlite_master
		WHERE type = 'index' AND tbl_name = ? AND sql IS NOT NULL
	`, tableName)
	if err != nil {
		return tbl, fmt.Errorf("indexes for %s: %w", tableName, err)
	}
	defer idxRows.Close()
	for idxRows.Next() {
		var sqlText string
		if err := idxRows.Scan(&sqlText); err != nil {
			return tbl, err
		}
		tbl.Indexes = append(tbl.Indexes, sqlText)
	}
	return tbl, idxRows.Err()
}

// ColumnDiff describes one column's changes between an old and new
// schema.Table, grounded on the teacher's database.ColumnDiff model (used by
// Generator.ModifyColumn in database/sqlite/generator.go).
type ColumnDiff struct {
	ColumnName string
	Changes    []string
}

// TableDiff summarizes the structural differences between two revisions of
// a table descriptor.
type TableDiff struct {
	TableName       string
	AddedColumns    []schema.Column
	DroppedColumns  []string
	ModifiedColumns []ColumnDiff
}

// DiffTables compares two schema.Table revisions column-by-column. This
// supplements spec.md's DDL emitter with the migration-planning capability
// present in the teacher's broader schema-diffing tooling (database.ColumnDiff,
// Generator.ModifyColumn) but absent from the distilled spec.
func DiffTables(oldTable, newTable schema.Table) TableDiff {
	diff := TableDiff{TableName: newTable.Name}

	oldCols := map[string]schema.Column{}
	for _, c := range oldTable.Columns {
		oldCols[c.Name] = c
	}
	newCols := map[string]schema.Column{}
	for _, c := range newTable.Columns {
		newCols[c.Name] = c
	}

	for _, c := range newTable.Columns {
		old, existed := oldCols[c.Name]
		if !existed {
			diff.AddedColumns = append(diff.AddedColumns, c)
			continue
		}
		var changes []string
		if old.Kind != c.Kind {
			changes = append(changes, "type")
		}
		if old.Nullable != c.Nullable {
			changes = append(changes, "nullable")
		}
		if fmt.Sprintf("%v", old.Default) != fmt.Sprintf("%v", c.Default) {
			changes = append(changes, "default")
		}
		if old.Unique != c.Unique {
			changes = append(changes, "unique")
		}
		if len(changes) > 0 {
			diff.ModifiedColumns = append(diff.ModifiedColumns, ColumnDiff{ColumnName: c.Name, Changes: changes})
		}
	}
	for _, c := range oldTable.Columns {
		if _, stillPresent := newCols[c.Name]; !stillPresent {
			diff.DroppedColumns = append(diff.DroppedColumns, c.Name)
		}
	}
	return diff
}

// ModifyColumnPlan renders a SQL comment reporting one ColumnDiff, mirroring
// the teacher's documented SQLite limitation: ALTER COLUMN isn't supported,
// so a column modification is reported, not executed, and no table
// recreation is performed.
func ModifyColumnPlan(tableName string, diff ColumnDiff) string {
	return fmt.Sprintf(
		"-- SQLite limitation: cannot modify column %s.%s (changes: %v); requires table recreation",
		tableName, diff.ColumnName, diff.Changes,
	)
}
