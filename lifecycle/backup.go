package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/embedkit/embedkit/ddl"
	"github.com/embedkit/embedkit/errs"
	"github.com/klauspost/compress/gzip"

	_ "modernc.org/sqlite"
)

// BackupFormat selects what Backup writes: a full binary copy, or a
// schema-only JSON document, per spec.md §4.8/§6.
type BackupFormat string

const (
	FormatBinary BackupFormat = "binary"
	FormatJSON   BackupFormat = "json"
)

// BackupOptions configures Backup, mirroring spec.md §6's Backup config keys.
type BackupOptions struct {
	Compress    bool
	IncludeData bool
	Format      BackupFormat
}

// schemaBackup is the §6 schema-backup JSON document shape.
type schemaBackup struct {
	Version string              `json:"version"`
	Created string              `json:"created"`
	Tables  []schemaBackupTable `json:"tables"`
}

type schemaBackupTable struct {
	Name    string              `json:"name"`
	Columns []schemaBackupCol   `json:"columns"`
	Indexes []schemaBackupIndex `json:"indexes"`
}

type schemaBackupCol struct {
	CID       int     `json:"cid"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	NotNull   bool    `json:"notnull"`
	DfltValue *string `json:"dflt_value"`
	PK        bool    `json:"pk"`
}

type schemaBackupIndex struct {
	Name string `json:"name"`
	SQL  string `json:"sql"`
}

var timeNow = time.Now

// Backup writes a copy of the database to path, per spec.md §4.8's Backup
// operation.
func (m *Manager) Backup(ctx context.Context, path string, opts BackupOptions) error {
	if err := m.notConnected(); err != nil {
		return err
	}
	if opts.Format == "" {
		opts.Format = FormatBinary
	}
	if opts.Compress && !strings.HasSuffix(path, ".gz") {
		return errs.New(errs.InvalidArgument, "compressed backups must use a .gz path suffix")
	}

	var raw []byte
	var err error
	switch opts.Format {
	case FormatJSON:
		raw, err = m.exportSchemaJSON(ctx)
	default:
		raw, err = m.vacuumInto(ctx)
	}
	if err != nil {
		return err
	}

	if opts.Compress {
		return writeGzip(path, raw)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errs.Wrap(errs.Unexpected, "write backup file", err)
	}
	return nil
}

// vacuumInto copies the live database via VACUUM INTO a temp file, then
// reads the bytes back, grounded on the VACUUM INTO pattern used for
// SQLite backups in the broader example pack.
func (m *Manager) vacuumInto(ctx context.Context) ([]byte, error) {
	tmp := newTempPath(m.path, ".vacuum")
	defer os.Remove(tmp)

	if _, err := m.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", tmp)); err != nil {
		return nil, errs.Wrap(errs.Unexpected, "vacuum into backup temp file", err)
	}
	raw, err := os.ReadFile(tmp)
	if err != nil {
		return nil, errs.Wrap(errs.Unexpected, "read vacuum temp file", err)
	}
	return raw, nil
}

func (m *Manager) exportSchemaJSON(ctx context.Context) ([]byte, error) {
	names, err := ddl.ListTables(ctx, m.db)
	if err != nil {
		return nil, errs.Wrap(errs.Unexpected, "list tables for schema export", err)
	}
	doc := schemaBackup{Version: "1.0", Created: timeNow().UTC().Format(time.RFC3339)}
	for _, name := range names {
		introspected, err := ddl.IntrospectTable(ctx, m.db, name)
		if err != nil {
			return nil, errs.Wrap(errs.Unexpected, fmt.Sprintf("introspect table %q", name), err)
		}
		table := schemaBackupTable{Name: name}
		for cid, col := range introspected.Columns {
			table.Columns = append(table.Columns, schemaBackupCol{
				CID: cid, Name: col.Name, Type: col.Type,
				NotNull: !col.Nullable, DfltValue: col.Default, PK: col.IsPrimaryKey,
			})
		}
		for _, idxSQL := range introspected.Indexes {
			table.Indexes = append(table.Indexes, schemaBackupIndex{Name: indexNameFromSQL(idxSQL), SQL: idxSQL})
		}
		doc.Tables = append(doc.Tables, table)
	}
	return json.MarshalIndent(doc, "", "  ")
}

func indexNameFromSQL(sqlText string) string {
	fields := strings.Fields(sqlText)
	for i, f := range fields {
		if strings.EqualFold(f, "INDEX") && i+1 < len(fields) {
			return strings.Trim(fields[i+1], `"`)
		}
	}
	return ""
}

func writeGzip(path string, raw []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.Unexpected, "create backup file", err)
	}
	defer f.Close()
	gw := gzip.NewWriter(f)
	if _, err := gw.Write(raw); err != nil {
		gw.Close()
		return errs.Wrap(errs.Unexpected, "gzip backup contents", err)
	}
	return gw.Close()
}

// RestoreOptions configures Restore, per spec.md §6's Restore config keys.
type RestoreOptions struct {
	DropExisting bool
}

// Restore loads a backup produced by Backup back into the managed database,
// per spec.md §4.8's Restore operation.
func (m *Manager) Restore(ctx context.Context, path string, opts RestoreOptions) error {
	if err := m.notConnected(); err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return errs.Wrap(errs.BackupNotFound, fmt.Sprintf("backup %q", path), err)
	}

	innerPath := path
	if strings.HasSuffix(path, ".gz") {
		tmp := newTempPath(m.path, ".restore")
		defer os.Remove(tmp)
		if err := gunzipFile(path, tmp); err != nil {
			return err
		}
		innerPath = tmp
	}

	if opts.DropExisting {
		names, err := ddl.ListTables(ctx, m.db)
		if err != nil {
			return errs.Wrap(errs.Unexpected, "list tables before restore", err)
		}
		for _, name := range names {
			if table, ok := m.tables[name]; ok {
				if _, err := m.db.ExecContext(ctx, ddl.DropTable(table)); err != nil {
					return errs.Wrap(errs.Unexpected, fmt.Sprintf("drop table %q", name), err)
				}
			} else {
				if _, err := m.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %q", name)); err != nil {
					return errs.Wrap(errs.Unexpected, fmt.Sprintf("drop table %q", name), err)
				}
			}
		}
	}

	if looksLikeJSONSchemaBackup(innerPath) {
		return m.importSchemaBackup(ctx, innerPath)
	}
	return m.copyTablesFrom(ctx, innerPath)
}

func gunzipFile(path, dest string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.BackupNotFound, fmt.Sprintf("open %q", path), err)
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		return errs.Wrap(errs.BackupCorrupt, "backup is not valid gzip", err)
	}
	defer gr.Close()

	out, err := os.Create(dest)
	if err != nil {
		return errs.Wrap(errs.Unexpected, "create restore temp file", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, gr); err != nil {
		return errs.Wrap(errs.BackupCorrupt, "gunzip backup contents", err)
	}
	return nil
}

func looksLikeJSONSchemaBackup(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, 1)
	n, _ := f.Read(buf)
	return n == 1 && buf[0] == '{'
}

func (m *Manager) importSchemaBackup(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errs.Wrap(errs.Unexpected, "read schema backup", err)
	}
	var doc schemaBackup
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errs.Wrap(errs.BackupCorrupt, "parse schema backup JSON", err)
	}
	for _, table := range doc.Tables {
		var cols []string
		for _, c := range table.Columns {
			cols = append(cols, fmt.Sprintf("%q %s", c.Name, c.Type))
		}
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", table.Name, strings.Join(cols, ", "))
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return errs.Wrap(errs.Unexpected, fmt.Sprintf("recreate table %q from schema backup", table.Name), err)
		}
		for _, idx := range table.Indexes {
			if idx.SQL == "" {
				continue
			}
			if _, err := m.db.ExecContext(ctx, idx.SQL); err != nil {
				return errs.Wrap(errs.Unexpected, fmt.Sprintf("recreate index %q", idx.Name), err)
			}
		}
	}
	return nil
}

// copyTablesFrom opens path read-only, reconstructs DDL from introspection,
// and copies every row with INSERT OR REPLACE, per spec.md §4.8.
func (m *Manager) copyTablesFrom(ctx context.Context, path string) error {
	src, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return errs.Wrap(errs.Unexpected, "open backup read-only", err)
	}
	defer src.Close()

	names, err := ddl.ListTables(ctx, src)
	if err != nil {
		return errs.Wrap(errs.BackupCorrupt, "list tables in backup", err)
	}

	for _, name := range names {
		introspected, err := ddl.IntrospectTable(ctx, src, name)
		if err != nil {
			return errs.Wrap(errs.BackupCorrupt, fmt.Sprintf("introspect backup table %q", name), err)
		}
		var defs []string
		for _, c := range introspected.Columns {
			def := fmt.Sprintf("%q %s", c.Name, c.Type)
			if c.IsPrimaryKey {
				def += " PRIMARY KEY"
			}
			if !c.Nullable && !c.IsPrimaryKey {
				def += " NOT NULL"
			}
			defs = append(defs, def)
		}
		createStmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", name, strings.Join(defs, ", "))
		if _, err := m.db.ExecContext(ctx, createStmt); err != nil {
			return errs.Wrap(errs.Unexpected, fmt.Sprintf("recreate table %q from backup", name), err)
		}

		rows, err := src.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %q", name))
		if err != nil {
			return errs.Wrap(errs.BackupCorrupt, fmt.Sprintf("read backup table %q", name), err)
		}
		if err := copyRows(ctx, m.db, name, rows); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

func copyRows(ctx context.Context, dst *sql.DB, table string, rows *sql.Rows) error {
	cols, err := rows.Columns()
	if err != nil {
		return errs.Wrap(errs.BackupCorrupt, "read backup column names", err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	quotedCols := make([]string, len(cols))
	for i, c := range cols {
		quotedCols[i] = fmt.Sprintf("%q", c)
	}
	insertStmt := fmt.Sprintf("INSERT OR REPLACE INTO %q (%s) VALUES (%s)", table, strings.Join(quotedCols, ", "), placeholders)

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return errs.Wrap(errs.BackupCorrupt, fmt.Sprintf("scan row from backup table %q", table), err)
		}
		if _, err := dst.ExecContext(ctx, insertStmt, values...); err != nil {
			return errs.Wrap(errs.Unexpected, fmt.Sprintf("insert row into %q", table), err)
		}
	}
	return rows.Err()
}
