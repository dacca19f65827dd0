package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/embedkit/embedkit/ddl"
	"github.com/embedkit/embedkit/errs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConflictResolution selects what mergeDatabase does when a row already
// exists in the target table, per spec.md §4.8/§6.
type ConflictResolution string

const (
	ConflictReplace ConflictResolution = "replace"
	ConflictIgnore  ConflictResolution = "ignore"
	ConflictFail    ConflictResolution = "fail"
)

// OnConflictDecision is the return of an optional per-table conflict hook.
type OnConflictDecision string

const (
	KeepExisting OnConflictDecision = "keep_existing"
	UseNew       OnConflictDecision = "use_new"
	MergeRows    OnConflictDecision = "merge"
)

// MergeOptions configures Merge, per spec.md §6's Merge config keys.
type MergeOptions struct {
	ConflictResolution ConflictResolution
	TablesFilter       []string
	OnConflict         func(table string, existing, incoming int) (OnConflictDecision, error)
}

// Merge attaches sourcePath as a second database and copies rows from each
// of its tables into the corresponding target table, per spec.md §4.8's
// mergeDatabase operation.
func (m *Manager) Merge(ctx context.Context, sourcePath string, opts MergeOptions) error {
	if err := m.notConnected(); err != nil {
		return err
	}
	if opts.ConflictResolution == "" {
		opts.ConflictResolution = ConflictReplace
	}
	alias := "merge_src_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	if _, err := m.db.ExecContext(ctx, fmt.Sprintf("ATTACH DATABASE '%s' AS %s", sourcePath, alias)); err != nil {
		return errs.Wrap(errs.Unexpected, "attach source database for merge", err)
	}
	defer m.db.ExecContext(ctx, fmt.Sprintf("DETACH DATABASE %s", alias))

	sourceTables, err := attachedTableNames(ctx, m, alias)
	if err != nil {
		return err
	}

	filter := toSet(opts.TablesFilter)
	for _, name := range sourceTables {
		if len(filter) > 0 && !filter[name] {
			continue
		}
		if err := m.mergeOneTable(ctx, alias, name, opts); err != nil {
			if opts.ConflictResolution == ConflictFail {
				return err
			}
			m.logger.Warn("merge: continuing past table error", zap.String("table", name), zap.Error(err))
			continue
		}
	}
	return nil
}

func (m *Manager) mergeOneTable(ctx context.Context, alias, name string, opts MergeOptions) error {
	var exists bool
	if err := m.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM main.sqlite_master WHERE type = 'table' AND name = ?)", name).Scan(&exists); err != nil {
		return errs.Wrap(errs.Unexpected, fmt.Sprintf("check target table %q", name), err)
	}
	if !exists {
		if _, err := m.db.ExecContext(ctx, fmt.Sprintf(
			"CREATE TABLE %q AS SELECT * FROM %s.%q", name, alias, name)); err != nil {
			return errs.Wrap(errs.MergeConflict, fmt.Sprintf("create table %q from merge source", name), err)
		}
		return nil
	}

	var verb string
	switch opts.ConflictResolution {
	case ConflictIgnore:
		verb = "INSERT OR IGNORE"
	case ConflictFail:
		verb = "INSERT"
	default:
		verb = "INSERT OR REPLACE"
	}
	stmt := fmt.Sprintf("%s INTO %q SELECT * FROM %s.%q", verb, name, alias, name)
	if _, err := m.db.ExecContext(ctx, stmt); err != nil {
		return errs.Wrap(errs.MergeConflict, fmt.Sprintf("merge rows into %q", name), err)
	}
	return nil
}

func attachedTableNames(ctx context.Context, m *Manager, alias string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT name FROM %s.sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%%'", alias))
	if err != nil {
		return nil, errs.Wrap(errs.Unexpected, "enumerate merge source tables", err)
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

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

// CompatibilityReport is the result of AnalyzeMergeCompatibility.
type CompatibilityReport struct {
	CompatibleTables   []CompatibleTable
	IncompatibleTables []string
}

// CompatibleTable reports how many of a table's columns agree between the
// target and a prospective merge source.
type CompatibleTable struct {
	Name              string
	CompatibleColumns int
	TotalColumns      int
}

// AnalyzeMergeCompatibility compares each table's stored `sql` (from
// sqlite_master) between the target and sourcePath, reporting tables whose
// definitions match exactly as compatible, per spec.md §4.8.
func (m *Manager) AnalyzeMergeCompatibility(ctx context.Context, sourcePath string) (CompatibilityReport, error) {
	if err := m.notConnected(); err != nil {
		return CompatibilityReport{}, err
	}
	alias := "merge_check_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := m.db.ExecContext(ctx, fmt.Sprintf("ATTACH DATABASE '%s' AS %s", sourcePath, alias)); err != nil {
		return CompatibilityReport{}, errs.Wrap(errs.Unexpected, "attach source database for compatibility analysis", err)
	}
	defer m.db.ExecContext(ctx, fmt.Sprintf("DETACH DATABASE %s", alias))

	targetSQL, err := tableDefinitions(ctx, m.db, "main")
	if err != nil {
		return CompatibilityReport{}, err
	}
	sourceSQL, err := tableDefinitions(ctx, m.db, alias)
	if err != nil {
		return CompatibilityReport{}, err
	}

	report := CompatibilityReport{}
	for name, srcDef := range sourceSQL {
		targetDef, ok := targetSQL[name]
		if !ok {
			continue
		}
		targetTable, tErr := ddl.IntrospectTable(ctx, m.db, name)
		totalColumns := len(targetTable.Columns)
		if tErr != nil {
			totalColumns = 0
		}
		if targetDef == srcDef {
			report.CompatibleTables = append(report.CompatibleTables, CompatibleTable{
				Name: name, CompatibleColumns: totalColumns, TotalColumns: totalColumns,
			})
		} else {
			report.IncompatibleTables = append(report.IncompatibleTables, name)
		}
	}
	return report, nil
}

func tableDefinitions(ctx context.Context, db *sql.DB, schemaName string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		"SELECT name, sql FROM %s.sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%%'", schemaName))
	if err != nil {
		return nil, errs.Wrap(errs.Unexpected, fmt.Sprintf("read table definitions from %s", schemaName), err)
	}
	defer rows.Close()

	defs := map[string]string{}
	for rows.Next() {
		var name string
		var sqlText sql.NullString
		if err := rows.Scan(&name, &sqlText); err != nil {
			return nil, err
		}
		defs[name] = sqlText.String
	}
	return defs, rows.Err()
}
