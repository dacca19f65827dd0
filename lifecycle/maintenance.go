package lifecycle

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/embedkit/embedkit/ddl"
	"github.com/embedkit/embedkit/errs"
)

// OptimizeOptions selects which maintenance statements Optimize runs, per
// spec.md §4.8.
type OptimizeOptions struct {
	Vacuum  bool
	Analyze bool
	Reindex bool
}

// DefaultOptimizeOptions matches spec.md's documented default
// ({vacuum:true, analyze:true, reindex:false}).
func DefaultOptimizeOptions() OptimizeOptions {
	return OptimizeOptions{Vacuum: true, Analyze: true}
}

// Optimize runs VACUUM/ANALYZE/REINDEX in that fixed order, per spec.md §4.8.
func (m *Manager) Optimize(ctx context.Context, opts OptimizeOptions) error {
	if err := m.notConnected(); err != nil {
		return err
	}
	if opts.Vacuum {
		if _, err := m.db.ExecContext(ctx, "VACUUM"); err != nil {
			return errs.Wrap(errs.Unexpected, "vacuum", err)
		}
	}
	if opts.Analyze {
		if _, err := m.db.ExecContext(ctx, "ANALYZE"); err != nil {
			return errs.Wrap(errs.Unexpected, "analyze", err)
		}
	}
	if opts.Reindex {
		if _, err := m.db.ExecContext(ctx, "REINDEX"); err != nil {
			return errs.Wrap(errs.Unexpected, "reindex", err)
		}
	}
	return nil
}

// TableStat is one table's contribution to DatabaseStats.
type TableStat struct {
	Name    string
	Records int
	Size    string
}

// DatabaseStats is the result of GetDatabaseStats, per spec.md §4.8.
type DatabaseStats struct {
	Tables       int
	TotalRecords int
	DatabaseSize string
	TableStats   []TableStat
	Indexes      int
}

// GetDatabaseStats reports table/record/size/index counts, per spec.md
// §4.8. Per-table size is an even share of the measured file size
// (databaseSize / len(tables)) since SQLite does not expose exact
// per-table storage attribution, documented as an approximation in
// SPEC_FULL.md §14 rather than the "same absolute value for every table"
// bug this is explicitly guarding against.
func (m *Manager) GetDatabaseStats(ctx context.Context) (DatabaseStats, error) {
	if err := m.notConnected(); err != nil {
		return DatabaseStats{}, err
	}
	names, err := ddl.ListTables(ctx, m.db)
	if err != nil {
		return DatabaseStats{}, errs.Wrap(errs.Unexpected, "list tables for stats", err)
	}

	var fileSize int64
	if info, statErr := os.Stat(m.path); statErr == nil {
		fileSize = info.Size()
	}
	perTableSize := int64(0)
	if len(names) > 0 {
		perTableSize = fileSize / int64(len(names))
	}

	stats := DatabaseStats{Tables: len(names)}
	for _, name := range names {
		var count int
		row := m.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", name))
		if err := row.Scan(&count); err != nil {
			return DatabaseStats{}, errs.Wrap(errs.Unexpected, fmt.Sprintf("count rows in %q", name), err)
		}
		stats.TotalRecords += count
		stats.TableStats = append(stats.TableStats, TableStat{
			Name: name, Records: count, Size: humanize.Bytes(uint64(perTableSize)),
		})

		introspected, err := ddl.IntrospectTable(ctx, m.db, name)
		if err != nil {
			return DatabaseStats{}, errs.Wrap(errs.Unexpected, fmt.Sprintf("introspect %q for stats", name), err)
		}
		stats.Indexes += len(introspected.Indexes)
	}
	stats.DatabaseSize = humanize.Bytes(uint64(fileSize))
	return stats, nil
}

// IntegrityReport is the result of CheckIntegrity.
type IntegrityReport struct {
	IsValid bool
	Errors  []string
}

// CheckIntegrity runs PRAGMA integrity_check and, per SPEC_FULL.md §13,
// PRAGMA foreign_key_check, folding violations from both into one report.
// isValid holds iff integrity_check's first row is "ok" and foreign_key_check
// returns no rows.
func (m *Manager) CheckIntegrity(ctx context.Context) (IntegrityReport, error) {
	if err := m.notConnected(); err != nil {
		return IntegrityReport{}, err
	}
	report := IntegrityReport{IsValid: true}

	rows, err := m.db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return IntegrityReport{}, errs.Wrap(errs.Unexpected, "run integrity_check", err)
	}
	var first string
	seenFirst := false
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			rows.Close()
			return IntegrityReport{}, err
		}
		if !seenFirst {
			first = line
			seenFirst = true
		}
		if line != "ok" {
			report.Errors = append(report.Errors, line)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return IntegrityReport{}, err
	}
	if first != "ok" {
		report.IsValid = false
	}

	fkRows, err := m.db.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return IntegrityReport{}, errs.Wrap(errs.Unexpected, "run foreign_key_check", err)
	}
	defer fkRows.Close()
	cols, err := fkRows.Columns()
	if err != nil {
		return IntegrityReport{}, err
	}
	for fkRows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := fkRows.Scan(ptrs...); err != nil {
			return IntegrityReport{}, err
		}
		report.IsValid = false
		report.Errors = append(report.Errors, fmt.Sprintf("foreign key violation: %v", values))
	}
	return report, fkRows.Err()
}
