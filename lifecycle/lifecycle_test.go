package lifecycle_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/embedkit/embedkit/lifecycle"
	"github.com/embedkit/embedkit/pool"
	"github.com/embedkit/embedkit/schema"
	"github.com/stretchr/testify/require"
)

func notesTable() schema.Table {
	return schema.Table{
		Name: "notes",
		Columns: []schema.Column{
			{Name: "id", Kind: schema.KindInt, Primary: true, AutoIncrement: true},
			{Name: "body", Kind: schema.KindText},
		},
	}
}

func TestConnectCreatesTableAndDisconnectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "notes.db")

	m, err := lifecycle.Connect(ctx, dbPath, []schema.Table{notesTable()})
	require.NoError(t, err)

	_, err = m.DB().ExecContext(ctx, `INSERT INTO notes (body) VALUES ('hello')`)
	require.NoError(t, err)

	require.NoError(t, m.Disconnect())
	require.NoError(t, m.Disconnect())
}

func TestBackupAndRestoreBinaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "notes.db")
	backupPath := filepath.Join(dir, "notes.backup")

	m, err := lifecycle.Connect(ctx, dbPath, []schema.Table{notesTable()})
	require.NoError(t, err)
	_, err = m.DB().ExecContext(ctx, `INSERT INTO notes (body) VALUES ('first')`)
	require.NoError(t, err)

	require.NoError(t, m.Backup(ctx, backupPath, lifecycle.BackupOptions{Format: lifecycle.FormatBinary}))
	_, statErr := os.Stat(backupPath)
	require.NoError(t, statErr)

	restorePath := filepath.Join(dir, "restored.db")
	m2, err := lifecycle.Connect(ctx, restorePath, []schema.Table{notesTable()})
	require.NoError(t, err)
	require.NoError(t, m2.Restore(ctx, backupPath, lifecycle.RestoreOptions{DropExisting: true}))

	var count int
	row := m2.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`)
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count)
}

func TestBackupCompressedRequiresGzSuffix(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "notes.db")
	m, err := lifecycle.Connect(ctx, dbPath, []schema.Table{notesTable()})
	require.NoError(t, err)

	err = m.Backup(ctx, filepath.Join(t.TempDir(), "out.backup"), lifecycle.BackupOptions{Compress: true})
	require.Error(t, err)
}

func TestRestoreMissingFileIsBackupNotFound(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "notes.db")
	m, err := lifecycle.Connect(ctx, dbPath, []schema.Table{notesTable()})
	require.NoError(t, err)

	err = m.Restore(ctx, filepath.Join(t.TempDir(), "missing.backup"), lifecycle.RestoreOptions{})
	require.Error(t, err)
}

func TestCheckIntegrityReportsOkOnFreshDatabase(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "notes.db")
	m, err := lifecycle.Connect(ctx, dbPath, []schema.Table{notesTable()})
	require.NoError(t, err)

	report, err := m.CheckIntegrity(ctx)
	require.NoError(t, err)
	require.True(t, report.IsValid)
	require.Empty(t, report.Errors)
}

func TestGetDatabaseStats(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "notes.db")
	m, err := lifecycle.Connect(ctx, dbPath, []schema.Table{notesTable()})
	require.NoError(t, err)
	_, err = m.DB().ExecContext(ctx, `INSERT INTO notes (body) VALUES ('a'), ('b')`)
	require.NoError(t, err)

	stats, err := m.GetDatabaseStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Tables)
	require.Equal(t, 2, stats.TotalRecords)
	require.Len(t, stats.TableStats, 1)
}

func TestOptimizeRunsWithoutError(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "notes.db")
	m, err := lifecycle.Connect(ctx, dbPath, []schema.Table{notesTable()})
	require.NoError(t, err)

	require.NoError(t, m.Optimize(ctx, lifecycle.DefaultOptimizeOptions()))
}

func TestExecuteTransactionRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "notes.db")
	m, err := lifecycle.Connect(ctx, dbPath, []schema.Table{notesTable()})
	require.NoError(t, err)

	err = m.ExecuteTransaction(ctx, []string{
		`INSERT INTO notes (body) VALUES ('ok')`,
		`INSERT INTO not_a_table (body) VALUES ('boom')`,
	})
	require.Error(t, err)

	var count int
	row := m.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`)
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 0, count)
}

func TestExecutePooledTransactionCommitsInOrder(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "notes.db")
	m, err := lifecycle.Connect(ctx, dbPath, []schema.Table{notesTable()})
	require.NoError(t, err)
	require.NoError(t, m.Disconnect())

	cfg := pool.DefaultConfig()
	cfg.MaxConnections = 1
	cfg.MinConnections = 1
	p, err := pool.Open(ctx, dbPath, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	m2, err := lifecycle.Connect(ctx, dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { m2.Disconnect() })

	results, err := m2.ExecutePooledTransaction(ctx, p, lifecycle.Immediate, []lifecycle.PooledOp{
		func(ctx context.Context, db *sql.DB) (any, error) {
			return db.ExecContext(ctx, `INSERT INTO notes (body) VALUES ('pooled-a')`)
		},
		func(ctx context.Context, db *sql.DB) (any, error) {
			return db.ExecContext(ctx, `INSERT INTO notes (body) VALUES ('pooled-b')`)
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	var count int
	row := m2.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`)
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 2, count)
}

func TestEnsureSchemaAddsColumn(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "notes.db")
	m, err := lifecycle.Connect(ctx, dbPath, []schema.Table{notesTable()})
	require.NoError(t, err)

	revised := notesTable()
	revised.Columns = append(revised.Columns, schema.Column{Name: "archived", Kind: schema.KindBool})

	diff, err := m.EnsureSchema(ctx, revised)
	require.NoError(t, err)
	require.Len(t, diff.AddedColumns, 1)
	require.Equal(t, "archived", diff.AddedColumns[0].Name)

	rows, err := m.DB().QueryContext(ctx, `SELECT archived FROM notes`)
	require.NoError(t, err)
	require.NoError(t, rows.Close())
}
