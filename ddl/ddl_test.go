package ddl_test

import (
	"testing"

	"github.com/embedkit/embedkit/ddl"
	"github.com/embedkit/embedkit/schema"
	"github.com/stretchr/testify/require"
)

func usersTable() schema.Table {
	return schema.Table{
		Name: "users",
		Columns: []schema.Column{
			{Name: "id", Kind: schema.KindInt, Primary: true, AutoIncrement: true},
			{Name: "email", Kind: schema.KindText, Unique: true},
			{Name: "role", Kind: schema.KindText, Default: "user"},
			{Name: "is_active", Kind: schema.KindBool, Default: true},
		},
	}
}

func TestCreateTableEmitsAutoincrementPrimaryKey(t *testing.T) {
	sql := ddl.CreateTable(usersTable())
	require.Contains(t, sql, `"id" INTEGER PRIMARY KEY AUTOINCREMENT`)
	require.Contains(t, sql, `"email" TEXT UNIQUE NOT NULL`)
	require.Contains(t, sql, `"role" TEXT NOT NULL DEFAULT 'user'`)
	require.Contains(t, sql, `"is_active" INTEGER NOT NULL DEFAULT 1`)
}

func TestCreateIndexRendersUniqueFlag(t *testing.T) {
	sql := ddl.CreateIndex("users", "idx_users_email", []string{"email"}, true)
	require.Equal(t, `CREATE UNIQUE INDEX "idx_users_email" ON "users" ("email")`, sql)
}

func TestDropIndex(t *testing.T) {
	require.Equal(t, `DROP INDEX "idx_users_email"`, ddl.DropIndex("idx_users_email"))
}

func TestDiffTablesDetectsAddedDroppedModified(t *testing.T) {
	oldTable := usersTable()
	newTable := usersTable()
	newTable.Columns = append(newTable.Columns[:1], newTable.Columns[2:]...) // drop email
	newTable.Columns = append(newTable.Columns, schema.Column{Name: "nickname", Kind: schema.KindText, Nullable: true})
	newTable.Columns[1].Nullable = true // role becomes nullable

	diff := ddl.DiffTables(oldTable, newTable)

	require.Contains(t, diff.DroppedColumns, "email")
	require.Len(t, diff.AddedColumns, 1)
	require.Equal(t, "nickname", diff.AddedColumns[0].Name)

	var roleDiff *ddl.ColumnDiff
	for i := range diff.ModifiedColumns {
		if diff.ModifiedColumns[i].ColumnName == "role" {
			roleDiff = &diff.ModifiedColumns[i]
		}
	}
	require.NotNil(t, roleDiff)
	require.Contains(t, roleDiff.Changes, "nullable")
}
