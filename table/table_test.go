package table_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/embedkit/embedkit/ddl"
	"github.com/embedkit/embedkit/predicate"
	"github.com/embedkit/embedkit/schema"
	"github.com/embedkit/embedkit/table"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func usersSchema() schema.Table {
	return schema.Table{
		Name: "users",
		Columns: []schema.Column{
			{Name: "id", Kind: schema.KindInt, Primary: true, AutoIncrement: true},
			{Name: "email", Kind: schema.KindText, Unique: true},
			{Name: "role", Kind: schema.KindText, Default: "user", Union: []any{"admin", "user"}},
			{Name: "is_active", Kind: schema.KindBool, Default: true},
		},
	}
}

func openTestTable(t *testing.T) (*table.Table, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tbl := usersSchema()
	_, err = db.ExecContext(context.Background(), ddl.CreateTable(tbl))
	require.NoError(t, err)

	return table.New(db, tbl, nil), db
}

func TestInsertAndSelect(t *testing.T) {
	tb, _ := openTestTable(t)
	ctx := context.Background()

	err := tb.Insert(ctx, []schema.Row{
		{"email": "a@x.com"},
		{"email": "b@x.com", "role": "admin"},
	})
	require.NoError(t, err)

	rows, err := tb.Select(ctx, table.SelectOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "user", rows[0]["role"])
	require.Equal(t, true, rows[0]["is_active"])
}

func TestInsertRejectsEmpty(t *testing.T) {
	tb, _ := openTestTable(t)
	err := tb.Insert(context.Background(), nil)
	require.Error(t, err)
}

func TestUpdateRequiresMeaningfulPredicate(t *testing.T) {
	tb, _ := openTestTable(t)
	err := tb.Update(context.Background(), predicate.Predicate{}, schema.Row{"role": "admin"})
	require.Error(t, err)
}

func TestUpdateAndDelete(t *testing.T) {
	tb, _ := openTestTable(t)
	ctx := context.Background()
	require.NoError(t, tb.Insert(ctx, []schema.Row{{"email": "a@x.com"}}))

	err := tb.Update(ctx, predicate.Predicate{Equality: map[string]any{"email": "a@x.com"}}, schema.Row{"role": "admin"})
	require.NoError(t, err)

	row, err := tb.FindFirst(ctx, predicate.Predicate{Equality: map[string]any{"email": "a@x.com"}}, nil)
	require.NoError(t, err)
	require.Equal(t, "admin", row["role"])

	err = tb.Delete(ctx, predicate.Predicate{Equality: map[string]any{"email": "a@x.com"}})
	require.NoError(t, err)

	exists, err := tb.Exists(ctx, predicate.Predicate{Equality: map[string]any{"email": "a@x.com"}})
	require.NoError(t, err)
	require.False(t, exists)
}

func TestUpsertOnConflict(t *testing.T) {
	tb, _ := openTestTable(t)
	ctx := context.Background()
	require.NoError(t, tb.Insert(ctx, []schema.Row{{"email": "a@x.com", "role": "user"}}))

	err := tb.Upsert(ctx, []schema.Row{{"email": "a@x.com", "role": "admin"}}, table.UpsertOptions{
		ConflictColumns: []string{"email"},
	})
	require.NoError(t, err)

	row, err := tb.FindFirst(ctx, predicate.Predicate{Equality: map[string]any{"email": "a@x.com"}}, nil)
	require.NoError(t, err)
	require.Equal(t, "admin", row["role"])

	count, err := tb.Count(ctx, predicate.Predicate{})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestOrEmptyShortCircuits(t *testing.T) {
	tb, _ := openTestTable(t)
	ctx := context.Background()
	require.NoError(t, tb.Insert(ctx, []schema.Row{{"email": "a@x.com"}}))

	rows, err := tb.Select(ctx, table.SelectOptions{Where: predicate.Predicate{OrSet: true}})
	require.NoError(t, err)
	require.Empty(t, rows)

	count, err := tb.Count(ctx, predicate.Predicate{OrSet: true})
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestPaginate(t *testing.T) {
	tb, _ := openTestTable(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, tb.Insert(ctx, []schema.Row{{"email": randEmail(i)}}))
	}

	page, err := tb.Paginate(ctx, 1, 2, predicate.Predicate{}, nil, &table.OrderBy{Column: "id"})
	require.NoError(t, err)
	require.Equal(t, 5, page.Total)
	require.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Data, 2)

	page, err = tb.Paginate(ctx, 10, 2, predicate.Predicate{}, nil, nil)
	require.NoError(t, err)
	require.Empty(t, page.Data)
	require.Equal(t, 5, page.Total)
}

func randEmail(i int) string {
	return string(rune('a'+i)) + "@x.com"
}

func TestBulkInsertReturnsIDsInOrder(t *testing.T) {
	tb, _ := openTestTable(t)
	ctx := context.Background()

	ids, err := tb.BulkInsert(ctx, []schema.Row{
		{"email": "a@x.com"}, {"email": "b@x.com"}, {"email": "c@x.com"},
	}, 2)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	require.Equal(t, int64(1), ids[0])
	require.Equal(t, int64(3), ids[2])
}

func TestCreateAndDropIndex(t *testing.T) {
	tb, _ := openTestTable(t)
	ctx := context.Background()
	require.NoError(t, tb.CreateIndex(ctx, "idx_users_role", []string{"role"}, false))
	require.NoError(t, tb.DropIndex(ctx, "idx_users_role"))
}
