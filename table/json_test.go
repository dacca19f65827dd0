package table_test

import (
	"context"
	"testing"

	"github.com/embedkit/embedkit/predicate"
	"github.com/embedkit/embedkit/schema"
	"github.com/embedkit/embedkit/table"
	"github.com/stretchr/testify/require"
)

func TestExportAndImportRoundTrip(t *testing.T) {
	tb, _ := openTestTable(t)
	ctx := context.Background()
	require.NoError(t, tb.Insert(ctx, []schema.Row{{"email": "a@x.com"}, {"email": "b@x.com"}}))

	doc, err := tb.ExportToJson(ctx, table.ExportOptions{Pretty: true})
	require.NoError(t, err)
	require.Contains(t, doc, "a@x.com")

	tb2, _ := openTestTable(t)
	result, err := tb2.ImportFromJson(ctx, doc, table.ImportOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, result.Imported)
	require.Empty(t, result.Errors)

	count, err := tb2.Count(ctx, predicate.Predicate{})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestSyncWithInsertsAndUpdates(t *testing.T) {
	tb, _ := openTestTable(t)
	ctx := context.Background()
	require.NoError(t, tb.Insert(ctx, []schema.Row{{"email": "a@x.com", "role": "user"}}))

	result, err := tb.SyncWith(ctx, []schema.Row{
		{"email": "a@x.com", "role": "admin"},
		{"email": "new@x.com", "role": "user"},
	}, table.SyncOptions{KeyColumn: "email"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Inserted)
	require.Equal(t, 1, result.Updated)
}
