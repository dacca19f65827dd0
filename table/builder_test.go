package table_test

import (
	"context"
	"testing"

	"github.com/embedkit/embedkit/schema"
	"github.com/stretchr/testify/require"
)

func TestQueryBuilderFluentChain(t *testing.T) {
	tb, _ := openTestTable(t)
	ctx := context.Background()
	require.NoError(t, tb.Insert(ctx, []schema.Row{
		{"email": "a@x.com", "role": "admin"},
		{"email": "b@x.com", "role": "user"},
	}))

	rows, err := tb.Q().Where("role", "admin").Select("email").Execute(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "a@x.com", rows[0]["email"])

	count, err := tb.Q().WhereLike("email", "%@x.com").Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	exists, err := tb.Q().Where("role", "missing").Exists(ctx)
	require.NoError(t, err)
	require.False(t, exists)
}
