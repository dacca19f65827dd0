package predicate_test

import (
	"testing"

	"github.com/embedkit/embedkit/errs"
	"github.com/embedkit/embedkit/predicate"
	"github.com/stretchr/testify/require"
)

func TestCompileEmptyYieldsNoWhereClause(t *testing.T) {
	c := predicate.Compile(predicate.Predicate{})
	require.Equal(t, "", c.WhereClause())
	require.Empty(t, c.Params)
}

func TestCompileImplicitEquality(t *testing.T) {
	c := predicate.Compile(predicate.Predicate{Equality: map[string]any{"role": "admin"}})
	require.Equal(t, `WHERE "role" = ?`, c.WhereClause())
	require.Equal(t, []any{"admin"}, c.Params)
}

func TestCompileOrdersClausesEqualityLikeComparisonsOr(t *testing.T) {
	c := predicate.Compile(predicate.Predicate{
		Equality:    map[string]any{"role": "admin"},
		Like:        map[string]string{"email": "%@co%"},
		GreaterThan: map[string]any{"age": 21},
		Or: []predicate.Predicate{
			{Equality: map[string]any{"status": "active"}},
		},
		OrSet: true,
	})
	require.Equal(t, `WHERE "role" = ? AND "email" LIKE ? AND "age" > ? AND ("status" = ?)`, c.WhereClause())
	require.Equal(t, []any{"admin", "%@co%", 21, "active"}, c.Params)
}

func TestCompileOrEmptyIsVacuouslyFalse(t *testing.T) {
	p := predicate.Predicate{Or: []predicate.Predicate{}, OrSet: true}
	require.True(t, p.IsVacuouslyFalse())
}

func TestRequireMeaningfulRejectsEmptyPredicate(t *testing.T) {
	err := predicate.RequireMeaningful(predicate.Predicate{})
	require.True(t, errs.Is(err, errs.MissingPredicate))
}

func TestRequireMeaningfulAcceptsNonEmptyPredicate(t *testing.T) {
	err := predicate.RequireMeaningful(predicate.Predicate{Equality: map[string]any{"id": 1}})
	require.NoError(t, err)
}

func TestCompileComparisonOperators(t *testing.T) {
	c := predicate.Compile(predicate.Predicate{
		LessThan:           map[string]any{"a": 1},
		GreaterThanOrEqual: map[string]any{"b": 2},
		LessThanOrEqual:    map[string]any{"c": 3},
		NotEqual:           map[string]any{"d": 4},
	})
	require.Equal(t, `WHERE "a" < ? AND "b" >= ? AND "c" <= ? AND "d" != ?`, c.WhereClause())
	require.Equal(t, []any{1, 2, 3, 4}, c.Params)
}
