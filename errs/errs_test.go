package errs_test

import (
	"fmt"
	"testing"

	"github.com/embedkit/embedkit/errs"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	base := errs.New(errs.MissingPredicate, "update requires a predicate")
	wrapped := fmt.Errorf("table users: %w", base)

	require.True(t, errs.Is(wrapped, errs.MissingPredicate))
	require.False(t, errs.Is(wrapped, errs.InvalidArgument))
}

func TestAsExposesFields(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := errs.Wrap(errs.Unexpected, "select", cause)

	var e *errs.Error
	require.True(t, errs.As(err, &e))
	require.Equal(t, errs.Unexpected, e.Kind)
	require.ErrorIs(t, e, cause)
}

func TestClassifyPassesThroughExistingError(t *testing.T) {
	original := errs.New(errs.InvalidArgument, "empty insert")
	got := errs.Classify("insert", original)
	require.Same(t, original, got)
}

func TestClassifyLockedByMessage(t *testing.T) {
	err := fmt.Errorf("sqlite3: database is locked")
	got := errs.Classify("update", err)
	require.True(t, errs.Is(got, errs.EngineLocked))
}
