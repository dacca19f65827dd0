package table

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/embedkit/embedkit/errs"
	"go.uber.org/zap"
)

// withRetry runs op, retrying up to 3 times with exponential backoff
// (100ms * 2^n capped at 1s) whenever op fails with an EngineLocked error,
// per spec.md §4.4 ("Any call that trips the engine's 'database is locked'
// failure retries up to 3 times..."). Any other failure propagates
// immediately without retry.
func (t *Table) withRetry(op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 1 * time.Second
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	bounded := backoff.WithMaxRetries(b, 3)

	attempt := 0
	var lastErr error
	retryableOp := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		classified := errs.Classify("", err)
		lastErr = classified
		if errs.Is(classified, errs.EngineLocked) {
			t.logger.Warn("retrying after database is locked",
				zap.String("table", t.schema.Name), zap.Int("attempt", attempt))
			return classified
		}
		return backoff.Permanent(classified)
	}

	if err := backoff.Retry(retryableOp, bounded); err != nil {
		if perm, ok := err.(*backoff.PermanentError); ok {
			return perm.Err
		}
		return lastErr
	}
	return nil
}
