package lifecycle

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/embedkit/embedkit/errs"
	"github.com/embedkit/embedkit/pool"
)

// ExecuteTransaction runs every statement in stmts inside one engine
// transaction on the primary connection, rolling back on the first
// failure, per spec.md §4.8.
func (m *Manager) ExecuteTransaction(ctx context.Context, stmts []string) error {
	if err := m.notConnected(); err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Unexpected, "begin transaction", err)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return errs.Wrap(errs.Unexpected, fmt.Sprintf("execute statement %q", stmt), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.Unexpected, "commit transaction", err)
	}
	return nil
}

// Isolation selects the BEGIN mode for ExecutePooledTransaction, per
// spec.md §4.8.
type Isolation string

const (
	Deferred  Isolation = "DEFERRED"
	Immediate Isolation = "IMMEDIATE"
	Exclusive Isolation = "EXCLUSIVE"
)

// PooledOp is one operation run inside an ExecutePooledTransaction, given
// the pooled connection's handle (already inside a BEGIN/COMMIT the caller
// does not manage directly) so callers can run arbitrary statements and
// collect a typed result.
type PooledOp func(ctx context.Context, db *sql.DB) (any, error)

// ExecutePooledTransaction acquires a connection from p, opens a
// transaction at the given isolation level via an explicit BEGIN (Go's
// sql.TxOptions has no SQLite DEFERRED/IMMEDIATE/EXCLUSIVE equivalent), runs
// ops in array order, and commits on success or rolls back (ignoring
// rollback errors) on the first failure, per spec.md §4.8 and §5's
// ordering guarantees.
func (m *Manager) ExecutePooledTransaction(ctx context.Context, p *pool.Pool, isolation Isolation, ops []PooledOp) ([]any, error) {
	if err := m.notConnected(); err != nil {
		return nil, err
	}
	if isolation == "" {
		isolation = Deferred
	}
	conn, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(conn)

	if _, err := conn.Handle.ExecContext(ctx, fmt.Sprintf("BEGIN %s", isolation)); err != nil {
		return nil, errs.Wrap(errs.Unexpected, "begin pooled transaction", err)
	}

	results := make([]any, 0, len(ops))
	for _, op := range ops {
		result, err := op(ctx, conn.Handle)
		if err != nil {
			conn.Handle.ExecContext(ctx, "ROLLBACK")
			return nil, errs.Wrap(errs.Unexpected, "pooled transaction operation failed", err)
		}
		results = append(results, result)
	}
	if _, err := conn.Handle.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, errs.Wrap(errs.Unexpected, "commit pooled transaction", err)
	}
	return results, nil
}
