package pool

import (
	"context"
	"time"

	"github.com/embedkit/embedkit/errs"
)

const acquireWindowSize = 100

// Acquire returns a connection per spec.md §4.6's acquire semantics: serve
// from `available` FIFO, else open a new connection below maxConnections,
// else enqueue as a waiter until acquireTimeout elapses.
func (p *Pool) Acquire(ctx context.Context) (*PooledConnection, error) {
	start := timeNow()
	conn, err := p.acquireNow()
	if err == nil {
		p.recordAcquire(timeNow().Sub(start))
		return conn, nil
	}
	if err != errPoolAtCapacity {
		return nil, err
	}

	w := &waiter{resolve: make(chan *PooledConnection, 1), reject: make(chan error, 1), enqueuedAt: timeNow()}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errs.New(errs.PoolClosing, "pool is closing")
	}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	timeout := p.cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case conn := <-w.resolve:
		p.recordAcquire(timeNow().Sub(start))
		return conn, nil
	case err := <-w.reject:
		return nil, err
	case <-timer.C:
		p.removeWaiter(w)
		p.mu.Lock()
		p.stats.TotalTimeouts++
		p.mu.Unlock()
		return nil, errs.New(errs.AcquireTimeout, "acquire timed out waiting for a pool connection")
	case <-ctx.Done():
		p.removeWaiter(w)
		return nil, ctx.Err()
	}
}

var errPoolAtCapacity = errs.New(errs.Unexpected, "pool at capacity")

func (p *Pool) acquireNow() (*PooledConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errs.New(errs.PoolClosing, "pool is closing")
	}

	if len(p.available) > 0 {
		id := p.available[0]
		p.available = p.available[1:]
		conn := p.connections[id]
		conn.InUse = true
		conn.LastUsed = timeNow()
		p.stats.TotalAcquires++
		return conn, nil
	}

	if len(p.connections) < p.cfg.MaxConnections {
		handle, err := p.opener(p.dsn)
		if err != nil {
			return nil, errs.Wrap(errs.Unexpected, "open new pool connection", err)
		}
		p.nextID++
		id := p.nextID
		conn := &PooledConnection{ID: id, Handle: handle, CreatedAt: timeNow(), LastUsed: timeNow(), InUse: true}
		p.connections[id] = conn
		p.stats.TotalAcquires++
		return conn, nil
	}

	return nil, errPoolAtCapacity
}

// Release returns conn to the pool, per spec.md §4.6: destroy it if past
// maxConnectionAge, else hand it directly to the oldest waiter, else push
// it back onto `available`.
func (p *Pool) Release(conn *PooledConnection) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		p.destroyConnection(conn)
		return
	}

	if timeNow().Sub(conn.CreatedAt) >= p.cfg.MaxConnectionAge {
		delete(p.connections, conn.ID)
		p.stats.TotalReleases++
		p.mu.Unlock()
		p.destroyConnection(conn)
		return
	}

	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		conn.InUse = true
		conn.LastUsed = timeNow()
		p.stats.TotalAcquires++
		p.stats.TotalReleases++
		p.mu.Unlock()
		w.resolve <- conn
		return
	}

	conn.InUse = false
	conn.LastUsed = timeNow()
	p.available = append(p.available, conn.ID)
	p.stats.TotalReleases++
	p.mu.Unlock()
}

func (p *Pool) destroyConnection(conn *PooledConnection) {
	_ = conn.Handle.Close()
}

func (p *Pool) removeWaiter(target *waiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == target {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

func (p *Pool) recordAcquire(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquireTimes = append(p.acquireTimes, d)
	if len(p.acquireTimes) > acquireWindowSize {
		p.acquireTimes = p.acquireTimes[len(p.acquireTimes)-acquireWindowSize:]
	}
	var total time.Duration
	for _, t := range p.acquireTimes {
		total += t
	}
	p.stats.AverageAcquireTime = total / time.Duration(len(p.acquireTimes))
}

// Stats returns a snapshot of the pool's current activity.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.TotalConnections = len(p.connections)
	s.AvailableConns = len(p.available)
	s.InUseConns = s.TotalConnections - s.AvailableConns
	s.WaitingAcquires = len(p.waiters)
	return s
}

// withConnection acquires a connection, runs fn, and always releases it
// even if fn panics or errors.
func (p *Pool) withConnection(ctx context.Context, fn func(*PooledConnection) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)
	return fn(conn)
}
