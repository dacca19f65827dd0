package pool

import (
	"database/sql"
	"time"

	"github.com/embedkit/embedkit/errs"
	"go.uber.org/zap"
)

func (p *Pool) reapLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.reapTicker.C:
			p.reapIdle()
			p.reapExpiredCacheEntries()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) healthLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.healthTicker.C:
			p.checkHealth()
		case <-p.stopCh:
			return
		}
	}
}

// reapIdle evicts available connections that have exceeded idleTimeout,
// always keeping at least minConnections alive.
func (p *Pool) reapIdle() {
	p.mu.Lock()
	var toClose []*PooledConnection
	var keep []int64
	for _, id := range p.available {
		conn := p.connections[id]
		idleFor := timeNow().Sub(conn.LastUsed)
		if idleFor >= p.cfg.IdleTimeout && len(p.connections) > p.cfg.MinConnections {
			delete(p.connections, id)
			toClose = append(toClose, conn)
			p.stats.TotalReaped++
			continue
		}
		keep = append(keep, id)
	}
	p.available = keep
	p.mu.Unlock()

	for _, conn := range toClose {
		p.destroyConnection(conn)
	}

	if p.cfg.EnableLogging && len(toClose) > 0 {
		p.logger.Info("reaped idle pool connections", zap.Int("count", len(toClose)))
	}
}

// reapExpiredCacheEntries evicts result-cache entries past their TTL.
func (p *Pool) reapExpiredCacheEntries() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := timeNow()
	for k, e := range p.resultCache {
		if e.ttl > 0 && now.Sub(e.insertedAt) >= e.ttl {
			delete(p.resultCache, k)
		}
	}
}

// checkHealth probes every available connection with SELECT 1, closing any
// that fail and opening a replacement while the pool is below
// minConnections, per spec.md §4.6's health-check rule.
func (p *Pool) checkHealth() {
	p.mu.Lock()
	ids := append([]int64(nil), p.available...)
	p.mu.Unlock()

	for _, id := range ids {
		p.mu.Lock()
		conn, ok := p.connections[id]
		p.mu.Unlock()
		if !ok {
			continue
		}
		if _, err := conn.Handle.Exec("SELECT 1"); err != nil {
			p.mu.Lock()
			delete(p.connections, id)
			p.available = removeID(p.available, id)
			p.mu.Unlock()
			p.destroyConnection(conn)
			p.replaceUnhealthyConnection()
		}
	}
}

func (p *Pool) replaceUnhealthyConnection() {
	p.mu.Lock()
	belowMin := len(p.connections) < p.cfg.MinConnections
	p.mu.Unlock()
	if !belowMin {
		return
	}
	conn, err := p.createConnection()
	if err != nil {
		return
	}
	p.mu.Lock()
	p.available = append(p.available, conn.ID)
	p.mu.Unlock()
}

func removeID(ids []int64, target int64) []int64 {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// Close shuts down the pool: stops timers, rejects queued waiters with
// PoolClosing, and closes every connection (idle or in-use).
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	waiters := p.waiters
	p.waiters = nil
	conns := make([]*PooledConnection, 0, len(p.connections))
	for _, c := range p.connections {
		conns = append(conns, c)
	}
	p.connections = map[int64]*PooledConnection{}
	p.available = nil
	stmts := p.stmtCache
	p.stmtCache = map[string]*sql.Stmt{}
	p.mu.Unlock()

	close(p.stopCh)
	p.reapTicker.Stop()
	if p.healthTicker != nil {
		p.healthTicker.Stop()
	}
	p.wg.Wait()

	closingErr := errs.New(errs.PoolClosing, "waiter rejected due to shutdown")
	for _, w := range waiters {
		select {
		case w.reject <- closingErr:
		default:
		}
	}
	for _, stmt := range stmts {
		if err := stmt.Close(); err != nil {
			p.logger.Warn("finalize cached statement during pool shutdown", zap.Error(err))
		}
	}
	for _, c := range conns {
		if err := c.Handle.Close(); err != nil {
			p.logger.Warn("close pool connection during shutdown", zap.Int64("id", c.ID), zap.Error(err))
		}
	}

	registryMu.Lock()
	delete(registry, p)
	registryMu.Unlock()

	return nil
}

