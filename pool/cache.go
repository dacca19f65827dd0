package pool

import (
	"strconv"
	"time"
)

// PrepareCached returns a cached prepared statement for query against conn,
// preparing and caching it on first use, per spec.md §4.6's statement
// cache. Disabled via cfg.EnableStatementCache, in which case every call
// prepares fresh (and the caller is responsible for closing it).
func (p *Pool) PrepareCached(conn *PooledConnection, query string) (stmtHandle, error) {
	if !p.cfg.EnableStatementCache {
		stmt, err := conn.Handle.Prepare(query)
		if err != nil {
			return stmtHandle{}, err
		}
		return stmtHandle{stmt: stmt, cached: false}, nil
	}

	key := cacheKey(conn.ID, query)
	p.mu.Lock()
	if stmt, ok := p.stmtCache[key]; ok {
		p.mu.Unlock()
		return stmtHandle{stmt: stmt, cached: true}, nil
	}
	p.mu.Unlock()

	stmt, err := conn.Handle.Prepare(query)
	if err != nil {
		return stmtHandle{}, err
	}
	p.mu.Lock()
	p.stmtCache[key] = stmt
	p.mu.Unlock()
	return stmtHandle{stmt: stmt, cached: true}, nil
}

func cacheKey(connID int64, query string) string {
	return query + "\x00" + strconv.FormatInt(connID, 10)
}

// stmtHandle wraps a prepared statement so callers can tell whether closing
// it themselves is necessary (uncached) or would break the shared cache
// (cached).
type stmtHandle struct {
	stmt   interface{ Close() error }
	cached bool
}

func (h stmtHandle) Close() error {
	if h.cached {
		return nil
	}
	return h.stmt.Close()
}

// CacheGet returns a cached result value and whether it was found and still
// fresh, per spec.md §4.6's TTL result cache.
func (p *Pool) CacheGet(key string) (any, bool) {
	if !p.cfg.EnableResultCache {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.resultCache[key]
	if !ok {
		p.stats.CacheMisses++
		return nil, false
	}
	if entry.ttl > 0 && timeNow().Sub(entry.insertedAt) >= entry.ttl {
		delete(p.resultCache, key)
		p.stats.CacheMisses++
		return nil, false
	}
	p.stats.CacheHits++
	return entry.value, true
}

// CachePut stores value under key with the given TTL, evicting the oldest
// entry first (FIFO) if the cache is at capacity.
func (p *Pool) CachePut(key string, value any, ttl time.Duration) {
	if !p.cfg.EnableResultCache {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.resultCache[key]; !exists && len(p.resultCache) >= p.cfg.MaxCacheEntries {
		p.evictOldestLocked()
	}
	p.resultCache[key] = cacheEntry{value: value, insertedAt: timeNow(), ttl: ttl}
}

// evictOldestLocked removes the single oldest entry by insertion time.
// Callers must hold p.mu.
func (p *Pool) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range p.resultCache {
		if first || e.insertedAt.Before(oldestAt) {
			oldestKey, oldestAt, first = k, e.insertedAt, false
		}
	}
	if !first {
		delete(p.resultCache, oldestKey)
	}
}

// InvalidateCache clears every cached result, e.g. after a mutating
// statement on the underlying table.
func (p *Pool) InvalidateCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resultCache = map[string]cacheEntry{}
}
