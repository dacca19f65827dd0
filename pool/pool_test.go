package pool_test

import (
	"context"
	"testing"
	"time"

	"github.com/embedkit/embedkit/pool"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func testConfig() pool.Config {
	cfg := pool.DefaultConfig()
	cfg.MaxConnections = 2
	cfg.MinConnections = 1
	cfg.AcquireTimeout = 200 * time.Millisecond
	cfg.ReapInterval = time.Hour // don't let the reaper interfere with these tests
	cfg.EnableHealthChecks = false
	return cfg
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := pool.Open(ctx, ":memory:", testConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, conn.InUse)

	p.Release(conn)
	stats := p.Stats()
	require.Equal(t, 0, stats.InUseConns)
}

func TestAcquireBeyondCapacityTimesOut(t *testing.T) {
	ctx := context.Background()
	p, err := pool.Open(ctx, ":memory:", testConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	c1, err := p.Acquire(ctx)
	require.NoError(t, err)
	c2, err := p.Acquire(ctx)
	require.NoError(t, err)

	_, err = p.Acquire(ctx)
	require.Error(t, err)

	p.Release(c1)
	p.Release(c2)
}

func TestWaiterServedOnRelease(t *testing.T) {
	ctx := context.Background()
	p, err := pool.Open(ctx, ":memory:", testConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	c1, err := p.Acquire(ctx)
	require.NoError(t, err)
	c2, err := p.Acquire(ctx)
	require.NoError(t, err)

	waiterGot := make(chan error, 1)
	go func() {
		conn, err := p.Acquire(ctx)
		if err == nil {
			p.Release(conn)
		}
		waiterGot <- err
	}()

	time.Sleep(20 * time.Millisecond)
	p.Release(c1)

	select {
	case err := <-waiterGot:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was never served")
	}
	p.Release(c2)
}

func TestResultCacheTTLAndEviction(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.MaxCacheEntries = 2
	p, err := pool.Open(ctx, ":memory:", cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	p.CachePut("a", 1, time.Minute)
	p.CachePut("b", 2, time.Minute)
	p.CachePut("c", 3, time.Minute) // evicts "a" (oldest)

	_, ok := p.CacheGet("a")
	require.False(t, ok)
	v, ok := p.CacheGet("c")
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestCloseAllPools(t *testing.T) {
	ctx := context.Background()
	_, err := pool.Open(ctx, ":memory:", testConfig(), nil)
	require.NoError(t, err)
	_, err = pool.Open(ctx, ":memory:", testConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, pool.CloseAllPools())
}
