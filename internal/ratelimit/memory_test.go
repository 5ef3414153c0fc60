package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, rate float64, burst int) *MemoryLimiter {
	t.Helper()
	m := NewMemoryLimiter(rate, burst)
	t.Cleanup(func() { require.NoError(t, m.Close()) })
	return m
}

func TestMemoryLimiterBurstThenDeny(t *testing.T) {
	m := newLimiter(t, 10, 3)

	for i := range 3 {
		ok, err := m.Allow(context.Background(), "agent:dispatch-7")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst", i)
	}

	ok, err := m.Allow(context.Background(), "agent:dispatch-7")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLimiterRefill(t *testing.T) {
	m := newLimiter(t, 1000, 2)

	for range 2 {
		_, _ = m.Allow(context.Background(), "ip:10.0.0.9")
	}
	ok, _ := m.Allow(context.Background(), "ip:10.0.0.9")
	require.False(t, ok)

	time.Sleep(5 * time.Millisecond)

	ok, err := m.Allow(context.Background(), "ip:10.0.0.9")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiterKeysIsolated(t *testing.T) {
	m := newLimiter(t, 10, 1)

	ok, _ := m.Allow(context.Background(), "agent:dispatch-7")
	require.True(t, ok)
	ok, _ = m.Allow(context.Background(), "agent:dispatch-7")
	require.False(t, ok)

	ok, _ = m.Allow(context.Background(), "agent:treasury-2")
	assert.True(t, ok)
}

func TestMemoryLimiterConcurrentSharedKey(t *testing.T) {
	m := newLimiter(t, 100, 50)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				ok, err := m.Allow(context.Background(), "agent:dispatch-7")
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, allowed, 1)
	assert.LessOrEqual(t, allowed, 50)
}

func TestMemoryLimiterTokensCapAtBurst(t *testing.T) {
	m := newLimiter(t, 1000, 3)

	_, _ = m.Allow(context.Background(), "agent:dispatch-7")

	m.mu.Lock()
	m.buckets["agent:dispatch-7"].lastSeen = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	for i := range 3 {
		ok, _ := m.Allow(context.Background(), "agent:dispatch-7")
		assert.True(t, ok, "request %d after idle period", i)
	}
	ok, _ := m.Allow(context.Background(), "agent:dispatch-7")
	assert.False(t, ok)
}

func TestMemoryLimiterEvictsIdleBuckets(t *testing.T) {
	m := newLimiter(t, 10, 5)

	_, _ = m.Allow(context.Background(), "ip:10.0.0.9")
	_, _ = m.Allow(context.Background(), "agent:dispatch-7")

	m.mu.Lock()
	m.buckets["ip:10.0.0.9"].lastSeen = time.Now().Add(-15 * time.Minute)
	m.mu.Unlock()

	m.evictIdle()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.NotContains(t, m.buckets, "ip:10.0.0.9")
	assert.Contains(t, m.buckets, "agent:dispatch-7")
}

func TestMemoryLimiterCloseIdempotent(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestNoopLimiterAlwaysAllows(t *testing.T) {
	var l NoopLimiter
	for range 100 {
		ok, err := l.Allow(context.Background(), "agent:dispatch-7")
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.NoError(t, l.Close())
}
