package cache

import (
	"context"
	"testing"
	"time"

	"LanChat/internal/metrics"
	"LanChat/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMemoryCache(t *testing.T, clock clockwork.Clock) *Cache {
	t.Helper()
	c := New(nil, NewMemoryBackend(clock, 0), clock, zap.NewNop(), metrics.New(), Options{})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newRedisCache(t *testing.T, clock clockwork.Clock) (*Cache, *miniredis.Miniredis, *metrics.Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewRedisClient(RedisConfig{
		Addr:        mr.Addr(),
		DialTimeout: 200 * time.Millisecond,
		OpTimeout:   200 * time.Millisecond,
	})
	m := metrics.New()
	c := New(NewRedisBackend(client), NewMemoryBackend(clock, 0), clock, zap.NewNop(), m, Options{
		RetryAfter: 10 * time.Second,
		OpTimeout:  200 * time.Millisecond,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c, mr, m
}

func TestPresence(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path - presence expires after 300 seconds without refresh", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		c := newMemoryCache(t, clock)

		require.NoError(t, c.SetPresence(ctx, "x", model.PresenceOnline))

		p, found := c.GetPresence(ctx, "x")
		assert.True(t, found)
		assert.Equal(t, model.PresenceOnline, p.Status)

		clock.Advance(300 * time.Second)

		p, found = c.GetPresence(ctx, "x")
		assert.False(t, found)
		assert.Equal(t, model.PresenceOffline, p.Status)
	})

	t.Run("happy path - refresh extends presence", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		c := newMemoryCache(t, clock)

		require.NoError(t, c.SetPresence(ctx, "x", model.PresenceOnline))
		clock.Advance(200 * time.Second)
		require.NoError(t, c.SetPresence(ctx, "x", model.PresenceAway))
		clock.Advance(200 * time.Second)

		p, found := c.GetPresence(ctx, "x")
		assert.True(t, found)
		assert.Equal(t, model.PresenceAway, p.Status)
	})

	t.Run("happy path - redis primary honours the same ttl", func(t *testing.T) {
		c, mr, _ := newRedisCache(t, clockwork.NewFakeClock())

		require.NoError(t, c.SetPresence(ctx, "x", model.PresenceOnline))
		assert.True(t, mr.Exists("presence:x"))

		mr.FastForward(300 * time.Second)

		_, found := c.GetPresence(ctx, "x")
		assert.False(t, found)
		assert.False(t, c.Degraded())
	})
}

func TestTyping(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := newMemoryCache(t, clock)

	require.NoError(t, c.SetTyping(ctx, "c1", "u1"))
	clock.Advance(time.Second)
	require.NoError(t, c.SetTyping(ctx, "c1", "u2"))
	require.NoError(t, c.SetTyping(ctx, "c2", "u3"))

	users, err := c.GetTyping(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, users)

	clock.Advance(2 * time.Second)
	users, err = c.GetTyping(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, users, "u1 typed 3s ago and expired")

	require.NoError(t, c.ClearTyping(ctx, "c1", "u2"))
	users, err = c.GetTyping(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestTypingIDsAreLiteral(t *testing.T) {
	ctx := context.Background()
	redisCache, _, _ := newRedisCache(t, clockwork.NewFakeClock())
	caches := map[string]*Cache{
		"memory": newMemoryCache(t, clockwork.NewFakeClock()),
		"redis":  redisCache,
	}

	for name, c := range caches {
		t.Run("happy path - glob characters in ids match literally on "+name, func(t *testing.T) {
			require.NoError(t, c.SetTyping(ctx, "c?1", "a"))
			require.NoError(t, c.SetTyping(ctx, "cX1", "b"))
			require.NoError(t, c.SetTyping(ctx, "c[1]", "d"))

			users, err := c.GetTyping(ctx, "c?1")
			require.NoError(t, err)
			assert.Equal(t, []string{"a"}, users)

			users, err = c.GetTyping(ctx, "c[1]")
			require.NoError(t, err)
			assert.Equal(t, []string{"d"}, users)
		})

		t.Run("sad path - keys rejects patterns beyond star on "+name, func(t *testing.T) {
			for _, pattern := range []string{"typing:c?1:*", "typing:[ab]*", `typing:\*`} {
				_, err := c.Keys(ctx, pattern)
				assert.ErrorIs(t, err, ErrUnsupportedPattern, pattern)
			}
		})
	}
}

func TestFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path - unreachable primary degrades to memory", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		c, mr, m := newRedisCache(t, clock)
		assert.Equal(t, "redis", c.Backend())

		mr.Close()

		require.NoError(t, c.SetPresence(ctx, "x", model.PresenceOnline))
		assert.True(t, c.Degraded())
		assert.Equal(t, "memory-fallback", c.Backend())

		p, found := c.GetPresence(ctx, "x")
		assert.True(t, found)
		assert.Equal(t, model.PresenceOnline, p.Status)
		assert.GreaterOrEqual(t, testutil.ToFloat64(m.CacheFallbacks), 2.0)

		clock.Advance(300 * time.Second)
		_, found = c.GetPresence(ctx, "x")
		assert.False(t, found, "fallback keeps the ttl contract")
	})

	t.Run("happy path - primary is probed again after retry window", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		c, mr, _ := newRedisCache(t, clock)

		mr.Close()
		require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
		require.True(t, c.Degraded())

		require.NoError(t, mr.Restart())
		clock.Advance(11 * time.Second)

		require.NoError(t, c.Set(ctx, "k2", "v2", time.Minute))
		assert.False(t, c.Degraded())
		assert.True(t, mr.Exists("k2"))
	})

	t.Run("happy path - memory only never counts fallbacks", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		m := metrics.New()
		c := New(nil, NewMemoryBackend(clock, 0), clock, zap.NewNop(), m, Options{})
		defer c.Close()

		require.NoError(t, c.Set(ctx, "k", 1, time.Second))
		assert.Equal(t, 0.0, testutil.ToFloat64(m.CacheFallbacks))
		assert.Equal(t, "memory", c.Backend())
		assert.NoError(t, c.Ping(ctx))
	})
}
