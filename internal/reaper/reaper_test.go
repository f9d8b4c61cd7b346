package reaper

import (
	"context"
	"sync"
	"testing"
	"time"

	"LanChat/internal/metrics"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
}

func (f *fakePurger) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, f.err
}

func (f *fakePurger) calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.cutoffs...)
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRunOnce(t *testing.T) {
	t.Run("happy path - cutoff honors the grace period", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(t0)
		purger := &fakePurger{deleted: 3}
		m := metrics.New()
		r, err := New(purger, clock, zap.NewNop(), m, Options{Cron: "*/5 * * * *", Grace: time.Hour})
		require.NoError(t, err)

		n, err := r.RunOnce(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		assert.Equal(t, []time.Time{t0.Add(-time.Hour)}, purger.calls())
		assert.Equal(t, float64(3), testutil.ToFloat64(m.ReapedMessages))
	})

	t.Run("sad path - store failure is reported and not counted", func(t *testing.T) {
		purger := &fakePurger{deleted: 5, err: errors.New("connection reset")}
		m := metrics.New()
		r, err := New(purger, clockwork.NewFakeClockAt(t0), zap.NewNop(), m, Options{Cron: "@hourly"})
		require.NoError(t, err)

		_, err = r.RunOnce(context.Background())

		assert.Error(t, err)
		assert.Zero(t, testutil.ToFloat64(m.ReapedMessages))
	})

	t.Run("sad path - invalid cron is rejected", func(t *testing.T) {
		_, err := New(&fakePurger{}, clockwork.NewFakeClock(), zap.NewNop(), metrics.New(), Options{Cron: "every five minutes"})
		assert.Error(t, err)
	})
}

func TestSchedule(t *testing.T) {
	t.Run("happy path - runs on each cron tick", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(t0)
		purger := &fakePurger{}
		r, err := New(purger, clock, zap.NewNop(), metrics.New(), Options{Cron: "*/5 * * * *"})
		require.NoError(t, err)

		r.Start(context.Background())
		t.Cleanup(r.Stop)

		clock.BlockUntil(1)
		assert.Empty(t, purger.calls())

		clock.Advance(5 * time.Minute)
		require.Eventually(t, func() bool { return len(purger.calls()) == 1 }, time.Second, 5*time.Millisecond)

		clock.BlockUntil(1)
		clock.Advance(5 * time.Minute)
		require.Eventually(t, func() bool { return len(purger.calls()) == 2 }, time.Second, 5*time.Millisecond)

		assert.Equal(t, t0.Add(10*time.Minute), purger.calls()[1])
	})
}
