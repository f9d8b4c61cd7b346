// Package reaper periodically hard deletes messages whose expiry passed
// longer ago than a grace period. Reads already hide expired messages; the
// reaper only reclaims storage.
package reaper

import (
	"context"
	"sync"
	"time"

	"LanChat/internal/metrics"

	"github.com/adhocore/gronx"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Purger deletes messages that expired before cutoff and clears references to them.
type Purger interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type Options struct {
	Cron    string
	Grace   time.Duration
	Timeout time.Duration
}

type Reaper struct {
	purger  Purger
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
	opts    Options

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(purger Purger, clock clockwork.Clock, logger *zap.Logger, m *metrics.Metrics, opts Options) (*Reaper, error) {
	if !gronx.New().IsValid(opts.Cron) {
		return nil, errors.Errorf("invalid cron expression %q", opts.Cron)
	}
	if opts.Grace < 0 {
		return nil, errors.New("grace must not be negative")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	return &Reaper{
		purger:  purger,
		clock:   clock,
		logger:  logger,
		metrics: m,
		opts:    opts,
	}, nil
}

// RunOnce purges everything that expired before now minus the grace period.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	cutoff := r.clock.Now().UTC().Add(-r.opts.Grace)
	n, err := r.purger.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "reaper.RunOnce")
	}

	r.metrics.ReapedMessages.Add(float64(n))
	if n > 0 {
		r.logger.Info("reaped expired messages", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// Start runs the purge on every cron tick until Stop or ctx is done.
func (r *Reaper) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			now := r.clock.Now()
			next, err := gronx.NextTickAfter(r.opts.Cron, now, false)
			if err != nil {
				r.logger.Error("cannot schedule reaper", zap.String("cron", r.opts.Cron), zap.Error(err))
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-r.clock.After(next.Sub(now)):
			}

			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Warn("reaper run failed", zap.Error(err))
			}
		}
	}()

	r.logger.Info("reaper started", zap.String("cron", r.opts.Cron), zap.Duration("grace", r.opts.Grace))
}

func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}
