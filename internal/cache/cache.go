package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"LanChat/internal/metrics"
	"LanChat/internal/model"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	PresenceTTL = 300 * time.Second
	TypingTTL   = 3 * time.Second

	presencePrefix = "presence:"
	typingPrefix   = "typing:"

	defaultRetryAfter = 30 * time.Second
	defaultOpTimeout  = 500 * time.Millisecond
)

type Options struct {
	// RetryAfter is how long the primary is skipped after a failure.
	RetryAfter time.Duration
	// OpTimeout bounds every call to the primary.
	OpTimeout time.Duration
}

// Cache is the ephemeral state store. Calls go to the primary backend while it
// answers; when it fails they are served by the in-process fallback, and the
// primary is probed again after RetryAfter. Callers never see primary failures.
type Cache struct {
	primary  Backend // nil when configured memory-only
	fallback Backend
	logger   *zap.Logger
	metrics  *metrics.Metrics
	clock    clockwork.Clock
	opts     Options

	mu        sync.Mutex
	downUntil time.Time
	degraded  bool
}

func New(primary, fallback Backend, clock clockwork.Clock, logger *zap.Logger, m *metrics.Metrics, opts Options) *Cache {
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = defaultRetryAfter
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}
	return &Cache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		metrics:  m,
		clock:    clock,
		opts:     opts,
	}
}

// -----------------------------------------------------------------------------
// Generic contract
// -----------------------------------------------------------------------------

// Set stores value as JSON under key for ttl.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "cache.Set.marshal")
	}
	return c.do(ctx, "set", func(ctx context.Context, b Backend) error {
		return b.Set(ctx, key, raw, ttl)
	})
}

// Get decodes the value under key into dst and reports whether it was found.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	var raw []byte
	var found bool
	err := c.do(ctx, "get", func(ctx context.Context, b Backend) error {
		var err error
		raw, found, err = b.Get(ctx, key)
		return err
	})
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, errors.Wrap(err, "cache.Get.unmarshal")
	}
	return true, nil
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	return c.do(ctx, "del", func(ctx context.Context, b Backend) error {
		return b.Del(ctx, keys...)
	})
}

// ErrUnsupportedPattern is returned for key patterns using glob syntax other
// than '*', which the backends do not interpret alike.
var ErrUnsupportedPattern = errors.New("cache: only '*' wildcards are supported")

const globMeta = `?[]\`

func (c *Cache) Keys(ctx context.Context, pattern string) ([]string, error) {
	if strings.ContainsAny(pattern, globMeta) {
		return nil, ErrUnsupportedPattern
	}

	var keys []string
	err := c.do(ctx, "keys", func(ctx context.Context, b Backend) error {
		var err error
		keys, err = b.Keys(ctx, pattern)
		return err
	})
	return keys, err
}

// -----------------------------------------------------------------------------
// Presence and typing helpers
// -----------------------------------------------------------------------------

func (c *Cache) SetPresence(ctx context.Context, userID, status string) error {
	p := model.Presence{Status: status, LastSeen: c.clock.Now().UTC()}
	return c.Set(ctx, presencePrefix+userID, p, PresenceTTL)
}

// GetPresence reports offline with found=false when no fresh entry exists.
func (c *Cache) GetPresence(ctx context.Context, userID string) (model.Presence, bool) {
	var p model.Presence
	found, err := c.Get(ctx, presencePrefix+userID, &p)
	if err != nil {
		c.logger.Warn("presence lookup failed", zap.String("userId", userID), zap.Error(err))
	}
	if !found || err != nil {
		return model.Presence{Status: model.PresenceOffline}, false
	}
	return p, true
}

func (c *Cache) SetTyping(ctx context.Context, conversationID, userID string) error {
	return c.Set(ctx, typingKey(conversationID, userID), true, TypingTTL)
}

func (c *Cache) ClearTyping(ctx context.Context, conversationID, userID string) error {
	return c.Del(ctx, typingKey(conversationID, userID))
}

// GetTyping returns the users currently typing in a conversation.
func (c *Cache) GetTyping(ctx context.Context, conversationID string) ([]string, error) {
	prefix := typingPrefix + conversationID + ":"
	keys, err := c.Keys(ctx, starPattern(prefix)+"*")
	if err != nil {
		return nil, err
	}

	users := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			users = append(users, strings.TrimPrefix(k, prefix))
		}
	}
	return users, nil
}

// starPattern widens glob metacharacters in a literal to '*'; callers filter
// the matches by the exact literal afterwards.
func starPattern(literal string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(globMeta, r) {
			return '*'
		}
		return r
	}, literal)
}

func typingKey(conversationID, userID string) string {
	return typingPrefix + conversationID + ":" + userID
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// Backend names the store currently serving calls.
func (c *Cache) Backend() string {
	if c.primary == nil {
		return "memory"
	}
	if c.Degraded() {
		return "memory-fallback"
	}
	return "redis"
}

// Degraded reports whether the last primary call failed.
func (c *Cache) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Ping probes the primary directly. It is used by health checks only.
func (c *Cache) Ping(ctx context.Context) error {
	if c.primary == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()

	err := c.primary.Ping(ctx)
	if err == nil {
		c.markUp()
	}
	return err
}

func (c *Cache) Close() error {
	var firstErr error
	if c.primary != nil {
		firstErr = c.primary.Close()
	}
	if err := c.fallback.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (c *Cache) do(ctx context.Context, op string, fn func(context.Context, Backend) error) error {
	if c.primary != nil && c.primaryAllowed() {
		pctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
		err := fn(pctx, c.primary)
		cancel()
		if err == nil {
			c.markUp()
			return nil
		}
		c.markDown(op, err)
	}

	if c.primary != nil {
		c.metrics.CacheFallbacks.Inc()
	}
	return fn(ctx, c.fallback)
}

func (c *Cache) primaryAllowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.clock.Now().Before(c.downUntil)
}

func (c *Cache) markDown(op string, err error) {
	c.mu.Lock()
	wasDegraded := c.degraded
	c.degraded = true
	c.downUntil = c.clock.Now().Add(c.opts.RetryAfter)
	c.mu.Unlock()

	if !wasDegraded {
		c.logger.Warn("cache primary unavailable, serving from in-process fallback",
			zap.String("op", op),
			zap.Duration("retry_after", c.opts.RetryAfter),
			zap.Error(err),
		)
	}
}

func (c *Cache) markUp() {
	c.mu.Lock()
	wasDegraded := c.degraded
	c.degraded = false
	c.downUntil = time.Time{}
	c.mu.Unlock()

	if wasDegraded {
		c.logger.Info("cache primary recovered")
	}
}
