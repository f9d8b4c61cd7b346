package cache

import (
	"context"
	"time"
)

// Backend is the TTL key-value contract shared by the primary store and the in-process fallback.
// A ttl <= 0 stores the key without expiry. Get reports a miss with found=false and a nil error.
type Backend interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Del(ctx context.Context, keys ...string) error
	// Keys returns every live key matching pattern, where '*' matches any run of
	// characters. Other glob syntax is rejected by Cache before reaching a backend.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
