package cache

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

// RedisBackend is the shared primary store. It does not retry; the Cache
// wrapper decides what to do when Redis is unreachable.
type RedisBackend struct {
	client redis.UniversalClient
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
		MaxRetries:   -1,
	})
}

func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return errors.Wrap(r.client.Set(ctx, key, value, ttl).Err(), "redis.Set")
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis.Get")
	}
	return value, true, nil
}

func (r *RedisBackend) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return errors.Wrap(r.client.Del(ctx, keys...).Err(), "redis.Del")
}

// Keys walks the keyspace with SCAN so large keyspaces never block the server.
func (r *RedisBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys := make([]string, 0)
	seen := make(map[string]struct{})
	iter := r.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "redis.Keys")
	}

	sort.Strings(keys)
	return keys, nil
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return errors.Wrap(r.client.Ping(ctx).Err(), "redis.Ping")
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
