// ABOUTME: Redis-like cache backend using a pooled client with server-side TTL
// ABOUTME: Key is key_prefix + fingerprint; stored value is the engine's canonical JSON serialization

package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loomrun/loom/pkg/types"
)

// RedisConfig carries the §6 recognised redis backend options.
type RedisConfig struct {
	Host           string
	Port           int
	DB             int
	Password       string
	DefaultTTL     time.Duration
	KeyPrefix      string
	MaxConnections int
}

// Redis is the Redis-like cache backend of spec.md §4.4/§6.
type Redis struct {
	client     *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
	hits       int64
	misses     int64
	puts       int64
}

// NewRedis creates a Redis backend from cfg. addr is injectable so tests can
// point at a miniredis instance instead of a real server.
func NewRedis(addr string, cfg RedisConfig) *Redis {
	poolSize := cfg.MaxConnections
	if poolSize <= 0 {
		poolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       cfg.DB,
		Password: cfg.Password,
		PoolSize: poolSize,
	})
	return &Redis{client: client, keyPrefix: cfg.KeyPrefix, defaultTTL: cfg.DefaultTTL}
}

func (r *Redis) fullKey(key string) string { return r.keyPrefix + key }

func (r *Redis) Get(key string) (Entry, bool, error) {
	ctx := context.Background()
	raw, err := r.client.Get(ctx, r.fullKey(key)).Bytes()
	if err == redis.Nil {
		atomic.AddInt64(&r.misses, 1)
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, types.NewCacheBackendError("redis", "get", err)
	}

	var native interface{}
	if err := json.Unmarshal(raw, &native); err != nil {
		return Entry{}, false, types.NewCacheBackendError("redis", "get", err)
	}

	atomic.AddInt64(&r.hits, 1)
	return Entry{Value: types.FromNative(native), CreatedAt: time.Now()}, true, nil
}

func (r *Redis) Put(key string, value types.Value, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	raw, err := json.Marshal(value.Native())
	if err != nil {
		return types.NewCacheBackendError("redis", "put", err)
	}

	ctx := context.Background()
	if err := r.client.Set(ctx, r.fullKey(key), raw, ttl).Err(); err != nil {
		return types.NewCacheBackendError("redis", "put", err)
	}
	atomic.AddInt64(&r.puts, 1)
	return nil
}

func (r *Redis) Invalidate(key string) error {
	ctx := context.Background()
	if err := r.client.Del(ctx, r.fullKey(key)).Err(); err != nil {
		return types.NewCacheBackendError("redis", "invalidate", err)
	}
	return nil
}

func (r *Redis) Clear() error {
	ctx := context.Background()
	keys, err := r.client.Keys(ctx, r.keyPrefix+"*").Result()
	if err != nil {
		return types.NewCacheBackendError("redis", "clear", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return types.NewCacheBackendError("redis", "clear", err)
	}
	return nil
}

// CleanupExpired is a no-op: Redis expires keys server-side.
func (r *Redis) CleanupExpired() (int, error) { return 0, nil }

func (r *Redis) Stats() Stats {
	ctx := context.Background()
	size := 0
	if keys, err := r.client.Keys(ctx, r.keyPrefix+"*").Result(); err == nil {
		size = len(keys)
	}
	return Stats{
		Hits:    atomic.LoadInt64(&r.hits),
		Misses:  atomic.LoadInt64(&r.misses),
		Puts:    atomic.LoadInt64(&r.puts),
		Size:    size,
		Backend: "redis",
	}
}

func (r *Redis) Close() error { return r.client.Close() }
