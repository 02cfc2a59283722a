package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nimburion/crudkit/pkg/observability/metrics"
	"github.com/nimburion/crudkit/pkg/observability/tracing"
	redisstore "github.com/nimburion/crudkit/pkg/store/redis"
)

// Store is the subset of the Redis adapter the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	GetInt(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// RedisConfig configures a RedisPageCache.
type RedisConfig struct {
	// Prefix namespaces every key, default "crudkit".
	Prefix string
	// TTL bounds the life of an entry, default one minute.
	TTL time.Duration
}

// RedisPageCache stores JSON-encoded pages in Redis under
// "<prefix>:<collection>:v<generation>:<fingerprint>". Invalidate bumps the
// generation counter, orphaning older entries until their TTL expires.
type RedisPageCache struct {
	store  Store
	prefix string
	ttl    time.Duration
}

var _ PageCache = (*RedisPageCache)(nil)

// NewRedisPageCache creates a cache over a Redis adapter.
func NewRedisPageCache(store Store, cfg RedisConfig) *RedisPageCache {
	if cfg.Prefix == "" {
		cfg.Prefix = "crudkit"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	return &RedisPageCache{store: store, prefix: cfg.Prefix, ttl: cfg.TTL}
}

// Get implements PageCache. The generation is read once, so the returned
// slot stays behind any invalidation that happens after the lookup.
func (c *RedisPageCache) Get(ctx context.Context, collection string, key any, dest any) (slot Slot, err error) {
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheGet, tracing.WithCacheSystem("redis"))
	defer func() {
		result := metrics.CacheHit
		switch {
		case errors.Is(err, ErrMiss):
			result = metrics.CacheMiss
		case err != nil:
			result = metrics.CacheError
		}
		metrics.RecordCacheLookup(collection, result)
		if errors.Is(err, ErrMiss) {
			tracing.End(span, nil)
		} else {
			tracing.End(span, err)
		}
	}()

	k, err := c.key(ctx, collection, key)
	if err != nil {
		return Slot{}, err
	}
	slot = Slot{Collection: collection, Key: k}
	raw, err := c.store.Get(ctx, k)
	if errors.Is(err, redisstore.ErrKeyNotFound) {
		return slot, ErrMiss
	}
	if err != nil {
		return Slot{}, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return Slot{}, fmt.Errorf("failed to decode cached page: %w", err)
	}
	return slot, nil
}

// Set implements PageCache.
func (c *RedisPageCache) Set(ctx context.Context, slot Slot, value any) (err error) {
	if slot.IsZero() {
		return nil
	}
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheSet, tracing.WithCacheSystem("redis"))
	defer func() { tracing.End(span, err) }()

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode page: %w", err)
	}
	return c.store.SetWithTTL(ctx, slot.Key, raw, c.ttl)
}

// Invalidate implements PageCache.
func (c *RedisPageCache) Invalidate(ctx context.Context, collection string) (err error) {
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheInvalidate, tracing.WithCacheSystem("redis"))
	defer func() { tracing.End(span, err) }()

	_, err = c.store.Incr(ctx, c.generationKey(collection))
	return err
}

func (c *RedisPageCache) key(ctx context.Context, collection string, key any) (string, error) {
	gen, err := c.store.GetInt(ctx, c.generationKey(collection))
	if err != nil {
		return "", err
	}
	fp, err := Fingerprint(key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s:v%d:%s", c.prefix, collection, gen, fp), nil
}

func (c *RedisPageCache) generationKey(collection string) string {
	return fmt.Sprintf("%s:%s:generation", c.prefix, collection)
}
