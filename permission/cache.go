package permission

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how long a cached decision may be served.
const DefaultCacheTTL = 5 * time.Minute

// Entry is the result of a cache lookup. Stamp identifies the cache state the
// lookup observed; Set writes under that state so a decision computed before
// an invalidation can never be served after it.
type Entry struct {
	UserID  string
	Key     Key
	Hit     bool
	Allowed bool
	Stamp   string
}

// Cache stores authorization decisions.
type Cache interface {
	Get(ctx context.Context, userID string, key Key) (Entry, error)
	Set(ctx context.Context, entry Entry, allowed bool) error
	InvalidateUsers(ctx context.Context, userIDs ...string) error
	InvalidateAll(ctx context.Context) error
}

// NopCache caches nothing.
type NopCache struct{}

func (NopCache) Get(_ context.Context, userID string, key Key) (Entry, error) {
	return Entry{UserID: userID, Key: key}, nil
}

func (NopCache) Set(context.Context, Entry, bool) error { return nil }

func (NopCache) InvalidateUsers(context.Context, ...string) error { return nil }

func (NopCache) InvalidateAll(context.Context) error { return nil }

// RedisCacheConfig configures [NewRedisCache].
type RedisCacheConfig struct {
	Prefix string
	TTL    time.Duration
}

// RedisCache is a generation-stamped decision cache shared across instances.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache returns a cache over client. Empty fields select "authcore"
// and [DefaultCacheTTL].
func NewRedisCache(client redis.UniversalClient, cfg RedisCacheConfig) *RedisCache {
	if cfg.Prefix == "" {
		cfg.Prefix = "authcore"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	return &RedisCache{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}
}

func (c *RedisCache) Get(ctx context.Context, userID string, key Key) (Entry, error) {
	entry := Entry{UserID: userID, Key: key}

	gens, err := c.client.MGet(ctx, c.globalGenKey(), c.userGenKey(userID)).Result()
	if err != nil {
		return entry, fmt.Errorf("permission cache: read generations: %w", err)
	}
	entry.Stamp = generation(gens[0]) + ":" + generation(gens[1])

	v, err := c.client.Get(ctx, c.entryKey(entry)).Result()
	if errors.Is(err, redis.Nil) {
		return entry, nil
	}
	if err != nil {
		return entry, fmt.Errorf("permission cache: get: %w", err)
	}
	entry.Hit = true
	entry.Allowed = v == "1"
	return entry, nil
}

func (c *RedisCache) Set(ctx context.Context, entry Entry, allowed bool) error {
	if entry.Stamp == "" {
		return nil
	}
	v := "0"
	if allowed {
		v = "1"
	}
	if err := c.client.Set(ctx, c.entryKey(entry), v, c.ttl).Err(); err != nil {
		return fmt.Errorf("permission cache: set: %w", err)
	}
	return nil
}

func (c *RedisCache) InvalidateUsers(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, id := range userIDs {
		pipe.Incr(ctx, c.userGenKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("permission cache: invalidate users: %w", err)
	}
	return nil
}

func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.globalGenKey()).Err(); err != nil {
		return fmt.Errorf("permission cache: invalidate all: %w", err)
	}
	return nil
}

func (c *RedisCache) globalGenKey() string {
	return c.prefix + ":perm:gen"
}

func (c *RedisCache) userGenKey(userID string) string {
	return c.prefix + ":perm:gen:" + userID
}

func (c *RedisCache) entryKey(e Entry) string {
	return c.prefix + ":perm:" + e.Stamp + ":" + e.UserID + ":" + e.Key.String()
}

func generation(v interface{}) string {
	switch g := v.(type) {
	case string:
		return g
	case int64:
		return strconv.FormatInt(g, 10)
	default:
		return "0"
	}
}
