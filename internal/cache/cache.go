// Package cache is a best-effort Redis cache-aside layer for loan reads
// and the statistics aggregate (spec §9 "Caching"). A miss or a Redis
// outage degrades to "go read Postgres" rather than failing the
// request — this cache is never the source of truth. The client setup
// follows the pack's Redis-from-URL pattern; the cache-aside shape
// (marshal-to-JSON, TTL per resource kind, single-key delete on
// invalidation) is this domain's own. Invalidation removes one loan's key
// or the statistics key; no key pattern is ever deleted.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache wraps a Redis client with typed get/set helpers. A nil *Cache
// (or one whose client is nil) behaves as an always-miss cache, so
// callers can run without Redis configured at all.
type Cache struct {
	client   *redis.Client
	loanTTL  time.Duration
	statsTTL time.Duration
}

// New parses redisURL and pings it once; a failure to connect is
// returned to the caller, who may choose to run without a cache rather
// than fail startup.
func New(ctx context.Context, redisURL string, dialTimeout time.Duration, loanTTL, statsTTL time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	opts.DialTimeout = dialTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}

	return &Cache{client: client, loanTTL: loanTTL, statsTTL: statsTTL}, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func loanKey(id string) string { return "loans:" + id }

const statsKey = "loans:statistics"

// GetLoan returns the cached JSON blob for a loan id, or (nil, false)
// on a miss or any Redis error.
func (c *Cache) GetLoan(ctx context.Context, id string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, loanKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetLoan caches a loan's JSON representation. Errors are swallowed —
// a failed cache write should never fail the request that produced the
// data it would have cached.
func (c *Cache) SetLoan(ctx context.Context, id string, data []byte) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Set(ctx, loanKey(id), data, c.loanTTL).Err()
}

// InvalidateLoan drops the cached entry for a loan, called after any
// write to that loan's row.
func (c *Cache) InvalidateLoan(ctx context.Context, id string) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, loanKey(id)).Err()
}

// GetStatistics returns the cached statistics blob, or (nil, false) on
// a miss.
func (c *Cache) GetStatistics(ctx context.Context) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, statsKey).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetStatistics caches the statistics blob.
func (c *Cache) SetStatistics(ctx context.Context, data []byte) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Set(ctx, statsKey, data, c.statsTTL).Err()
}

// InvalidateStatistics drops the cached statistics aggregate, called
// whenever a loan is created or changes status.
func (c *Cache) InvalidateStatistics(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, statsKey).Err()
}

// MarshalAndSetLoan is a convenience wrapper combining json.Marshal
// with SetLoan, swallowing marshal errors the same way a failed Redis
// write is swallowed.
func (c *Cache) MarshalAndSetLoan(ctx context.Context, id string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.SetLoan(ctx, id, data)
}
