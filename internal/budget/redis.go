package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses redisURL and verifies connectivity, grounded on
// jobmate's internal/db.NewRedisClient.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// SpendCache is a latency optimization over Store.SumCreditsSince: it keeps
// a per-day running total in Redis so create-job doesn't hit Postgres on
// every call. Postgres's own rollup remains the source of truth — if Redis
// is unset or unreachable, the Guard falls back to the store directly.
type SpendCache struct {
	rdb *redis.Client
}

func NewSpendCache(rdb *redis.Client) *SpendCache {
	return &SpendCache{rdb: rdb}
}

func spendKey(t time.Time) string {
	return "budget:spent:" + t.UTC().Format("2006-01-02")
}

// Add increments today's cached credit total by creditsEstimate. Called at
// job creation time once the Guard has approved the job, so the cache
// reflects worst-case estimated spend (consistent with the guard's own
// pre-early-exit accounting) rather than lagging behind actual usage.
func (c *SpendCache) Add(ctx context.Context, credits int64) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	key := spendKey(time.Now())
	if err := c.rdb.IncrByFloat(ctx, key, float64(credits)).Err(); err != nil {
		return fmt.Errorf("redis INCRBYFLOAT %s: %w", key, err)
	}
	c.rdb.Expire(ctx, key, 48*time.Hour)
	return nil
}

// Get reads today's cached credit total. ok is false when the cache is
// unset, empty, or unreachable — callers should fall back to the store.
func (c *SpendCache) Get(ctx context.Context) (credits int64, ok bool) {
	if c == nil || c.rdb == nil {
		return 0, false
	}
	v, err := c.rdb.Get(ctx, spendKey(time.Now())).Float64()
	if err != nil {
		return 0, false
	}
	return int64(v), true
}
