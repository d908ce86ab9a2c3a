package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL = time.Hour
	cacheOpTimeout  = 2 * time.Second
)

// Cache key builders. Every mutation that changes profile-visible data must
// delete these keys before reporting success.
const LeaderboardCachePrefix = "leaderboard"

func ProfileCacheKey(userID uint) string { return fmt.Sprintf("profile:%d", userID) }
func StreakCacheKey(userID uint) string  { return fmt.Sprintf("streak:%d", userID) }
func QuestsCacheKey(userID uint, date string) string {
	return fmt.Sprintf("quests:%d:%s", userID, date)
}

// flight is one in-progress recomputation shared by coalesced waiters.
type flight struct {
	done chan struct{}
	val  []byte
	err  error
}

// Cache is a read-through, write-invalidate layer over Redis. It fails open:
// with no Redis client, or a Redis that errors, every read is a miss and every
// write is a silent no-op, so callers always fall back to the system of record.
type Cache struct {
	rdb *redis.Client

	mu     sync.Mutex
	flight map[string]*flight
}

// NewCache wraps the given client. rdb may be nil; the cache then degrades to
// pure pass-through while still coalescing concurrent recomputes in-process.
func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb, flight: make(map[string]*flight)}
}

// GetJSON loads a cached value into dest. Returns false on miss or any error.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	b, ok := c.getBytes(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, dest); err != nil {
		if Sugar != nil {
			Sugar.Warnf("cache decode failed key=%s err=%v", key, err)
		}
		return false
	}
	return true
}

// SetJSON marshals v and stores it with the given TTL. Best effort.
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.setBytes(ctx, key, b, ttl)
}

// GetOrSetJSON returns the cached value for key, or runs compute exactly once
// for all concurrent callers of the same key, caches the result and unmarshals
// it into dest. A failed compute is shared with the waiters and is not cached,
// so a transient error does not poison the key for its TTL.
func (c *Cache) GetOrSetJSON(ctx context.Context, key string, ttl time.Duration, dest interface{}, compute func(ctx context.Context) (interface{}, error)) error {
	if b, ok := c.getBytes(ctx, key); ok {
		if err := json.Unmarshal(b, dest); err == nil {
			return nil
		}
		// Corrupt entry: fall through to recompute.
	}

	c.mu.Lock()
	if f, ok := c.flight[key]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
		case <-ctx.Done():
			// The in-flight compute keeps running and will still populate the
			// cache for the next caller; this waiter just stops waiting.
			return ctx.Err()
		}
		if f.err != nil {
			return f.err
		}
		return json.Unmarshal(f.val, dest)
	}
	f := &flight{done: make(chan struct{})}
	c.flight[key] = f
	c.mu.Unlock()

	v, err := compute(ctx)
	if err == nil {
		f.val, err = json.Marshal(v)
	}
	f.err = err

	// Clear the flight entry before settling waiters, on failure too.
	c.mu.Lock()
	delete(c.flight, key)
	c.mu.Unlock()
	close(f.done)

	if f.err != nil {
		return f.err
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	// Populate even if the initiating request has gone away.
	c.setBytes(context.Background(), key, f.val, ttl)
	return json.Unmarshal(f.val, dest)
}

// Delete removes the given keys. Best effort; Redis loss means the next read
// misses and recomputes, which is the safe direction.
func (c *Cache) Delete(keys ...string) {
	if c.rdb == nil || len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		if Sugar != nil {
			Sugar.Warnf("cache delete failed keys=%v err=%v", keys, err)
		}
	}
}

// DeleteByPattern removes keys matching prefix* using SCAN. Reserved for data
// with no natural per-entity key (leaderboards, feeds); it can evict unrelated
// entries under load, which is acceptable for correctness but not for hit rate.
func (c *Cache) DeleteByPattern(prefix string) {
	if c.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var cursor uint64
	for i := 0; i < 10; i++ { // bound rounds to avoid long loops
		keys, cur, err := c.rdb.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			return
		}
		cursor = cur
		if len(keys) > 0 {
			pipe := c.rdb.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			_, _ = pipe.Exec(ctx)
		}
		if cursor == 0 {
			return
		}
	}
}

func (c *Cache) getBytes(ctx context.Context, key string) ([]byte, bool) {
	if c.rdb == nil {
		return nil, false
	}
	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	b, err := c.rdb.Get(opCtx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (c *Cache) setBytes(ctx context.Context, key string, b []byte, ttl time.Duration) {
	if c.rdb == nil {
		return
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := c.rdb.Set(opCtx, key, b, ttl).Err(); err != nil {
		if Sugar != nil {
			Sugar.Warnf("cache set failed key=%s err=%v", key, err)
		}
	}
}
