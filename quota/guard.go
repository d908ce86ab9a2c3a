// Package quota implements the two abuse-prevention mechanisms consulted by
// every mutating endpoint: per-identity request rate windows and free-tier
// daily resource quotas. Counters live only in Redis; a flush silently resets
// them, which is the documented tradeoff for keeping them off the system of
// record.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Resource names with free-tier quotas.
const ResourceLetters = "letters"

// Decision carries structured metadata for the caller, not just a boolean, so
// the UI can render "X of Y used". A rejection is a recoverable 429-style
// condition, never fatal.
type Decision struct {
	Allowed       bool   `json:"allowed"`
	Resource      string `json:"resource"`
	Limit         int    `json:"limit"`
	Used          int    `json:"used"`
	Remaining     int    `json:"remaining"`
	RetryAfterSec int    `json:"retry_after_sec,omitempty"`
}

// Guard evaluates rate windows and resource quotas against Redis. All checks
// are increment-then-compare on a single key, never read-then-write, so two
// concurrent requests cannot both pass the boundary.
type Guard struct {
	rdb *redis.Client
	now func() time.Time
}

// NewGuard creates a Guard. rdb may be nil; everything then fails open.
func NewGuard(rdb *redis.Client) *Guard {
	return &Guard{rdb: rdb, now: time.Now}
}

// NewGuardWithClock creates a Guard with an injectable clock. Tests only.
func NewGuardWithClock(rdb *redis.Client, now func() time.Time) *Guard {
	return &Guard{rdb: rdb, now: now}
}

// EvaluateQuota checks and consumes one unit of a free-tier daily resource
// quota. Premium users bypass the quota entirely. Redis unavailability fails
// open: the product stays functional, quotas are best-effort.
func (g *Guard) EvaluateQuota(ctx context.Context, userID uint, resource string, limit int, premium bool) Decision {
	if premium || limit <= 0 {
		return Decision{Allowed: true, Resource: resource, Limit: limit, Remaining: limit}
	}
	day := g.now().UTC()
	key := QuotaKey(userID, resource, day)
	count, ok := g.bump(ctx, key, untilNextUTCDay(day))
	if !ok {
		return Decision{Allowed: true, Resource: resource, Limit: limit, Remaining: limit}
	}
	return decide(resource, limit, count, untilNextUTCDay(day))
}

// CheckRate checks and consumes one request slot in the fixed window for
// (routeClass, identity). Identity is a user id or client IP.
func (g *Guard) CheckRate(ctx context.Context, identity, routeClass string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		return Decision{Allowed: true, Resource: routeClass, Limit: limit, Remaining: limit}
	}
	now := g.now().UTC()
	key := RateKey(identity, routeClass, now, window)
	remainder := window - time.Duration(now.UnixNano())%window
	count, ok := g.bump(ctx, key, remainder)
	if !ok {
		return Decision{Allowed: true, Resource: routeClass, Limit: limit, Remaining: limit}
	}
	return decide(routeClass, limit, count, remainder)
}

// QuotaKey builds the daily quota key for (userID, resource).
func QuotaKey(userID uint, resource string, day time.Time) string {
	return fmt.Sprintf("quota:%s:%d:%s", resource, userID, day.UTC().Format("20060102"))
}

// RateKey buckets time into fixed windows so increments on the same key are
// naturally scoped to one window.
func RateKey(identity, routeClass string, now time.Time, window time.Duration) string {
	bucket := now.UnixNano() / int64(window)
	return fmt.Sprintf("rate:%s:%s:%d", routeClass, identity, bucket)
}

// bump atomically increments the counter and arms its TTL on first use.
// Returns (count, false) when Redis is unreachable.
func (g *Guard) bump(ctx context.Context, key string, ttl time.Duration) (int, bool) {
	if g.rdb == nil {
		return 0, false
	}
	opCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	n, err := g.rdb.Incr(opCtx, key).Result()
	if err != nil {
		return 0, false
	}
	if n == 1 {
		_ = g.rdb.Expire(opCtx, key, ttl).Err()
	}
	return int(n), true
}

func decide(resource string, limit, count int, retryAfter time.Duration) Decision {
	d := Decision{
		Resource: resource,
		Limit:    limit,
		Used:     count,
		Allowed:  count <= limit,
	}
	if d.Used > limit {
		d.Used = limit
	}
	d.Remaining = limit - d.Used
	if !d.Allowed {
		d.RetryAfterSec = int(retryAfter/time.Second) + 1
	}
	return d
}

func untilNextUTCDay(now time.Time) time.Duration {
	next := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	return next.Sub(now)
}
