// Package ratelimit implements the embed path's fixed-window rate
// limiter: a counter keyed by API-key hash × window timestamp,
// incremented per request, with the window TTL set on the first
// increment of each window. Grounded on the teacher's
// internal/infrastructure/api/rest/middleware_ratelimit_redis.go (Redis
// INCR-then-EXPIRE-on-first-hit shape; adapted here from a sliding
// block/count pair to the spec's single fixed-window counter keyed by
// timestamp bucket) for the fail-open discipline on Redis error.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vizflow/vizflow/internal/infrastructure/logger"
)

// DefaultLimit applies when an API key has no configured rate_limit
// (spec.md §5 "Effective limit is per-key if set, else a default").
const DefaultLimit = 60

// Window is the fixed-window bucket width.
const Window = time.Minute

// Limiter enforces a per-key, per-window request quota.
type Limiter struct {
	client    *redis.Client
	namespace string
	log       *logger.Logger
}

// New constructs a Limiter.
func New(client *redis.Client, namespace string, log *logger.Logger) *Limiter {
	return &Limiter{client: client, namespace: namespace, log: log}
}

// Result reports the outcome of an Allow check.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Allow increments keyHash's counter for the current window and reports
// whether the request is within effectiveLimit. On Redis error it fails
// open — logs and permits — per spec.md §5 "a bus outage does not take
// down embedded widgets".
func (l *Limiter) Allow(ctx context.Context, keyHash string, effectiveLimit *int) Result {
	limit := DefaultLimit
	if effectiveLimit != nil && *effectiveLimit > 0 {
		limit = *effectiveLimit
	}

	windowTS := time.Now().Unix() / int64(Window.Seconds())
	key := l.namespace + ":ratelimit:" + keyHash + ":" + strconv.FormatInt(windowTS, 10)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.log.WarnContext(ctx, "rate limiter redis incr failed, failing open", "key", key, "error", err)
		return Result{Allowed: true}
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, Window+time.Second).Err(); err != nil {
			l.log.WarnContext(ctx, "rate limiter expire failed, failing open", "key", key, "error", err)
		}
	}

	if int(count) > limit {
		windowEnd := time.Unix((windowTS+1)*int64(Window.Seconds()), 0)
		return Result{Allowed: false, RetryAfter: time.Until(windowEnd)}
	}
	return Result{Allowed: true}
}
