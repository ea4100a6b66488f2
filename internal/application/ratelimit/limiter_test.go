package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizflow/vizflow/internal/infrastructure/logger"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "vizflow", logger.Default())
}

func TestAllow_PermitsWithinLimit(t *testing.T) {
	limiter := newTestLimiter(t)
	limit := 3

	for i := 0; i < limit; i++ {
		res := limiter.Allow(context.Background(), "key-1", &limit)
		assert.True(t, res.Allowed)
	}
}

func TestAllow_DeniesOverLimit(t *testing.T) {
	limiter := newTestLimiter(t)
	limit := 2

	for i := 0; i < limit; i++ {
		res := limiter.Allow(context.Background(), "key-1", &limit)
		require.True(t, res.Allowed)
	}

	res := limiter.Allow(context.Background(), "key-1", &limit)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestAllow_DefaultLimitAppliesWhenUnset(t *testing.T) {
	limiter := newTestLimiter(t)

	for i := 0; i < DefaultLimit; i++ {
		res := limiter.Allow(context.Background(), "key-2", nil)
		require.True(t, res.Allowed)
	}
	res := limiter.Allow(context.Background(), "key-2", nil)
	assert.False(t, res.Allowed)
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	limiter := newTestLimiter(t)
	limit := 1

	res1 := limiter.Allow(context.Background(), "key-a", &limit)
	res2 := limiter.Allow(context.Background(), "key-b", &limit)
	assert.True(t, res1.Allowed)
	assert.True(t, res2.Allowed)
}

func TestAllow_FailsOpenOnRedisError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	limiter := New(client, "vizflow", logger.Default())

	mr.Close()

	limit := 1
	res := limiter.Allow(context.Background(), "key-1", &limit)
	assert.True(t, res.Allowed, "redis outage must fail open")
}
