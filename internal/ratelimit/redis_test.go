package ratelimit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Redis limiter tests run against a live instance when TEST_REDIS_ADDR
// is set (e.g. localhost:6379) and skip otherwise, the same opt-in
// shape as an integration suite.
func newTestRedis(t *testing.T, policy Policy) *Redis {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis limiter tests")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err(), "redis at %s is not reachable", addr)

	limiter, err := NewRedis(client, policy, zap.NewNop())
	require.NoError(t, err)
	return limiter
}

// testBucket returns a bucket name no other test run can collide with;
// the store is shared, so state must not leak between runs.
func testBucket(name string) string {
	return fmt.Sprintf("test:%s:%s", name, uuid.NewString())
}

func TestRedisCapacityPlusOne(t *testing.T) {
	limiter := newTestRedis(t, Policy{Capacity: 5, Window: time.Minute})

	ctx := context.Background()
	bucket := testBucket("capacity")

	for i := 0; i < 5; i++ {
		decision, err := limiter.Allow(ctx, bucket, 1)
		require.NoError(t, err)
		require.True(t, decision.Allowed, "request %d within capacity", i)
	}

	decision, err := limiter.Allow(ctx, bucket, 1)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	// RetryAfter comes from the key's PTTL: positive and bounded by
	// the window.
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, decision.RetryAfter, time.Minute)
}

func TestRedisIndependentBuckets(t *testing.T) {
	limiter := newTestRedis(t, Policy{Capacity: 1, Window: time.Minute})

	ctx := context.Background()
	a := testBucket("independent-a")
	b := testBucket("independent-b")

	first, err := limiter.Allow(ctx, a, 1)
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	second, err := limiter.Allow(ctx, b, 1)
	require.NoError(t, err)
	assert.True(t, second.Allowed)

	third, err := limiter.Allow(ctx, a, 1)
	require.NoError(t, err)
	assert.False(t, third.Allowed)
}

func TestRedisWindowReset(t *testing.T) {
	limiter := newTestRedis(t, Policy{Capacity: 2, Window: time.Second})

	ctx := context.Background()
	bucket := testBucket("reset")

	for i := 0; i < 2; i++ {
		decision, err := limiter.Allow(ctx, bucket, 1)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	decision, err := limiter.Allow(ctx, bucket, 1)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	time.Sleep(1100 * time.Millisecond)

	decision, err = limiter.Allow(ctx, bucket, 1)
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "a fresh window starts once the key expires")
}

func TestRedisUnavailableSurfacesError(t *testing.T) {
	if os.Getenv("TEST_REDIS_ADDR") == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis limiter tests")
	}

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewRedis(client, Policy{Capacity: 1, Window: time.Minute}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = limiter.Allow(ctx, testBucket("down"), 1)
	assert.Error(t, err, "store errors must surface, not silently allow")
}
