package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory(t *testing.T, policy Policy) *Memory {
	t.Helper()
	limiter, err := NewMemory(policy)
	require.NoError(t, err)
	t.Cleanup(limiter.Close)
	return limiter
}

func TestMemoryCapacityPlusOne(t *testing.T) {
	limiter := newTestMemory(t, Policy{Capacity: 5, Window: time.Minute})

	ctx := context.Background()
	denied := 0
	for i := 0; i < 6; i++ {
		decision, err := limiter.Allow(ctx, "bucket", 1)
		require.NoError(t, err)
		if !decision.Allowed {
			denied++
			assert.Greater(t, decision.RetryAfter, time.Duration(0))
		} else if i == 4 {
			// The capacity-th request still succeeds.
			assert.True(t, decision.Allowed)
		}
	}
	assert.Equal(t, 1, denied)
}

func TestMemoryIndependentBuckets(t *testing.T) {
	limiter := newTestMemory(t, Policy{Capacity: 1, Window: time.Minute})

	ctx := context.Background()

	first, err := limiter.Allow(ctx, "a", 1)
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	second, err := limiter.Allow(ctx, "b", 1)
	require.NoError(t, err)
	assert.True(t, second.Allowed)

	third, err := limiter.Allow(ctx, "a", 1)
	require.NoError(t, err)
	assert.False(t, third.Allowed)
}

func TestMemoryRefill(t *testing.T) {
	limiter := newTestMemory(t, Policy{Capacity: 10, Window: 100 * time.Millisecond})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		decision, err := limiter.Allow(ctx, "bucket", 1)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	decision, err := limiter.Allow(ctx, "bucket", 1)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	time.Sleep(150 * time.Millisecond)

	decision, err = limiter.Allow(ctx, "bucket", 1)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestMemoryConcurrentNoOverConsumption(t *testing.T) {
	const capacity = 100
	limiter := newTestMemory(t, Policy{Capacity: capacity, Window: time.Hour})

	ctx := context.Background()
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < capacity*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := limiter.Allow(ctx, "bucket", 1)
			if err == nil && decision.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	// No lost updates and no double consumption: exactly capacity
	// requests got through (the window is far longer than the test).
	assert.Equal(t, int64(capacity), allowed.Load())
}

func TestMemoryCloseStopsSweeperOnly(t *testing.T) {
	limiter, err := NewMemory(Policy{Capacity: 2, Window: time.Minute})
	require.NoError(t, err)

	ctx := context.Background()
	decision, err := limiter.Allow(ctx, "bucket", 1)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	limiter.Close()
	limiter.Close() // idempotent

	// The limiter keeps serving after Close; only the background
	// sweeper is gone.
	decision, err = limiter.Allow(ctx, "bucket", 1)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = limiter.Allow(ctx, "bucket", 1)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}
