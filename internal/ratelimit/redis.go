package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisKeyPrefix = "signet:ratelimit:"

	// Transient store errors are retried a bounded number of times
	// before surfacing; the security path must not hang on redis.
	redisRetries    = 2
	redisRetryDelay = 25 * time.Millisecond
)

// Redis is a fixed-window limiter shared across instances. Consumption
// is a single atomic INCRBY, so concurrent callers against the same
// bucket cannot lose updates or double-consume.
type Redis struct {
	client *redis.Client
	policy Policy
	logger *zap.Logger
}

func NewRedis(client *redis.Client, policy Policy, logger *zap.Logger) (*Redis, error) {
	if !policy.valid() {
		return nil, fmt.Errorf("ratelimit: invalid policy %+v", policy)
	}
	return &Redis{
		client: client,
		policy: policy,
		logger: logger.Named("RedisLimiter"),
	}, nil
}

func (r *Redis) Allow(ctx context.Context, bucket string, cost int) (Decision, error) {
	if cost <= 0 {
		cost = 1
	}

	var (
		decision Decision
		err      error
	)
	for attempt := 0; attempt <= redisRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Decision{}, ctx.Err()
			case <-time.After(redisRetryDelay):
			}
		}
		decision, err = r.allow(ctx, bucket, cost)
		if err == nil {
			return decision, nil
		}
		r.logger.Warn("Rate limit store error, retrying",
			zap.String("bucket", bucket),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return Decision{}, fmt.Errorf("rate limit store unavailable: %w", err)
}

func (r *Redis) allow(ctx context.Context, bucket string, cost int) (Decision, error) {
	key := redisKeyPrefix + bucket

	pipe := r.client.TxPipeline()
	count := pipe.IncrBy(ctx, key, int64(cost))
	// NX keeps the window anchored to the first hit; later hits in the
	// same window must not push the reset forward.
	pipe.ExpireNX(ctx, key, r.policy.Window)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}

	used := count.Val()
	if used <= int64(r.policy.Capacity) {
		return Decision{Allowed: true, Remaining: int(int64(r.policy.Capacity) - used)}, nil
	}

	wait := ttl.Val()
	if wait < 0 {
		wait = r.policy.Window
	}
	return Decision{Allowed: false, RetryAfter: wait}, nil
}
