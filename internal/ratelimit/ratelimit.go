package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a single quota check.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long the caller should wait before the bucket
	// can satisfy the same cost again. Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter consumes quota from a named bucket. Implementations must be
// safe for concurrent use against the same bucket key: no lost updates,
// no double consumption.
type Limiter interface {
	Allow(ctx context.Context, bucket string, cost int) (Decision, error)
}

// Policy describes one bucket family: capacity tokens refilled in full
// every window.
type Policy struct {
	Capacity int
	Window   time.Duration
}

func (p Policy) valid() bool {
	return p.Capacity > 0 && p.Window > 0
}
