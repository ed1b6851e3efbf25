package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const idleBucketTTL = 10 * time.Minute

// Memory is a token-bucket limiter held entirely in process memory.
// Each bucket refills continuously at capacity/window and is dropped
// after sitting idle, so the map does not grow without bound.
type Memory struct {
	policy   Policy
	buckets  sync.Map // map[string]*bucket
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
}

func NewMemory(policy Policy) (*Memory, error) {
	if !policy.valid() {
		return nil, fmt.Errorf("ratelimit: invalid policy %+v", policy)
	}
	m := &Memory{policy: policy, now: time.Now, stop: make(chan struct{})}
	go m.cleanupLoop()
	return m, nil
}

// Close stops the idle-bucket sweeper. The limiter stays usable; only
// the background cleanup ends. Safe to call more than once.
func (m *Memory) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Memory) cleanupLoop() {
	ticker := time.NewTicker(idleBucketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		now := m.now()
		m.buckets.Range(func(key, value any) bool {
			b := value.(*bucket)
			b.mu.Lock()
			idle := now.Sub(b.lastAccess) > idleBucketTTL
			b.mu.Unlock()
			if idle {
				m.buckets.Delete(key)
			}
			return true
		})
	}
}

func (m *Memory) Allow(_ context.Context, key string, cost int) (Decision, error) {
	if cost <= 0 {
		cost = 1
	}
	now := m.now()

	val, _ := m.buckets.LoadOrStore(key, &bucket{
		tokens:     float64(m.policy.Capacity),
		lastRefill: now,
		lastAccess: now,
	})
	b := val.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastAccess = now

	refillRate := float64(m.policy.Capacity) / m.policy.Window.Seconds()
	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		b.tokens += elapsed.Seconds() * refillRate
		if b.tokens > float64(m.policy.Capacity) {
			b.tokens = float64(m.policy.Capacity)
		}
		b.lastRefill = now
	}

	if b.tokens >= float64(cost) {
		b.tokens -= float64(cost)
		return Decision{Allowed: true, Remaining: int(b.tokens)}, nil
	}

	deficit := float64(cost) - b.tokens
	wait := time.Duration(deficit / refillRate * float64(time.Second))
	return Decision{Allowed: false, Remaining: int(b.tokens), RetryAfter: wait}, nil
}
