// Package ratelimit provides a deterministic token bucket used to cap
// per-connection signaling message rates.
package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time.Now so limiter behavior is testable without sleeping.
type Clock interface {
	Now() time.Time
}

// RealClock is the Clock used in production.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// TokenBucket refills at an integer rate (tokens/sec) up to a fixed capacity.
//
// It uses fixed-point nano-tokens (1 token = 1e9 nano-tokens) so refill math
// stays exact: a rate of N tokens/sec adds N nano-tokens per elapsed
// nanosecond.
type TokenBucket struct {
	mu sync.Mutex

	clock    Clock
	capacity int64 // tokens
	rate     int64 // tokens/sec

	available int64 // nano-tokens
	last      time.Time
}

const nanoPerToken = int64(time.Second)

// NewTokenBucket returns a full bucket. A nil clock means RealClock. Rates
// and capacities <= 0 produce a bucket that only ever admits zero-cost calls.
func NewTokenBucket(clock Clock, capacity, rate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacity < 0 {
		capacity = 0
	}
	if rate < 0 {
		rate = 0
	}
	return &TokenBucket{
		clock:     clock,
		capacity:  capacity,
		rate:      rate,
		available: capacity * nanoPerToken,
		last:      clock.Now(),
	}
}

// Allow consumes n tokens if available. n <= 0 always succeeds.
func (b *TokenBucket) Allow(n int64) bool {
	if n <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	cost := n * nanoPerToken
	if cost/nanoPerToken != n || b.available < cost {
		return false
	}
	b.available -= cost
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	if now.Before(b.last) {
		// Clock went backwards; re-anchor without refilling.
		b.last = now
		return
	}
	elapsed := now.Sub(b.last).Nanoseconds()
	b.last = now

	if elapsed <= 0 || b.rate <= 0 || b.capacity <= 0 {
		return
	}

	max := b.capacity * nanoPerToken
	need := max - b.available
	if need <= 0 {
		b.available = max
		return
	}
	// Clamp before multiplying so elapsed*rate cannot overflow.
	if elapsed >= need/b.rate+1 {
		b.available = max
		return
	}
	b.available += elapsed * b.rate
	if b.available > max {
		b.available = max
	}
}
