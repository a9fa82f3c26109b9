// Package ratelimit throttles delivery attempts per webhook with token buckets.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter keeps one token bucket per webhook. The bucket size equals the
// per-second rate, so a webhook may burst up to one second of traffic.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens    float64
	lastFill  time.Time
	rateLimit float64 // tokens per second
}

// New creates a new rate limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
	}
}

// Allow takes a token for webhookID if one is available.
// A rateLimit of 0 means unlimited (always returns true).
func (l *Limiter) Allow(webhookID string, rateLimit int) bool {
	if rateLimit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getOrCreateBucket(webhookID, float64(rateLimit))
	b.refill()

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until the rate limit allows the request or the context is cancelled.
// A rateLimit of 0 means unlimited (returns immediately).
func (l *Limiter) Wait(ctx context.Context, webhookID string, rateLimit int) error {
	if rateLimit <= 0 {
		return nil
	}

	for {
		if l.Allow(webhookID, rateLimit) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(float64(time.Second) / float64(rateLimit))):
		}
	}
}

// Reset drops the bucket of webhookID, for example after its rate changed.
func (l *Limiter) Reset(webhookID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, webhookID)
}

func (l *Limiter) getOrCreateBucket(webhookID string, rateLimit float64) *bucket {
	b, ok := l.buckets[webhookID]
	if ok && b.rateLimit != rateLimit {
		b.rateLimit = rateLimit
		b.tokens = min(b.tokens, rateLimit)
	}
	if !ok {
		b = &bucket{
			tokens:    rateLimit,
			lastFill:  time.Now(),
			rateLimit: rateLimit,
		}
		l.buckets[webhookID] = b
	}
	return b
}

func (b *bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * b.rateLimit
	if b.tokens > b.rateLimit {
		b.tokens = b.rateLimit
	}
	b.lastFill = now
}
