package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

const refillWindow = 60 * time.Second

// TokenBucket bounds outbound calls to one marketplace provider.
// capacity is the number of calls allowed per 60 second window; tokens
// refill proportionally to elapsed time. All state lives in memory and
// is lost on restart, which is acceptable for a soft admission control.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	lastRefill time.Time

	// Overridable for tests.
	now func() time.Time
}

func NewTokenBucket(capacity int) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Acquire takes n tokens if available and reports whether it succeeded.
// It never blocks.
func (t *TokenBucket) Acquire(n int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refill()

	if t.tokens >= float64(n) {
		t.tokens -= float64(n)
		return true
	}

	return false
}

// WaitAndAcquire polls Acquire until n tokens are available, the timeout
// elapses, or ctx is cancelled. Between attempts it sleeps for the time
// until the next refill, clamped to [100ms, 1s] so it never busy-spins.
func (t *TokenBucket) WaitAndAcquire(ctx context.Context, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for {
		if t.Acquire(n) {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}

		sleep := t.timeToNextRefill(n)
		if sleep < 100*time.Millisecond {
			sleep = 100 * time.Millisecond
		}
		if sleep > time.Second {
			sleep = time.Second
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(sleep):
		}
	}
}

// Reset refills the bucket to capacity.
func (t *TokenBucket) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tokens = t.capacity
	t.lastRefill = t.now()
}

// Remaining returns the current token count after refill.
func (t *TokenBucket) Remaining() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refill()
	return t.tokens
}

// Capacity returns the calls-per-window bound.
func (t *TokenBucket) Capacity() int {
	return int(t.capacity)
}

// refill credits tokens for the time elapsed since lastRefill.
// Caller must hold t.mu.
func (t *TokenBucket) refill() {
	now := t.now()
	elapsed := now.Sub(t.lastRefill)

	if elapsed <= 0 {
		return
	}

	if elapsed >= refillWindow {
		t.tokens = t.capacity
	} else {
		added := t.capacity * elapsed.Seconds() / refillWindow.Seconds()
		t.tokens = math.Min(t.tokens+added, t.capacity)
	}

	t.lastRefill = now
}

// timeToNextRefill estimates how long until n tokens are available.
func (t *TokenBucket) timeToNextRefill(n int) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refill()

	missing := float64(n) - t.tokens
	if missing <= 0 {
		return 0
	}

	secs := missing * refillWindow.Seconds() / t.capacity
	return time.Duration(secs * float64(time.Second))
}
