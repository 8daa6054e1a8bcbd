package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// SimpleRateLimiter spaces actions by a random delay between minDelay and
// maxDelay.
type SimpleRateLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
	jitter     bool
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   true,
	}
}

func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.lastAction)
	delay := r.calculateDelay()

	if elapsed < delay {
		timer := time.NewTimer(delay - elapsed)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	r.lastAction = time.Now()
	return nil
}

func (r *SimpleRateLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.minDelay = min
	r.maxDelay = max
}

func (r *SimpleRateLimiter) Delays() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay, r.maxDelay
}

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if !r.jitter || r.maxDelay <= r.minDelay {
		return r.minDelay
	}

	delta := r.maxDelay - r.minDelay
	jitter := time.Duration(rand.Int63n(int64(delta)))
	return r.minDelay + jitter
}

// AdaptiveRateLimiter widens its delays after repeated failures and narrows
// them again after a streak of successes.
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
	floor         time.Duration
	ceiling       time.Duration
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(minDelay, maxDelay),
		maxErrorCount:     3,
		backoffFactor:     1.5,
		floor:             minDelay,
		ceiling:           10 * maxDelay,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		newMin := time.Duration(float64(a.minDelay) * 0.9)
		if newMin < a.floor {
			newMin = a.floor
		}
		a.minDelay = newMin
		if a.maxDelay < a.minDelay {
			a.maxDelay = a.minDelay
		}
		a.successCount = 0
	}
}

func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		newMin := time.Duration(float64(a.minDelay) * a.backoffFactor)
		newMax := time.Duration(float64(a.maxDelay) * a.backoffFactor)

		if newMin > a.ceiling {
			newMin = a.ceiling
		}
		if newMax > a.ceiling {
			newMax = a.ceiling
		}

		a.minDelay = newMin
		a.maxDelay = newMax
		a.errorCount = 0
	}
}

// TokenBucketRateLimiter holds up to maxTokens tokens and regains one every
// refillRate.
type TokenBucketRateLimiter struct {
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
	mu         sync.Mutex
	minDelay   time.Duration
	now        func() time.Time
}

func NewTokenBucketRateLimiter(maxTokens int, refillRate time.Duration) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow takes a token if one is available and never blocks.
func (t *TokenBucketRateLimiter) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refill()
	if t.tokens <= 0 {
		return false
	}

	t.tokens--
	return true
}

func (t *TokenBucketRateLimiter) Wait(ctx context.Context) error {
	t.mu.Lock()
	t.refill()

	for t.tokens <= 0 {
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.refillRate):
		}

		t.mu.Lock()
		t.refill()
	}

	t.tokens--
	delay := t.minDelay
	t.mu.Unlock()

	if delay <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (t *TokenBucketRateLimiter) refill() {
	if t.refillRate <= 0 {
		t.tokens = t.maxTokens
		return
	}

	now := t.now()
	tokensToAdd := int(now.Sub(t.lastRefill) / t.refillRate)

	if tokensToAdd > 0 {
		t.tokens += tokensToAdd
		if t.tokens > t.maxTokens {
			t.tokens = t.maxTokens
		}
		t.lastRefill = t.lastRefill.Add(time.Duration(tokensToAdd) * t.refillRate)
	}
}

func (t *TokenBucketRateLimiter) SetDelay(min, max time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minDelay = min
}
