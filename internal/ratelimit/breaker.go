package ratelimit

import (
	"sync"
	"time"
)

type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// Breaker opens after maxFailures consecutive failures and lets a single
// trial call through once cooldown has passed.
type Breaker struct {
	mu          sync.Mutex
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	state       BreakerState
	trialActive bool
	now         func() time.Time
}

func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}

	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		state:       StateClosed,
		now:         time.Now,
	}
}

// Allow reports whether a call may proceed. In the half-open state only one
// caller gets through until it reports back.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.trialActive = true
		return true
	default:
		if b.trialActive {
			return false
		}
		b.trialActive = true
		return true
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialActive = false
	b.state = StateClosed
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.trialActive = false

	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
