package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Breaker stops calling a failing backend. After threshold consecutive
// failures it stays open for cooldown, then admits one trial call whose
// outcome closes it or opens it for another cooldown.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	fails     int
	openUntil time.Time // zero while closed
	trial     bool      // a trial call is in flight
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// admit reports whether the next call may reach the backend.
func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openUntil.IsZero() {
		return true
	}
	if b.trial || b.now().Before(b.openUntil) {
		return false
	}
	b.trial = true
	return true
}

// record feeds back the outcome of an admitted call.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasTrial := b.trial
	b.trial = false
	if err == nil {
		b.fails = 0
		b.openUntil = time.Time{}
		return
	}
	b.fails++
	if wasTrial || b.fails >= b.threshold {
		b.openUntil = b.now().Add(b.cooldown)
	}
}

// Open reports whether calls are currently being short-circuited.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.openUntil.IsZero()
}

// Guarded puts a Breaker in front of a Limiter. While the breaker is open
// Allow returns ErrBackendUnavailable without touching the backend.
type Guarded struct {
	next    Limiter
	breaker *Breaker
}

var _ Limiter = (*Guarded)(nil)

func NewGuarded(next Limiter, b *Breaker) *Guarded {
	return &Guarded{next: next, breaker: b}
}

func (g *Guarded) Allow(ctx context.Context, key string) (Result, error) {
	if !g.breaker.admit() {
		return Result{}, ErrBackendUnavailable
	}
	res, err := g.next.Allow(ctx, key)
	g.breaker.record(err)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}
