package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLimiter struct {
	calls int
	err   error
}

func (s *stubLimiter) Allow(ctx context.Context, key string) (Result, error) {
	s.calls++
	if s.err != nil {
		return Result{}, s.err
	}
	return Result{Allowed: true, Limit: 5, Remaining: 4}, nil
}

var errDown = errors.New("connection refused")

func TestBreakerOpensAndRecovers(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	b := NewBreaker(3, 30*time.Second)
	b.now = clk.now

	for i := 0; i < 3; i++ {
		require.True(t, b.admit())
		b.record(errDown)
	}
	assert.True(t, b.Open())
	assert.False(t, b.admit())

	clk.advance(30 * time.Second)
	require.True(t, b.admit(), "trial once the cooldown has passed")
	assert.False(t, b.admit(), "only one trial at a time")
	b.record(nil)

	assert.False(t, b.Open())
	assert.True(t, b.admit())
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(2, time.Minute)

	b.record(errDown)
	b.record(nil)
	b.record(errDown)
	assert.False(t, b.Open())
	b.record(errDown)
	assert.True(t, b.Open())
}

func TestBreakerFailedTrialReopens(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	b := NewBreaker(1, 10*time.Second)
	b.now = clk.now

	b.record(errDown)
	clk.advance(11 * time.Second)
	require.True(t, b.admit())
	b.record(errDown)

	assert.False(t, b.admit())
	clk.advance(9 * time.Second)
	assert.False(t, b.admit(), "a failed trial restarts the cooldown")
	clk.advance(2 * time.Second)
	assert.True(t, b.admit())
}

func TestGuardedShortCircuitsWhileOpen(t *testing.T) {
	stub := &stubLimiter{err: errDown}
	g := NewGuarded(stub, NewBreaker(2, time.Minute))
	ctx := context.Background()

	_, err := g.Allow(ctx, "k")
	assert.EqualError(t, err, "connection refused")
	_, err = g.Allow(ctx, "k")
	assert.Error(t, err)

	_, err = g.Allow(ctx, "k")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, 2, stub.calls)
}

func TestGuardedPassesThrough(t *testing.T) {
	stub := &stubLimiter{}
	g := NewGuarded(stub, NewBreaker(2, time.Minute))

	res, err := g.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
}
