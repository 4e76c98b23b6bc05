// Package ratelimit counts requests per key over a sliding window kept in Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmehdipour/clinic-crm/internal/util"
	"github.com/redis/go-redis/v9"
)

var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// Result is one limiter decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time // when the oldest counted request leaves the window
	// RetryAfter is whole seconds until a slot frees, at least 1. Only set when
	// the request was denied.
	RetryAfter int
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// slidingLog keeps one sorted-set member per admitted request, scored by its
// millisecond timestamp. Returns {allowed, remaining, reset_ms}.
var slidingLog = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, limit - count, reset}
`)

type Options struct {
	Prefix string
	Limit  int
	Window time.Duration
	// Timeout bounds a single decision; zero means the caller's context only.
	Timeout time.Duration
}

// SlidingWindow admits at most Limit requests per key in any Window-long span.
type SlidingWindow struct {
	rdb  redis.Scripter
	opts Options
	now  func() time.Time
}

var _ Limiter = (*SlidingWindow)(nil)

func NewSlidingWindow(rdb redis.Scripter, opts Options) *SlidingWindow {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	return &SlidingWindow{rdb: rdb, opts: opts, now: time.Now}
}

func (l *SlidingWindow) key(k string) string {
	if l.opts.Prefix == "" {
		return k
	}
	return l.opts.Prefix + ":" + k
}

func (l *SlidingWindow) Allow(ctx context.Context, key string) (Result, error) {
	if l.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.Timeout)
		defer cancel()
	}

	now := l.now()
	vals, err := slidingLog.Run(ctx, l.rdb, []string{l.key(key)},
		now.UnixMilli(), l.opts.Window.Milliseconds(), l.opts.Limit, util.NewID(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("sliding window %q: %w", key, err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("sliding window %q: unexpected reply %v", key, vals)
	}

	res := Result{
		Allowed:   vals[0] == 1,
		Limit:     l.opts.Limit,
		Remaining: int(max(vals[1], 0)),
		Reset:     time.UnixMilli(vals[2]),
	}
	if !res.Allowed {
		res.RetryAfter = RetryAfterSeconds(res.Reset, now)
	}
	return res, nil
}

// RetryAfterSeconds rounds the wait until reset up to whole seconds, minimum 1.
func RetryAfterSeconds(reset, now time.Time) int {
	secs := math.Ceil(float64(reset.Sub(now).Milliseconds()) / 1000)
	return int(max(secs, 1))
}
