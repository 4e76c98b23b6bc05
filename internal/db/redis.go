package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisOpts struct {
	URL         string        // redis://[:password@]host:port/db or rediss:// for TLS
	Token       string        // optional; overrides the password in URL
	DialTimeout time.Duration // default 5s
}

// NewRedisClient builds a client for the rate-limit backend. It does not dial;
// the limiter fails open while the backend is unreachable, so startup must not
// depend on it either. Use PingRedis to report reachability.
func NewRedisClient(opts RedisOpts) (*redis.Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("empty Redis URL")
	}
	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse Redis URL: %w", err)
	}
	if opts.Token != "" {
		ro.Password = opts.Token
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	ro.DialTimeout = opts.DialTimeout
	ro.ReadTimeout = opts.DialTimeout
	ro.WriteTimeout = opts.DialTimeout

	return redis.NewClient(ro), nil
}

// PingRedis checks the connection within the client's dial timeout.
func PingRedis(ctx context.Context, rdb *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, rdb.Options().DialTimeout)
	defer cancel()

	return rdb.Ping(ctx).Err()
}
