package cmd

import (
	"context"
	"fmt"

	"github.com/jmehdipour/clinic-crm/internal/config"
	"github.com/jmehdipour/clinic-crm/internal/db"
	"github.com/jmehdipour/clinic-crm/internal/ratelimit"
	"github.com/jmehdipour/clinic-crm/internal/rowstore"
	"go.uber.org/zap"
)

func noop() {}

// openStore builds the row store selected by store.driver. The returned func
// releases its connections.
func openStore(ctx context.Context, cfg config.Config) (rowstore.Store, func(), error) {
	switch cfg.Store.Driver {
	case "sheets":
		s, err := rowstore.NewSheets(ctx, rowstore.SheetsOpts{
			ClientEmail:      cfg.Sheets.ClientEmail,
			PrivateKey:       cfg.Sheets.PrivateKey,
			Endpoint:         cfg.Sheets.Endpoint,
			ValueInputOption: cfg.Sheets.ValueInputOption,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil

	case "mysql":
		dbx, err := db.NewMySQLConnection(db.MySQLOptsFromConfig(cfg.MySQL))
		if err != nil {
			return nil, nil, fmt.Errorf("mysql connect: %w", err)
		}
		return rowstore.NewMySQL(dbx), func() { _ = dbx.Close() }, nil

	case "memory":
		if cfg.Memory.SeedFile == "" {
			return rowstore.NewMemory(), noop, nil
		}
		m, err := rowstore.LoadMemoryFile(cfg.Memory.SeedFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", cfg.Memory.SeedFile, err)
		}
		return m, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown store.driver %q", cfg.Store.Driver)
}

// openLimiter returns nil when no Redis URL is configured. An unreachable
// backend only produces a warning: the limiter fails open.
func openLimiter(ctx context.Context, cfg config.RateLimitConfig, log *zap.Logger) (ratelimit.Limiter, func(), error) {
	if !cfg.Enabled() {
		log.Warn("rate limiting disabled: rate_limit.redis_url is empty")
		return nil, noop, nil
	}
	rdb, err := db.NewRedisClient(db.RedisOpts{
		URL:         cfg.RedisURL,
		Token:       cfg.Token,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	if err := db.PingRedis(ctx, rdb); err != nil {
		log.Warn("rate limit backend unreachable, admitting requests until it recovers", zap.Error(err))
	}

	limiter := ratelimit.NewGuarded(
		ratelimit.NewSlidingWindow(rdb, ratelimit.Options{
			Prefix:  cfg.Prefix,
			Limit:   cfg.Limit,
			Window:  cfg.Window,
			Timeout: cfg.DialTimeout,
		}),
		ratelimit.NewBreaker(cfg.Breaker.FailThreshold, cfg.Breaker.OpenFor),
	)
	return limiter, func() { _ = rdb.Close() }, nil
}
