package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/clinic-crm/internal/config"
	httpSrv "github.com/jmehdipour/clinic-crm/internal/http"
	"github.com/jmehdipour/clinic-crm/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}

		log, err := logger.Init(cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		defer func() { _ = log.Sync() }()

		ctx := cmd.Context()

		store, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		limiter, closeLimiter, err := openLimiter(ctx, cfg.RateLimit, log)
		if err != nil {
			return err
		}
		defer closeLimiter()

		server, err := httpSrv.NewServer(cfg, httpSrv.Deps{Store: store, Limiter: limiter, Logger: log})
		if err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		return run(server, cfg.HTTP.Addr, sigCh, log)
	},
}

type httpServer interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
}

// run serves until a signal arrives or the listener fails. A listener failure
// is returned so the process exits non-zero.
func run(server httpServer, addr string, sigCh <-chan os.Signal, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info("signal received, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server exited", zap.Error(err))
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)

	return runErr
}
