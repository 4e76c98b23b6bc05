package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jmehdipour/clinic-crm/internal/auth"
	"github.com/jmehdipour/clinic-crm/internal/config"
	"github.com/jmehdipour/clinic-crm/internal/http/middleware"
	"github.com/jmehdipour/clinic-crm/internal/metrics"
	"github.com/jmehdipour/clinic-crm/internal/ratelimit"
	"github.com/jmehdipour/clinic-crm/internal/rowstore"
	"github.com/jmehdipour/clinic-crm/internal/service/records"
	"github.com/jmehdipour/clinic-crm/internal/util"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the backends the server is built on.
type Deps struct {
	Store   rowstore.Store
	Limiter ratelimit.Limiter // nil disables login rate limiting
	Logger  *zap.Logger
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("http: row store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// services
	sessions, err := auth.NewSessions(cfg.Session.Secret, cfg.Session.TTL())
	if err != nil {
		return nil, err
	}
	verifier := auth.NewVerifier(deps.Store, auth.VerifierOpts{
		Dataset: cfg.Auth.UserDataset,
		Tab:     cfg.Auth.UsersTab,
		Timeout: cfg.Store.Timeout,
		Logger:  logger,
	})
	recordsSvc := records.New(deps.Store, records.Options{
		Tabs:       cfg.Data.Tabs,
		DefaultTab: cfg.Data.DefaultTab,
		Timeout:    cfg.Store.Timeout,
	})

	// echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLogLevel(cfg.Log.Level))
	e.Server.ReadTimeout = cfg.HTTP.ReadTimeout
	e.Server.WriteTimeout = cfg.HTTP.WriteTimeout

	e.Use(
		echoMid.Recover(),
		echoMid.RequestIDWithConfig(echoMid.RequestIDConfig{Generator: util.NewID}),
		requestLogger(logger),
		echoMid.BodyLimit("1M"),
		middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Limiter:    deps.Limiter,
			PathPrefix: cfg.RateLimit.PathPrefix,
			Logger:     logger,
		}),
	)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	ck := cookieOpts{Name: cfg.Session.CookieName, Secure: cfg.Session.SecureCookie}
	sessionMW := middleware.SessionMiddleware(sessions, ck.Name)

	// routes
	a := e.Group("/auth")
	a.POST("/login", loginHandler(verifier, sessions, ck, logger))
	a.GET("/session", currentSessionHandler(), sessionMW)
	a.DELETE("/session", logoutHandler(ck))

	h := &dataHandlers{svc: recordsSvc, log: logger}
	d := e.Group("/data", sessionMW)
	d.GET("", h.list)
	d.POST("", h.create)
	d.PATCH("", h.updateAt)
	d.DELETE("", h.deleteAt)
	d.GET("/:id", h.get)
	d.PUT("/:id", h.replace)
	d.DELETE("/:id", h.delete)

	return &Server{e: e, log: logger}, nil
}

// requestLogger writes one zap line per request. Bodies are never logged.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return echoMid.RequestLoggerWithConfig(echoMid.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echoMid.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				logger.Error("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}

func echoLogLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
