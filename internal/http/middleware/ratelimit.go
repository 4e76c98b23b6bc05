package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/clinic-crm/internal/metrics"
	"github.com/jmehdipour/clinic-crm/internal/ratelimit"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const TooManyAttemptsMessage = "Too many login attempts. Please try again later."

// RateLimitConfig config for the login attempt limiter.
type RateLimitConfig struct {
	Limiter    ratelimit.Limiter // nil: limiting disabled
	PathPrefix string            // only POSTs under this prefix are counted, e.g. "/auth/"
	Logger     *zap.Logger
}

// clientIPHeaders are consulted in order; the first non-empty one wins.
var clientIPHeaders = []string{"X-Forwarded-For", "CF-Connecting-IP", "X-Real-IP"}

// ClientIP returns the first address of the first proxy header present, or
// "unknown". The peer address is never consulted.
func ClientIP(r *http.Request) string {
	for _, h := range clientIPHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		first, _, _ := strings.Cut(v, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
		return "unknown"
	}
	return "unknown"
}

// RateLimitMiddleware counts authentication submissions per client address.
// A failing limiter admits the request and logs a warning.
func RateLimitMiddleware(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "/auth/"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if cfg.Limiter == nil || req.Method != http.MethodPost || !strings.HasPrefix(req.URL.Path, cfg.PathPrefix) {
				return next(c)
			}

			key := "ip:" + ClientIP(req)
			res, err := cfg.Limiter.Allow(req.Context(), key)
			if err != nil {
				metrics.RateLimitDecisionsTotal.WithLabelValues("error").Inc()
				cfg.Logger.Warn("rate limit check failed, allowing request",
					zap.String("key", key), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				metrics.RateLimitDecisionsTotal.WithLabelValues("denied").Inc()
				h.Set("Retry-After", strconv.Itoa(max(res.RetryAfter, 1)))
				return c.JSON(http.StatusTooManyRequests, map[string]string{"message": TooManyAttemptsMessage})
			}
			metrics.RateLimitDecisionsTotal.WithLabelValues("allowed").Inc()
			return next(c)
		}
	}
}
