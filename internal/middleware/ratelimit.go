package middleware

import (
	"cliproxy-gateway/internal/metrics"
	"cliproxy-gateway/internal/ratelimit"

	"github.com/labstack/echo/v4"
)

// NewRateLimitMiddleware gates a route group behind one fixed-window
// limiter. Rejections answer directly with the bucket metadata; the request
// never reaches the upstream client.
func NewRateLimitMiddleware(limiter *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiter.Allow(ratelimit.ClientKey(c)) {
				metrics.RateLimitRejections.WithLabelValues(limiter.Name()).Inc()
				return c.JSON(429, map[string]any{
					"error":    "rate_limit_exceeded",
					"bucket":   limiter.Name(),
					"max":      limiter.Max(),
					"windowMs": limiter.Window().Milliseconds(),
				})
			}
			return next(c)
		}
	}
}
