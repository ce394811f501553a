package middleware

import (
	"errors"

	"cliproxy-gateway/internal/auth"
	"cliproxy-gateway/internal/ctx"
	"cliproxy-gateway/internal/metrics"
	"cliproxy-gateway/internal/shared"

	"github.com/labstack/echo/v4"
)

// Auth short-circuits unauthorized requests before they reach rate limiting
// or the upstream client. A nil service means open mode: every request
// passes with no principal attached.
type Auth struct {
	svc auth.Service
}

func NewAuth(svc auth.Service) *Auth {
	return &Auth{svc: svc}
}

func (a *Auth) Require(next echo.HandlerFunc) echo.HandlerFunc {
	return func(cc echo.Context) error {
		c := cc.(*ctx.Context)
		if a.svc == nil {
			return next(c)
		}

		apiKey := shared.APIKeyFromRequest(c)
		if apiKey == "" {
			metrics.AuthFailures.WithLabelValues(shared.ErrMissingAPIKey.Code).Inc()
			return shared.ErrMissingAPIKey
		}

		principal, err := a.svc.Authenticate(c.Request().Context(), apiKey)
		if err != nil {
			var rerr *shared.RequestError
			if errors.As(err, &rerr) {
				metrics.AuthFailures.WithLabelValues(rerr.Code).Inc()
			}
			return err
		}

		c.User = principal
		c.Log = c.Log.With("user_id", principal.ID)
		c.LogValues.UserID = principal.ID
		return next(c)
	}
}
