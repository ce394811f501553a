// Package middleware wires request tracking, recovery, authentication, and
// rate limiting into the echo chain, plus the terminal error handler every
// route funnels into.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"cliproxy-gateway/internal/ctx"
	"cliproxy-gateway/internal/metrics"
	"cliproxy-gateway/internal/shared"

	"github.com/aidarkhanov/nanoid"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func NewTrackMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqID, _ := nanoid.Generate("0123456789abcdefghijklmnopqrstuvwxyz", 28)
			logger := log.With("request_id", "req_"+reqID)

			start := time.Now()
			cc := &ctx.Context{
				Context: c,
				Log:     logger,
				Reqid:   reqID,
				LogValues: &ctx.ContextLogValues{
					RequestID: "req_" + reqID,
					StartTime: start,
					Path:      c.Path(),
				},
			}
			err := next(cc)
			cc.LogValues.StatusCode = cc.Response().Status
			cc.LogValues.RequestDuration = time.Since(start)
			cc.Log.Infow("end_of_request",
				"status_code", fmt.Sprintf("%d", cc.Response().Status),
				"duration", cc.LogValues.RequestDuration.String(),
			)
			metrics.ResponseCodes.WithLabelValues(cc.Path(), fmt.Sprintf("%d", cc.Response().Status)).Inc()
			return err
		}
	}
}

func NewRecoverMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return emw.RecoverWithConfig(emw.RecoverConfig{
		StackSize: 1 << 10, // 1 KB
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			defer func() {
				_ = log.Sync()
			}()
			log.Errorw("Api Panic", "error", err.Error())
			return shared.ErrInternalServerError
		},
	})
}

// NewErrorHandler is the terminal failure handler. Classified errors render
// their own status and stable code; anything unrecognized maps to a generic
// 500 with internal detail logged, never sent. After a streaming response
// has committed headers nothing can be changed, so those errors are only
// logged.
func NewErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		logger := log
		if cc, ok := c.(*ctx.Context); ok {
			logger = cc.Log
			cc.LogValues.AddError(err)
		}

		if c.Response().Committed {
			logger.Errorw("Error after response committed", "error", err.Error())
			return
		}

		var rerr *shared.RequestError
		if errors.As(err, &rerr) {
			if rerr.StatusCode >= 500 {
				logger.Errorw("Request failed", "error", err.Error())
			}
			body := map[string]any{"error": rerr.Code}
			if rerr.Details != nil {
				body["details"] = rerr.Details
			}
			if jsonErr := c.JSON(rerr.StatusCode, body); jsonErr != nil {
				logger.Errorw("Failed writing error response", "error", jsonErr)
			}
			return
		}

		var herr *echo.HTTPError
		if errors.As(err, &herr) {
			code := "internal_server_error"
			switch herr.Code {
			case http.StatusNotFound:
				code = "not_found"
			case http.StatusMethodNotAllowed:
				code = "method_not_allowed"
			case http.StatusRequestEntityTooLarge:
				code = "request_too_large"
			case http.StatusBadRequest:
				code = "invalid_request"
			}
			if jsonErr := c.JSON(herr.Code, map[string]any{"error": code}); jsonErr != nil {
				logger.Errorw("Failed writing error response", "error", jsonErr)
			}
			return
		}

		logger.Errorw("Unhandled error", "error", err.Error())
		if jsonErr := c.JSON(http.StatusInternalServerError, map[string]any{"error": "internal_server_error"}); jsonErr != nil {
			logger.Errorw("Failed writing error response", "error", jsonErr)
		}
	}
}
