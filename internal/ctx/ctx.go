// Package ctx
package ctx

import (
	"fmt"
	"time"

	"cliproxy-gateway/internal/auth"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextLogValues should only be accessed for logging, and not for
// actual business logic, or any other logic
type ContextLogValues struct {
	// Added in base middleware
	RequestID       string
	StartTime       time.Time
	StatusCode      int
	RequestDuration time.Duration
	Path            string

	// Added by the auth middleware
	UserID string

	// Override log level
	// useful for streaming where the status code is sent before errors from
	// mid-stream occur
	LogLevel string

	// Added dynamically
	Error error
}

// AddError adds errors to the error chain. Always add errors, even if only
// warnings. Log level is determined by the status code of the request.
func (c *ContextLogValues) AddError(err error) {
	if c.Error == nil {
		c.Error = err
		return
	}
	c.Error = fmt.Errorf("%w: %w", err, c.Error)
}

func (c *ContextLogValues) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	if c.UserID != "" {
		enc.AddString("user_id", c.UserID)
	}
	enc.AddString("request_id", c.RequestID)
	enc.AddTime("start_time", c.StartTime)
	enc.AddDuration("request_duration", c.RequestDuration)
	enc.AddInt("status_code", c.StatusCode)
	if c.Error != nil {
		enc.AddString("error", c.Error.Error())
	}
	enc.AddString("path", c.Path)
	return nil
}

type Context struct {
	echo.Context
	Log       *zap.SugaredLogger
	Reqid     string
	User      *auth.Principal
	LogValues *ContextLogValues
}
