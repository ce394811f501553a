package upstream

import (
	"errors"
	"fmt"
	"io"

	"cliproxy-gateway/internal/metrics"
	"cliproxy-gateway/internal/shared"

	"github.com/labstack/echo/v4"
)

// Relay is the streaming-path terminal step. It mirrors the upstream status
// code, forwards only Content-Type and Cache-Control, then pipes bytes chunk
// by chunk with a flush after every write. A client disconnect aborts the
// upstream read through the handle's cancel.
func Relay(h *Handle, c echo.Context) error {
	if err := h.consume(); err != nil {
		return errors.Join(shared.ErrInternalServerError, err)
	}
	defer h.Close()

	res := c.Response()
	if ct := h.ContentType(); ct != "" {
		res.Header().Set(echo.HeaderContentType, ct)
	}
	if cc := h.CacheControl(); cc != "" {
		res.Header().Set("Cache-Control", cc)
	}
	res.WriteHeader(h.StatusCode())

	if h.res.Body == nil {
		return nil
	}

	pathname := c.Request().URL.Path
	buf := make([]byte, 32*1024)
	for {
		n, readErr := h.res.Body.Read(buf)
		if n > 0 {
			if _, writeErr := res.Write(buf[:n]); writeErr != nil {
				// Client went away; Close cancels the upstream read.
				return nil
			}
			res.Flush()
			metrics.StreamedBytes.WithLabelValues(pathname).Add(float64(n))
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			if c.Request().Context().Err() != nil {
				return nil
			}
			metrics.UpstreamErrors.WithLabelValues(pathname, "stream").Inc()
			// Headers are out; all we can do is stop writing and let the
			// connection close rather than hang.
			return fmt.Errorf("upstream stream aborted: %w", readErr)
		}
	}
}
