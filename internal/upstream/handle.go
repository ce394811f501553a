package upstream

import (
	"context"
	"errors"
	"net/http"
)

// Handle wraps a live upstream response whose body has not been read. The
// body is a single-read resource: exactly one of Decode or Relay may consume
// it, and both check the consumed flag at entry. Close cancels the request
// context, which aborts any in-flight upstream read.
type Handle struct {
	res      *http.Response
	cancel   context.CancelFunc
	consumed bool
}

func (h *Handle) StatusCode() int {
	return h.res.StatusCode
}

func (h *Handle) ContentType() string {
	return h.res.Header.Get("Content-Type")
}

func (h *Handle) CacheControl() string {
	return h.res.Header.Get("Cache-Control")
}

// consume marks the body taken. Second callers get an error instead of a
// partially drained stream.
func (h *Handle) consume() error {
	if h.consumed {
		return errors.New("upstream response body already consumed")
	}
	h.consumed = true
	return nil
}

// Close releases the connection. Safe to call after the body is drained; the
// cancel also tears down an unfinished upstream read.
func (h *Handle) Close() {
	if h.res.Body != nil {
		_ = h.res.Body.Close()
	}
	h.cancel()
}
