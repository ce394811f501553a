// Package routers registers the gateway's HTTP surface.
package routers

import (
	"encoding/json"
	"errors"
	"io"

	"cliproxy-gateway/internal/ctx"
	"cliproxy-gateway/internal/shared"
)

// readJSONBody reads the inbound body as a generic JSON object. An empty
// body yields nil so callers can distinguish "no body" from "{}"; anything
// unparseable or non-object shaped is the caller's fault.
func readJSONBody(c *ctx.Context) (map[string]any, error) {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		c.Log.Errorw("Failed to read request body", "error", err.Error())
		return nil, errors.Join(shared.ErrInvalidRequest, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.Join(shared.ErrInvalidRequest, err)
	}
	return body, nil
}

// wantsStream reports whether the caller explicitly asked for a streamed
// response.
func wantsStream(body map[string]any) bool {
	stream, _ := body["stream"].(bool)
	return stream
}
