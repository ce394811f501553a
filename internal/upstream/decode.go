package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"cliproxy-gateway/internal/shared"
)

// Decode is the buffered-path terminal step: it reads the full body exactly
// once and releases the handle. An empty body decodes to nil. A malformed
// JSON body is never an error; it comes back as {"raw": <text>} so the
// gateway does not fail a request purely because the upstream body was
// broken.
func Decode(h *Handle) (any, error) {
	if err := h.consume(); err != nil {
		return nil, errors.Join(shared.ErrInternalServerError, err)
	}
	defer h.Close()

	if h.res.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(h.res.Body)
	if err != nil {
		return nil, errors.Join(shared.ErrInternalServerError, fmt.Errorf("failed reading upstream body: %w", err))
	}
	return decodePayload(h.ContentType(), raw), nil
}

func decodePayload(contentType string, raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	if strings.Contains(contentType, "application/json") {
		var value any
		if err := json.Unmarshal(raw, &value); err == nil {
			return value
		}
	}
	return map[string]any{"raw": string(raw)}
}
