package shared

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// BearerToken returns the credential from an "Authorization: Bearer <token>"
// header value, or "" when the header is absent or not bearer shaped.
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// APIKeyFromRequest extracts the caller credential, preferring the explicit
// x-api-key header over a bearer token. The priority order here must match
// rate limit bucket keying.
func APIKeyFromRequest(c echo.Context) string {
	if key := strings.TrimSpace(c.Request().Header.Get("x-api-key")); key != "" {
		return key
	}
	return BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
}

func GetString(m map[string]any, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}

// AsObject narrows a decoded JSON value to an object, returning an empty map
// for anything else so callers can use optional-field lookups without nil
// checks.
func AsObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
