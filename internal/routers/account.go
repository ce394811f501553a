package routers

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"cliproxy-gateway/internal/auth"
	"cliproxy-gateway/internal/config"
	"cliproxy-gateway/internal/ctx"
	"cliproxy-gateway/internal/middleware"
	"cliproxy-gateway/internal/shared"

	"github.com/labstack/echo/v4"
)

type AccountRouter struct {
	authClient    *auth.Client
	defaultWindow int64
	defaultMax    int64
}

// RateLimitKey is the normalized per-key view over whatever rate limit
// fields the auth backend reports.
type RateLimitKey struct {
	ID            string  `json:"id"`
	Name          *string `json:"name"`
	Start         *string `json:"start"`
	Enabled       bool    `json:"enabled"`
	WindowMs      int64   `json:"windowMs"`
	Max           int64   `json:"max"`
	Used          int64   `json:"used"`
	Remaining     int64   `json:"remaining"`
	LastRequestAt *string `json:"lastRequestAt"`
	ResetAt       string  `json:"resetAt"`
}

type RateLimitOverview struct {
	ActiveKeys     int     `json:"activeKeys"`
	TotalMax       int64   `json:"totalMax"`
	TotalUsed      int64   `json:"totalUsed"`
	TotalRemaining int64   `json:"totalRemaining"`
	NextResetAt    *string `json:"nextResetAt"`
}

type RateLimitResponse struct {
	GeneratedAt string            `json:"generatedAt"`
	Defaults    RateLimitDefaults `json:"defaults"`
	Overview    RateLimitOverview `json:"overview"`
	Keys        []RateLimitKey    `json:"keys"`
}

type RateLimitDefaults struct {
	WindowMs int64 `json:"windowMs"`
	Max      int64 `json:"max"`
}

// RegisterAccountRoutes mounts the account overview. Only meaningful in
// delegated-session deployments; callers skip registration when there is no
// auth backend to read from.
func RegisterAccountRoutes(e *echo.Group, authClient *auth.Client, cfg *config.Config, amw *middleware.Auth) {
	router := &AccountRouter{
		authClient:    authClient,
		defaultWindow: cfg.APIKeyRateLimitWindow.Milliseconds(),
		defaultMax:    int64(cfg.APIKeyRateLimitMax),
	}
	account := e.Group("/account", amw.Require)
	account.GET("/rate-limit", router.RateLimit)
}

func (r *AccountRouter) RateLimit(cc echo.Context) error {
	c := cc.(*ctx.Context)
	if c.User == nil {
		return shared.ErrUnauthorized
	}

	apiKeys, err := r.authClient.ListAPIKeys(c.Request().Context(), shared.APIKeyFromRequest(c))
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	keys := make([]RateLimitKey, 0, len(apiKeys))

	for _, raw := range apiKeys {
		id := shared.GetString(raw, "id")
		if id == "" {
			continue
		}

		enabled := toBoolean(raw["enabled"], true)
		limitEnabled := toBoolean(raw["rateLimitEnabled"], true)
		windowMs := toNumber(raw["rateLimitTimeWindow"], r.defaultWindow)
		if windowMs < 1 {
			windowMs = 1
		}
		maxRequests := toNumber(raw["rateLimitMax"], r.defaultMax)
		if maxRequests < 0 {
			maxRequests = 0
		}
		requestCount := toNumber(raw["requestCount"], 0)
		if requestCount < 0 {
			requestCount = 0
		}

		lastRequest := toTimestamp(raw["lastRequest"])
		withinWindow := lastRequest != nil && now-*lastRequest <= windowMs

		var used int64
		if enabled && limitEnabled && withinWindow {
			used = requestCount
		}
		remaining := maxRequests
		if enabled && limitEnabled {
			remaining = maxRequests - used
			if remaining < 0 {
				remaining = 0
			}
		}

		resetBase := now
		if withinWindow {
			resetBase = *lastRequest
		}

		keys = append(keys, RateLimitKey{
			ID:            id,
			Name:          optionalString(raw["name"]),
			Start:         optionalString(raw["start"]),
			Enabled:       enabled,
			WindowMs:      windowMs,
			Max:           maxRequests,
			Used:          used,
			Remaining:     remaining,
			LastRequestAt: toISOPtr(lastRequest),
			ResetAt:       toISO(resetBase + windowMs),
		})
	}

	sort.Slice(keys, func(i, j int) bool {
		return sortName(keys[i]) < sortName(keys[j])
	})

	overview := RateLimitOverview{}
	var nextReset *int64
	for _, key := range keys {
		if !key.Enabled {
			continue
		}
		overview.ActiveKeys++
		overview.TotalMax += key.Max
		overview.TotalUsed += key.Used
		overview.TotalRemaining += key.Remaining

		if reset, err := time.Parse(time.RFC3339, key.ResetAt); err == nil {
			ms := reset.UnixMilli()
			if nextReset == nil || ms < *nextReset {
				nextReset = &ms
			}
		}
	}
	overview.NextResetAt = toISOPtr(nextReset)

	return c.JSON(200, RateLimitResponse{
		GeneratedAt: toISO(now),
		Defaults:    RateLimitDefaults{WindowMs: r.defaultWindow, Max: r.defaultMax},
		Overview:    overview,
		Keys:        keys,
	})
}

func sortName(key RateLimitKey) string {
	if key.Name != nil && *key.Name != "" {
		return *key.Name
	}
	if key.Start != nil {
		return *key.Start
	}
	return ""
}

func optionalString(value any) *string {
	if s, ok := value.(string); ok {
		return &s
	}
	return nil
}

func toBoolean(value any, fallback bool) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func toNumber(value any, fallback int64) int64 {
	switch v := value.(type) {
	case float64:
		return int64(v)
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// toTimestamp coerces the backend's assorted timestamp shapes (epoch millis
// as number or string, or a date string) to epoch millis.
func toTimestamp(value any) *int64 {
	switch v := value.(type) {
	case float64:
		ms := int64(v)
		return &ms
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		if parsed, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return &parsed
		}
		if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
			ms := parsed.UnixMilli()
			return &ms
		}
	}
	return nil
}

func toISO(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func toISOPtr(ms *int64) *string {
	if ms == nil {
		return nil
	}
	iso := toISO(*ms)
	return &iso
}
