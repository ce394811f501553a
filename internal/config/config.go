// Package config holds the process-wide configuration snapshot. It is built
// once at startup and never mutated afterwards, so it is safe to share across
// request handlers by reference.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cliproxy-gateway/internal/shared"
)

// AuthMode selects the authenticator variant. Exactly one mode is active per
// deployment; it is a configuration-time choice, not a per-request decision.
type AuthMode string

const (
	// AuthModeOpen disables authentication entirely. Only for internal
	// deployments where no shared secret is configured.
	AuthModeOpen AuthMode = "open"
	// AuthModeSharedSecret compares the caller credential against a single
	// configured secret.
	AuthModeSharedSecret AuthMode = "shared-secret"
	// AuthModeDelegated forwards the caller credential to an external auth
	// backend session lookup.
	AuthModeDelegated AuthMode = "delegated"
)

type Config struct {
	Port       int
	CORSOrigin string
	TrustProxy bool
	Debug      bool

	// Upstream CLIProxyAPI
	CLIProxyBaseURL       string
	CLIProxyAPIKey        string
	CLIProxyManagementKey string
	RequestTimeout        time.Duration

	// Authentication
	AppAPIKey   string
	AuthBaseURL string
	RedisAddr   string

	// Rate limiting
	RateLimitWindow   time.Duration
	RateLimitAIMax    int
	RateLimitCodexMax int

	// Defaults reported by the account rate-limit overview when the auth
	// backend omits per-key settings.
	APIKeyRateLimitWindow time.Duration
	APIKeyRateLimitMax    int

	// Fixed-model route
	CodexModel           string
	CodexReasoningEffort string

	MetricsAPIKey string
}

// Validate fails fast on configuration that would start the gateway in a
// silently insecure or unusable state.
func (c *Config) Validate() error {
	var missing []string
	if c.CLIProxyAPIKey == "" {
		missing = append(missing, "cli-proxy-api-key")
	}
	if c.CLIProxyManagementKey == "" {
		missing = append(missing, "cli-proxy-management-key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config values: %s", strings.Join(missing, ", "))
	}
	if c.AppAPIKey != "" && c.AuthBaseURL != "" {
		return errors.New("app-api-key and auth-base-url are mutually exclusive, pick one auth mode")
	}
	if c.AppAPIKey != "" && len(c.AppAPIKey) < shared.MinSharedSecretLength {
		return fmt.Errorf("app-api-key must be at least %d characters", shared.MinSharedSecretLength)
	}
	if c.CodexModel == "" {
		return errors.New("codex53-model must not be empty")
	}
	return nil
}

func (c *Config) AuthMode() AuthMode {
	switch {
	case c.AuthBaseURL != "":
		return AuthModeDelegated
	case c.AppAPIKey != "":
		return AuthModeSharedSecret
	default:
		return AuthModeOpen
	}
}

// CORSOrigins splits the configured origin policy into the list echo's CORS
// middleware expects. "*" stays a single wildcard entry.
func (c *Config) CORSOrigins() []string {
	if c.CORSOrigin == "" || c.CORSOrigin == "*" {
		return []string{"*"}
	}
	parts := strings.Split(c.CORSOrigin, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// NormalizeBaseURLs strips trailing slashes so URL joining stays predictable.
func (c *Config) NormalizeBaseURLs() {
	c.CLIProxyBaseURL = strings.TrimRight(c.CLIProxyBaseURL, "/")
	c.AuthBaseURL = strings.TrimRight(c.AuthBaseURL, "/")
}
