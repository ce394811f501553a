package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"cliproxy-gateway/internal/shared"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var rateLimitPattern = regexp.MustCompile(`(?i)rate limit`)

// Client resolves sessions against an external auth backend. Lookups are
// cached in redis per API key with a short TTL; a nil redis client disables
// caching.
type Client struct {
	baseURL    string
	httpClient *http.Client
	redis      *redis.Client
	log        *zap.SugaredLogger
}

func NewClient(baseURL string, redisClient *redis.Client, log *zap.SugaredLogger) *Client {
	tr := &http.Transport{
		Dial: (&net.Dialer{
			Timeout: 2 * time.Second,
		}).Dial,
		TLSHandshakeTimeout: 2 * time.Second,
		DisableKeepAlives:   false,
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: tr, Timeout: 10 * time.Second},
		redis:      redisClient,
		log:        log,
	}
}

func (c *Client) Authenticate(ctx context.Context, apiKey string) (*Principal, error) {
	cacheKey := fmt.Sprintf("v1:session:apikey:%s", apiKey)
	if c.redis != nil {
		cached, err := c.redis.Get(ctx, cacheKey).Result()
		if err == nil {
			var principal Principal
			if err := json.Unmarshal([]byte(cached), &principal); err == nil {
				return &principal, nil
			}
			c.log.Errorw("Error unmarshalling session cache", "error", err)
		} else if err != redis.Nil {
			c.log.Debugw("Session cache miss", "key", cacheKey)
		}
	}

	principal, err := c.getSession(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	if c.redis != nil {
		go func() {
			cache, err := json.Marshal(principal)
			if err != nil {
				c.log.Errorw("Error marshalling session", "error", err)
				return
			}
			c.redis.Set(context.Background(), cacheKey, cache, shared.SessionCacheTTL)
		}()
	}
	return principal, nil
}

func (c *Client) getSession(ctx context.Context, apiKey string) (*Principal, error) {
	status, payload, err := c.getJSON(ctx, "/api/auth/get-session", apiKey)
	if err != nil {
		return nil, errors.Join(shared.ErrInternalServerError, err)
	}
	if status < 200 || status >= 300 {
		return nil, classifyBackendError(status, payload)
	}

	session := shared.AsObject(payload)
	user := shared.AsObject(session["user"])
	id := shared.GetString(user, "id")
	if id == "" {
		return nil, shared.ErrInvalidAPIKey
	}
	return &Principal{
		ID:    id,
		Email: shared.GetString(user, "email"),
		Name:  shared.GetString(user, "name"),
	}, nil
}

// ListAPIKeys returns the caller's API keys as raw objects. Field shapes vary
// across backend versions, so normalization is left to the caller.
func (c *Client) ListAPIKeys(ctx context.Context, apiKey string) ([]map[string]any, error) {
	status, payload, err := c.getJSON(ctx, "/api/auth/api-key/list", apiKey)
	if err != nil {
		return nil, errors.Join(shared.ErrInternalServerError, err)
	}
	if status < 200 || status >= 300 {
		return nil, classifyBackendError(status, payload)
	}

	items, ok := payload.([]any)
	if !ok {
		return nil, nil
	}
	keys := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			keys = append(keys, obj)
		}
	}
	return keys, nil
}

func (c *Client) getJSON(ctx context.Context, pathname, apiKey string) (int, any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathname, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed building auth backend request: %w", err)
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("auth backend request failed: %w", err)
	}
	defer func() {
		if closeErr := res.Body.Close(); closeErr != nil {
			c.log.Warnw("Failed to close auth backend response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed reading auth backend response: %w", err)
	}
	var payload any
	if len(raw) > 0 {
		// Tolerate non-JSON error bodies; classification falls back to the
		// status code alone.
		_ = json.Unmarshal(raw, &payload)
	}
	return res.StatusCode, payload, nil
}

// classifyBackendError maps one normalized backend failure onto the error
// taxonomy. Rate limit signals are recognized from the status code, a
// RATE_LIMITED code, or a "rate limit" message; everything else 401-shaped
// is an invalid credential. Raw backend error text never reaches the caller.
func classifyBackendError(status int, payload any) *shared.RequestError {
	obj := shared.AsObject(payload)
	code := shared.GetString(obj, "code")
	message := shared.GetString(obj, "message")

	if status == http.StatusTooManyRequests || code == "RATE_LIMITED" || rateLimitPattern.MatchString(message) {
		return shared.ErrRateLimited
	}
	if status == http.StatusUnauthorized {
		return shared.ErrInvalidAPIKey
	}
	return &shared.RequestError{
		StatusCode: 500,
		Code:       "internal_server_error",
		Err:        fmt.Errorf("auth backend returned %d: %s", status, message),
	}
}
