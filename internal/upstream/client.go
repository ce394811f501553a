// Package upstream speaks to the CLIProxyAPI service this gateway fronts.
// Inference calls hand back an unconsumed response handle so the caller can
// pick buffered or streaming handling; management calls always buffer and
// decode before deciding success.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cliproxy-gateway/internal/metrics"
	"cliproxy-gateway/internal/shared"

	"go.uber.org/zap"
)

// InferenceRequest identifies one forward call on the inference surface.
// Query strings are deliberately unsupported here; only management calls
// carry them.
type InferenceRequest struct {
	Method   string
	Pathname string
	Body     map[string]any
}

// ManagementRequest identifies one administrative call. Nil and empty-string
// query values are skipped during serialization.
type ManagementRequest struct {
	Method   string
	Pathname string
	Query    map[string]any
	Body     any
}

type Client struct {
	baseURL       string
	apiKey        string
	managementKey string
	timeout       time.Duration
	httpClient    *http.Client
	log           *zap.SugaredLogger
}

type ClientConfig struct {
	BaseURL       string
	APIKey        string
	ManagementKey string
	Timeout       time.Duration
}

func NewClient(cfg ClientConfig, log *zap.SugaredLogger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = shared.DefaultRequestTimeout
	}
	tr := &http.Transport{
		Dial: (&net.Dialer{
			Timeout: 5 * time.Second,
		}).Dial,
		TLSHandshakeTimeout: 5 * time.Second,
		DisableKeepAlives:   false,
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		managementKey: cfg.ManagementKey,
		timeout:       timeout,
		// Per-call deadlines come from the request context; the client
		// itself must not cut streams short.
		httpClient: &http.Client{Transport: tr},
		log:        log,
	}
}

func (c *Client) buildURL(pathname string, query map[string]any) string {
	target := c.baseURL + "/" + strings.TrimLeft(pathname, "/")
	if len(query) == 0 {
		return target
	}
	values := url.Values{}
	for key, value := range query {
		if value == nil {
			continue
		}
		s := fmt.Sprint(value)
		if s == "" {
			continue
		}
		values.Set(key, s)
	}
	if encoded := values.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return target
}

// ForwardInference forwards one inference call and returns the raw response
// handle without consuming its body. The handle owns a cancel derived from
// ctx plus the configured timeout: the deadline aborts the underlying
// connection, and a client disconnect cancels the upstream read.
func (c *Client) ForwardInference(ctx context.Context, req InferenceRequest) (*Handle, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Join(shared.ErrInternalServerError, fmt.Errorf("failed encoding inference body: %w", err))
		}
		bodyReader = bytes.NewReader(encoded)
	}

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	r, err := http.NewRequestWithContext(rctx, method, c.buildURL(req.Pathname, nil), bodyReader)
	if err != nil {
		cancel()
		return nil, errors.Join(shared.ErrInternalServerError, fmt.Errorf("failed building inference request: %w", err))
	}
	r.Header.Set("Authorization", "Bearer "+c.apiKey)
	if req.Body != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.httpClient.Do(r)
	if err != nil {
		cancel()
		return nil, c.classifyTransportError(ctx, rctx, req.Pathname, err)
	}
	metrics.UpstreamDuration.WithLabelValues(req.Pathname, "inference").Observe(time.Since(start).Seconds())

	return &Handle{res: res, cancel: cancel}, nil
}

// RequestManagement performs one fully buffered administrative call. A
// non-2xx status is an immediate error carrying the decoded body as detail.
func (c *Client) RequestManagement(ctx context.Context, req ManagementRequest) (any, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Join(shared.ErrInternalServerError, fmt.Errorf("failed encoding management body: %w", err))
		}
		bodyReader = bytes.NewReader(encoded)
	}

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	r, err := http.NewRequestWithContext(rctx, method, c.buildURL(req.Pathname, req.Query), bodyReader)
	if err != nil {
		return nil, errors.Join(shared.ErrInternalServerError, fmt.Errorf("failed building management request: %w", err))
	}
	r.Header.Set("Authorization", "Bearer "+c.managementKey)
	if req.Body != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.httpClient.Do(r)
	if err != nil {
		return nil, c.classifyTransportError(ctx, rctx, req.Pathname, err)
	}
	metrics.UpstreamDuration.WithLabelValues(req.Pathname, "management").Observe(time.Since(start).Seconds())
	defer func() {
		if closeErr := res.Body.Close(); closeErr != nil {
			c.log.Warnw("Failed to close management response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues(req.Pathname, "read").Inc()
		return nil, errors.Join(shared.ErrInternalServerError, fmt.Errorf("failed reading management response: %w", err))
	}
	payload := decodePayload(res.Header.Get("Content-Type"), raw)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		metrics.UpstreamErrors.WithLabelValues(req.Pathname, "status").Inc()
		return nil, shared.NewUpstreamError(res.StatusCode, payload)
	}
	return payload, nil
}

// classifyTransportError separates a deadline overrun from a client
// disconnect and from a plain transport failure. A disconnect is not an
// error from the gateway's point of view.
func (c *Client) classifyTransportError(parent, rctx context.Context, pathname string, err error) error {
	if parent.Err() != nil {
		// Inbound client went away; nothing to report to anyone.
		return parent.Err()
	}
	if errors.Is(rctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		metrics.UpstreamErrors.WithLabelValues(pathname, "timeout").Inc()
		return errors.Join(shared.ErrUpstreamTimeout, err)
	}
	metrics.UpstreamErrors.WithLabelValues(pathname, "transport").Inc()
	return errors.Join(shared.ErrInternalServerError, fmt.Errorf("upstream request failed: %w", err))
}
