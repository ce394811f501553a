package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cliproxy-gateway/internal/shared"

	"go.uber.org/zap"
)

func newTestClient(baseURL string, timeout time.Duration) *Client {
	return NewClient(ClientConfig{
		BaseURL:       baseURL,
		APIKey:        "inference-key",
		ManagementKey: "management-key",
		Timeout:       timeout,
	}, zap.NewNop().Sugar())
}

func TestForwardInferenceHeaders(t *testing.T) {
	var gotAuth, gotContentType, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5*time.Second)
	handle, err := client.ForwardInference(context.Background(), InferenceRequest{
		Pathname: "/v1/chat/completions",
		Body:     map[string]any{"input": "hi"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer handle.Close()

	if gotAuth != "Bearer inference-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST default", gotMethod)
	}
}

func TestForwardInferenceNoContentTypeWithoutBody(t *testing.T) {
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5*time.Second)
	handle, err := client.ForwardInference(context.Background(), InferenceRequest{
		Method:   http.MethodGet,
		Pathname: "/v1/models",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer handle.Close()

	if gotContentType != "" {
		t.Errorf("Content-Type = %q, want empty without body", gotContentType)
	}
}

func TestForwardInferenceTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, 50*time.Millisecond)
	_, err := client.ForwardInference(context.Background(), InferenceRequest{
		Pathname: "/v1/responses",
		Body:     map[string]any{"input": "hi"},
	})
	if !errors.Is(err, shared.ErrUpstreamTimeout) {
		t.Errorf("err = %v, want ErrUpstreamTimeout", err)
	}
}

func TestRequestManagementAuthAndQuery(t *testing.T) {
	var gotAuth string
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5*time.Second)
	payload, err := client.RequestManagement(context.Background(), ManagementRequest{
		Pathname: "/v0/management/auth-files",
		Query: map[string]any{
			"name":    "acct",
			"empty":   "",
			"missing": nil,
			"webui":   true,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAuth != "Bearer management-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if got := gotQuery["name"]; len(got) != 1 || got[0] != "acct" {
		t.Errorf("query name = %v", got)
	}
	if got := gotQuery["webui"]; len(got) != 1 || got[0] != "true" {
		t.Errorf("query webui = %v", got)
	}
	if _, ok := gotQuery["empty"]; ok {
		t.Error("empty-string query value must be skipped")
	}
	if _, ok := gotQuery["missing"]; ok {
		t.Error("nil query value must be skipped")
	}

	obj, ok := payload.(map[string]any)
	if !ok || obj["status"] != "ok" {
		t.Errorf("payload = %v", payload)
	}
}

func TestRequestManagementNon2xxCarriesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "backend down"})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5*time.Second)
	_, err := client.RequestManagement(context.Background(), ManagementRequest{
		Pathname: "/v0/management/auth-files",
	})

	var rerr *shared.RequestError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want RequestError", err)
	}
	if rerr.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rerr.StatusCode)
	}
	detail, ok := rerr.Details.(map[string]any)
	if !ok || detail["message"] != "backend down" {
		t.Errorf("details = %v, want decoded body", rerr.Details)
	}
}

func TestBuildURLJoinsPath(t *testing.T) {
	client := newTestClient("http://127.0.0.1:8317", time.Second)

	if got := client.buildURL("/v1/models", nil); got != "http://127.0.0.1:8317/v1/models" {
		t.Errorf("buildURL = %q", got)
	}
	if got := client.buildURL("v1/models", nil); got != "http://127.0.0.1:8317/v1/models" {
		t.Errorf("buildURL without leading slash = %q", got)
	}
}
