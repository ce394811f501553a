package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

type flushRecorder struct {
	*httptest.ResponseRecorder
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

func TestRelayStreamsEventStream(t *testing.T) {
	chunks := []string{"data: one\n\n", "data: two\n\n", "data: [DONE]\n\n"}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			_, _ = w.Write([]byte(chunk))
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5*time.Second)
	handle, err := client.ForwardInference(context.Background(), InferenceRequest{
		Pathname: "/v1/responses",
		Body:     map[string]any{"input": "hi", "stream": true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/ai/responses", nil)
	rec := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	c := e.NewContext(req, rec)

	if err := Relay(handle, c); err != nil {
		t.Fatalf("relay failed: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if got := rec.Body.String(); got != strings.Join(chunks, "") {
		t.Errorf("body = %q", got)
	}
	// One flush per upstream chunk means nothing was held back for
	// end-of-stream buffering.
	if rec.flushes < len(chunks) {
		t.Errorf("flushes = %d, want at least %d", rec.flushes, len(chunks))
	}
}

func TestRelayMirrorsUpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("data: {\"error\":\"bad\"}\n\n"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 5*time.Second)
	handle, err := client.ForwardInference(context.Background(), InferenceRequest{
		Pathname: "/v1/responses",
		Body:     map[string]any{"stream": true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := echo.New()
	rec := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/ai/responses", nil), rec)

	if err := Relay(handle, c); err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want mirrored 400", rec.Code)
	}
}

// failingWriter accepts the first write then reports the client gone.
type failingWriter struct {
	header http.Header
	wrote  bool
}

func (w *failingWriter) Header() http.Header  { return w.header }
func (w *failingWriter) WriteHeader(code int) {}
func (w *failingWriter) Flush()               {}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.wrote {
		return 0, errors.New("client disconnected")
	}
	w.wrote = true
	return len(p), nil
}

func TestRelayCancelsUpstreamOnClientDisconnect(t *testing.T) {
	upstreamCancelled := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for {
			select {
			case <-r.Context().Done():
				close(upstreamCancelled)
				return
			case <-time.After(5 * time.Millisecond):
				_, _ = w.Write([]byte("data: tick\n\n"))
				flusher.Flush()
			}
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, 30*time.Second)
	handle, err := client.ForwardInference(context.Background(), InferenceRequest{
		Pathname: "/v1/responses",
		Body:     map[string]any{"stream": true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := echo.New()
	c := e.NewContext(
		httptest.NewRequest(http.MethodPost, "/ai/responses", nil),
		&failingWriter{header: http.Header{}},
	)

	if err := Relay(handle, c); err != nil {
		t.Fatalf("relay after disconnect should not error, got %v", err)
	}

	select {
	case <-upstreamCancelled:
	case <-time.After(2 * time.Second):
		t.Error("upstream read kept running after client disconnect")
	}
}
