package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestAllowUntilMax(t *testing.T) {
	limiter := New("test", 3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("key:a") {
			t.Fatalf("request %d rejected below max", i+1)
		}
	}
	if limiter.Allow("key:a") {
		t.Error("request above max admitted")
	}
}

func TestBucketsAreIndependent(t *testing.T) {
	limiter := New("test", 1, time.Minute)

	if !limiter.Allow("key:a") {
		t.Fatal("first key rejected")
	}
	if !limiter.Allow("key:b") {
		t.Error("second key rejected after first key's bucket filled")
	}
}

func TestWindowReset(t *testing.T) {
	limiter := New("test", 1, time.Minute)
	now := time.Unix(1000, 0)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("key:a") {
		t.Fatal("first request rejected")
	}
	if limiter.Allow("key:a") {
		t.Fatal("second request in window admitted")
	}

	now = now.Add(time.Minute)
	if !limiter.Allow("key:a") {
		t.Error("request after window boundary rejected, count should reset")
	}
}

func TestDisabledWhenMaxZero(t *testing.T) {
	limiter := New("test", 0, time.Minute)

	for i := 0; i < 100; i++ {
		if !limiter.Allow("key:a") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

func TestAllowConcurrent(t *testing.T) {
	limiter := New("test", 50, time.Minute)

	var wg sync.WaitGroup
	admitted := make(chan struct{}, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow("key:a") {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	if count != 50 {
		t.Errorf("admitted %d requests, want exactly 50", count)
	}
}

func newKeyContext(headers map[string]string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestClientKeyPrefersAPIKey(t *testing.T) {
	c := newKeyContext(map[string]string{
		"x-api-key":     "abc123",
		"Authorization": "Bearer tok456",
	})
	if got := ClientKey(c); got != "key:abc123" {
		t.Errorf("ClientKey = %q, want key:abc123", got)
	}
}

func TestClientKeyFallsBackToBearer(t *testing.T) {
	c := newKeyContext(map[string]string{"Authorization": "Bearer tok456"})
	if got := ClientKey(c); got != "bearer:tok456" {
		t.Errorf("ClientKey = %q, want bearer:tok456", got)
	}
}

func TestClientKeyFallsBackToIP(t *testing.T) {
	c := newKeyContext(nil)
	if got := ClientKey(c); !strings.HasPrefix(got, "ip:") {
		t.Errorf("ClientKey = %q, want ip: prefix", got)
	}
}
