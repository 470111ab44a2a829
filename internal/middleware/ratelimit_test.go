package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serve(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/motion-events", http.NoBody)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterAllowsBurst(t *testing.T) {
	h := NewRateLimiter(10, 10).Handler(okHandler())
	for i := range 10 {
		if rec := serve(h, "192.168.1.1:5000"); rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	h := NewRateLimiter(10, 5).Handler(okHandler())
	for range 5 {
		serve(h, "192.168.1.1:5000")
	}

	rec := serve(h, "192.168.1.1:5000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After 1, got %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	h := NewRateLimiter(10, 2).Handler(okHandler())
	serve(h, "10.0.0.1:1")
	serve(h, "10.0.0.1:2")

	if rec := serve(h, "10.0.0.1:3"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("10.0.0.1: expected 429, got %d", rec.Code)
	}
	if rec := serve(h, "10.0.0.2:1"); rec.Code != http.StatusOK {
		t.Errorf("10.0.0.2: expected 200, got %d", rec.Code)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(2, 1)
	rl.now = func() time.Time { return now }

	if !rl.Allow("pir-hall") {
		t.Fatal("first event should pass")
	}
	if rl.Allow("pir-hall") {
		t.Fatal("second event should be limited")
	}
	now = now.Add(500 * time.Millisecond)
	if !rl.Allow("pir-hall") {
		t.Fatal("event after refill should pass")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for range 100 {
		if !rl.Allow("k") {
			t.Fatal("disabled limiter rejected an event")
		}
	}
	var nilLimiter *RateLimiter
	if !nilLimiter.Allow("k") {
		t.Fatal("nil limiter rejected an event")
	}
}

func TestRateLimiterEvictsRefilledAtCapacity(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(1, 1)
	rl.maxBuckets = 2
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	rl.Allow("b")
	if rl.Allow("c") {
		t.Fatal("expected rejection at capacity with no refilled buckets")
	}
	now = now.Add(2 * time.Second)
	if !rl.Allow("c") {
		t.Fatal("expected refilled buckets to be evicted")
	}
	if rl.Len() != 1 {
		t.Fatalf("expected 1 tracked bucket, got %d", rl.Len())
	}
}
