package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimitByClientIP(t *testing.T) {
	handler := RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), 2, 1)

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if send("192.0.2.1:1000") != http.StatusOK || send("192.0.2.1:1001") != http.StatusOK {
		t.Fatal("requests within the burst must pass")
	}
	if send("192.0.2.1:1002") != http.StatusTooManyRequests {
		t.Fatal("request over the burst must be limited")
	}
	// Another client has its own bucket.
	if send("192.0.2.2:1000") != http.StatusOK {
		t.Fatal("a different IP must not share the bucket")
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Fatalf("clientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("clientIP with XFF = %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing nosniff header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("missing frame options header")
	}
}
