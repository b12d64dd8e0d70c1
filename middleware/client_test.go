package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:41234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := clientIP(req, false); got != "10.0.0.5" {
		t.Fatalf("expected remote addr without proxy trust, got %s", got)
	}
	if got := clientIP(req, true); got != "203.0.113.9" {
		t.Fatalf("expected first forwarded hop, got %s", got)
	}

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	if got := clientIP(req, true); got != "10.0.0.5" {
		t.Fatalf("expected fallback to remote addr, got %s", got)
	}
}

func TestClientInfoPassesThrough(t *testing.T) {
	called := false
	h := ClientInfo(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "famguard-test/1.0")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatalf("expected the next handler to run")
	}
}
