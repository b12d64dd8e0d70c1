package revocation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRedisCache(t *testing.T) (*miniredis.Miniredis, *Cache) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewCache(NewRedisBackend(rdb), Config{}, discardLogger())
}

func TestBlacklistIdempotentAndExpires(t *testing.T) {
	mr, c := newRedisCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.Blacklist(ctx, "abc", time.Minute); err != nil {
			t.Fatalf("Blacklist failed: %v", err)
		}
	}
	if !c.IsBlacklisted(ctx, "abc") {
		t.Fatal("expected token to be blacklisted")
	}
	if keys := mr.Keys(); len(keys) != 1 || keys[0] != "blacklist:token:abc" {
		t.Fatalf("unexpected keys %v", keys)
	}

	mr.FastForward(61 * time.Second)
	if c.IsBlacklisted(ctx, "abc") {
		t.Fatal("expected blacklist entry to expire")
	}
}

func TestBlacklistNonPositiveTTLIsNoop(t *testing.T) {
	mr, c := newRedisCache(t)
	ctx := context.Background()

	for _, ttl := range []time.Duration{0, -time.Second} {
		if err := c.Blacklist(ctx, "expired", ttl); err != nil {
			t.Fatalf("Blacklist(%v) failed: %v", ttl, err)
		}
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected no keys, got %v", mr.Keys())
	}
	if err := c.Blacklist(ctx, "", time.Minute); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestBlacklistFailsOpen(t *testing.T) {
	mr, c := newRedisCache(t)
	ctx := context.Background()
	var degraded []string
	c.OnDegraded = func(op string) { degraded = append(degraded, op) }

	if err := c.Blacklist(ctx, "abc", time.Minute); err != nil {
		t.Fatalf("Blacklist failed: %v", err)
	}
	mr.Close()

	if c.IsBlacklisted(ctx, "abc") {
		t.Fatal("expected fail-open lookup to report not blacklisted")
	}
	if len(degraded) != 1 || degraded[0] != "blacklist_check" {
		t.Fatalf("unexpected degraded ops %v", degraded)
	}
	if err := c.Blacklist(ctx, "abc", time.Minute); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable on write, got %v", err)
	}
}

func TestCSRFLifecycle(t *testing.T) {
	mr, c := newRedisCache(t)
	ctx := context.Background()

	token, err := c.IssueCSRF(ctx, "42")
	if err != nil {
		t.Fatalf("IssueCSRF failed: %v", err)
	}
	if !c.ValidateCSRF(ctx, token, "42") {
		t.Fatal("expected issued token to validate")
	}
	if c.ValidateCSRF(ctx, token, "43") {
		t.Fatal("expected token bound to another session to fail")
	}
	if c.ValidateCSRF(ctx, "not-a-token", "42") {
		t.Fatal("expected malformed token to fail")
	}
	if ttl := mr.TTL("csrf:token:42:" + token); ttl != DefaultCSRFTTL {
		t.Fatalf("expected ttl %v, got %v", DefaultCSRFTTL, ttl)
	}

	if err := c.RevokeCSRF(ctx, token, "42"); err != nil {
		t.Fatalf("RevokeCSRF failed: %v", err)
	}
	if c.ValidateCSRF(ctx, token, "42") {
		t.Fatal("expected revoked token to fail")
	}

	unbound, err := c.IssueCSRF(ctx, "")
	if err != nil {
		t.Fatalf("IssueCSRF failed: %v", err)
	}
	if !mr.Exists("csrf:token:" + unbound) {
		t.Fatal("expected unbound key layout")
	}
	mr.FastForward(DefaultCSRFTTL)
	if c.ValidateCSRF(ctx, unbound, "") {
		t.Fatal("expected CSRF token to expire")
	}
}

func TestCSRFFailsSafe(t *testing.T) {
	mr, c := newRedisCache(t)
	ctx := context.Background()

	token, err := c.IssueCSRF(ctx, "7")
	if err != nil {
		t.Fatalf("IssueCSRF failed: %v", err)
	}
	mr.Close()
	if c.ValidateCSRF(ctx, token, "7") {
		t.Fatal("expected CSRF validation to fail safe when backend is down")
	}
	if _, err := c.IssueCSRF(ctx, "7"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestMemoryBackendExpiresOnRead(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewMemoryBackend(func() time.Time { return now })
	c := NewCache(b, Config{CSRFTTL: 10 * time.Minute}, discardLogger())
	ctx := context.Background()

	if err := c.Blacklist(ctx, "h", time.Minute); err != nil {
		t.Fatalf("Blacklist failed: %v", err)
	}
	token, err := c.IssueCSRF(ctx, "s")
	if err != nil {
		t.Fatalf("IssueCSRF failed: %v", err)
	}
	if !c.IsBlacklisted(ctx, "h") || !c.ValidateCSRF(ctx, token, "s") {
		t.Fatal("expected both keys live")
	}

	now = now.Add(time.Minute)
	if c.IsBlacklisted(ctx, "h") {
		t.Fatal("expected blacklist entry to expire at its ttl")
	}
	if !c.ValidateCSRF(ctx, token, "s") {
		t.Fatal("expected CSRF token still live")
	}
	if b.Len() != 1 {
		t.Fatalf("expected expired key dropped on read, have %d", b.Len())
	}
}
