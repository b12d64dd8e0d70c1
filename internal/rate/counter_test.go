package rate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCounterRollingWindow(t *testing.T) {
	_, rdb := newRedis(t)
	cases := []struct {
		name string
		make func(now func() time.Time) Counter
	}{
		{"redis", func(now func() time.Time) Counter { return NewRedisCounter(rdb, now) }},
		{"memory", func(now func() time.Time) Counter { return NewMemoryCounter(now) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			clk := newClock()
			c := tc.make(clk.Now)
			key := "test:" + tc.name
			window := 10 * time.Minute

			for i := 1; i <= 3; i++ {
				n, err := c.Add(ctx, key, window)
				if err != nil {
					t.Fatalf("Add failed: %v", err)
				}
				if n != i {
					t.Fatalf("expected count %d, got %d", i, n)
				}
				clk.Advance(time.Minute)
			}

			// First event sits exactly on the window start and no longer counts.
			clk.Advance(7 * time.Minute)
			n, err := c.Count(ctx, key, window)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if n != 2 {
				t.Fatalf("expected 2 events in window, got %d", n)
			}

			if err := c.Reset(ctx, key); err != nil {
				t.Fatalf("Reset failed: %v", err)
			}
			n, _ = c.Count(ctx, key, window)
			if n != 0 {
				t.Fatalf("expected 0 after reset, got %d", n)
			}
		})
	}
}

func TestRedisCounterSameInstantEventsAllCount(t *testing.T) {
	_, rdb := newRedis(t)
	clk := newClock()
	c := NewRedisCounter(rdb, clk.Now)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Add(ctx, "burst", time.Minute); err != nil {
				t.Errorf("Add failed: %v", err)
			}
		}()
	}
	wg.Wait()

	n, err := c.Count(ctx, "burst", time.Minute)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 20 {
		t.Fatalf("expected 20, got %d", n)
	}
}

func TestRedisCounterSetsExpiry(t *testing.T) {
	mr, rdb := newRedis(t)
	c := NewRedisCounter(rdb, nil)
	if _, err := c.Add(context.Background(), "ttl", 5*time.Minute); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if ttl := mr.TTL("ttl"); ttl <= 0 || ttl > 5*time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	mr.FastForward(6 * time.Minute)
	if mr.Exists("ttl") {
		t.Fatal("expected key to expire with the window")
	}
}

func TestRedisCounterWrapsBackendErrors(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	c := NewRedisCounter(rdb, nil)
	if _, err := c.Add(context.Background(), "k", time.Minute); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := c.Count(context.Background(), "k", time.Minute); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestFallbackDegradesToMemory(t *testing.T) {
	mr, rdb := newRedis(t)
	clk := newClock()
	fallbacks := 0
	c := Select(rdb, nil, clk.Now, func() { fallbacks++ })
	ctx := context.Background()

	if n, err := c.Add(ctx, "k", time.Minute); err != nil || n != 1 {
		t.Fatalf("Add on healthy redis: n=%d err=%v", n, err)
	}
	if fallbacks != 0 {
		t.Fatalf("unexpected fallback while redis healthy")
	}

	mr.Close()
	for i := 1; i <= 3; i++ {
		n, err := c.Add(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("Add during outage failed: %v", err)
		}
		if n != i {
			t.Fatalf("expected memory count %d, got %d", i, n)
		}
	}
	if fallbacks != 3 {
		t.Fatalf("expected 3 fallbacks, got %d", fallbacks)
	}
	if err := c.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset during outage failed: %v", err)
	}
}

func TestSelectWithoutRedisIsMemory(t *testing.T) {
	if _, ok := Select(nil, nil, nil, nil).(*MemoryCounter); !ok {
		t.Fatal("expected MemoryCounter without redis client")
	}
}
