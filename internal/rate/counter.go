package rate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Counter counts events per key over a rolling window.
type Counter interface {
	// Add records one event now and returns the count in (now-window, now].
	Add(ctx context.Context, key string, window time.Duration) (int, error)
	// Count returns the count in (now-window, now] without recording.
	Count(ctx context.Context, key string, window time.Duration) (int, error)
	// Reset forgets every event recorded under key.
	Reset(ctx context.Context, key string) error
}

// RedisCounter keeps one sorted set per key, scored by event time in
// milliseconds. Members are unique so simultaneous events all count.
type RedisCounter struct {
	redis redis.UniversalClient
	now   func() time.Time
}

// NewRedisCounter creates a RedisCounter. now defaults to time.Now.
func NewRedisCounter(client redis.UniversalClient, now func() time.Time) *RedisCounter {
	if now == nil {
		now = time.Now
	}
	return &RedisCounter{redis: client, now: now}
}

func windowStart(now time.Time, window time.Duration) string {
	return strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
}

func (c *RedisCounter) Add(ctx context.Context, key string, window time.Duration) (int, error) {
	now := c.now()
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()

	var card *redis.IntCmd
	_, err := c.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, key, "-inf", windowStart(now, window))
		p.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		card = p.ZCard(ctx, key)
		p.PExpire(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(card.Val()), nil
}

func (c *RedisCounter) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	now := c.now()
	n, err := c.redis.ZCount(ctx, key, "("+windowStart(now, window), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// MemoryCounter is the process-local Counter. Counts are not shared between
// instances.
type MemoryCounter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	now    func() time.Time
}

// NewMemoryCounter creates a MemoryCounter. now defaults to time.Now.
func NewMemoryCounter(now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{events: make(map[string][]time.Time), now: now}
}

// prune drops events at or before the window start. Caller holds mu.
func (c *MemoryCounter) prune(key string, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := c.events[key][:0]
	for _, ts := range c.events[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(c.events, key)
		return nil
	}
	c.events[key] = kept
	return kept
}

func (c *MemoryCounter) Add(_ context.Context, key string, window time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	kept := append(c.prune(key, now, window), now)
	c.events[key] = kept
	return len(kept), nil
}

func (c *MemoryCounter) Count(_ context.Context, key string, window time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prune(key, c.now(), window)), nil
}

func (c *MemoryCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.events, key)
	c.mu.Unlock()
	return nil
}

// Fallback serves from primary and switches to secondary for any call the
// primary fails. Each switch is logged and reported to onFallback.
type Fallback struct {
	primary    Counter
	secondary  Counter
	logger     *slog.Logger
	onFallback func()
}

// NewFallback wires primary over secondary. logger and onFallback may be nil.
func NewFallback(primary, secondary Counter, logger *slog.Logger, onFallback func()) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger, onFallback: onFallback}
}

func (f *Fallback) degrade(op, key string, err error) {
	f.logger.Warn("rate counter degraded to memory", "op", op, "key", key, "error", err)
	if f.onFallback != nil {
		f.onFallback()
	}
}

func (f *Fallback) Add(ctx context.Context, key string, window time.Duration) (int, error) {
	n, err := f.primary.Add(ctx, key, window)
	if err == nil {
		return n, nil
	}
	f.degrade("add", key, err)
	return f.secondary.Add(ctx, key, window)
}

func (f *Fallback) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	n, err := f.primary.Count(ctx, key, window)
	if err == nil {
		return n, nil
	}
	f.degrade("count", key, err)
	return f.secondary.Count(ctx, key, window)
}

// Reset clears both tiers so a key counted during an outage does not
// resurface once the primary recovers.
func (f *Fallback) Reset(ctx context.Context, key string) error {
	secondaryErr := f.secondary.Reset(ctx, key)
	if err := f.primary.Reset(ctx, key); err != nil {
		f.degrade("reset", key, err)
	}
	return secondaryErr
}

// Select picks the counter at startup: redis with a memory fallback when a
// client is configured, memory alone otherwise.
func Select(client redis.UniversalClient, logger *slog.Logger, now func() time.Time, onFallback func()) Counter {
	memory := NewMemoryCounter(now)
	if client == nil {
		return memory
	}
	return NewFallback(NewRedisCounter(client, now), memory, logger, onFallback)
}
