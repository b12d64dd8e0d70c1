package revocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any failure talking to redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Backend is a presence-only key store with per-key expiry.
type Backend interface {
	Set(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// RedisBackend stores keys in redis with SET EX semantics.
type RedisBackend struct {
	redis redis.UniversalClient
}

// NewRedisBackend wraps a redis client.
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{redis: client}
}

func (b *RedisBackend) Set(ctx context.Context, key string, ttl time.Duration) error {
	if err := b.redis.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (b *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.redis.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// MemoryBackend keeps keys in process memory. Expiry is checked on read and
// expired keys are dropped lazily.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryBackend creates an empty MemoryBackend. now defaults to time.Now.
func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{entries: make(map[string]time.Time), now: now}
}

func (b *MemoryBackend) Set(_ context.Context, key string, ttl time.Duration) error {
	b.mu.Lock()
	b.entries[key] = b.now().Add(ttl)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Exists(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	expires, ok := b.entries[key]
	if !ok {
		return false, nil
	}
	if !b.now().Before(expires) {
		delete(b.entries, key)
		return false, nil
	}
	return true, nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.entries, key)
	b.mu.Unlock()
	return nil
}

// Len reports stored keys, including expired ones not yet read.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
