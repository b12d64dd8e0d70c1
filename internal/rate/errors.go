package rate

import "errors"

var (
	// ErrRedisUnavailable wraps any failure talking to the shared store.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
