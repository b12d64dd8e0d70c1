// Package rate provides rolling-window event counters.
//
// RedisCounter shares counts across instances through one sorted set per
// key. MemoryCounter is the single-process stand-in. Fallback layers the two
// so a redis outage degrades throttling to per-instance counts instead of
// disabling it.
//
// Policies (thresholds, key layout) live in internal/limiters.
package rate
