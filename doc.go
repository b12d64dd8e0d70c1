// Package famguard is the access-control and session-security core of a
// family health-tracking service.
//
// An [Engine], assembled by [Builder.Build], owns credential checks, access
// and refresh tokens, password reset links, device sessions with trust and
// blocking, login and download throttling, and the profile permission
// engine. Engine methods are safe for concurrent use.
//
// # Architecture boundaries
//
// famguard is the public surface: [Engine], [Builder], [Config] and plain
// value types such as [Principal] and [TokenPair]. Relational stores, the
// shared cache backends and audit dispatch live under internal/ or in their
// own packages and are never handed to callers.
//
// # Degraded dependencies
//
// The shared cache is optional. Without redis every instance keeps its own
// blacklist, CSRF tokens and counters. When redis is configured but failing,
// blacklist checks fail open, CSRF checks fail closed and throttle counters
// fall back to process memory. Each degradation logs a warning and bumps a
// metric; none of them surface to the caller.
package famguard
