// Package refresh manages opaque rotating refresh tokens.
//
// # Token format
//
// 32 random bytes, base64url without padding. The raw value is returned to
// the caller exactly once; the store keeps only its BLAKE3 hex digest.
//
// # Atomicity
//
// Revoke and Rotate consume a row with a single guarded UPDATE
// (revoked = false AND expires_at > now). Only the writer that changes the
// row wins, so a token can be spent at most once.
package refresh
