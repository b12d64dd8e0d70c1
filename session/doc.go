// Package session tracks per-device sessions and the trust placed in them.
//
// Each (user, device) pair has at most one live session row. A device can be
// trusted for a bounded period, blocked, or revoked. Login events are kept
// append-only and feed suspicious-login detection.
//
// # Architecture boundaries
//
// This package owns the [Manager] and the [Session] model. Persistence is
// behind [Store]; the relational implementation lives in internal/stores.
// It does not interpret access tokens or make permission decisions.
package session
