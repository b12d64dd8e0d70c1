// Package internal contains helpers that are private to famguard: opaque
// token generation, token hashing and device id derivation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - database: dialect-aware database/sql wrapper and embedded migrations
//   - httpapi: gorilla/mux handlers for the server binary
//   - limiters: login throttle and download monitor
//   - metrics: lock-free counters and latency histograms
//   - rate: rolling-window counters (redis and in-memory)
//   - stores: relational repositories
//   - validity: effective-until evaluation
package internal
