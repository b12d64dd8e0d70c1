// Package limiters applies throttling policy on top of internal/rate
// counters.
//
//   - [LoginThrottle] blocks an (email, ip) pair after too many failed logins
//     in a rolling window. Only failures count and only Clear forgets them.
//   - [DownloadMonitor] flags users pulling records in bulk. It never blocks.
//   - [ResetThrottle] caps password reset links per email and per address.
//   - [SignupThrottle] caps registrations per address.
//
// All are nil-safe: methods on a nil receiver do nothing.
package limiters
