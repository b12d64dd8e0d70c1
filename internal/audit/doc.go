// Package audit records security events: logins, device changes, share and
// invite transitions, denials and mass downloads.
//
// The engine decides what to emit. This package only buffers and delivers
// through a [Sink] (slog, JSON lines, channel, fan-out).
package audit
