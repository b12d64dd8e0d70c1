// Package notify delivers security alerts to account holders: sign-ins from a
// new device, sign-ins from several addresses in a short window, and bulk
// record downloads.
//
// [LogNotifier] writes alerts to slog and is the default. [SESNotifier]
// sends them as email through Amazon SES. [AuditSink] turns the matching
// audit events into alerts so delivery runs on the audit goroutine instead of
// the request path.
package notify
