package famguard

import (
	"context"

	"github.com/MrEthical07/famguard/internal/audit"
)

// AuditEvent is one security event as delivered to an AuditSink.
type AuditEvent = audit.Event

// AuditSink receives audit events on the dispatcher goroutine.
type AuditSink = audit.Sink

// NewJSONWriterSink, NewSlogSink and NewChannelSink expose the stock sinks.
var (
	NewJSONWriterSink = audit.NewJSONWriterSink
	NewSlogSink       = audit.NewSlogSink
	NewChannelSink    = audit.NewChannelSink
)

// emitAudit stamps the request IP and queues ev. meta may be nil; it is
// only called when an audit pipeline exists.
func (e *Engine) emitAudit(ctx context.Context, ev audit.Event, meta func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	if ev.IP == "" {
		ev.IP = clientIPFromContext(ctx)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now().UTC()
	}
	if meta != nil {
		ev.Metadata = meta()
	}
	e.audit.Emit(ctx, ev)
}

// AuditDropped reports events discarded because the audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}
