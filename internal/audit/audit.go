package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Event types emitted by the engine.
const (
	TypeLoginSuccess      = "login_success"
	TypeLoginFailure      = "login_failure"
	TypeLoginThrottled    = "login_throttled"
	TypeNewDevice         = "new_device"
	TypeSuspiciousLogin   = "suspicious_login"
	TypeRefreshRotated    = "refresh_rotated"
	TypeRefreshRejected   = "refresh_rejected"
	TypeLogout            = "logout"
	TypeLogoutAll         = "logout_all"
	TypeDeviceTrusted     = "device_trusted"
	TypeDeviceUntrusted   = "device_untrusted"
	TypeDeviceBlocked     = "device_blocked"
	TypeDeviceUnblocked   = "device_unblocked"
	TypeDeviceRevoked     = "device_revoked"
	TypeAccessDenied      = "access_denied"
	TypeMassDownload      = "mass_download"
	TypeShareCreated      = "share_created"
	TypeShareRevoked      = "share_revoked"
	TypeCaregiverAdded    = "caregiver_added"
	TypeInviteCreated     = "invite_created"
	TypeInviteAccepted    = "invite_accepted"
	TypeInviteCancelled   = "invite_cancelled"
	TypeFamilyCreated     = "family_created"
	TypeUserStatusChanged = "user_status_changed"
	TypeResetRequested    = "password_reset_requested"
	TypeResetCompleted    = "password_reset_completed"
)

// Event is one security-relevant record.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"event_type"`
	UserID    int64             `json:"user_id,omitempty"`
	FamilyID  int64             `json:"family_id,omitempty"`
	ProfileID int64             `json:"profile_id,omitempty"`
	SessionID int64             `json:"session_id,omitempty"`
	DeviceID  string            `json:"device_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
}

// SlogSink logs each event at info level, or warn when Success is false.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(ctx context.Context, event Event) {
	attrs := []slog.Attr{
		slog.String("event_type", event.Type),
		slog.Bool("success", event.Success),
	}
	if event.UserID != 0 {
		attrs = append(attrs, slog.Int64("user_id", event.UserID))
	}
	if event.FamilyID != 0 {
		attrs = append(attrs, slog.Int64("family_id", event.FamilyID))
	}
	if event.ProfileID != 0 {
		attrs = append(attrs, slog.Int64("profile_id", event.ProfileID))
	}
	if event.SessionID != 0 {
		attrs = append(attrs, slog.Int64("session_id", event.SessionID))
	}
	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", event.DeviceID))
	}
	if event.IP != "" {
		attrs = append(attrs, slog.String("ip", event.IP))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.String("meta."+k, v))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// MultiSink fans each event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
