package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrEthical07/famguard/internal/audit"
)

// Kind names an alert. Values match the audit event types they come from.
type Kind string

const (
	KindNewDevice       Kind = audit.TypeNewDevice
	KindSuspiciousLogin Kind = audit.TypeSuspiciousLogin
	KindMassDownload    Kind = audit.TypeMassDownload
	KindPasswordReset   Kind = audit.TypeResetRequested
)

// Alert is one message for one account holder.
type Alert struct {
	Kind     Kind
	UserID   int64
	Email    string
	DeviceID string
	Device   string
	IP       string
	Count    int
	At       time.Time

	// Token is the secret of a password reset link. Never logged.
	Token   string
	Expires time.Time
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to a logger.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, a Alert) error {
	n.logger.LogAttrs(ctx, slog.LevelWarn, "security alert",
		slog.String("kind", string(a.Kind)),
		slog.Int64("user_id", a.UserID),
		slog.String("device_id", a.DeviceID),
		slog.String("ip", a.IP),
		slog.Int("count", a.Count),
	)
	return nil
}

// message renders the subject and plain-text body for an alert.
func message(a Alert) (subject, body string) {
	when := a.At.UTC().Format(time.RFC1123)
	switch a.Kind {
	case KindNewDevice:
		device := a.Device
		if device == "" {
			device = "an unrecognised device"
		}
		return "New sign-in to your family account",
			fmt.Sprintf("Your account was signed in from %s (IP %s) at %s.\n\nIf this was not you, revoke the device and change your password.", device, a.IP, when)
	case KindSuspiciousLogin:
		return "Unusual sign-in activity",
			fmt.Sprintf("Your account was signed in from several network addresses within a short time, most recently %s at %s.\n\nIf this was not you, sign out of all devices and change your password.", a.IP, when)
	case KindPasswordReset:
		return "Reset your password",
			fmt.Sprintf("Use this code to choose a new password:\n\n%s\n\nIt works once and expires at %s. If you did not ask for it, ignore this message.", a.Token, a.Expires.UTC().Format(time.RFC1123))
	case KindMassDownload:
		return "Large number of health records downloaded",
			fmt.Sprintf("%d records were downloaded from your account within a few minutes, ending at %s.\n\nIf this was not you, sign out of all devices.", a.Count, when)
	default:
		return "Security notice", fmt.Sprintf("Security event %q on your account at %s.", a.Kind, when)
	}
}

// AuditSink converts alert-worthy audit events to alerts. The event must
// carry the recipient address in Metadata["email"]; others are ignored.
type AuditSink struct {
	notifier Notifier
	logger   *slog.Logger
}

func NewAuditSink(n Notifier, logger *slog.Logger) *AuditSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditSink{notifier: n, logger: logger}
}

func (s *AuditSink) Emit(ctx context.Context, ev audit.Event) {
	kind := Kind(ev.Type)
	switch kind {
	case KindNewDevice, KindSuspiciousLogin, KindMassDownload:
	default:
		return
	}
	email := ev.Metadata["email"]
	if email == "" {
		return
	}
	count, _ := strconv.Atoi(ev.Metadata["count"])
	alert := Alert{
		Kind:     kind,
		UserID:   ev.UserID,
		Email:    email,
		DeviceID: ev.DeviceID,
		Device:   ev.Metadata["device_name"],
		IP:       ev.IP,
		Count:    count,
		At:       ev.Timestamp,
	}
	if err := s.notifier.Notify(ctx, alert); err != nil {
		s.logger.Warn("security alert delivery failed", "kind", kind, "user_id", ev.UserID, "error", err)
	}
}
