package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/famguard/internal/audit"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

type recordingNotifier struct {
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestSESNotifierBuildsMessage(t *testing.T) {
	fake := &fakeSES{}
	n := NewSESNotifierWithClient(fake, "security@famguard.test", "Famguard")
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	err := n.Notify(context.Background(), Alert{Kind: KindNewDevice, Email: "mum@example.com", Device: "Pixel 9", IP: "203.0.113.7", At: at})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(fake.inputs) != 1 {
		t.Fatalf("expected 1 send, got %d", len(fake.inputs))
	}
	in := fake.inputs[0]
	if got := aws.ToString(in.FromEmailAddress); got != "Famguard <security@famguard.test>" {
		t.Fatalf("unexpected from %q", got)
	}
	if in.Destination.ToAddresses[0] != "mum@example.com" {
		t.Fatalf("unexpected recipient %v", in.Destination.ToAddresses)
	}
	body := aws.ToString(in.Content.Simple.Body.Text.Data)
	if !strings.Contains(body, "Pixel 9") || !strings.Contains(body, "203.0.113.7") {
		t.Fatalf("body missing device details: %s", body)
	}
}

func TestSESNotifierSkipsMissingRecipientAndWrapsErrors(t *testing.T) {
	fake := &fakeSES{err: errors.New("throttled")}
	n := NewSESNotifierWithClient(fake, "security@famguard.test", "")

	if err := n.Notify(context.Background(), Alert{Kind: KindMassDownload}); err != nil {
		t.Fatalf("expected no-op without recipient, got %v", err)
	}
	if len(fake.inputs) != 0 {
		t.Fatal("expected no send without recipient")
	}
	if err := n.Notify(context.Background(), Alert{Kind: KindMassDownload, Email: "a@b.c", Count: 25}); err == nil {
		t.Fatal("expected send error")
	}
}

func TestMessagesPerKind(t *testing.T) {
	cases := []struct {
		alert Alert
		want  string
	}{
		{Alert{Kind: KindNewDevice}, "an unrecognised device"},
		{Alert{Kind: KindSuspiciousLogin, IP: "198.51.100.2"}, "198.51.100.2"},
		{Alert{Kind: KindMassDownload, Count: 31}, "31 records"},
		{Alert{Kind: KindPasswordReset, Token: "reset-secret"}, "reset-secret"},
		{Alert{Kind: "other"}, `"other"`},
	}
	for _, tc := range cases {
		subject, body := message(tc.alert)
		if subject == "" {
			t.Fatalf("empty subject for %s", tc.alert.Kind)
		}
		if !strings.Contains(body, tc.want) {
			t.Fatalf("body for %s missing %q: %s", tc.alert.Kind, tc.want, body)
		}
	}
}

func TestAuditSinkForwardsAlertEvents(t *testing.T) {
	rec := &recordingNotifier{}
	var logs bytes.Buffer
	sink := NewAuditSink(rec, slog.New(slog.NewTextHandler(&logs, nil)))
	ctx := context.Background()

	sink.Emit(ctx, audit.Event{Type: audit.TypeLoginSuccess, Metadata: map[string]string{"email": "x@y.z"}})
	sink.Emit(ctx, audit.Event{Type: audit.TypeNewDevice})
	sink.Emit(ctx, audit.Event{
		Type:     audit.TypeMassDownload,
		UserID:   4,
		Metadata: map[string]string{"email": "x@y.z", "count": "21"},
	})
	if len(rec.alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(rec.alerts))
	}
	if a := rec.alerts[0]; a.Kind != KindMassDownload || a.Count != 21 || a.UserID != 4 {
		t.Fatalf("unexpected alert %+v", a)
	}

	rec.err = errors.New("down")
	sink.Emit(ctx, audit.Event{Type: audit.TypeSuspiciousLogin, Metadata: map[string]string{"email": "x@y.z"}})
	if !strings.Contains(logs.String(), "security alert delivery failed") {
		t.Fatalf("expected delivery failure to be logged: %s", logs.String())
	}
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := n.Notify(context.Background(), Alert{Kind: KindSuspiciousLogin}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
}

func TestLogNotifierOmitsResetToken(t *testing.T) {
	var logs bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&logs, nil)))
	if err := n.Notify(context.Background(), Alert{Kind: KindPasswordReset, UserID: 3, Token: "reset-secret"}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if strings.Contains(logs.String(), "reset-secret") {
		t.Fatalf("reset token leaked into the log: %s", logs.String())
	}
	if !strings.Contains(logs.String(), "password_reset_requested") {
		t.Fatalf("expected the alert kind in the log: %s", logs.String())
	}
}
