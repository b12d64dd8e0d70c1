package famguard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/famguard/internal/audit"
	"github.com/MrEthical07/famguard/notify"
)

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "reset@example.com")
	res := env.login(t, "reset@example.com", "phone-1")
	ctx := clientCtx("203.0.113.10")

	if err := env.engine.RequestPasswordReset(ctx, "Reset@Example.com"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	alert, ok := env.alerts.last(notify.KindPasswordReset)
	if !ok || alert.Token == "" || alert.Email != "reset@example.com" {
		t.Fatalf("expected a reset link for the account, got %+v", alert)
	}
	if !alert.Expires.Equal(env.clock.Now().Add(30 * time.Minute)) {
		t.Fatalf("unexpected link expiry %v", alert.Expires)
	}

	if err := env.engine.ConfirmPasswordReset(ctx, alert.Token, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	const newPassword = "a-much-better-passphrase"
	if err := env.engine.ConfirmPasswordReset(ctx, alert.Token, newPassword); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if err := env.engine.ConfirmPasswordReset(ctx, alert.Token, newPassword); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected a spent link to fail, got %v", err)
	}

	if _, err := env.engine.Refresh(context.Background(), res.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected refresh tokens to be revoked, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "reset@example.com", testPassword, Device{ID: "phone-1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected the old password to fail, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "reset@example.com", newPassword, Device{ID: "phone-1"}); err != nil {
		t.Fatalf("login with the new password failed: %v", err)
	}

	env.sink.waitFor(t, audit.TypeResetCompleted, 2)
	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricPasswordResetRequested] != 1 || snap.Counters[MetricPasswordResetCompleted] != 1 {
		t.Fatalf("unexpected reset counters %+v", snap.Counters)
	}
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := clientCtx("203.0.113.10")

	if err := env.engine.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("expected nil for an unknown email, got %v", err)
	}
	if _, ok := env.alerts.last(notify.KindPasswordReset); ok {
		t.Fatalf("no link should be sent for an unknown email")
	}
	if err := env.engine.RequestPasswordReset(ctx, "not an email"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := env.engine.ConfirmPasswordReset(ctx, "garbage", testPassword); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected ErrResetInvalid, got %v", err)
	}
}

func TestPasswordResetLinkExpiresAndIsSuperseded(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "slow@example.com")
	ctx := clientCtx("203.0.113.10")

	if err := env.engine.RequestPasswordReset(ctx, "slow@example.com"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	first, _ := env.alerts.last(notify.KindPasswordReset)
	if err := env.engine.RequestPasswordReset(ctx, "slow@example.com"); err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	second, _ := env.alerts.last(notify.KindPasswordReset)
	if first.Token == second.Token {
		t.Fatalf("expected a fresh token per request")
	}
	if err := env.engine.ConfirmPasswordReset(ctx, first.Token, "a-much-better-passphrase"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected the superseded link to fail, got %v", err)
	}

	env.clock.Advance(31 * time.Minute)
	if err := env.engine.ConfirmPasswordReset(ctx, second.Token, "a-much-better-passphrase"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected the expired link to fail, got %v", err)
	}
	n, err := env.engine.SweepPasswordResets(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected 2 links swept, got %d, %v", n, err)
	}
}

func TestPasswordResetThrottle(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "busy@example.com")
	ctx := clientCtx("203.0.113.10")

	for i := 0; i < 3; i++ {
		if err := env.engine.RequestPasswordReset(ctx, "busy@example.com"); err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
	}
	if err := env.engine.RequestPasswordReset(ctx, "busy@example.com"); !errors.Is(err, ErrResetThrottled) {
		t.Fatalf("expected ErrResetThrottled, got %v", err)
	}
}
