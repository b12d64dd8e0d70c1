package famguard

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/famguard/internal"
	"github.com/MrEthical07/famguard/internal/audit"
	"github.com/MrEthical07/famguard/internal/limiters"
	"github.com/MrEthical07/famguard/internal/stores"
	"github.com/MrEthical07/famguard/notify"
	"github.com/MrEthical07/famguard/password"
)

// RequestPasswordReset sends a single-use reset link to email when it
// belongs to an active account. Unknown and inactive accounts get the same
// nil result, and a failed delivery is only logged, so the caller cannot
// tell which addresses are registered.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.resets == nil {
		return ErrEngineNotReady
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := e.resetThrottle.Allow(ctx, email, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, limiters.ErrThrottled) {
			return ErrResetThrottled
		}
		return err
	}

	user, err := e.users.ByEmail(ctx, email)
	if errors.Is(err, stores.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !user.Active {
		return nil
	}

	token, err := internal.NewOpaqueToken()
	if err != nil {
		return err
	}
	now := e.now()
	link, err := e.resets.Create(ctx, stores.PasswordReset{
		UserID:    user.ID,
		Hash:      internal.HashToken(token),
		ExpiresAt: now.Add(e.config.Reset.TTL),
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("store reset link: %w", err)
	}

	if err := e.notifier.Notify(ctx, notify.Alert{
		Kind:    notify.KindPasswordReset,
		UserID:  user.ID,
		Email:   user.Email,
		IP:      clientIPFromContext(ctx),
		At:      now,
		Token:   token,
		Expires: link.ExpiresAt,
	}); err != nil {
		e.logger.Warn("reset link delivery failed", "user_id", user.ID, "error", err)
	}
	e.metricInc(MetricPasswordResetRequested)
	e.emitAudit(ctx, audit.Event{Type: audit.TypeResetRequested, UserID: user.ID, FamilyID: user.FamilyID, Success: true}, nil)
	return nil
}

// ConfirmPasswordReset spends token and sets newPassword. Every refresh
// token of the account is revoked, so all devices must sign in again once
// their access tokens expire. A password that fails the policy leaves the
// token usable.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if e == nil || e.resets == nil {
		return ErrEngineNotReady
	}
	if !internal.ValidOpaqueToken(token) {
		return ErrResetInvalid
	}
	if err := password.CheckPolicy(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	hash, err := e.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	link, ok, err := e.resets.Consume(ctx, internal.HashToken(token), e.now())
	if err != nil {
		return err
	}
	if !ok {
		e.emitAudit(ctx, audit.Event{Type: audit.TypeResetCompleted, Reason: ErrResetInvalid.Error()}, nil)
		return ErrResetInvalid
	}
	user, err := e.users.ByID(ctx, link.UserID)
	if errors.Is(err, stores.ErrNotFound) {
		return ErrResetInvalid
	}
	if err != nil {
		return err
	}
	if !user.Active {
		return ErrResetInvalid
	}

	if err := e.users.SetPasswordHash(ctx, user.ID, hash, e.now()); err != nil {
		return err
	}
	revoked, err := e.refresh.RevokeAllForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	e.metricInc(MetricPasswordResetCompleted)
	e.emitAudit(ctx, audit.Event{Type: audit.TypeResetCompleted, UserID: user.ID, FamilyID: user.FamilyID, Success: true}, func() map[string]string {
		return map[string]string{"revoked": strconv.FormatInt(revoked, 10)}
	})
	return nil
}
