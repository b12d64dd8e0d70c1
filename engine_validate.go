package famguard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/famguard/family"
	"github.com/MrEthical07/famguard/internal"
	"github.com/MrEthical07/famguard/internal/audit"
	"github.com/MrEthical07/famguard/internal/stores"
	"github.com/MrEthical07/famguard/permission"
	"github.com/MrEthical07/famguard/session"
)

// Authenticate validates an access token and returns its principal.
//
// Checks run in order: blacklist (fails open when the cache is down),
// signature and expiry, account active, device session live and unblocked.
// Every validation failure returns an error matching ErrUnauthenticated; a
// blocked session additionally matches ErrDeviceBlocked. Store failures are
// returned as-is so callers can tell them from a bad token.
func (e *Engine) Authenticate(ctx context.Context, raw string) (Principal, error) {
	if e == nil || e.tokens == nil {
		return Principal{}, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricAuthLatency, time.Since(start))
		}
	}()

	p, err := e.authenticate(ctx, raw)
	if err != nil {
		e.metricInc(MetricAuthFailure)
		return Principal{}, err
	}
	e.metricInc(MetricAuthSuccess)
	return p, nil
}

func (e *Engine) authenticate(ctx context.Context, raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrUnauthenticated
	}
	hash := internal.HashToken(raw)
	if e.revocation.IsBlacklisted(ctx, hash) {
		e.metricInc(MetricBlacklistHit)
		return Principal{}, ErrUnauthenticated
	}

	claims, err := e.tokens.Parse(raw)
	if err != nil {
		e.logger.Debug("access token rejected", "error", err)
		return Principal{}, ErrUnauthenticated
	}

	user, err := e.users.ByID(ctx, claims.UID)
	if errors.Is(err, stores.ErrNotFound) {
		return Principal{}, ErrUnauthenticated
	}
	if err != nil {
		return Principal{}, fmt.Errorf("load user: %w", err)
	}
	if !user.Active {
		return Principal{}, ErrUnauthenticated
	}

	sess, err := e.sessions.Get(ctx, claims.SID)
	if errors.Is(err, session.ErrNotFound) {
		return Principal{}, ErrUnauthenticated
	}
	if err != nil {
		return Principal{}, fmt.Errorf("load session: %w", err)
	}
	if sess.UserID != user.ID || sess.Device.ID != claims.DID || !sess.Live() {
		return Principal{}, ErrUnauthenticated
	}
	if sess.Blocked {
		e.metricInc(MetricDeviceBlocked)
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrDeviceBlocked)
	}

	p := Principal{
		UserID:      user.ID,
		Email:       user.Email,
		FamilyID:    user.FamilyID,
		AccountType: user.AccountType,
		SessionID:   sess.ID,
		DeviceID:    sess.Device.ID,
		TokenID:     claims.ID,
		TokenHash:   hash,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// Authorize asks the permission engine whether p may perform action on
// profileID. A denial is a Decision with Allowed=false and a nil error.
// Service principals never hold profile permissions.
func (e *Engine) Authorize(ctx context.Context, p Principal, action family.Action, profileID int64) (permission.Decision, error) {
	if e == nil || e.permissions == nil {
		return permission.Decision{}, ErrEngineNotReady
	}
	if p.Service {
		d := permission.Decision{Rule: permission.RuleNone, Reason: "service credential holds no profile permissions"}
		e.recordDecision(ctx, p, action, profileID, d)
		return d, nil
	}
	d, err := e.permissions.Check(ctx, p.Actor(), action, profileID)
	if err != nil {
		return permission.Decision{}, err
	}
	e.recordDecision(ctx, p, action, profileID, d)
	return d, nil
}

func (e *Engine) recordDecision(ctx context.Context, p Principal, action family.Action, profileID int64, d permission.Decision) {
	if d.Allowed {
		e.metricInc(MetricPermissionAllow)
		return
	}
	e.metricInc(MetricPermissionDeny)
	e.emitAudit(ctx, audit.Event{
		Type:      audit.TypeAccessDenied,
		UserID:    p.UserID,
		FamilyID:  p.FamilyID,
		ProfileID: profileID,
		SessionID: p.SessionID,
		DeviceID:  p.DeviceID,
		Reason:    d.Reason,
	}, func() map[string]string {
		return map[string]string{"action": string(action), "rule": string(d.Rule)}
	})
}

// ResolveProfile picks the profile a request targets. An explicit header
// value wins. Without one the caller's only owned profile is used, then an
// admin's own profile. Anything else is ErrProfileAmbiguous.
func (e *Engine) ResolveProfile(ctx context.Context, p Principal, header string) (int64, error) {
	if e == nil || e.families == nil {
		return 0, ErrEngineNotReady
	}
	if header = strings.TrimSpace(header); header != "" {
		id, err := strconv.ParseInt(header, 10, 64)
		if err != nil || id <= 0 {
			return 0, ErrInvalidInput
		}
		return id, nil
	}
	if p.Service || p.FamilyID == 0 {
		return 0, ErrProfileAmbiguous
	}

	owned, err := e.families.ProfilesOwnedBy(ctx, p.UserID, p.FamilyID)
	if err != nil {
		return 0, err
	}
	if len(owned) == 1 {
		return owned[0].ID, nil
	}
	if p.AccountType == family.AccountFamilyAdmin {
		own, ok, err := e.families.OwnProfile(ctx, p.UserID, p.FamilyID, p.AccountType)
		if err != nil {
			return 0, err
		}
		if ok {
			return own.ID, nil
		}
	}
	return 0, ErrProfileAmbiguous
}

// IssueCSRF mints a CSRF token bound to p's session.
func (e *Engine) IssueCSRF(ctx context.Context, p Principal) (string, error) {
	if e == nil || e.revocation == nil {
		return "", ErrEngineNotReady
	}
	if p.Service || p.SessionID == 0 {
		return "", ErrForbidden
	}
	return e.revocation.IssueCSRF(ctx, p.CSRFBinding())
}

// ValidateCSRF reports whether token was issued for p's session and has not
// expired. A cache outage reads as invalid.
func (e *Engine) ValidateCSRF(ctx context.Context, p Principal, token string) bool {
	if e == nil || e.revocation == nil {
		return false
	}
	ok := e.revocation.ValidateCSRF(ctx, strings.TrimSpace(token), p.CSRFBinding())
	if !ok {
		e.metricInc(MetricCSRFFailure)
	}
	return ok
}
