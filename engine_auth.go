package famguard

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"github.com/MrEthical07/famguard/family"
	"github.com/MrEthical07/famguard/internal"
	"github.com/MrEthical07/famguard/internal/audit"
	"github.com/MrEthical07/famguard/internal/limiters"
	"github.com/MrEthical07/famguard/internal/stores"
	"github.com/MrEthical07/famguard/jwt"
	"github.com/MrEthical07/famguard/password"
	"github.com/MrEthical07/famguard/refresh"
	"github.com/MrEthical07/famguard/session"
)

const maxEmailLength = 254

func normalizeEmail(raw string) (string, error) {
	email := internal.NormalizeEmail(raw)
	if email == "" || len(email) > maxEmailLength {
		return "", ErrInvalidInput
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidInput
	}
	return email, nil
}

// Register creates an active, unverified account outside any family.
// Registrations are capped per client address.
func (e *Engine) Register(ctx context.Context, email, pass string) (family.User, error) {
	if e == nil || e.users == nil {
		return family.User{}, ErrEngineNotReady
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return family.User{}, err
	}
	if err := password.CheckPolicy(pass); err != nil {
		return family.User{}, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	if err := e.signups.Allow(ctx, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, limiters.ErrThrottled) {
			return family.User{}, ErrSignupThrottled
		}
		return family.User{}, err
	}
	hash, err := e.passwords.Hash(pass)
	if err != nil {
		return family.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := e.users.Create(ctx, family.User{
		Email:        email,
		PasswordHash: hash,
		Active:       true,
		AccountType:  family.AccountAdultMember,
		CreatedAt:    e.now(),
	})
	if errors.Is(err, stores.ErrConflict) {
		return family.User{}, ErrAccountExists
	}
	if err != nil {
		return family.User{}, err
	}
	return u, nil
}

// Login authenticates email and pass from the device described by d. The
// client IP and user agent are read from ctx (see WithClientIP and
// WithUserAgent).
//
// Unknown email, wrong password, inactive account and a blocked device all
// return ErrInvalidCredentials and each counts toward the throttle for
// (email, ip).
// A login from a new device or a second IP within the suspicious window
// still succeeds; it only raises an alert.
func (e *Engine) Login(ctx context.Context, email, pass string, d Device) (*LoginResult, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)
	userAgent := userAgentFromContext(ctx)
	email = internal.NormalizeEmail(email)

	if err := e.loginThrottle.Check(ctx, email, ip); err != nil {
		if errors.Is(err, limiters.ErrThrottled) {
			e.metricInc(MetricLoginThrottled)
			e.emitAudit(ctx, audit.Event{Type: audit.TypeLoginThrottled, Reason: "throttled"}, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, ErrLoginThrottled
		}
		return nil, err
	}

	deviceID, err := session.ResolveDeviceID(d, userAgent)
	if err != nil {
		return nil, ErrDeviceUnidentified
	}
	d.ID = deviceID

	user, ok, err := e.checkCredentials(ctx, email, pass)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.loginFailed(ctx, user.ID, email, ip, userAgent, deviceID)
	}
	e.maybeUpgradeHash(ctx, user, pass)

	sess, isNew, err := e.sessions.Upsert(ctx, user.ID, d, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	if sess.Blocked {
		// A blocked device gets the wrong-password answer. The reason
		// only reaches logs and audit.
		if _, err := e.loginThrottle.RecordFailure(ctx, email, ip); err != nil {
			e.logger.Warn("record login failure failed", "error", err)
		}
		e.logger.Info("login refused", "user_id", user.ID, "session_id", sess.ID, "reason", "device blocked")
		e.metricInc(MetricDeviceBlocked)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, audit.Event{
			Type:      audit.TypeLoginFailure,
			UserID:    user.ID,
			SessionID: sess.ID,
			DeviceID:  deviceID,
			Reason:    "device blocked",
		}, nil)
		return nil, ErrInvalidCredentials
	}

	if err := e.sessions.RecordLogin(ctx, session.LoginEvent{
		UserID:    user.ID,
		Email:     email,
		IPAddress: ip,
		UserAgent: userAgent,
		DeviceID:  deviceID,
		Success:   true,
	}); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	suspicious, err := e.sessions.Suspicious(ctx, user.ID, ip)
	if err != nil {
		e.logger.Warn("suspicious login check failed", "user_id", user.ID, "error", err)
		suspicious = false
	}
	if err := e.loginThrottle.Clear(ctx, email, ip); err != nil {
		e.logger.Warn("clear login failures failed", "error", err)
	}

	pair, err := e.issuePair(ctx, user.ID, sess)
	if err != nil {
		return nil, err
	}

	alertMeta := func() map[string]string {
		return map[string]string{"email": user.Email, "device_name": d.Name}
	}
	if isNew {
		e.metricInc(MetricNewDevice)
		e.emitAudit(ctx, audit.Event{Type: audit.TypeNewDevice, UserID: user.ID, SessionID: sess.ID, DeviceID: deviceID, Success: true}, alertMeta)
	}
	if suspicious {
		e.metricInc(MetricSuspiciousLogin)
		e.emitAudit(ctx, audit.Event{Type: audit.TypeSuspiciousLogin, UserID: user.ID, SessionID: sess.ID, DeviceID: deviceID, Success: true}, alertMeta)
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, audit.Event{
		Type:      audit.TypeLoginSuccess,
		UserID:    user.ID,
		FamilyID:  user.FamilyID,
		SessionID: sess.ID,
		DeviceID:  deviceID,
		Success:   true,
	}, nil)

	return &LoginResult{
		TokenPair:  pair,
		UserID:     user.ID,
		Session:    sess,
		NewDevice:  isNew,
		Suspicious: suspicious,
	}, nil
}

// checkCredentials returns ok=false, without error, for an unknown email,
// a wrong password or an inactive account. The returned user is set when
// the email matched.
func (e *Engine) checkCredentials(ctx context.Context, email, pass string) (family.User, bool, error) {
	user, err := e.users.ByEmail(ctx, email)
	if errors.Is(err, stores.ErrNotFound) {
		e.passwords.Burn(pass)
		return family.User{}, false, nil
	}
	if err != nil {
		return family.User{}, false, err
	}
	match, err := e.passwords.Verify(pass, user.PasswordHash)
	if err != nil {
		e.logger.Warn("stored password hash unreadable", "user_id", user.ID, "error", err)
		return user, false, nil
	}
	if !match || !user.Active {
		return user, false, nil
	}
	return user, true, nil
}

func (e *Engine) loginFailed(ctx context.Context, userID int64, email, ip, userAgent, deviceID string) error {
	if _, err := e.loginThrottle.RecordFailure(ctx, email, ip); err != nil {
		e.logger.Warn("record login failure failed", "error", err)
	}
	now := e.now()
	if err := e.users.RecordFailedAttempt(ctx, email, ip, userAgent, now); err != nil {
		return err
	}
	if err := e.sessions.RecordLogin(ctx, session.LoginEvent{
		UserID:    userID,
		Email:     email,
		IPAddress: ip,
		UserAgent: userAgent,
		DeviceID:  deviceID,
		Success:   false,
		CreatedAt: now.UTC(),
	}); err != nil {
		return err
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, audit.Event{Type: audit.TypeLoginFailure, UserID: userID, DeviceID: deviceID, Reason: "invalid credentials"}, func() map[string]string {
		return map[string]string{"email": email}
	})
	return ErrInvalidCredentials
}

func (e *Engine) maybeUpgradeHash(ctx context.Context, user family.User, pass string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	stale, err := e.passwords.NeedsUpgrade(user.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := e.passwords.Hash(pass)
	if err != nil {
		return
	}
	if err := e.users.SetPasswordHash(ctx, user.ID, hash, e.now()); err != nil {
		e.logger.Warn("password hash upgrade failed", "user_id", user.ID, "error", err)
	}
}

func (e *Engine) issuePair(ctx context.Context, userID int64, sess session.Session) (TokenPair, error) {
	rt, err := e.refresh.Issue(ctx, userID, sess.Device.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return e.pairWith(userID, sess, rt)
}

func (e *Engine) pairWith(userID int64, sess session.Session, rt refresh.Issued) (TokenPair, error) {
	access, claims, err := e.tokens.Issue(jwt.AccessInput{
		UserID:    userID,
		DeviceID:  sess.Device.ID,
		SessionID: sess.ID,
	}, 0)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  claims.ExpiresAt.Time,
		RefreshToken:     rt.Token,
		RefreshExpiresAt: rt.Record.ExpiresAt,
	}, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// spent; of two concurrent calls with the same token exactly one succeeds.
// The device session the token is bound to must still be live and unblocked.
func (e *Engine) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	if e == nil || e.refresh == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	pair, err := e.refreshPair(ctx, raw)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, audit.Event{Type: audit.TypeRefreshRejected, Reason: err.Error()}, nil)
		return TokenPair{}, err
	}
	e.metricInc(MetricRefreshSuccess)
	return pair, nil
}

func (e *Engine) refreshPair(ctx context.Context, raw string) (TokenPair, error) {
	rec, err := e.refresh.Verify(ctx, raw)
	if errors.Is(err, refresh.ErrInvalid) {
		return TokenPair{}, ErrRefreshInvalid
	}
	if err != nil {
		return TokenPair{}, err
	}

	user, err := e.users.ByID(ctx, rec.UserID)
	if errors.Is(err, stores.ErrNotFound) {
		return TokenPair{}, ErrRefreshInvalid
	}
	if err != nil {
		return TokenPair{}, err
	}
	if !user.Active {
		return TokenPair{}, ErrRefreshInvalid
	}

	sess, err := e.sessions.Find(ctx, rec.UserID, rec.DeviceID)
	if errors.Is(err, session.ErrNotFound) {
		return TokenPair{}, ErrRefreshInvalid
	}
	if err != nil {
		return TokenPair{}, err
	}
	if sess.Blocked {
		return TokenPair{}, ErrDeviceBlocked
	}

	rt, err := e.refresh.Rotate(ctx, raw)
	if errors.Is(err, refresh.ErrInvalid) {
		return TokenPair{}, ErrRefreshInvalid
	}
	if err != nil {
		return TokenPair{}, err
	}
	pair, err := e.pairWith(rec.UserID, sess, rt)
	if err != nil {
		return TokenPair{}, err
	}
	e.emitAudit(ctx, audit.Event{
		Type:      audit.TypeRefreshRotated,
		UserID:    rec.UserID,
		SessionID: sess.ID,
		DeviceID:  sess.Device.ID,
		Success:   true,
	}, nil)
	return pair, nil
}

// Logout spends refreshToken. When accessToken is non-empty, still valid and
// issued to the same account it is blacklisted until Parse would reject it
// anyway, leeway included.
func (e *Engine) Logout(ctx context.Context, refreshToken, accessToken string) error {
	if e == nil || e.refresh == nil {
		return ErrEngineNotReady
	}
	rec, err := e.refresh.Revoke(ctx, refreshToken)
	if errors.Is(err, refresh.ErrInvalid) {
		return ErrRefreshInvalid
	}
	if err != nil {
		return err
	}

	// Only an access token of the same account is blacklisted.
	if accessToken = strings.TrimSpace(accessToken); accessToken != "" {
		if claims, err := e.tokens.Parse(accessToken); err == nil && claims.UID == rec.UserID {
			if err := e.revocation.Blacklist(ctx, internal.HashToken(accessToken), e.tokens.Remaining(claims)); err != nil {
				e.logger.Warn("blacklist access token failed", "error", err)
			}
		}
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, audit.Event{Type: audit.TypeLogout, UserID: rec.UserID, DeviceID: rec.DeviceID, Success: true}, nil)
	return nil
}

// LogoutAll revokes every refresh token of p and blacklists the access token
// p was authenticated with. Other access tokens already issued stay valid
// until they expire.
func (e *Engine) LogoutAll(ctx context.Context, p Principal) (int64, error) {
	if e == nil || e.refresh == nil {
		return 0, ErrEngineNotReady
	}
	if p.Service || p.UserID == 0 {
		return 0, ErrForbidden
	}
	n, err := e.refresh.RevokeAllForUser(ctx, p.UserID)
	if err != nil {
		return 0, err
	}
	e.blacklistPrincipal(ctx, p)
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, audit.Event{Type: audit.TypeLogoutAll, UserID: p.UserID, SessionID: p.SessionID, DeviceID: p.DeviceID, Success: true}, func() map[string]string {
		return map[string]string{"revoked": strconv.FormatInt(n, 10)}
	})
	return n, nil
}

func (e *Engine) blacklistPrincipal(ctx context.Context, p Principal) {
	if p.TokenHash == "" {
		return
	}
	ttl := e.tokens.RemainingUntil(p.ExpiresAt)
	if err := e.revocation.Blacklist(ctx, p.TokenHash, ttl); err != nil {
		e.logger.Warn("blacklist access token failed", "user_id", p.UserID, "error", err)
	}
}
