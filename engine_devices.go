package famguard

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/famguard/internal/audit"
	"github.com/MrEthical07/famguard/session"
)

func deviceErr(err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

func (e *Engine) userPrincipal(p Principal) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if p.Service || p.UserID == 0 {
		return ErrForbidden
	}
	return nil
}

// ListDevices returns p's live device sessions with trust evaluated now.
func (e *Engine) ListDevices(ctx context.Context, p Principal) ([]DeviceInfo, error) {
	if err := e.userPrincipal(p); err != nil {
		return nil, err
	}
	sessions, err := e.sessions.List(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]DeviceInfo, 0, len(sessions))
	for _, s := range sessions {
		info := DeviceInfo{
			SessionID:      s.ID,
			Device:         s.Device,
			IPAddress:      s.IPAddress,
			Trusted:        s.TrustedAt(now),
			Blocked:        s.Blocked,
			LastActivityAt: s.LastActivityAt,
			CreatedAt:      s.CreatedAt,
			Current:        s.ID == p.SessionID,
		}
		if info.Trusted {
			info.TrustExpiresAt = s.TrustExpiresAt
		}
		out = append(out, info)
	}
	return out, nil
}

// TrustDevice marks one of p's sessions trusted for ttl, or the configured
// trust window when ttl <= 0.
func (e *Engine) TrustDevice(ctx context.Context, p Principal, sessionID int64, ttl time.Duration) error {
	if err := e.userPrincipal(p); err != nil {
		return err
	}
	if err := e.sessions.Trust(ctx, p.UserID, sessionID, ttl); err != nil {
		return deviceErr(err)
	}
	e.deviceAudit(ctx, p, audit.TypeDeviceTrusted, sessionID, nil)
	return nil
}

func (e *Engine) UntrustDevice(ctx context.Context, p Principal, sessionID int64) error {
	if err := e.userPrincipal(p); err != nil {
		return err
	}
	if err := e.sessions.Untrust(ctx, p.UserID, sessionID); err != nil {
		return deviceErr(err)
	}
	e.deviceAudit(ctx, p, audit.TypeDeviceUntrusted, sessionID, nil)
	return nil
}

// BlockDevice stops one of p's sessions from serving requests. Tokens
// issued to it fail authentication until it is unblocked.
func (e *Engine) BlockDevice(ctx context.Context, p Principal, sessionID int64) error {
	if err := e.userPrincipal(p); err != nil {
		return err
	}
	if err := e.sessions.Block(ctx, p.UserID, sessionID); err != nil {
		return deviceErr(err)
	}
	e.metricInc(MetricDeviceBlocked)
	e.deviceAudit(ctx, p, audit.TypeDeviceBlocked, sessionID, nil)
	return nil
}

func (e *Engine) UnblockDevice(ctx context.Context, p Principal, sessionID int64) error {
	if err := e.userPrincipal(p); err != nil {
		return err
	}
	if err := e.sessions.Unblock(ctx, p.UserID, sessionID); err != nil {
		return deviceErr(err)
	}
	e.deviceAudit(ctx, p, audit.TypeDeviceUnblocked, sessionID, nil)
	return nil
}

// RevokeDevice ends one of p's sessions and revokes the refresh tokens of
// that device. Revoking the current session also blacklists the access
// token p presented.
func (e *Engine) RevokeDevice(ctx context.Context, p Principal, sessionID int64) error {
	if err := e.userPrincipal(p); err != nil {
		return err
	}
	s, err := e.sessions.Revoke(ctx, p.UserID, sessionID)
	if err != nil {
		return deviceErr(err)
	}
	if _, err := e.refresh.RevokeDevice(ctx, p.UserID, s.Device.ID); err != nil {
		return err
	}
	if s.ID == p.SessionID {
		e.blacklistPrincipal(ctx, p)
	}
	e.metricInc(MetricDeviceRevoked)
	e.deviceAudit(ctx, p, audit.TypeDeviceRevoked, sessionID, nil)
	return nil
}

// RevokeOtherDevices ends every session of p except the current device and
// revokes their refresh tokens. It returns how many sessions ended.
func (e *Engine) RevokeOtherDevices(ctx context.Context, p Principal) (int, error) {
	if err := e.userPrincipal(p); err != nil {
		return 0, err
	}
	revoked, err := e.sessions.RevokeAll(ctx, p.UserID, p.DeviceID)
	if err != nil {
		return 0, err
	}
	for _, s := range revoked {
		if _, err := e.refresh.RevokeDevice(ctx, p.UserID, s.Device.ID); err != nil {
			return 0, err
		}
		e.metricInc(MetricDeviceRevoked)
	}
	e.deviceAudit(ctx, p, audit.TypeDeviceRevoked, 0, func() map[string]string {
		return map[string]string{"scope": "others", "count": strconv.Itoa(len(revoked))}
	})
	return len(revoked), nil
}

// BlockOtherDevices blocks every session of p except the current device.
func (e *Engine) BlockOtherDevices(ctx context.Context, p Principal) (int64, error) {
	if err := e.userPrincipal(p); err != nil {
		return 0, err
	}
	n, err := e.sessions.BlockAll(ctx, p.UserID, p.DeviceID)
	if err != nil {
		return 0, err
	}
	e.metrics.Add(MetricDeviceBlocked, uint64(n))
	e.deviceAudit(ctx, p, audit.TypeDeviceBlocked, 0, func() map[string]string {
		return map[string]string{"scope": "others", "count": strconv.FormatInt(n, 10)}
	})
	return n, nil
}

func (e *Engine) deviceAudit(ctx context.Context, p Principal, kind string, sessionID int64, meta func() map[string]string) {
	if sessionID == 0 {
		sessionID = p.SessionID
	}
	e.emitAudit(ctx, audit.Event{
		Type:      kind,
		UserID:    p.UserID,
		FamilyID:  p.FamilyID,
		SessionID: sessionID,
		DeviceID:  p.DeviceID,
		Success:   true,
	}, meta)
}
