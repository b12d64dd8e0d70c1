package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/famguard/internal"
)

var (
	// ErrNotFound is returned when no live session matches the request.
	ErrNotFound = errors.New("session not found")
	// ErrMissingDevice is returned when neither a device id nor a user agent
	// is available to identify the device.
	ErrMissingDevice = errors.New("device cannot be identified")
)

// DefaultSuspiciousWindow is how far back login events are compared.
const DefaultSuspiciousWindow = 60 * time.Minute

// Store persists sessions and login events. Methods addressing a single
// session are scoped to userID and must return ErrNotFound when the session
// belongs to someone else or has been revoked.
type Store interface {
	FindLive(ctx context.Context, userID int64, deviceID string) (Session, bool, error)
	Get(ctx context.Context, sessionID int64) (Session, error)
	Create(ctx context.Context, s Session) (Session, error)
	Touch(ctx context.Context, sessionID int64, d Device, ip, userAgent string, now time.Time) error
	SetTrust(ctx context.Context, userID, sessionID int64, trusted bool, until *time.Time) error
	SetBlocked(ctx context.Context, userID, sessionID int64, blocked bool) error
	SetBlockedExcept(ctx context.Context, userID int64, excludeDeviceID string, blocked bool) (int64, error)
	Revoke(ctx context.Context, userID, sessionID int64, now time.Time) (Session, error)
	RevokeExcept(ctx context.Context, userID int64, excludeDeviceID string, now time.Time) ([]Session, error)
	ListLive(ctx context.Context, userID int64) ([]Session, error)
	AppendLoginEvent(ctx context.Context, e LoginEvent) error
	DistinctLoginIPs(ctx context.Context, userID int64, since time.Time) ([]string, error)
}

// Config tunes the Manager.
type Config struct {
	DefaultTrustTTL  time.Duration
	SuspiciousWindow time.Duration
}

// Manager implements the device and session trust model.
type Manager struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// NewManager builds a Manager. Zero config fields fall back to defaults.
func NewManager(store Store, cfg Config, now func() time.Time) *Manager {
	if cfg.DefaultTrustTTL <= 0 {
		cfg.DefaultTrustTTL = 30 * 24 * time.Hour
	}
	if cfg.SuspiciousWindow <= 0 {
		cfg.SuspiciousWindow = DefaultSuspiciousWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, cfg: cfg, now: now}
}

// ResolveDeviceID returns d.ID, or one derived from userAgent when empty.
func ResolveDeviceID(d Device, userAgent string) (string, error) {
	if id := strings.TrimSpace(d.ID); id != "" {
		return id, nil
	}
	id, err := internal.DeriveDeviceID(userAgent)
	if err != nil {
		return "", ErrMissingDevice
	}
	return id, nil
}

// Upsert refreshes the live session for (userID, device) or creates one.
// isNew is true only when a row was created.
func (m *Manager) Upsert(ctx context.Context, userID int64, d Device, ip, userAgent string) (Session, bool, error) {
	deviceID, err := ResolveDeviceID(d, userAgent)
	if err != nil {
		return Session{}, false, err
	}
	d.ID = deviceID
	now := m.now().UTC()

	existing, found, err := m.store.FindLive(ctx, userID, deviceID)
	if err != nil {
		return Session{}, false, err
	}
	if found {
		return m.touch(ctx, existing, d, ip, userAgent, now)
	}

	created, createErr := m.store.Create(ctx, Session{
		UserID:         userID,
		Device:         d,
		IPAddress:      ip,
		UserAgent:      userAgent,
		LastActivityAt: now,
		CreatedAt:      now,
	})
	if createErr == nil {
		return created, true, nil
	}

	// A concurrent login for the same device may have won the insert.
	existing, found, err = m.store.FindLive(ctx, userID, deviceID)
	if err != nil || !found {
		return Session{}, false, fmt.Errorf("create session: %w", createErr)
	}
	return m.touch(ctx, existing, d, ip, userAgent, now)
}

func (m *Manager) touch(ctx context.Context, s Session, d Device, ip, userAgent string, now time.Time) (Session, bool, error) {
	if err := m.store.Touch(ctx, s.ID, d, ip, userAgent, now); err != nil {
		return Session{}, false, err
	}
	s.Device = d
	s.IPAddress = ip
	s.UserAgent = userAgent
	s.LastActivityAt = now
	return s, false, nil
}

// Find returns the live session for (userID, deviceID).
func (m *Manager) Find(ctx context.Context, userID int64, deviceID string) (Session, error) {
	s, ok, err := m.store.FindLive(ctx, userID, deviceID)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

// Get returns a session by id regardless of owner.
func (m *Manager) Get(ctx context.Context, sessionID int64) (Session, error) {
	return m.store.Get(ctx, sessionID)
}

// Trust marks the session trusted for ttl (the configured default if ttl <= 0).
func (m *Manager) Trust(ctx context.Context, userID, sessionID int64, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.cfg.DefaultTrustTTL
	}
	until := m.now().UTC().Add(ttl)
	return m.store.SetTrust(ctx, userID, sessionID, true, &until)
}

// Untrust clears trust on the session.
func (m *Manager) Untrust(ctx context.Context, userID, sessionID int64) error {
	return m.store.SetTrust(ctx, userID, sessionID, false, nil)
}

// Block stops the session from serving requests until unblocked.
func (m *Manager) Block(ctx context.Context, userID, sessionID int64) error {
	return m.store.SetBlocked(ctx, userID, sessionID, true)
}

// Unblock reverses Block.
func (m *Manager) Unblock(ctx context.Context, userID, sessionID int64) error {
	return m.store.SetBlocked(ctx, userID, sessionID, false)
}

// BlockAll blocks every live session of userID except excludeDeviceID.
func (m *Manager) BlockAll(ctx context.Context, userID int64, excludeDeviceID string) (int64, error) {
	return m.store.SetBlockedExcept(ctx, userID, excludeDeviceID, true)
}

// Revoke ends one session and returns it.
func (m *Manager) Revoke(ctx context.Context, userID, sessionID int64) (Session, error) {
	return m.store.Revoke(ctx, userID, sessionID, m.now().UTC())
}

// RevokeAll ends every live session of userID except excludeDeviceID.
func (m *Manager) RevokeAll(ctx context.Context, userID int64, excludeDeviceID string) ([]Session, error) {
	return m.store.RevokeExcept(ctx, userID, excludeDeviceID, m.now().UTC())
}

// List returns the user's live sessions, most recently active first.
func (m *Manager) List(ctx context.Context, userID int64) ([]Session, error) {
	return m.store.ListLive(ctx, userID)
}

// RecordLogin appends a login event stamped now if CreatedAt is unset.
func (m *Manager) RecordLogin(ctx context.Context, e LoginEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now().UTC()
	}
	e.Email = internal.NormalizeEmail(e.Email)
	return m.store.AppendLoginEvent(ctx, e)
}

// Suspicious reports whether userID logged in from more than one distinct
// IP within the window, with ip among them. It never blocks anything.
func (m *Manager) Suspicious(ctx context.Context, userID int64, ip string) (bool, error) {
	since := m.now().UTC().Add(-m.cfg.SuspiciousWindow)
	ips, err := m.store.DistinctLoginIPs(ctx, userID, since)
	if err != nil {
		return false, err
	}
	if len(ips) <= 1 {
		return false, nil
	}
	for _, seen := range ips {
		if seen == ip {
			return true, nil
		}
	}
	return false, nil
}
