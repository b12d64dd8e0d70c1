package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/famguard/internal/database"
	"github.com/MrEthical07/famguard/session"
)

const sessionColumns = `id, user_id, device_id, device_name, device_model, os_name, os_version, app_version,
	push_token, location, ip_address, user_agent, is_trusted, trust_expires_at, is_blocked,
	last_activity_at, created_at, revoked_at`

// SessionStore keeps per-device sessions and the login event log.
type SessionStore struct {
	db *database.DB
}

var _ session.Store = (*SessionStore)(nil)

// NewSessionStore creates a SessionStore.
func NewSessionStore(db *database.DB) *SessionStore {
	return &SessionStore{db: db}
}

func scanSession(row rowScanner) (session.Session, error) {
	var (
		s                  session.Session
		trustUntil, revoke sql.NullTime
	)
	err := row.Scan(&s.ID, &s.UserID, &s.Device.ID, &s.Device.Name, &s.Device.Model, &s.Device.OSName,
		&s.Device.OSVersion, &s.Device.AppVersion, &s.Device.PushToken, &s.Device.Location,
		&s.IPAddress, &s.UserAgent, &s.Trusted, &trustUntil, &s.Blocked,
		&s.LastActivityAt, &s.CreatedAt, &revoke)
	if err != nil {
		return session.Session{}, err
	}
	s.TrustExpiresAt = database.TimePtr(trustUntil)
	s.RevokedAt = database.TimePtr(revoke)
	s.LastActivityAt = s.LastActivityAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

func (s *SessionStore) querySessions(ctx context.Context, q database.Querier, query string, args ...any) ([]session.Session, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// FindLive returns the unrevoked session of (userID, deviceID).
func (s *SessionStore) FindLive(ctx context.Context, userID int64, deviceID string) (session.Session, bool, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM user_sessions WHERE user_id = ? AND device_id = ? AND revoked_at IS NULL ORDER BY id DESC LIMIT 1",
		userID, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, false, nil
	}
	if err != nil {
		return session.Session{}, false, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, true, nil
}

// Get returns a session by id in any state.
func (s *SessionStore) Get(ctx context.Context, sessionID int64) (session.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM user_sessions WHERE id = ?", sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// Create inserts a live session. A second live row for the same device
// fails with ErrConflict where the dialect enforces it with an index.
func (s *SessionStore) Create(ctx context.Context, sess session.Session) (session.Session, error) {
	sess.CreatedAt = database.Timestamp(sess.CreatedAt)
	sess.LastActivityAt = database.Timestamp(sess.LastActivityAt)
	d := sess.Device
	id, err := s.db.InsertReturningID(ctx,
		`INSERT INTO user_sessions (user_id, device_id, device_name, device_model, os_name, os_version, app_version,
			push_token, location, ip_address, user_agent, is_trusted, is_blocked, last_activity_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.UserID, d.ID, d.Name, d.Model, d.OSName, d.OSVersion, d.AppVersion,
		d.PushToken, d.Location, sess.IPAddress, sess.UserAgent, false, false, sess.LastActivityAt, sess.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return session.Session{}, ErrConflict
		}
		return session.Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	sess.ID = id
	return sess, nil
}

// Touch refreshes device metadata and last activity.
func (s *SessionStore) Touch(ctx context.Context, sessionID int64, d session.Device, ip, userAgent string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_sessions SET device_name = ?, device_model = ?, os_name = ?, os_version = ?, app_version = ?,
			push_token = ?, location = ?, ip_address = ?, user_agent = ?, last_activity_at = ?
		 WHERE id = ? AND revoked_at IS NULL`,
		d.Name, d.Model, d.OSName, d.OSVersion, d.AppVersion, d.PushToken, d.Location, ip, userAgent,
		database.Timestamp(now), sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return sessionAffected(res)
}

// SetTrust sets or clears trust on a live session of userID.
func (s *SessionStore) SetTrust(ctx context.Context, userID, sessionID int64, trusted bool, until *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE user_sessions SET is_trusted = ?, trust_expires_at = ? WHERE id = ? AND user_id = ? AND revoked_at IS NULL",
		trusted, database.NullTimestamp(until), sessionID, userID)
	if err != nil {
		return fmt.Errorf("failed to update session trust: %w", err)
	}
	return sessionAffected(res)
}

// SetBlocked sets or clears the block flag on a live session of userID.
func (s *SessionStore) SetBlocked(ctx context.Context, userID, sessionID int64, blocked bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE user_sessions SET is_blocked = ? WHERE id = ? AND user_id = ? AND revoked_at IS NULL",
		blocked, sessionID, userID)
	if err != nil {
		return fmt.Errorf("failed to update session block: %w", err)
	}
	return sessionAffected(res)
}

// SetBlockedExcept applies blocked to every live session of userID other
// than excludeDeviceID (empty excludes nothing).
func (s *SessionStore) SetBlockedExcept(ctx context.Context, userID int64, excludeDeviceID string, blocked bool) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE user_sessions SET is_blocked = ? WHERE user_id = ? AND device_id <> ? AND revoked_at IS NULL",
		blocked, userID, excludeDeviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to block sessions: %w", err)
	}
	return res.RowsAffected()
}

// Revoke ends a live session of userID and returns it.
func (s *SessionStore) Revoke(ctx context.Context, userID, sessionID int64, now time.Time) (session.Session, error) {
	var out session.Session
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE user_sessions SET revoked_at = ? WHERE id = ? AND user_id = ? AND revoked_at IS NULL",
			database.Timestamp(now), sessionID, userID)
		if err != nil {
			return fmt.Errorf("failed to revoke session: %w", err)
		}
		if err := sessionAffected(res); err != nil {
			return err
		}
		out, err = scanSession(tx.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM user_sessions WHERE id = ?", sessionID))
		return err
	})
	return out, err
}

// RevokeExcept ends every live session of userID other than excludeDeviceID
// and returns the sessions it ended.
func (s *SessionStore) RevokeExcept(ctx context.Context, userID int64, excludeDeviceID string, now time.Time) ([]session.Session, error) {
	now = database.Timestamp(now)
	var out []session.Session
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		live, err := s.querySessions(ctx, tx,
			"SELECT "+sessionColumns+" FROM user_sessions WHERE user_id = ? AND device_id <> ? AND revoked_at IS NULL ORDER BY id",
			userID, excludeDeviceID)
		if err != nil {
			return err
		}
		for _, sess := range live {
			if _, err := tx.ExecContext(ctx, "UPDATE user_sessions SET revoked_at = ? WHERE id = ?", now, sess.ID); err != nil {
				return fmt.Errorf("failed to revoke session: %w", err)
			}
			sess.RevokedAt = &now
			out = append(out, sess)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListLive lists unrevoked sessions of userID, most recently active first.
func (s *SessionStore) ListLive(ctx context.Context, userID int64) ([]session.Session, error) {
	return s.querySessions(ctx, s.db,
		"SELECT "+sessionColumns+" FROM user_sessions WHERE user_id = ? AND revoked_at IS NULL ORDER BY last_activity_at DESC, id DESC",
		userID)
}

// AppendLoginEvent writes one row to the login event log.
func (s *SessionStore) AppendLoginEvent(ctx context.Context, e session.LoginEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_login_events (user_id, email, ip_address, user_agent, device_id, success, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullInt64(e.UserID), e.Email, e.IPAddress, e.UserAgent, e.DeviceID, e.Success, database.Timestamp(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record login event: %w", err)
	}
	return nil
}

// DistinctLoginIPs returns the distinct IPs userID logged in from after since.
func (s *SessionStore) DistinctLoginIPs(ctx context.Context, userID int64, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT ip_address FROM user_login_events WHERE user_id = ? AND created_at > ? AND ip_address <> '' ORDER BY ip_address",
		userID, database.Timestamp(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query login events: %w", err)
	}
	defer rows.Close()

	var ips []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("failed to scan login event: %w", err)
		}
		ips = append(ips, ip)
	}
	return ips, rows.Err()
}

func sessionAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}
