package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/famguard/internal/database"
	"github.com/MrEthical07/famguard/refresh"
)

const refreshColumns = "id, token_id, user_id, device_id, token_hash, expires_at, revoked, created_at"

// RefreshStore keeps refresh-token hashes in refresh_tokens.
type RefreshStore struct {
	db *database.DB
}

var _ refresh.Store = (*RefreshStore)(nil)

// NewRefreshStore creates a RefreshStore.
func NewRefreshStore(db *database.DB) *RefreshStore {
	return &RefreshStore{db: db}
}

func scanRefresh(row rowScanner) (refresh.Record, error) {
	var (
		r        refresh.Record
		deviceID sql.NullString
	)
	if err := row.Scan(&r.ID, &r.TokenID, &r.UserID, &deviceID, &r.Hash, &r.ExpiresAt, &r.Revoked, &r.CreatedAt); err != nil {
		return refresh.Record{}, err
	}
	r.DeviceID = deviceID.String
	r.ExpiresAt = r.ExpiresAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func insertRefresh(ctx context.Context, q database.Querier, r refresh.Record) (refresh.Record, error) {
	r.ExpiresAt = database.Timestamp(r.ExpiresAt)
	r.CreatedAt = database.Timestamp(r.CreatedAt)
	id, err := q.InsertReturningID(ctx,
		`INSERT INTO refresh_tokens (token_id, user_id, device_id, token_hash, expires_at, revoked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.TokenID, r.UserID, nullString(r.DeviceID), r.Hash, r.ExpiresAt, false, r.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return refresh.Record{}, fmt.Errorf("%w: refresh token", ErrConflict)
		}
		return refresh.Record{}, fmt.Errorf("failed to store refresh token: %w", err)
	}
	r.ID = id
	r.Revoked = false
	return r, nil
}

// Create inserts r. A hash collision surfaces as ErrConflict, never success.
func (s *RefreshStore) Create(ctx context.Context, r refresh.Record) (refresh.Record, error) {
	return insertRefresh(ctx, s.db, r)
}

// FindByHash returns the row for hash in any state.
func (s *RefreshStore) FindByHash(ctx context.Context, hash string) (refresh.Record, bool, error) {
	r, err := scanRefresh(s.db.QueryRowContext(ctx, "SELECT "+refreshColumns+" FROM refresh_tokens WHERE token_hash = ?", hash))
	if errors.Is(err, sql.ErrNoRows) {
		return refresh.Record{}, false, nil
	}
	if err != nil {
		return refresh.Record{}, false, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return r, true, nil
}

// consume flips revoked on the active row for hash. Only one caller can see
// RowsAffected == 1 for a given row.
func consume(ctx context.Context, q database.Querier, hash string, now time.Time) (refresh.Record, bool, error) {
	now = database.Timestamp(now)
	res, err := q.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = ? WHERE token_hash = ? AND revoked = ? AND expires_at > ?",
		true, hash, false, now)
	if err != nil {
		return refresh.Record{}, false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return refresh.Record{}, false, err
	}
	if n != 1 {
		return refresh.Record{}, false, nil
	}

	r, err := scanRefresh(q.QueryRowContext(ctx, "SELECT "+refreshColumns+" FROM refresh_tokens WHERE token_hash = ?", hash))
	if err != nil {
		return refresh.Record{}, false, fmt.Errorf("failed to reload refresh token: %w", err)
	}
	return r, true, nil
}

// Consume revokes the active row for hash.
func (s *RefreshStore) Consume(ctx context.Context, hash string, now time.Time) (refresh.Record, bool, error) {
	var (
		old refresh.Record
		ok  bool
	)
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		old, ok, err = consume(ctx, tx, hash, now)
		return err
	})
	return old, ok, err
}

// ConsumeAndCreate revokes the row for hash and inserts its replacement in
// one transaction. Nothing is inserted when the consume loses.
func (s *RefreshStore) ConsumeAndCreate(ctx context.Context, hash string, now time.Time, next func(old refresh.Record) refresh.Record) (refresh.Record, refresh.Record, bool, error) {
	var (
		old, created refresh.Record
		ok           bool
	)
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		old, ok, err = consume(ctx, tx, hash, now)
		if err != nil || !ok {
			return err
		}
		created, err = insertRefresh(ctx, tx, next(old))
		return err
	})
	if err != nil {
		return refresh.Record{}, refresh.Record{}, false, err
	}
	return old, created, ok, nil
}

// RevokeUser revokes every unrevoked row of userID.
func (s *RefreshStore) RevokeUser(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE refresh_tokens SET revoked = ? WHERE user_id = ? AND revoked = ?", true, userID, false)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

// RevokeDevice revokes every unrevoked row of userID bound to deviceID.
func (s *RefreshStore) RevokeDevice(ctx context.Context, userID int64, deviceID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = ? WHERE user_id = ? AND device_id = ? AND revoked = ?",
		true, userID, deviceID, false)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke device refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

// DeleteInactive removes revoked rows and rows expired at now.
func (s *RefreshStore) DeleteInactive(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE revoked = ? OR expires_at <= ?",
		true, database.Timestamp(now))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep refresh tokens: %w", err)
	}
	return res.RowsAffected()
}
