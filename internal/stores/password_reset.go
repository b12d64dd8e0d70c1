package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/famguard/internal/database"
)

const resetColumns = "id, user_id, token_hash, expires_at, used_at, created_at"

// PasswordReset is one reset link. Only the hash of the token is kept.
type PasswordReset struct {
	ID        int64
	UserID    int64
	Hash      string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// PasswordResetStore keeps reset links in password_resets.
type PasswordResetStore struct {
	db *database.DB
}

func NewPasswordResetStore(db *database.DB) *PasswordResetStore {
	return &PasswordResetStore{db: db}
}

func scanReset(row rowScanner) (PasswordReset, error) {
	var (
		r    PasswordReset
		used sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.Hash, &r.ExpiresAt, &used, &r.CreatedAt); err != nil {
		return PasswordReset{}, err
	}
	r.UsedAt = database.TimePtr(used)
	r.ExpiresAt = r.ExpiresAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

// Create inserts r. Earlier unused links of the same user are spent in the
// same transaction so only the newest one works.
func (s *PasswordResetStore) Create(ctx context.Context, r PasswordReset) (PasswordReset, error) {
	r.ExpiresAt = database.Timestamp(r.ExpiresAt)
	r.CreatedAt = database.Timestamp(r.CreatedAt)
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"UPDATE password_resets SET used_at = ? WHERE user_id = ? AND used_at IS NULL",
			r.CreatedAt, r.UserID); err != nil {
			return fmt.Errorf("failed to expire reset links: %w", err)
		}
		id, err := tx.InsertReturningID(ctx,
			"INSERT INTO password_resets (user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?)",
			r.UserID, r.Hash, r.ExpiresAt, r.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: reset token", ErrConflict)
			}
			return fmt.Errorf("failed to store reset link: %w", err)
		}
		r.ID = id
		return nil
	})
	if err != nil {
		return PasswordReset{}, err
	}
	r.UsedAt = nil
	return r, nil
}

// Consume marks the live link for hash used. ok is false for an unknown,
// expired or spent link; of two concurrent callers only one gets true.
func (s *PasswordResetStore) Consume(ctx context.Context, hash string, now time.Time) (PasswordReset, bool, error) {
	now = database.Timestamp(now)
	var (
		r  PasswordReset
		ok bool
	)
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE password_resets SET used_at = ? WHERE token_hash = ? AND used_at IS NULL AND expires_at > ?",
			now, hash, now)
		if err != nil {
			return fmt.Errorf("failed to consume reset link: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return nil
		}
		r, err = scanReset(tx.QueryRowContext(ctx, "SELECT "+resetColumns+" FROM password_resets WHERE token_hash = ?", hash))
		if err != nil {
			return fmt.Errorf("failed to reload reset link: %w", err)
		}
		ok = true
		return nil
	})
	if err != nil {
		return PasswordReset{}, false, err
	}
	return r, ok, nil
}

// FindByHash returns the link for hash in any state.
func (s *PasswordResetStore) FindByHash(ctx context.Context, hash string) (PasswordReset, error) {
	r, err := scanReset(s.db.QueryRowContext(ctx, "SELECT "+resetColumns+" FROM password_resets WHERE token_hash = ?", hash))
	if errors.Is(err, sql.ErrNoRows) {
		return PasswordReset{}, ErrNotFound
	}
	if err != nil {
		return PasswordReset{}, fmt.Errorf("failed to get reset link: %w", err)
	}
	return r, nil
}

// DeleteInactive removes used links and links expired at now.
func (s *PasswordResetStore) DeleteInactive(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM password_resets WHERE used_at IS NOT NULL OR expires_at <= ?",
		database.Timestamp(now))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep reset links: %w", err)
	}
	return res.RowsAffected()
}
