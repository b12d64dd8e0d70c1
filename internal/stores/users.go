package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/famguard/family"
	"github.com/MrEthical07/famguard/internal"
	"github.com/MrEthical07/famguard/internal/database"
)

const userColumns = "id, email, password_hash, is_active, is_verified, family_id, account_type, created_at, updated_at"

// UserStore is the credential store: accounts and failed login attempts.
type UserStore struct {
	db *database.DB
}

// NewUserStore creates a UserStore.
func NewUserStore(db *database.DB) *UserStore {
	return &UserStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (family.User, error) {
	var (
		u        family.User
		familyID sql.NullInt64
		kind     string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Active, &u.Verified, &familyID, &kind, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return family.User{}, err
	}
	u.FamilyID = familyID.Int64
	u.AccountType = family.AccountType(kind)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

// Create inserts u with a normalized email. ErrConflict if the email is taken.
func (s *UserStore) Create(ctx context.Context, u family.User) (family.User, error) {
	u.Email = internal.NormalizeEmail(u.Email)
	u.CreatedAt = database.Timestamp(u.CreatedAt)
	u.UpdatedAt = u.CreatedAt

	id, err := s.db.InsertReturningID(ctx,
		`INSERT INTO users (email, password_hash, is_active, is_verified, family_id, account_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Email, u.PasswordHash, u.Active, u.Verified, nullInt64(u.FamilyID), string(u.AccountType), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return family.User{}, ErrConflict
		}
		return family.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	u.ID = id
	return u, nil
}

// ByEmail looks an account up by email, case-insensitively.
func (s *UserStore) ByEmail(ctx context.Context, email string) (family.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", internal.NormalizeEmail(email))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return family.User{}, ErrNotFound
	}
	if err != nil {
		return family.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ByID looks an account up by id.
func (s *UserStore) ByID(ctx context.Context, id int64) (family.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return family.User{}, ErrNotFound
	}
	if err != nil {
		return family.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// SetActive enables or disables an account.
func (s *UserStore) SetActive(ctx context.Context, id int64, active bool, now time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?", active, database.Timestamp(now), id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectOne(res)
}

// SetPasswordHash replaces the stored hash, e.g. after a parameter upgrade.
func (s *UserStore) SetPasswordHash(ctx context.Context, id int64, hash string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?", hash, database.Timestamp(now), id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return expectOne(res)
}

// RecordFailedAttempt appends to the failed-login log.
func (s *UserStore) RecordFailedAttempt(ctx context.Context, email, ip, userAgent string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO user_login_attempts (email, ip_address, user_agent, attempted_at) VALUES (?, ?, ?, ?)",
		internal.NormalizeEmail(email), ip, userAgent, database.Timestamp(at))
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// FailedAttemptsSince counts failed attempts for email after since.
func (s *UserStore) FailedAttemptsSince(ctx context.Context, email string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM user_login_attempts WHERE email = ? AND attempted_at > ?",
		internal.NormalizeEmail(email), database.Timestamp(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count login attempts: %w", err)
	}
	return n, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
