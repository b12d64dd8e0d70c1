package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/famguard/internal"
	"github.com/google/uuid"
)

var (
	// ErrInvalid covers a token that is malformed, unknown, revoked or expired.
	ErrInvalid = errors.New("refresh token invalid")
)

// Record is the stored form of a refresh token.
type Record struct {
	ID        int64
	TokenID   string
	UserID    int64
	DeviceID  string
	Hash      string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// ActiveAt reports whether the record can still be exchanged at now.
func (r Record) ActiveAt(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// Store persists refresh records.
type Store interface {
	// Create inserts r. A duplicate hash or token id is an error.
	Create(ctx context.Context, r Record) (Record, error)
	FindByHash(ctx context.Context, hash string) (Record, bool, error)
	// Consume revokes the active row for hash. ok is false when the row is
	// missing, already revoked or expired at now.
	Consume(ctx context.Context, hash string, now time.Time) (old Record, ok bool, err error)
	// ConsumeAndCreate runs Consume and inserts next(old) in one transaction.
	ConsumeAndCreate(ctx context.Context, hash string, now time.Time, next func(old Record) Record) (old, created Record, ok bool, err error)
	RevokeUser(ctx context.Context, userID int64) (int64, error)
	RevokeDevice(ctx context.Context, userID int64, deviceID string) (int64, error)
	// DeleteInactive removes rows that are revoked or expired at now.
	DeleteInactive(ctx context.Context, now time.Time) (int64, error)
}

// Issued is a freshly minted token. Token is the only copy of the raw value.
type Issued struct {
	Token  string
	Record Record
}

// Service issues, verifies, rotates and revokes refresh tokens.
type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewService builds a Service. now defaults to time.Now.
func NewService(store Store, ttl time.Duration, now func() time.Time) (*Service, error) {
	if store == nil {
		return nil, errors.New("refresh store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("refresh ttl must be > 0")
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, ttl: ttl, now: now}, nil
}

// TTL is the lifetime given to new tokens.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

func (s *Service) newRecord(userID int64, deviceID string) (string, Record, error) {
	raw, err := internal.NewOpaqueToken()
	if err != nil {
		return "", Record{}, err
	}
	now := s.now().UTC()
	return raw, Record{
		TokenID:   uuid.NewString(),
		UserID:    userID,
		DeviceID:  deviceID,
		Hash:      internal.HashToken(raw),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}, nil
}

// Issue creates a token for userID on deviceID (which may be empty).
func (s *Service) Issue(ctx context.Context, userID int64, deviceID string) (Issued, error) {
	raw, rec, err := s.newRecord(userID, deviceID)
	if err != nil {
		return Issued{}, err
	}
	stored, err := s.store.Create(ctx, rec)
	if err != nil {
		return Issued{}, fmt.Errorf("store refresh token: %w", err)
	}
	return Issued{Token: raw, Record: stored}, nil
}

// Verify returns the active record for raw.
func (s *Service) Verify(ctx context.Context, raw string) (Record, error) {
	if !internal.ValidOpaqueToken(raw) {
		return Record{}, ErrInvalid
	}
	rec, ok, err := s.store.FindByHash(ctx, internal.HashToken(raw))
	if err != nil {
		return Record{}, err
	}
	if !ok || !rec.ActiveAt(s.now()) {
		return Record{}, ErrInvalid
	}
	return rec, nil
}

// Rotate spends raw and issues its replacement for the same user and device.
// Of two concurrent rotations of one token exactly one succeeds.
func (s *Service) Rotate(ctx context.Context, raw string) (Issued, error) {
	if !internal.ValidOpaqueToken(raw) {
		return Issued{}, ErrInvalid
	}

	// Minted before the old row is consumed.
	nextRaw, draft, err := s.newRecord(0, "")
	if err != nil {
		return Issued{}, err
	}
	_, created, ok, err := s.store.ConsumeAndCreate(ctx, internal.HashToken(raw), s.now().UTC(), func(old Record) Record {
		draft.UserID = old.UserID
		draft.DeviceID = old.DeviceID
		return draft
	})
	if err != nil {
		return Issued{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !ok {
		return Issued{}, ErrInvalid
	}
	return Issued{Token: nextRaw, Record: created}, nil
}

// Revoke spends raw without a replacement and returns the revoked record.
func (s *Service) Revoke(ctx context.Context, raw string) (Record, error) {
	if !internal.ValidOpaqueToken(raw) {
		return Record{}, ErrInvalid
	}
	rec, ok, err := s.store.Consume(ctx, internal.HashToken(raw), s.now().UTC())
	if err != nil {
		return Record{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !ok {
		return Record{}, ErrInvalid
	}
	return rec, nil
}

// RevokeAllForUser revokes every active token of userID. Access tokens
// already issued stay valid until they expire.
func (s *Service) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	return s.store.RevokeUser(ctx, userID)
}

// RevokeDevice revokes the active tokens bound to one device of userID.
func (s *Service) RevokeDevice(ctx context.Context, userID int64, deviceID string) (int64, error) {
	return s.store.RevokeDevice(ctx, userID, deviceID)
}

// Sweep deletes expired and revoked rows. Safe to run repeatedly.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.store.DeleteInactive(ctx, s.now().UTC())
}
