package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/famguard/family"
	"github.com/MrEthical07/famguard/internal/database"
	"github.com/MrEthical07/famguard/permission"
)

const (
	profileColumns = "id, family_id, user_id, display_name, account_type, created_by, permissions, allow_quick_access, created_at"
	shareColumns   = "id, family_id, from_profile_id, to_profile_id, can_view, can_edit, can_delete, created_by, created_at, expires_at, revoked_at"
	inviteColumns  = "id, family_id, invite_code, email, account_type, invited_by, status, expires_at, created_at, responded_at"
)

// FamilyStore persists families, profiles, caregiver grants, data shares
// and invites. It also serves as the permission engine's Directory.
type FamilyStore struct {
	db *database.DB
}

var _ permission.Directory = (*FamilyStore)(nil)

// NewFamilyStore creates a FamilyStore.
func NewFamilyStore(db *database.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

func scanProfile(row rowScanner) (family.Profile, error) {
	var (
		p       family.Profile
		userID  sql.NullInt64
		kind    string
		rawPerm string
	)
	if err := row.Scan(&p.ID, &p.FamilyID, &userID, &p.DisplayName, &kind, &p.CreatedBy, &rawPerm, &p.AllowQuickAccess, &p.CreatedAt); err != nil {
		return family.Profile{}, err
	}
	p.UserID = userID.Int64
	p.AccountType = family.AccountType(kind)
	p.CreatedAt = p.CreatedAt.UTC()
	p.Permissions = map[family.Permission]bool{}
	if rawPerm != "" {
		if err := json.Unmarshal([]byte(rawPerm), &p.Permissions); err != nil {
			return family.Profile{}, fmt.Errorf("decode profile permissions: %w", err)
		}
	}
	return p, nil
}

func scanShare(row rowScanner) (family.DataShare, error) {
	var (
		s                  family.DataShare
		expires, revokedAt sql.NullTime
	)
	err := row.Scan(&s.ID, &s.FamilyID, &s.FromProfileID, &s.ToProfileID,
		&s.Permissions.CanView, &s.Permissions.CanEdit, &s.Permissions.CanDelete,
		&s.CreatedBy, &s.CreatedAt, &expires, &revokedAt)
	if err != nil {
		return family.DataShare{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = database.TimePtr(expires)
	s.RevokedAt = database.TimePtr(revokedAt)
	return s, nil
}

func scanInvite(row rowScanner) (family.Invite, error) {
	var (
		inv       family.Invite
		kind      string
		status    string
		responded sql.NullTime
	)
	err := row.Scan(&inv.ID, &inv.FamilyID, &inv.Code, &inv.Email, &kind, &inv.InvitedBy, &status, &inv.ExpiresAt, &inv.CreatedAt, &responded)
	if err != nil {
		return family.Invite{}, err
	}
	inv.AccountType = family.AccountType(kind)
	inv.Status = family.InviteStatus(status)
	inv.ExpiresAt = inv.ExpiresAt.UTC()
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.RespondedAt = database.TimePtr(responded)
	return inv, nil
}

func insertProfile(ctx context.Context, q database.Querier, p family.Profile) (family.Profile, error) {
	if p.Permissions == nil {
		p.Permissions = map[family.Permission]bool{}
	}
	raw, err := json.Marshal(p.Permissions)
	if err != nil {
		return family.Profile{}, fmt.Errorf("encode profile permissions: %w", err)
	}
	p.CreatedAt = database.Timestamp(p.CreatedAt)

	id, err := q.InsertReturningID(ctx,
		`INSERT INTO family_profiles (family_id, user_id, display_name, account_type, created_by, permissions, allow_quick_access, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.FamilyID, nullInt64(p.UserID), p.DisplayName, string(p.AccountType), p.CreatedBy, string(raw), p.AllowQuickAccess, p.CreatedAt)
	if err != nil {
		return family.Profile{}, fmt.Errorf("failed to create profile: %w", err)
	}
	p.ID = id
	return p, nil
}

func joinFamily(ctx context.Context, q database.Querier, userID, familyID int64, kind family.AccountType, now time.Time) error {
	res, err := q.ExecContext(ctx,
		"UPDATE users SET family_id = ?, account_type = ?, updated_at = ? WHERE id = ? AND family_id IS NULL",
		familyID, string(kind), now, userID)
	if err != nil {
		return fmt.Errorf("failed to join family: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrConflict
	}
	return nil
}

// CreateFamily creates a family administered by adminProfile.CreatedBy,
// moves the admin into it and creates the admin's own linked profile, all in
// one transaction. ErrConflict if the admin already belongs to a family.
func (s *FamilyStore) CreateFamily(ctx context.Context, name string, adminProfile family.Profile, now time.Time) (family.Family, family.Profile, error) {
	now = database.Timestamp(now)
	fam := family.Family{Name: name, AdminUserID: adminProfile.CreatedBy, CreatedAt: now}

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		id, err := tx.InsertReturningID(ctx,
			"INSERT INTO families (name, admin_user_id, created_at) VALUES (?, ?, ?)",
			fam.Name, fam.AdminUserID, fam.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create family: %w", err)
		}
		fam.ID = id

		if err := joinFamily(ctx, tx, fam.AdminUserID, fam.ID, family.AccountFamilyAdmin, now); err != nil {
			return err
		}

		adminProfile.FamilyID = fam.ID
		adminProfile.UserID = fam.AdminUserID
		adminProfile.AccountType = family.AccountFamilyAdmin
		adminProfile.CreatedAt = now
		adminProfile, err = insertProfile(ctx, tx, adminProfile)
		return err
	})
	if err != nil {
		return family.Family{}, family.Profile{}, err
	}
	return fam, adminProfile, nil
}

// Family returns a family by id.
func (s *FamilyStore) Family(ctx context.Context, id int64) (family.Family, error) {
	var f family.Family
	err := s.db.QueryRowContext(ctx, "SELECT id, name, admin_user_id, created_at FROM families WHERE id = ?", id).
		Scan(&f.ID, &f.Name, &f.AdminUserID, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return family.Family{}, ErrNotFound
	}
	if err != nil {
		return family.Family{}, fmt.Errorf("failed to get family: %w", err)
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}

// CreateProfile inserts p.
func (s *FamilyStore) CreateProfile(ctx context.Context, p family.Profile) (family.Profile, error) {
	return insertProfile(ctx, s.db, p)
}

// Profile returns a profile by id, or permission.ErrProfileNotFound.
func (s *FamilyStore) Profile(ctx context.Context, id int64) (family.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM family_profiles WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return family.Profile{}, permission.ErrProfileNotFound
	}
	if err != nil {
		return family.Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// ProfilesOwnedBy lists the profiles in familyID that userID owns, lowest id first.
func (s *FamilyStore) ProfilesOwnedBy(ctx context.Context, userID, familyID int64) ([]family.Profile, error) {
	return s.queryProfiles(ctx,
		"SELECT "+profileColumns+` FROM family_profiles
		 WHERE family_id = ? AND (user_id = ? OR (user_id IS NULL AND created_by = ?))
		 ORDER BY id`,
		familyID, userID, userID)
}

// ProfilesInFamily lists every profile of familyID, lowest id first.
func (s *FamilyStore) ProfilesInFamily(ctx context.Context, familyID int64) ([]family.Profile, error) {
	return s.queryProfiles(ctx, "SELECT "+profileColumns+" FROM family_profiles WHERE family_id = ? ORDER BY id", familyID)
}

func (s *FamilyStore) queryProfiles(ctx context.Context, query string, args ...any) ([]family.Profile, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var out []family.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// OwnProfile returns the profile that represents userID in familyID: the
// profile linked to the account, otherwise the lowest-id unlinked profile the
// user created with their own account type.
func (s *FamilyStore) OwnProfile(ctx context.Context, userID, familyID int64, kind family.AccountType) (family.Profile, bool, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM family_profiles WHERE family_id = ? AND user_id = ? ORDER BY id LIMIT 1",
		familyID, userID))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return family.Profile{}, false, fmt.Errorf("failed to get own profile: %w", err)
	}

	p, err = scanProfile(s.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+` FROM family_profiles
		 WHERE family_id = ? AND user_id IS NULL AND created_by = ? AND account_type = ?
		 ORDER BY id LIMIT 1`,
		familyID, userID, string(kind)))
	if errors.Is(err, sql.ErrNoRows) {
		return family.Profile{}, false, nil
	}
	if err != nil {
		return family.Profile{}, false, fmt.Errorf("failed to get own profile: %w", err)
	}
	return p, true, nil
}

// AddCaregiver inserts a grant. ErrConflict if the user already cares for the profile.
func (s *FamilyStore) AddCaregiver(ctx context.Context, c family.Caregiver) (family.Caregiver, error) {
	c.CreatedAt = database.Timestamp(c.CreatedAt)
	id, err := s.db.InsertReturningID(ctx,
		`INSERT INTO family_caregivers (profile_id, caregiver_user_id, access_level, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ProfileID, c.CaregiverUserID, string(c.AccessLevel), c.CreatedBy, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return family.Caregiver{}, ErrConflict
		}
		return family.Caregiver{}, fmt.Errorf("failed to add caregiver: %w", err)
	}
	c.ID = id
	return c, nil
}

// CaregiverGrant returns the grant caregiverUserID holds on profileID, if any.
func (s *FamilyStore) CaregiverGrant(ctx context.Context, caregiverUserID, profileID int64) (family.Caregiver, bool, error) {
	var (
		c     family.Caregiver
		level string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, profile_id, caregiver_user_id, access_level, created_by, created_at
		 FROM family_caregivers WHERE caregiver_user_id = ? AND profile_id = ?`,
		caregiverUserID, profileID).
		Scan(&c.ID, &c.ProfileID, &c.CaregiverUserID, &level, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return family.Caregiver{}, false, nil
	}
	if err != nil {
		return family.Caregiver{}, false, fmt.Errorf("failed to get caregiver grant: %w", err)
	}
	c.AccessLevel = family.AccessLevel(level)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, true, nil
}

// CreateShare inserts a data share.
func (s *FamilyStore) CreateShare(ctx context.Context, sh family.DataShare) (family.DataShare, error) {
	sh.CreatedAt = database.Timestamp(sh.CreatedAt)
	if sh.ExpiresAt != nil {
		t := database.Timestamp(*sh.ExpiresAt)
		sh.ExpiresAt = &t
	}
	id, err := s.db.InsertReturningID(ctx,
		`INSERT INTO family_data_shares (family_id, from_profile_id, to_profile_id, can_view, can_edit, can_delete, created_by, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sh.FamilyID, sh.FromProfileID, sh.ToProfileID,
		sh.Permissions.CanView, sh.Permissions.CanEdit, sh.Permissions.CanDelete,
		sh.CreatedBy, sh.CreatedAt, database.NullTimestamp(sh.ExpiresAt))
	if err != nil {
		return family.DataShare{}, fmt.Errorf("failed to create share: %w", err)
	}
	sh.ID = id
	return sh, nil
}

// Share returns a data share by id.
func (s *FamilyStore) Share(ctx context.Context, id int64) (family.DataShare, error) {
	sh, err := scanShare(s.db.QueryRowContext(ctx, "SELECT "+shareColumns+" FROM family_data_shares WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return family.DataShare{}, ErrNotFound
	}
	if err != nil {
		return family.DataShare{}, fmt.Errorf("failed to get share: %w", err)
	}
	return sh, nil
}

// RevokeShare stamps revoked_at. It reports false if the share was already revoked.
func (s *FamilyStore) RevokeShare(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE family_data_shares SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL",
		database.Timestamp(now), id)
	if err != nil {
		return false, fmt.Errorf("failed to revoke share: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SharesBetween lists every share from one profile to another, including inert ones.
func (s *FamilyStore) SharesBetween(ctx context.Context, fromProfileID, toProfileID int64) ([]family.DataShare, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+shareColumns+" FROM family_data_shares WHERE from_profile_id = ? AND to_profile_id = ? ORDER BY id",
		fromProfileID, toProfileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shares: %w", err)
	}
	defer rows.Close()

	var out []family.DataShare
	for rows.Next() {
		sh, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// CreateInvite inserts inv. ErrConflict on a code collision.
func (s *FamilyStore) CreateInvite(ctx context.Context, inv family.Invite) (family.Invite, error) {
	inv.CreatedAt = database.Timestamp(inv.CreatedAt)
	inv.ExpiresAt = database.Timestamp(inv.ExpiresAt)
	inv.Status = family.InvitePending
	id, err := s.db.InsertReturningID(ctx,
		`INSERT INTO family_invites (family_id, invite_code, email, account_type, invited_by, status, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.FamilyID, inv.Code, inv.Email, string(inv.AccountType), inv.InvitedBy, string(inv.Status), inv.ExpiresAt, inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return family.Invite{}, ErrConflict
		}
		return family.Invite{}, fmt.Errorf("failed to create invite: %w", err)
	}
	inv.ID = id
	return inv, nil
}

// InviteByCode returns an invite as stored; callers apply StatusAt.
func (s *FamilyStore) InviteByCode(ctx context.Context, code string) (family.Invite, error) {
	inv, err := scanInvite(s.db.QueryRowContext(ctx, "SELECT "+inviteColumns+" FROM family_invites WHERE invite_code = ?", code))
	if errors.Is(err, sql.ErrNoRows) {
		return family.Invite{}, ErrNotFound
	}
	if err != nil {
		return family.Invite{}, fmt.Errorf("failed to get invite: %w", err)
	}
	return inv, nil
}

// respondInvite moves a pending, unexpired invite to status. ok is false
// when another writer responded first or the invite lapsed.
func respondInvite(ctx context.Context, q database.Querier, code string, status family.InviteStatus, now time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE family_invites SET status = ?, responded_at = ?
		 WHERE invite_code = ? AND status = ? AND expires_at > ?`,
		string(status), now, code, string(family.InvitePending), now)
	if err != nil {
		return false, fmt.Errorf("failed to update invite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CancelInvite cancels a pending invite. It reports false if the invite is
// no longer pending at now.
func (s *FamilyStore) CancelInvite(ctx context.Context, code string, now time.Time) (bool, error) {
	return respondInvite(ctx, s.db, code, family.InviteCancelled, database.Timestamp(now))
}

// AcceptInvite marks the invite accepted, moves userID into the family with
// the invited account type and creates the user's linked profile. ok is
// false, with nothing written, when the invite was not pending at now.
func (s *FamilyStore) AcceptInvite(ctx context.Context, inv family.Invite, profile family.Profile, now time.Time) (family.Profile, bool, error) {
	now = database.Timestamp(now)
	var ok bool
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		ok, err = respondInvite(ctx, tx, inv.Code, family.InviteAccepted, now)
		if err != nil || !ok {
			return err
		}
		if err := joinFamily(ctx, tx, profile.UserID, inv.FamilyID, inv.AccountType, now); err != nil {
			return err
		}
		profile.FamilyID = inv.FamilyID
		profile.AccountType = inv.AccountType
		profile.CreatedAt = now
		profile, err = insertProfile(ctx, tx, profile)
		return err
	})
	if err != nil {
		return family.Profile{}, false, err
	}
	if !ok {
		return family.Profile{}, false, nil
	}
	return profile, true, nil
}
