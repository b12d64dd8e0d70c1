package famguard

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/MrEthical07/famguard/family"
	"github.com/MrEthical07/famguard/internal"
	"github.com/MrEthical07/famguard/internal/audit"
	"github.com/MrEthical07/famguard/internal/stores"
	"github.com/MrEthical07/famguard/permission"
)

const (
	maxNameLength         = 100
	inviteCodeAttempts    = 3
	defaultAdminDisplayAs = "Family admin"
)

func (e *Engine) familyMember(p Principal) error {
	if e == nil || e.families == nil {
		return ErrEngineNotReady
	}
	if p.Service || p.UserID == 0 {
		return ErrForbidden
	}
	if p.FamilyID == 0 {
		return ErrNotInFamily
	}
	return nil
}

func cleanName(name, fallback string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallback
	}
	if name == "" || len(name) > maxNameLength {
		return "", ErrInvalidInput
	}
	return name, nil
}

// familyProfile loads id and hides profiles of other families behind
// ErrProfileNotFound.
func (e *Engine) familyProfile(ctx context.Context, p Principal, id int64) (family.Profile, error) {
	prof, err := e.families.Profile(ctx, id)
	if errors.Is(err, permission.ErrProfileNotFound) {
		return family.Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return family.Profile{}, err
	}
	if prof.FamilyID != p.FamilyID {
		return family.Profile{}, ErrProfileNotFound
	}
	return prof, nil
}

func isAdmin(p Principal) bool {
	return p.AccountType == family.AccountFamilyAdmin
}

// CreateFamily creates a family with p as its admin and returns it with the
// admin's own profile. ErrAlreadyInFamily if p already belongs to one.
func (e *Engine) CreateFamily(ctx context.Context, p Principal, name, displayName string) (family.Family, family.Profile, error) {
	if e == nil || e.families == nil {
		return family.Family{}, family.Profile{}, ErrEngineNotReady
	}
	if p.Service || p.UserID == 0 {
		return family.Family{}, family.Profile{}, ErrForbidden
	}
	if p.FamilyID != 0 {
		return family.Family{}, family.Profile{}, ErrAlreadyInFamily
	}
	name, err := cleanName(name, "")
	if err != nil {
		return family.Family{}, family.Profile{}, err
	}
	displayName, err = cleanName(displayName, defaultAdminDisplayAs)
	if err != nil {
		return family.Family{}, family.Profile{}, err
	}

	fam, prof, err := e.families.CreateFamily(ctx, name, family.Profile{
		DisplayName: displayName,
		CreatedBy:   p.UserID,
		Permissions: permission.Snapshot(family.AccountFamilyAdmin),
	}, e.now())
	if errors.Is(err, stores.ErrConflict) {
		return family.Family{}, family.Profile{}, ErrAlreadyInFamily
	}
	if err != nil {
		return family.Family{}, family.Profile{}, err
	}
	e.emitAudit(ctx, audit.Event{Type: audit.TypeFamilyCreated, UserID: p.UserID, FamilyID: fam.ID, ProfileID: prof.ID, Success: true}, nil)
	return fam, prof, nil
}

// CreateProfile adds a profile without a login account to p's family, for
// example a young child. Only the family admin may create profiles, and
// never a second admin profile.
func (e *Engine) CreateProfile(ctx context.Context, p Principal, in ProfileInput) (family.Profile, error) {
	if err := e.familyMember(p); err != nil {
		return family.Profile{}, err
	}
	if !permission.AccountAllows(p.AccountType, family.PermManageFamily) {
		return family.Profile{}, ErrForbidden
	}
	if !in.AccountType.Valid() || in.AccountType == family.AccountFamilyAdmin {
		return family.Profile{}, ErrInvalidInput
	}
	name, err := cleanName(in.DisplayName, "")
	if err != nil {
		return family.Profile{}, err
	}
	return e.families.CreateProfile(ctx, family.Profile{
		FamilyID:         p.FamilyID,
		DisplayName:      name,
		AccountType:      in.AccountType,
		CreatedBy:        p.UserID,
		Permissions:      permission.Snapshot(in.AccountType),
		AllowQuickAccess: in.AllowQuickAccess,
		CreatedAt:        e.now(),
	})
}

// AddCaregiver grants caregiverUserID level access to profileID. The admin
// or the profile's owner may grant; the caregiver must be in the same
// family.
func (e *Engine) AddCaregiver(ctx context.Context, p Principal, profileID, caregiverUserID int64, level family.AccessLevel) (family.Caregiver, error) {
	if err := e.familyMember(p); err != nil {
		return family.Caregiver{}, err
	}
	if !level.Valid() || caregiverUserID <= 0 {
		return family.Caregiver{}, ErrInvalidInput
	}
	prof, err := e.familyProfile(ctx, p, profileID)
	if err != nil {
		return family.Caregiver{}, err
	}
	if !permission.AccountAllows(p.AccountType, family.PermManageCaregivers) && !prof.OwnedBy(p.UserID) {
		return family.Caregiver{}, ErrForbidden
	}
	if caregiverUserID == prof.UserID {
		return family.Caregiver{}, ErrInvalidInput
	}

	carer, err := e.users.ByID(ctx, caregiverUserID)
	if errors.Is(err, stores.ErrNotFound) {
		return family.Caregiver{}, ErrUserNotFound
	}
	if err != nil {
		return family.Caregiver{}, err
	}
	if carer.FamilyID != p.FamilyID {
		return family.Caregiver{}, ErrUserNotFound
	}

	c, err := e.families.AddCaregiver(ctx, family.Caregiver{
		ProfileID:       prof.ID,
		CaregiverUserID: carer.ID,
		AccessLevel:     level,
		CreatedBy:       p.UserID,
		CreatedAt:       e.now(),
	})
	if errors.Is(err, stores.ErrConflict) {
		return family.Caregiver{}, ErrConflict
	}
	if err != nil {
		return family.Caregiver{}, err
	}
	e.emitAudit(ctx, audit.Event{Type: audit.TypeCaregiverAdded, UserID: p.UserID, FamilyID: p.FamilyID, ProfileID: prof.ID, Success: true}, func() map[string]string {
		return map[string]string{"caregiver_user_id": strconv.FormatInt(carer.ID, 10), "access_level": string(level)}
	})
	return c, nil
}

// ShareData creates a directed share from one of p's profiles to another
// profile in the same family.
func (e *Engine) ShareData(ctx context.Context, p Principal, in ShareInput) (family.DataShare, error) {
	if err := e.familyMember(p); err != nil {
		return family.DataShare{}, err
	}
	if !permission.AccountAllows(p.AccountType, family.PermShareData) {
		return family.DataShare{}, ErrForbidden
	}
	if in.FromProfileID == in.ToProfileID {
		return family.DataShare{}, ErrInvalidInput
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(e.now()) {
		return family.DataShare{}, ErrInvalidInput
	}
	from, err := e.familyProfile(ctx, p, in.FromProfileID)
	if err != nil {
		return family.DataShare{}, err
	}
	to, err := e.familyProfile(ctx, p, in.ToProfileID)
	if err != nil {
		return family.DataShare{}, err
	}
	if !isAdmin(p) && !from.OwnedBy(p.UserID) {
		return family.DataShare{}, ErrForbidden
	}

	sh, err := e.families.CreateShare(ctx, family.DataShare{
		FamilyID:      p.FamilyID,
		FromProfileID: from.ID,
		ToProfileID:   to.ID,
		Permissions:   in.Permissions,
		CreatedBy:     p.UserID,
		CreatedAt:     e.now(),
		ExpiresAt:     in.ExpiresAt,
	})
	if err != nil {
		return family.DataShare{}, err
	}
	e.emitAudit(ctx, audit.Event{Type: audit.TypeShareCreated, UserID: p.UserID, FamilyID: p.FamilyID, ProfileID: from.ID, Success: true}, func() map[string]string {
		return map[string]string{"share_id": strconv.FormatInt(sh.ID, 10), "to_profile_id": strconv.FormatInt(to.ID, 10)}
	})
	return sh, nil
}

// RevokeShare retires a share. The admin, the share's creator and the owner
// of the source profile may revoke. Revoking twice is not an error.
func (e *Engine) RevokeShare(ctx context.Context, p Principal, shareID int64) error {
	if err := e.familyMember(p); err != nil {
		return err
	}
	sh, err := e.families.Share(ctx, shareID)
	if errors.Is(err, stores.ErrNotFound) {
		return ErrShareNotFound
	}
	if err != nil {
		return err
	}
	if sh.FamilyID != p.FamilyID {
		return ErrShareNotFound
	}
	if !isAdmin(p) && sh.CreatedBy != p.UserID {
		from, err := e.familyProfile(ctx, p, sh.FromProfileID)
		if err != nil {
			return err
		}
		if !from.OwnedBy(p.UserID) {
			return ErrForbidden
		}
	}

	changed, err := e.families.RevokeShare(ctx, sh.ID, e.now())
	if err != nil {
		return err
	}
	if changed {
		e.emitAudit(ctx, audit.Event{Type: audit.TypeShareRevoked, UserID: p.UserID, FamilyID: p.FamilyID, ProfileID: sh.FromProfileID, Success: true}, func() map[string]string {
			return map[string]string{"share_id": strconv.FormatInt(sh.ID, 10)}
		})
	}
	return nil
}

// CreateInvite invites email into p's family as kind. Admin only.
func (e *Engine) CreateInvite(ctx context.Context, p Principal, email string, kind family.AccountType) (family.Invite, error) {
	if err := e.familyMember(p); err != nil {
		return family.Invite{}, err
	}
	if !permission.AccountAllows(p.AccountType, family.PermManageFamily) {
		return family.Invite{}, ErrForbidden
	}
	if !kind.Valid() || kind == family.AccountFamilyAdmin {
		return family.Invite{}, ErrInvalidInput
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return family.Invite{}, err
	}

	now := e.now()
	for attempt := 0; ; attempt++ {
		code, err := internal.NewInviteCode()
		if err != nil {
			return family.Invite{}, err
		}
		inv, err := e.families.CreateInvite(ctx, family.Invite{
			FamilyID:    p.FamilyID,
			Code:        code,
			Email:       email,
			AccountType: kind,
			InvitedBy:   p.UserID,
			ExpiresAt:   now.Add(e.config.Invite.TTL),
			CreatedAt:   now,
		})
		if errors.Is(err, stores.ErrConflict) && attempt+1 < inviteCodeAttempts {
			continue
		}
		if err != nil {
			return family.Invite{}, err
		}
		e.emitAudit(ctx, audit.Event{Type: audit.TypeInviteCreated, UserID: p.UserID, FamilyID: p.FamilyID, Success: true}, func() map[string]string {
			return map[string]string{"email": email, "account_type": string(kind)}
		})
		return inv, nil
	}
}

// AcceptInvite moves p into the inviting family and creates p's linked
// profile. The invite must be pending, unexpired and addressed to p's email.
func (e *Engine) AcceptInvite(ctx context.Context, p Principal, code, displayName string) (family.Profile, error) {
	if e == nil || e.families == nil {
		return family.Profile{}, ErrEngineNotReady
	}
	if p.Service || p.UserID == 0 {
		return family.Profile{}, ErrForbidden
	}
	if p.FamilyID != 0 {
		return family.Profile{}, ErrAlreadyInFamily
	}
	inv, err := e.families.InviteByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if errors.Is(err, stores.ErrNotFound) {
		return family.Profile{}, ErrInviteInvalid
	}
	if err != nil {
		return family.Profile{}, err
	}
	now := e.now()
	if inv.Email != internal.NormalizeEmail(p.Email) || inv.Transition(family.InviteAccepted, now) != nil {
		return family.Profile{}, ErrInviteInvalid
	}
	name, err := cleanName(displayName, strings.SplitN(inv.Email, "@", 2)[0])
	if err != nil {
		return family.Profile{}, err
	}

	prof, ok, err := e.families.AcceptInvite(ctx, inv, family.Profile{
		UserID:      p.UserID,
		DisplayName: name,
		CreatedBy:   p.UserID,
		Permissions: permission.Snapshot(inv.AccountType),
	}, now)
	if errors.Is(err, stores.ErrConflict) {
		return family.Profile{}, ErrAlreadyInFamily
	}
	if err != nil {
		return family.Profile{}, err
	}
	if !ok {
		return family.Profile{}, ErrInviteInvalid
	}
	e.emitAudit(ctx, audit.Event{Type: audit.TypeInviteAccepted, UserID: p.UserID, FamilyID: inv.FamilyID, ProfileID: prof.ID, Success: true}, nil)
	return prof, nil
}

// CancelInvite cancels a pending invite of p's family. The admin and the
// inviter may cancel.
func (e *Engine) CancelInvite(ctx context.Context, p Principal, code string) error {
	if err := e.familyMember(p); err != nil {
		return err
	}
	inv, err := e.families.InviteByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if errors.Is(err, stores.ErrNotFound) {
		return ErrInviteInvalid
	}
	if err != nil {
		return err
	}
	if inv.FamilyID != p.FamilyID {
		return ErrInviteInvalid
	}
	if !isAdmin(p) && inv.InvitedBy != p.UserID {
		return ErrForbidden
	}
	ok, err := e.families.CancelInvite(ctx, inv.Code, e.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInviteInvalid
	}
	e.emitAudit(ctx, audit.Event{Type: audit.TypeInviteCancelled, UserID: p.UserID, FamilyID: p.FamilyID, Success: true}, nil)
	return nil
}

// RecordDownload counts one export by p. Past the threshold within the
// window the download is flagged and an alert raised; it is never refused.
func (e *Engine) RecordDownload(ctx context.Context, p Principal, profileID int64) (DownloadResult, error) {
	if e == nil || e.downloads == nil {
		return DownloadResult{}, ErrEngineNotReady
	}
	if p.Service || p.UserID == 0 {
		return DownloadResult{}, ErrForbidden
	}
	flagged, count, err := e.downloads.Record(ctx, p.UserID)
	if err != nil {
		return DownloadResult{}, err
	}
	if flagged {
		e.metricInc(MetricMassDownload)
		e.emitAudit(ctx, audit.Event{
			Type:      audit.TypeMassDownload,
			UserID:    p.UserID,
			FamilyID:  p.FamilyID,
			ProfileID: profileID,
			SessionID: p.SessionID,
			DeviceID:  p.DeviceID,
		}, func() map[string]string {
			return map[string]string{"email": p.Email, "count": strconv.Itoa(count)}
		})
	}
	return DownloadResult{Count: count, Flagged: flagged}, nil
}

// SetUserActive enables or disables an account. The service credential may
// change anyone; a family admin may change members of the family other than
// themselves. A disabled account fails login, refresh and authentication.
func (e *Engine) SetUserActive(ctx context.Context, p Principal, userID int64, active bool) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	target, err := e.users.ByID(ctx, userID)
	if errors.Is(err, stores.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if !p.Service {
		if !isAdmin(p) || p.FamilyID == 0 || target.FamilyID != p.FamilyID || target.ID == p.UserID {
			return ErrForbidden
		}
	}
	if err := e.users.SetActive(ctx, target.ID, active, e.now()); err != nil {
		return err
	}
	e.emitAudit(ctx, audit.Event{Type: audit.TypeUserStatusChanged, UserID: target.ID, FamilyID: target.FamilyID, Success: true}, func() map[string]string {
		return map[string]string{"active": strconv.FormatBool(active), "changed_by": strconv.FormatInt(p.UserID, 10)}
	})
	return nil
}
