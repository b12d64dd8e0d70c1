package family

import (
	"strings"
	"time"

	"github.com/MrEthical07/famguard/internal/validity"
)

// AccountType classifies a user or profile within a family.
type AccountType string

const (
	AccountFamilyAdmin    AccountType = "family_admin"
	AccountAdultMember    AccountType = "adult_member"
	AccountChild          AccountType = "child"
	AccountElderUnderCare AccountType = "elder_under_care"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountFamilyAdmin, AccountAdultMember, AccountChild, AccountElderUnderCare:
		return true
	}
	return false
}

// ParseAccountType normalizes s and validates it.
func ParseAccountType(s string) (AccountType, bool) {
	t := AccountType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// AccessLevel is the coarse level carried by a caregiver grant.
type AccessLevel string

const (
	AccessReadOnly  AccessLevel = "read_only"
	AccessReadWrite AccessLevel = "read_write"
	AccessFull      AccessLevel = "full"
)

// Valid reports whether l is a known access level.
func (l AccessLevel) Valid() bool {
	switch l {
	case AccessReadOnly, AccessReadWrite, AccessFull:
		return true
	}
	return false
}

// Action is what an actor attempts against a profile's data.
type Action string

const (
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionView || a == ActionEdit || a == ActionDelete
}

// Permission names an entry of an account type's permission set.
type Permission string

const (
	PermViewOwnData      Permission = "view_own_data"
	PermEditOwnData      Permission = "edit_own_data"
	PermDeleteOwnData    Permission = "delete_own_data"
	PermViewFamilyData   Permission = "view_family_data"
	PermEditFamilyData   Permission = "edit_family_data"
	PermManageFamily     Permission = "manage_family"
	PermManageCaregivers Permission = "manage_caregivers"
	PermShareData        Permission = "share_data"
)

// AllPermissions lists every permission in bit order.
var AllPermissions = []Permission{
	PermViewOwnData,
	PermEditOwnData,
	PermDeleteOwnData,
	PermViewFamilyData,
	PermEditFamilyData,
	PermManageFamily,
	PermManageCaregivers,
	PermShareData,
}

// User is a login account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Active       bool
	Verified     bool
	FamilyID     int64 // 0 until onboarded
	AccountType  AccountType
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InFamily reports whether the user has joined a family.
func (u User) InFamily() bool {
	return u.FamilyID != 0
}

// Family is a tenancy boundary with exactly one admin.
type Family struct {
	ID          int64
	Name        string
	AdminUserID int64
	CreatedAt   time.Time
}

// Profile is one person's data partition.
type Profile struct {
	ID          int64
	FamilyID    int64
	UserID      int64 // linked login account, 0 when the person has none
	DisplayName string
	AccountType AccountType
	CreatedBy   int64
	// Permissions is the account type's permission set captured when the
	// profile was created.
	Permissions      map[Permission]bool
	AllowQuickAccess bool
	CreatedAt        time.Time
}

// OwnedBy reports whether userID owns the profile. A linked account owns its
// profile outright; an unlinked profile belongs to whoever created it.
func (p Profile) OwnedBy(userID int64) bool {
	if userID == 0 {
		return false
	}
	if p.UserID != 0 {
		return p.UserID == userID
	}
	return p.CreatedBy == userID
}

// Caregiver delegates access to one profile to a user.
type Caregiver struct {
	ID              int64
	ProfileID       int64
	CaregiverUserID int64
	AccessLevel     AccessLevel
	CreatedBy       int64
	CreatedAt       time.Time
}

// SharePermissions is the per-action map carried by a data share.
type SharePermissions struct {
	CanView   bool `json:"can_view"`
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}

// Allows reports whether the map grants action.
func (p SharePermissions) Allows(action Action) bool {
	switch action {
	case ActionView:
		return p.CanView
	case ActionEdit:
		return p.CanEdit
	case ActionDelete:
		return p.CanDelete
	}
	return false
}

// DataShare is a directed grant from one profile to another in the same
// family. Rows are never deleted; RevokedAt and ExpiresAt retire them.
type DataShare struct {
	ID            int64
	FamilyID      int64
	FromProfileID int64
	ToProfileID   int64
	Permissions   SharePermissions
	CreatedBy     int64
	CreatedAt     time.Time
	ExpiresAt     *time.Time
	RevokedAt     *time.Time
}

// ActiveAt reports whether the share still grants anything at now.
func (s DataShare) ActiveAt(now time.Time) bool {
	return validity.Effective(s.RevokedAt == nil, s.ExpiresAt, now)
}
