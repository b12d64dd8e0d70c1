package httpapi

import (
	"time"

	"github.com/MrEthical07/famguard"
	"github.com/MrEthical07/famguard/family"
)

type loginResponse struct {
	famguard.TokenPair
	UserID     int64 `json:"user_id"`
	SessionID  int64 `json:"session_id"`
	NewDevice  bool  `json:"new_device"`
	Suspicious bool  `json:"suspicious"`
}

type familyView struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	AdminUserID int64     `json:"admin_user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewFamily(f family.Family) familyView {
	return familyView{ID: f.ID, Name: f.Name, AdminUserID: f.AdminUserID, CreatedAt: f.CreatedAt}
}

type profileView struct {
	ID               int64                      `json:"id"`
	FamilyID         int64                      `json:"family_id"`
	UserID           int64                      `json:"user_id,omitempty"`
	DisplayName      string                     `json:"display_name"`
	AccountType      family.AccountType         `json:"account_type"`
	Permissions      map[family.Permission]bool `json:"permissions"`
	AllowQuickAccess bool                       `json:"allow_quick_access"`
	CreatedAt        time.Time                  `json:"created_at"`
}

func viewProfile(p family.Profile) profileView {
	return profileView{
		ID:               p.ID,
		FamilyID:         p.FamilyID,
		UserID:           p.UserID,
		DisplayName:      p.DisplayName,
		AccountType:      p.AccountType,
		Permissions:      p.Permissions,
		AllowQuickAccess: p.AllowQuickAccess,
		CreatedAt:        p.CreatedAt,
	}
}

type caregiverView struct {
	ID              int64              `json:"id"`
	ProfileID       int64              `json:"profile_id"`
	CaregiverUserID int64              `json:"caregiver_user_id"`
	AccessLevel     family.AccessLevel `json:"access_level"`
	CreatedAt       time.Time          `json:"created_at"`
}

type shareView struct {
	ID            int64                   `json:"id"`
	FromProfileID int64                   `json:"from_profile_id"`
	ToProfileID   int64                   `json:"to_profile_id"`
	Permissions   family.SharePermissions `json:"permissions"`
	ExpiresAt     *time.Time              `json:"expires_at,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

type inviteView struct {
	Code        string              `json:"code"`
	Email       string              `json:"email"`
	AccountType family.AccountType  `json:"account_type"`
	Status      family.InviteStatus `json:"status"`
	ExpiresAt   time.Time           `json:"expires_at"`
}
