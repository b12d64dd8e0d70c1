package famguard

import (
	"time"

	"github.com/MrEthical07/famguard/family"
	"github.com/MrEthical07/famguard/permission"
	"github.com/MrEthical07/famguard/session"
)

// Device is the descriptor a client sends at login.
type Device = session.Device

// TokenPair is what Login and Refresh hand back to the client. The refresh
// token is only ever returned here; the server keeps its hash.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// LoginResult is a successful login.
type LoginResult struct {
	TokenPair
	UserID     int64           `json:"user_id"`
	Session    session.Session `json:"-"`
	NewDevice  bool            `json:"new_device"`
	Suspicious bool            `json:"suspicious"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID      int64
	Email       string
	FamilyID    int64
	AccountType family.AccountType
	SessionID   int64
	DeviceID    string
	TokenID     string
	// TokenHash and ExpiresAt describe the access token the request carried,
	// so it can be blacklisted for exactly its remaining lifetime.
	TokenHash string
	ExpiresAt time.Time
	// Service is set for the static service credential. A service principal
	// carries no user and holds no profile permissions.
	Service bool
}

// Actor is the principal as seen by the permission engine.
func (p Principal) Actor() permission.Actor {
	return permission.Actor{
		UserID:      p.UserID,
		FamilyID:    p.FamilyID,
		AccountType: p.AccountType,
	}
}

// CSRFBinding is the value CSRF tokens are bound to: the session id.
func (p Principal) CSRFBinding() string {
	if p.SessionID == 0 {
		return ""
	}
	return formatID(p.SessionID)
}

// DeviceInfo is one device as listed to its owner.
type DeviceInfo struct {
	SessionID      int64      `json:"session_id"`
	Device         Device     `json:"device"`
	IPAddress      string     `json:"ip_address"`
	Trusted        bool       `json:"is_trusted"`
	TrustExpiresAt *time.Time `json:"trust_expires_at,omitempty"`
	Blocked        bool       `json:"is_blocked"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	CreatedAt      time.Time  `json:"created_at"`
	Current        bool       `json:"current"`
}

// ProfileInput describes a profile to create inside the caller's family.
type ProfileInput struct {
	DisplayName      string
	AccountType      family.AccountType
	AllowQuickAccess bool
}

// ShareInput describes a data share from one of the caller's profiles.
type ShareInput struct {
	FromProfileID int64
	ToProfileID   int64
	Permissions   family.SharePermissions
	ExpiresAt     *time.Time
}

// DownloadResult reports a recorded download. Flagged downloads still
// proceed; an alert has been raised.
type DownloadResult struct {
	Count   int
	Flagged bool
}
