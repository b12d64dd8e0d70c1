package session

import (
	"time"

	"github.com/MrEthical07/famguard/internal/validity"
)

// Device is the descriptor a client sends at login.
type Device struct {
	ID         string `json:"device_id"`
	Name       string `json:"device_name"`
	Model      string `json:"device_model"`
	OSName     string `json:"os_name"`
	OSVersion  string `json:"os_version"`
	AppVersion string `json:"app_version"`
	PushToken  string `json:"push_token"`
	Location   string `json:"location"`
}

// Session is one device's session for a user.
type Session struct {
	ID             int64
	UserID         int64
	Device         Device
	IPAddress      string
	UserAgent      string
	Trusted        bool
	TrustExpiresAt *time.Time
	Blocked        bool
	LastActivityAt time.Time
	CreatedAt      time.Time
	RevokedAt      *time.Time
}

// Live reports whether the session has not been revoked.
func (s Session) Live() bool {
	return s.RevokedAt == nil
}

// TrustedAt evaluates trust lazily; a lapsed trust window reads as untrusted
// even though the stored flag is still set.
func (s Session) TrustedAt(now time.Time) bool {
	return validity.Effective(s.Trusted, s.TrustExpiresAt, now)
}

// Usable reports whether requests may be served on the session.
func (s Session) Usable() bool {
	return s.Live() && !s.Blocked
}

// LoginEvent is one login attempt, successful or not.
type LoginEvent struct {
	UserID    int64 // 0 when the email matched no account
	Email     string
	IPAddress string
	UserAgent string
	DeviceID  string
	Success   bool
	CreatedAt time.Time
}
