package famguard

import "errors"

var (
	// ErrUnauthenticated covers every access-token validation failure. The
	// cause is logged, never returned.
	ErrUnauthenticated = errors.New("unauthorized")
	// ErrInvalidCredentials is returned for an unknown email, a wrong
	// password and an inactive account alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginThrottled means the (email, ip) pair hit the failure threshold.
	ErrLoginThrottled = errors.New("too many attempts, try again later")
	// ErrSignupThrottled means too many accounts were registered from the
	// client address.
	ErrSignupThrottled = errors.New("too many sign-ups, try again later")
	// ErrForbidden is a permission denial.
	ErrForbidden = errors.New("forbidden")
	// ErrCSRFInvalid is a missing, unknown or expired CSRF token.
	ErrCSRFInvalid = errors.New("csrf token invalid")
	// ErrProfileAmbiguous means no target profile was named and none could
	// be chosen unambiguously.
	ErrProfileAmbiguous = errors.New("target profile ambiguous")
	// ErrProfileNotFound is an unknown profile id.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrRefreshInvalid is an unknown, revoked or expired refresh token.
	ErrRefreshInvalid = errors.New("refresh token invalid")
	// ErrSessionNotFound is an unknown or revoked session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrDeviceBlocked is a request or refresh on a blocked device. Login
	// from one answers ErrInvalidCredentials.
	ErrDeviceBlocked = errors.New("device blocked")
	// ErrDeviceUnidentified means neither a device id nor a user agent was sent.
	ErrDeviceUnidentified = errors.New("device cannot be identified")
	// ErrAccountExists is a registration for a taken email.
	ErrAccountExists = errors.New("account already exists")
	// ErrResetInvalid is an unknown, expired or already used reset token.
	ErrResetInvalid = errors.New("reset token invalid")
	// ErrResetThrottled means too many reset links were requested for the
	// email or from the address.
	ErrResetThrottled = errors.New("too many reset requests, try again later")
	// ErrPasswordPolicy is a password outside the length bounds.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrInvalidInput is a malformed request field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAlreadyInFamily is returned when a user who already belongs to a
	// family tries to create or join another.
	ErrAlreadyInFamily = errors.New("user already belongs to a family")
	// ErrNotInFamily is returned for family operations by a user who has not
	// joined one.
	ErrNotInFamily = errors.New("user has not joined a family")
	// ErrInviteInvalid is an unknown, expired or already answered invite, or
	// one addressed to another email.
	ErrInviteInvalid = errors.New("invite invalid")
	// ErrShareNotFound is an unknown data share.
	ErrShareNotFound = errors.New("share not found")
	// ErrConflict is a duplicate grant.
	ErrConflict = errors.New("already exists")
	// ErrUserNotFound is an unknown user id.
	ErrUserNotFound = errors.New("user not found")
	// ErrEngineNotReady is returned by a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
