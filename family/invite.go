package family

import (
	"errors"
	"time"

	"github.com/MrEthical07/famguard/internal/validity"
)

// InviteStatus is the lifecycle state of an invite.
type InviteStatus string

const (
	InvitePending   InviteStatus = "pending"
	InviteAccepted  InviteStatus = "accepted"
	InviteCancelled InviteStatus = "cancelled"
	InviteExpired   InviteStatus = "expired"
)

// Terminal reports whether no further transition is allowed from s.
func (s InviteStatus) Terminal() bool {
	return s != InvitePending
}

var (
	// ErrInviteNotPending is returned for a transition out of a terminal state.
	ErrInviteNotPending = errors.New("invite is not pending")
	// ErrInviteTransition is returned for a target state that cannot be entered.
	ErrInviteTransition = errors.New("invalid invite transition")
)

// Invite is an offer to join a family.
type Invite struct {
	ID          int64
	FamilyID    int64
	Code        string
	Email       string
	AccountType AccountType
	InvitedBy   int64
	Status      InviteStatus
	ExpiresAt   time.Time
	CreatedAt   time.Time
	RespondedAt *time.Time
}

// StatusAt is the status as observed at now. A pending invite past its
// expiry reads as expired without any background job touching the row.
func (i Invite) StatusAt(now time.Time) InviteStatus {
	if i.Status == InvitePending && !validity.Effective(true, &i.ExpiresAt, now) {
		return InviteExpired
	}
	return i.Status
}

// Transition validates moving the invite to next at now.
func (i Invite) Transition(next InviteStatus, now time.Time) error {
	current := i.StatusAt(now)
	if current.Terminal() {
		return ErrInviteNotPending
	}
	switch next {
	case InviteAccepted, InviteCancelled, InviteExpired:
		return nil
	}
	return ErrInviteTransition
}
