package permission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/famguard/family"
)

// ErrProfileNotFound is returned by a Directory for an unknown profile id.
var ErrProfileNotFound = errors.New("profile not found")

// Actor is the authenticated identity a decision is made for.
type Actor struct {
	UserID      int64
	FamilyID    int64
	AccountType family.AccountType
}

// Directory is the read side of the family tables the engine consults.
type Directory interface {
	Profile(ctx context.Context, id int64) (family.Profile, error)
	CaregiverGrant(ctx context.Context, caregiverUserID, profileID int64) (family.Caregiver, bool, error)
	// OwnProfile returns the profile that represents the user inside the
	// family, if one exists.
	OwnProfile(ctx context.Context, userID, familyID int64, accountType family.AccountType) (family.Profile, bool, error)
	SharesBetween(ctx context.Context, fromProfileID, toProfileID int64) ([]family.DataShare, error)
}

// Rule identifies the branch that produced a decision.
type Rule string

const (
	RuleFamilyAdmin Rule = "family_admin"
	RuleOwnership   Rule = "ownership"
	RuleCaregiver   Rule = "caregiver"
	RuleDataShare   Rule = "data_share"
	RuleFamilyRead  Rule = "family_read"
	RuleNone        Rule = "none"
)

// Decision is the outcome of Check. Reason is meant for server-side logs.
type Decision struct {
	Allowed bool
	Rule    Rule
	Reason  string
}

func allow(rule Rule) Decision {
	return Decision{Allowed: true, Rule: rule}
}

func deny(rule Rule, reason string) Decision {
	return Decision{Rule: rule, Reason: reason}
}

// Engine resolves (actor, action, profile) to allow or deny. It holds no
// state beyond its directory and clock.
type Engine struct {
	dir Directory
	now func() time.Time
}

// NewEngine returns an engine reading grants from dir. A nil clock means
// time.Now.
func NewEngine(dir Directory, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{dir: dir, now: now}
}

// Check walks the grant sources in precedence order: family-admin shortcut,
// ownership, caregiver grant, data share, family-wide read. The first source
// that holds a grant for the actor decides. Every branch re-checks that the
// profile sits in the actor's family before trusting its grant.
//
// Directory failures are returned as errors, never as a deny.
func (e *Engine) Check(ctx context.Context, actor Actor, action family.Action, profileID int64) (Decision, error) {
	if !action.Valid() {
		return deny(RuleNone, fmt.Sprintf("unknown action %q", action)), nil
	}
	if actor.UserID == 0 || actor.FamilyID == 0 {
		return deny(RuleNone, "actor is not a family member"), nil
	}

	profile, err := e.dir.Profile(ctx, profileID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return deny(RuleNone, "profile not found"), nil
		}
		return Decision{}, fmt.Errorf("load profile: %w", err)
	}

	if actor.AccountType == family.AccountFamilyAdmin && sameFamily(actor, profile) {
		return allow(RuleFamilyAdmin), nil
	}

	if profile.OwnedBy(actor.UserID) && sameFamily(actor, profile) {
		return ownerDecision(actor, action), nil
	}

	grant, ok, err := e.dir.CaregiverGrant(ctx, actor.UserID, profile.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("load caregiver grant: %w", err)
	}
	if ok && sameFamily(actor, profile) {
		if levelAllows(grant.AccessLevel, action) {
			return allow(RuleCaregiver), nil
		}
		return deny(RuleCaregiver, fmt.Sprintf("caregiver level %s does not permit %s", grant.AccessLevel, action)), nil
	}

	decision, matched, err := e.checkShares(ctx, actor, action, profile)
	if err != nil {
		return Decision{}, err
	}
	if matched {
		return decision, nil
	}

	if action == family.ActionView && accountAllows(actor.AccountType, family.PermViewFamilyData) && sameFamily(actor, profile) {
		return allow(RuleFamilyRead), nil
	}

	if !sameFamily(actor, profile) {
		return deny(RuleNone, "profile belongs to another family"), nil
	}
	return deny(RuleNone, fmt.Sprintf("no grant permits %s", action)), nil
}

func ownerDecision(actor Actor, action family.Action) Decision {
	switch action {
	case family.ActionView:
		return allow(RuleOwnership)
	case family.ActionEdit:
		if accountAllows(actor.AccountType, family.PermEditOwnData) {
			return allow(RuleOwnership)
		}
		return deny(RuleOwnership, fmt.Sprintf("account type %s cannot edit own data", actor.AccountType))
	default:
		return deny(RuleOwnership, "delete requires family_admin")
	}
}

// checkShares consults active shares from the target profile to the
// actor's own profile. matched is true when at least one active share
// exists, in which case the returned decision is final.
func (e *Engine) checkShares(ctx context.Context, actor Actor, action family.Action, target family.Profile) (Decision, bool, error) {
	own, ok, err := e.dir.OwnProfile(ctx, actor.UserID, actor.FamilyID, actor.AccountType)
	if err != nil {
		return Decision{}, false, fmt.Errorf("load own profile: %w", err)
	}
	if !ok || own.ID == target.ID || own.FamilyID != actor.FamilyID {
		return Decision{}, false, nil
	}

	shares, err := e.dir.SharesBetween(ctx, target.ID, own.ID)
	if err != nil {
		return Decision{}, false, fmt.Errorf("load data shares: %w", err)
	}

	now := e.now()
	matched := false
	for _, share := range shares {
		if !share.ActiveAt(now) || share.FamilyID != actor.FamilyID || !sameFamily(actor, target) {
			continue
		}
		matched = true
		if share.Permissions.Allows(action) {
			return allow(RuleDataShare), true, nil
		}
	}
	if matched {
		return deny(RuleDataShare, fmt.Sprintf("data share does not permit %s", action)), true, nil
	}
	return Decision{}, false, nil
}

func sameFamily(actor Actor, profile family.Profile) bool {
	return actor.FamilyID != 0 && profile.FamilyID == actor.FamilyID
}
