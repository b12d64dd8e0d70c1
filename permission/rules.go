package permission

import "github.com/MrEthical07/famguard/family"

var permissionBits = func() map[family.Permission]int {
	bits := make(map[family.Permission]int, len(family.AllPermissions))
	for i, p := range family.AllPermissions {
		bits[p] = i
	}
	return bits
}()

func maskOf(perms ...family.Permission) Mask64 {
	var m Mask64
	for _, p := range perms {
		if bit, ok := permissionBits[p]; ok {
			m = m.With(bit)
		}
	}
	return m
}

// accountMasks is the frozen permission set per account type.
var accountMasks = map[family.AccountType]Mask64{
	family.AccountFamilyAdmin: maskOf(family.AllPermissions...),
	family.AccountAdultMember: maskOf(
		family.PermViewOwnData,
		family.PermEditOwnData,
		family.PermViewFamilyData,
		family.PermShareData,
	),
	family.AccountChild: maskOf(family.PermViewOwnData),
	family.AccountElderUnderCare: maskOf(
		family.PermViewOwnData,
		family.PermEditOwnData,
	),
}

// accountAllows reports whether the account type's permission set contains
// perm. Unknown types and permissions allow nothing.
func accountAllows(t family.AccountType, perm family.Permission) bool {
	bit, ok := permissionBits[perm]
	if !ok {
		return false
	}
	return accountMasks[t].Has(bit)
}

// levelAllows maps a caregiver access level onto actions.
func levelAllows(level family.AccessLevel, action family.Action) bool {
	switch level {
	case family.AccessReadOnly:
		return action == family.ActionView
	case family.AccessReadWrite:
		return action == family.ActionView || action == family.ActionEdit
	case family.AccessFull:
		return action.Valid()
	}
	return false
}

// AccountAllows is the exported form of the account-type rule table, used
// by callers that gate family management operations.
func AccountAllows(t family.AccountType, perm family.Permission) bool {
	return accountAllows(t, perm)
}

// Snapshot returns the permission set of t as stored on a new profile.
func Snapshot(t family.AccountType) map[family.Permission]bool {
	out := make(map[family.Permission]bool, len(family.AllPermissions))
	for _, p := range family.AllPermissions {
		out[p] = accountAllows(t, p)
	}
	return out
}
