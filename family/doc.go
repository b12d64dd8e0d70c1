// Package family defines the tenancy model the permission engine reasons
// about: users, families, profiles, caregiver grants, data shares and
// invites.
//
// Medical records key off Profile.ID, never a user id. A profile is the unit
// of authorization and a family is the outermost isolation boundary.
package family
