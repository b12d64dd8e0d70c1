// Package permission decides whether an actor may view, edit or delete a
// family profile's data.
//
// Three rule tables feed the engine: caregiver access levels (levelAllows),
// account-type permission sets (accountAllows, stored as Mask64 bit sets)
// and the per-action map on a data share. The precedence walk in
// [Engine.Check] is the only place they are combined.
//
// # What this package must NOT do
//
//   - Trust a caregiver or share row to imply family membership.
//   - Touch the relational store directly; reads go through [Directory].
package permission
