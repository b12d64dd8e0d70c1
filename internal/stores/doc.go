// Package stores holds the relational repositories behind famguard:
// accounts and failed logins ([UserStore]), the family graph
// ([FamilyStore], which is also the permission engine's Directory),
// refresh-token hashes ([RefreshStore]), device sessions with the login
// event log ([SessionStore]) and password reset links
// ([PasswordResetStore]).
//
// All queries are written with ? placeholders and rewritten per dialect by
// internal/database. Times are stored in UTC at microsecond precision.
// Single-row state changes that must have exactly one winner (spending a
// refresh token, answering an invite) are guarded UPDATEs checked through
// RowsAffected.
package stores
