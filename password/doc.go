// Package password hashes account passwords with argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification reads the cost parameters from the stored hash, so raising
// the configured cost does not invalidate existing accounts; NeedsUpgrade
// tells the caller when to re-hash after a successful login.
package password
