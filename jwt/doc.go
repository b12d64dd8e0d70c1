// Package jwt issues and verifies short-lived access tokens.
//
// Tokens carry the user id (uid), device id (did), session id (sid) and a
// unique jti. Verification is stateless; revocation before expiry is the
// blacklist's job.
package jwt
