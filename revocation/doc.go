// Package revocation holds short-lived security keys: the access-token
// blacklist and CSRF tokens.
//
// The two key families degrade differently when the backend is unreachable.
// Blacklist lookups fail open (the token is treated as not revoked) so a
// cache outage cannot lock every user out. CSRF validation fails safe (the
// token is treated as invalid) because it gates writes. Both log a warning.
//
// Keys:
//
//	blacklist:token:<token hash>     TTL = remaining token lifetime
//	csrf:token:[<binding>:]<token>   TTL = Config.CSRFTTL
package revocation
