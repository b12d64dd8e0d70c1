package internal

import (
	"errors"
	"strings"
)

var errEmptyUserAgent = errors.New("empty user agent")

const derivedDevicePrefix = "ua-"

// DeriveDeviceID builds a stable device id from the user agent for clients
// that do not send one. Different agents map to different devices.
func DeriveDeviceID(userAgent string) (string, error) {
	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		return "", errEmptyUserAgent
	}
	return derivedDevicePrefix + HashToken(ua)[:32], nil
}

// NormalizeEmail is the canonical form used for lookups and throttle keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
