// Package validity holds the effective-until check shared by every
// grant that silently lapses: device trust, data shares and invites.
package validity

import "time"

// Effective reports whether a grant that is switched on by flag and bounded
// by until still holds at now. A nil bound never lapses. The bound is
// exclusive: at exactly until the grant is already inert.
func Effective(flag bool, until *time.Time, now time.Time) bool {
	if !flag {
		return false
	}
	if until == nil {
		return true
	}
	return now.Before(*until)
}

// Remaining returns how long a bounded grant has left at now, or zero once
// it has lapsed.
func Remaining(until time.Time, now time.Time) time.Duration {
	d := until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
