package internaldefs

import (
	"github.com/MrEthical07/famguard"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   famguard.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   famguard.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: famguard.MetricLoginSuccess, Name: "famguard_login_success_total", Help: "Successful logins."},
	{ID: famguard.MetricLoginFailure, Name: "famguard_login_failure_total", Help: "Rejected logins."},
	{ID: famguard.MetricLoginThrottled, Name: "famguard_login_throttled_total", Help: "Logins refused by the failure throttle."},
	{ID: famguard.MetricNewDevice, Name: "famguard_new_device_total", Help: "Logins from a device with no prior session."},
	{ID: famguard.MetricSuspiciousLogin, Name: "famguard_suspicious_login_total", Help: "Logins from a second address inside the suspicious window."},
	{ID: famguard.MetricRefreshSuccess, Name: "famguard_refresh_success_total", Help: "Refresh token rotations."},
	{ID: famguard.MetricRefreshFailure, Name: "famguard_refresh_failure_total", Help: "Rejected refresh tokens."},
	{ID: famguard.MetricLogout, Name: "famguard_logout_total", Help: "Single-device logouts."},
	{ID: famguard.MetricLogoutAll, Name: "famguard_logout_all_total", Help: "Logouts from every device."},
	{ID: famguard.MetricAuthSuccess, Name: "famguard_auth_success_total", Help: "Access tokens accepted."},
	{ID: famguard.MetricAuthFailure, Name: "famguard_auth_failure_total", Help: "Access tokens rejected."},
	{ID: famguard.MetricBlacklistHit, Name: "famguard_blacklist_hit_total", Help: "Access tokens found on the blacklist."},
	{ID: famguard.MetricPermissionAllow, Name: "famguard_permission_allow_total", Help: "Permission checks allowed."},
	{ID: famguard.MetricPermissionDeny, Name: "famguard_permission_deny_total", Help: "Permission checks denied."},
	{ID: famguard.MetricCSRFFailure, Name: "famguard_csrf_failure_total", Help: "Mutating requests with a missing or wrong CSRF token."},
	{ID: famguard.MetricDeviceBlocked, Name: "famguard_device_blocked_total", Help: "Devices blocked by their owner."},
	{ID: famguard.MetricDeviceRevoked, Name: "famguard_device_revoked_total", Help: "Device sessions revoked."},
	{ID: famguard.MetricMassDownload, Name: "famguard_mass_download_total", Help: "Download bursts flagged for review."},
	{ID: famguard.MetricCacheDegraded, Name: "famguard_cache_degraded_total", Help: "Blacklist lookups that failed open."},
	{ID: famguard.MetricThrottleFallback, Name: "famguard_throttle_fallback_total", Help: "Throttle calls served by the in-memory fallback."},
	{ID: famguard.MetricRefreshSwept, Name: "famguard_refresh_swept_total", Help: "Spent or expired refresh tokens removed."},
	{ID: famguard.MetricPasswordResetRequested, Name: "famguard_password_reset_requested_total", Help: "Password reset links sent."},
	{ID: famguard.MetricPasswordResetCompleted, Name: "famguard_password_reset_completed_total", Help: "Passwords changed through a reset link."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: famguard.MetricAuthLatency, Name: "famguard_auth_latency_seconds", Help: "Time spent authenticating an access token."},
}

// HistogramBounds are the upper bounds in seconds, matching the engine's
// buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix turns a bound into an attribute-safe name.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
