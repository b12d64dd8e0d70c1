package famguard

import (
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds every tunable of the Engine.
//
// Config values are copied into the Engine at Build time and treated as
// immutable afterwards.
type Config struct {
	JWT         JWTConfig
	Refresh     RefreshConfig
	Password    PasswordConfig
	Session     SessionConfig
	Throttle    ThrottleConfig
	CSRF        CSRFConfig
	Invite      InviteConfig
	Reset       ResetConfig
	Service     ServiceConfig
	Database    DatabaseConfig
	Maintenance MaintenanceConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access tokens.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// RefreshConfig configures refresh tokens.
type RefreshConfig struct {
	TTL time.Duration
}

// PasswordConfig holds argon2id cost parameters. Memory is in KiB.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures device trust and suspicious-login detection.
type SessionConfig struct {
	TrustTTL         time.Duration
	SuspiciousWindow time.Duration
}

// ThrottleConfig holds the rolling-window policies.
type ThrottleConfig struct {
	LoginWindow       time.Duration
	LoginMaxFailures  int
	DownloadWindow    time.Duration
	DownloadThreshold int
	SignupWindow      time.Duration
	SignupMaxPerIP    int
}

// CSRFConfig configures CSRF tokens. ExemptPaths are request paths the gate
// accepts without a CSRF token on mutating methods.
type CSRFConfig struct {
	TTL         time.Duration
	ExemptPaths []string
}

// InviteConfig configures family invites.
type InviteConfig struct {
	TTL time.Duration
}

// ResetConfig configures password reset links. MaxRequests applies per
// email and per client address within Window.
type ResetConfig struct {
	TTL         time.Duration
	Window      time.Duration
	MaxRequests int
}

// ServiceConfig holds the static credential for internal callers. Empty
// disables service authentication.
type ServiceConfig struct {
	Token string
}

// DatabaseConfig selects the relational store when the Builder is not
// handed an open handle.
type DatabaseConfig struct {
	Type        string // sqlite, postgres or mysql
	Path        string
	URL         string
	AutoMigrate bool
}

// MaintenanceConfig schedules background jobs. SweepSchedule uses cron
// syntax, including descriptors such as "@every 1h".
type MaintenanceConfig struct {
	Enabled       bool
	SweepSchedule string
}

// AuditConfig controls audit buffering.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultCSRFExemptPaths are the auth endpoints that run before a CSRF
// token can exist, or that carry their own token.
var DefaultCSRFExemptPaths = []string{
	"/auth/login",
	"/auth/register",
	"/auth/refresh",
	"/auth/logout",
	"/auth/password-reset",
	"/auth/password-reset/confirm",
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production profile. Signing keys and the
// database location still have to be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Refresh: RefreshConfig{
			TTL: 30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Session: SessionConfig{
			TrustTTL:         30 * 24 * time.Hour,
			SuspiciousWindow: 60 * time.Minute,
		},
		Throttle: ThrottleConfig{
			LoginWindow:       15 * time.Minute,
			LoginMaxFailures:  5,
			DownloadWindow:    5 * time.Minute,
			DownloadThreshold: 20,
			SignupWindow:      time.Hour,
			SignupMaxPerIP:    10,
		},
		CSRF: CSRFConfig{
			TTL:         time.Hour,
			ExemptPaths: append([]string(nil), DefaultCSRFExemptPaths...),
		},
		Invite: InviteConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Reset: ResetConfig{
			TTL:         30 * time.Minute,
			Window:      time.Hour,
			MaxRequests: 3,
		},
		Database: DatabaseConfig{
			Type:        "sqlite",
			Path:        "famguard.db",
			AutoMigrate: true,
		},
		Maintenance: MaintenanceConfig{
			Enabled:       true,
			SweepSchedule: "@every 1h",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// TestConfig is DefaultConfig with cheap hashing, HS256 signing under a fixed
// key and the maintenance scheduler off.
func TestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("famguard-test-signing-key-0123456789abcdef")
	cfg.JWT.PublicKey = nil
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Maintenance.Enabled = false
	cfg.Audit.DropIfFull = false
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	out.CSRF.ExemptPaths = append([]string(nil), cfg.CSRF.ExemptPaths...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for values the Engine cannot run with.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}

	// Refresh
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Session
	if c.Session.TrustTTL <= 0 {
		return errors.New("Session TrustTTL must be > 0")
	}
	if c.Session.SuspiciousWindow <= 0 {
		return errors.New("Session SuspiciousWindow must be > 0")
	}

	// Throttle
	if c.Throttle.LoginWindow <= 0 || c.Throttle.LoginMaxFailures <= 0 {
		return errors.New("Throttle login window and max failures must be > 0")
	}
	if c.Throttle.DownloadWindow <= 0 || c.Throttle.DownloadThreshold <= 0 {
		return errors.New("Throttle download window and threshold must be > 0")
	}
	if c.Throttle.SignupWindow <= 0 || c.Throttle.SignupMaxPerIP <= 0 {
		return errors.New("Throttle signup window and max per ip must be > 0")
	}

	// CSRF
	if c.CSRF.TTL <= 0 {
		return errors.New("CSRF TTL must be > 0")
	}
	for _, p := range c.CSRF.ExemptPaths {
		if !strings.HasPrefix(p, "/") {
			return errors.New("CSRF ExemptPaths entries must start with /")
		}
	}

	// Invite
	if c.Invite.TTL <= 0 {
		return errors.New("Invite TTL must be > 0")
	}

	// Reset
	if c.Reset.TTL <= 0 || c.Reset.Window <= 0 || c.Reset.MaxRequests <= 0 {
		return errors.New("Reset TTL, window and max requests must be > 0")
	}

	// Service
	if c.Service.Token != "" && len(c.Service.Token) < 32 {
		return errors.New("Service Token must be at least 32 characters")
	}

	// Maintenance
	if c.Maintenance.Enabled {
		if _, err := cron.ParseStandard(c.Maintenance.SweepSchedule); err != nil {
			return errors.New("Maintenance SweepSchedule is not a valid cron expression")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
