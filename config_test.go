package famguard

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "test config", mutate: func(c *Config) {}, wantValid: true},
		{
			name:      "ed25519 without keys",
			mutate:    func(c *Config) { c.JWT.SigningMethod = "ed25519" },
			wantValid: false,
		},
		{
			name:      "unknown signing method",
			mutate:    func(c *Config) { c.JWT.SigningMethod = "rs256" },
			wantValid: false,
		},
		{
			name:      "short hs256 key",
			mutate:    func(c *Config) { c.JWT.PrivateKey = []byte("short") },
			wantValid: false,
		},
		{
			name:      "refresh shorter than access",
			mutate:    func(c *Config) { c.Refresh.TTL = c.JWT.AccessTTL },
			wantValid: false,
		},
		{
			name:      "cheap argon2 memory",
			mutate:    func(c *Config) { c.Password.Memory = 1024 },
			wantValid: false,
		},
		{
			name:      "zero login window",
			mutate:    func(c *Config) { c.Throttle.LoginWindow = 0 },
			wantValid: false,
		},
		{
			name:      "zero download threshold",
			mutate:    func(c *Config) { c.Throttle.DownloadThreshold = 0 },
			wantValid: false,
		},
		{
			name:      "relative csrf exempt path",
			mutate:    func(c *Config) { c.CSRF.ExemptPaths = []string{"auth/login"} },
			wantValid: false,
		},
		{
			name:      "zero reset requests",
			mutate:    func(c *Config) { c.Reset.MaxRequests = 0 },
			wantValid: false,
		},
		{
			name:      "short service token",
			mutate:    func(c *Config) { c.Service.Token = "too-short" },
			wantValid: false,
		},
		{
			name:      "long service token",
			mutate:    func(c *Config) { c.Service.Token = "0123456789abcdef0123456789abcdef" },
			wantValid: true,
		},
		{
			name: "bad sweep schedule",
			mutate: func(c *Config) {
				c.Maintenance.Enabled = true
				c.Maintenance.SweepSchedule = "every hour"
			},
			wantValid: false,
		},
		{
			name: "descriptor sweep schedule",
			mutate: func(c *Config) {
				c.Maintenance.Enabled = true
				c.Maintenance.SweepSchedule = "@every 30m"
			},
			wantValid: true,
		},
		{
			name:      "negative leeway",
			mutate:    func(c *Config) { c.JWT.Leeway = -time.Second },
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := TestConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatalf("expected invalid config")
			}
		})
	}
}

func TestDefaultConfigNeedsKeys(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("default config must not validate without signing keys")
	}
	if cfg.Throttle.LoginMaxFailures != 5 || cfg.Throttle.LoginWindow != 15*time.Minute {
		t.Fatalf("unexpected login throttle defaults %+v", cfg.Throttle)
	}
	if cfg.Throttle.DownloadThreshold != 20 || cfg.Throttle.DownloadWindow != 5*time.Minute {
		t.Fatalf("unexpected download defaults %+v", cfg.Throttle)
	}
	if cfg.CSRF.TTL != time.Hour || cfg.Session.SuspiciousWindow != time.Hour {
		t.Fatalf("unexpected csrf or session defaults")
	}
}

func TestCloneConfigIsDeep(t *testing.T) {
	cfg := TestConfig()
	cfg.JWT.VerifyKeys = map[string][]byte{"old": []byte("0123456789abcdef0123456789abcdef")}

	clone := cloneConfig(cfg)
	cfg.JWT.PrivateKey[0] = 'X'
	cfg.JWT.VerifyKeys["old"][0] = 'X'
	cfg.CSRF.ExemptPaths[0] = "/changed"

	if clone.JWT.PrivateKey[0] == 'X' || clone.JWT.VerifyKeys["old"][0] == 'X' {
		t.Fatalf("clone shares key bytes with the original")
	}
	if clone.CSRF.ExemptPaths[0] == "/changed" {
		t.Fatalf("clone shares exempt paths with the original")
	}
}

func TestCSRFExemptPaths(t *testing.T) {
	e := &Engine{config: TestConfig()}
	for _, path := range []string{"/auth/login", "/auth/login/", "/auth/password-reset/confirm"} {
		if !e.CSRFExempt(path) {
			t.Fatalf("expected %s to be exempt", path)
		}
	}
	for _, path := range []string{"/families", "/invites/accept", "/devices/1/block"} {
		if e.CSRFExempt(path) {
			t.Fatalf("%s must need a csrf token", path)
		}
	}
}

func TestIsServiceToken(t *testing.T) {
	e := &Engine{config: TestConfig()}
	if e.IsServiceToken("") || e.IsServiceToken("anything") {
		t.Fatalf("no service token configured, nothing should match")
	}
	e.config.Service.Token = "0123456789abcdef0123456789abcdef"
	if !e.IsServiceToken("0123456789abcdef0123456789abcdef") {
		t.Fatalf("expected the configured token to match")
	}
	if e.IsServiceToken("0123456789abcdef0123456789abcdeX") {
		t.Fatalf("expected a different token not to match")
	}
}
