package limiters

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/famguard/internal/rate"
)

const (
	DefaultLoginWindow      = 15 * time.Minute
	DefaultLoginMaxFailures = 5
)

// ErrThrottled means the failure threshold for the pair has been reached.
var ErrThrottled = errors.New("too many attempts, try again later")

// LoginConfig holds the failed-login policy. Zero values take the defaults.
type LoginConfig struct {
	Window      time.Duration
	MaxFailures int
}

// LoginThrottle counts failed logins per (email, ip).
type LoginThrottle struct {
	counter rate.Counter
	config  LoginConfig
}

// NewLoginThrottle creates a LoginThrottle over counter.
func NewLoginThrottle(counter rate.Counter, cfg LoginConfig) *LoginThrottle {
	if cfg.Window <= 0 {
		cfg.Window = DefaultLoginWindow
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultLoginMaxFailures
	}
	return &LoginThrottle{counter: counter, config: cfg}
}

// loginKey scopes by lower-cased email and the ip, "-" when unknown.
func loginKey(email, ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = "-"
	}
	return "throttle:login:" + strings.ToLower(strings.TrimSpace(email)) + ":" + ip
}

// Check returns ErrThrottled when the pair already has MaxFailures failures
// in the window.
func (l *LoginThrottle) Check(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	n, err := l.counter.Count(ctx, loginKey(email, ip), l.config.Window)
	if err != nil {
		return err
	}
	if n >= l.config.MaxFailures {
		return ErrThrottled
	}
	return nil
}

// RecordFailure counts one failed attempt and returns the new total.
func (l *LoginThrottle) RecordFailure(ctx context.Context, email, ip string) (int, error) {
	if l == nil {
		return 0, nil
	}
	return l.counter.Add(ctx, loginKey(email, ip), l.config.Window)
}

// Failures returns the failures currently inside the window.
func (l *LoginThrottle) Failures(ctx context.Context, email, ip string) (int, error) {
	if l == nil {
		return 0, nil
	}
	return l.counter.Count(ctx, loginKey(email, ip), l.config.Window)
}

// Clear forgets all failures for the pair. Called after a verified login.
func (l *LoginThrottle) Clear(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	return l.counter.Reset(ctx, loginKey(email, ip))
}
