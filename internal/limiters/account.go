package limiters

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/famguard/internal/rate"
)

const (
	DefaultSignupWindow   = time.Hour
	DefaultSignupMaxPerIP = 10
)

// SignupConfig holds the registration policy. Zero values take the
// defaults.
type SignupConfig struct {
	Window   time.Duration
	MaxPerIP int
}

// SignupThrottle limits account registrations per client address.
type SignupThrottle struct {
	counter rate.Counter
	config  SignupConfig
}

func NewSignupThrottle(counter rate.Counter, cfg SignupConfig) *SignupThrottle {
	if cfg.Window <= 0 {
		cfg.Window = DefaultSignupWindow
	}
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = DefaultSignupMaxPerIP
	}
	return &SignupThrottle{counter: counter, config: cfg}
}

// Allow records one registration attempt from ip. Requests without an
// address are not limited.
func (l *SignupThrottle) Allow(ctx context.Context, ip string) error {
	ip = strings.TrimSpace(ip)
	if l == nil || ip == "" {
		return nil
	}
	n, err := l.counter.Add(ctx, "throttle:signup:"+ip, l.config.Window)
	if err != nil {
		return err
	}
	if n > l.config.MaxPerIP {
		return ErrThrottled
	}
	return nil
}
