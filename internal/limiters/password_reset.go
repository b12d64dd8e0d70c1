package limiters

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/famguard/internal/rate"
)

const (
	DefaultResetWindow      = time.Hour
	DefaultResetMaxRequests = 3
)

// ResetConfig holds the reset-request policy. Zero values take the
// defaults.
type ResetConfig struct {
	Window      time.Duration
	MaxRequests int
}

// ResetThrottle limits reset links per email and per client address.
type ResetThrottle struct {
	counter rate.Counter
	config  ResetConfig
}

func NewResetThrottle(counter rate.Counter, cfg ResetConfig) *ResetThrottle {
	if cfg.Window <= 0 {
		cfg.Window = DefaultResetWindow
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultResetMaxRequests
	}
	return &ResetThrottle{counter: counter, config: cfg}
}

// Allow records one request and returns ErrThrottled once either the email
// or the address is over MaxRequests. Unknown emails count too, so the
// answer does not reveal which accounts exist.
func (l *ResetThrottle) Allow(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	keys := []string{"throttle:reset:email:" + strings.ToLower(strings.TrimSpace(email))}
	if ip = strings.TrimSpace(ip); ip != "" {
		keys = append(keys, "throttle:reset:ip:"+ip)
	}
	over := false
	for _, key := range keys {
		n, err := l.counter.Add(ctx, key, l.config.Window)
		if err != nil {
			return err
		}
		if n > l.config.MaxRequests {
			over = true
		}
	}
	if over {
		return ErrThrottled
	}
	return nil
}
