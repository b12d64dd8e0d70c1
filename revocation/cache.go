package revocation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/famguard/internal"
)

const (
	blacklistPrefix = "blacklist:token:"
	csrfPrefix      = "csrf:token:"

	// DefaultCSRFTTL applies when Config.CSRFTTL is zero.
	DefaultCSRFTTL = time.Hour
)

// ErrEmptyKey is returned when a token hash or CSRF token is empty.
var ErrEmptyKey = errors.New("revocation: empty key")

// Config controls key lifetimes.
type Config struct {
	CSRFTTL time.Duration
}

// Cache applies blacklist and CSRF semantics on top of a Backend.
type Cache struct {
	backend Backend
	csrfTTL time.Duration
	logger  *slog.Logger

	// OnDegraded, when set, is called each time a backend error is absorbed.
	OnDegraded func(op string)
}

// NewCache builds a Cache. A nil logger uses slog.Default.
func NewCache(backend Backend, cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.CSRFTTL
	if ttl <= 0 {
		ttl = DefaultCSRFTTL
	}
	return &Cache{backend: backend, csrfTTL: ttl, logger: logger}
}

// CSRFTTL returns the lifetime given to issued CSRF tokens.
func (c *Cache) CSRFTTL() time.Duration {
	return c.csrfTTL
}

func (c *Cache) degraded(op string, err error) {
	c.logger.Warn("revocation cache degraded", "op", op, "error", err)
	if c.OnDegraded != nil {
		c.OnDegraded(op)
	}
}

// Blacklist marks a token hash revoked for ttl. Repeating the call only
// refreshes the expiry. A non-positive ttl is a no-op since the token has
// already expired.
func (c *Cache) Blacklist(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if tokenHash == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return nil
	}
	return c.backend.Set(ctx, blacklistPrefix+tokenHash, ttl)
}

// IsBlacklisted reports whether tokenHash is revoked. Backend errors are
// logged and reported as not revoked.
func (c *Cache) IsBlacklisted(ctx context.Context, tokenHash string) bool {
	if tokenHash == "" {
		return false
	}
	ok, err := c.backend.Exists(ctx, blacklistPrefix+tokenHash)
	if err != nil {
		c.degraded("blacklist_check", err)
		return false
	}
	return ok
}

func csrfKey(token, binding string) string {
	if binding == "" {
		return csrfPrefix + token
	}
	return csrfPrefix + binding + ":" + token
}

// IssueCSRF stores a fresh CSRF token bound to binding (usually the session
// id; may be empty) and returns it.
func (c *Cache) IssueCSRF(ctx context.Context, binding string) (string, error) {
	token, err := internal.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	if err := c.backend.Set(ctx, csrfKey(token, binding), c.csrfTTL); err != nil {
		return "", err
	}
	return token, nil
}

// ValidateCSRF reports whether token was issued for binding and has not
// expired. Backend errors are logged and reported as invalid.
func (c *Cache) ValidateCSRF(ctx context.Context, token, binding string) bool {
	if !internal.ValidOpaqueToken(token) {
		return false
	}
	ok, err := c.backend.Exists(ctx, csrfKey(token, binding))
	if err != nil {
		c.degraded("csrf_check", err)
		return false
	}
	return ok
}

// RevokeCSRF deletes a CSRF token.
func (c *Cache) RevokeCSRF(ctx context.Context, token, binding string) error {
	if token == "" {
		return ErrEmptyKey
	}
	return c.backend.Delete(ctx, csrfKey(token, binding))
}
