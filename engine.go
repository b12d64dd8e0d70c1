package famguard

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/famguard/internal/audit"
	"github.com/MrEthical07/famguard/internal/database"
	"github.com/MrEthical07/famguard/internal/limiters"
	"github.com/MrEthical07/famguard/internal/stores"
	"github.com/MrEthical07/famguard/jwt"
	"github.com/MrEthical07/famguard/notify"
	"github.com/MrEthical07/famguard/password"
	"github.com/MrEthical07/famguard/permission"
	"github.com/MrEthical07/famguard/refresh"
	"github.com/MrEthical07/famguard/revocation"
	"github.com/MrEthical07/famguard/session"
	"github.com/robfig/cron/v3"
)

// Engine is the access-control core: credentials, tokens, device sessions,
// throttling and permission decisions.
//
// Engine methods are safe for concurrent use once Build returns.
type Engine struct {
	config Config
	logger *slog.Logger
	now    func() time.Time

	db     *database.DB
	ownsDB bool

	users    *stores.UserStore
	families *stores.FamilyStore
	resets   *stores.PasswordResetStore

	passwords   *password.Argon2
	tokens      *jwt.Manager
	refresh     *refresh.Service
	sessions    *session.Manager
	revocation  *revocation.Cache
	permissions *permission.Engine

	loginThrottle *limiters.LoginThrottle
	downloads     *limiters.DownloadMonitor
	resetThrottle *limiters.ResetThrottle
	signups       *limiters.SignupThrottle

	audit    *audit.Dispatcher
	notifier notify.Notifier
	metrics  *Metrics

	scheduler *cron.Cron
	closeOnce sync.Once
}

// Close stops the scheduler, flushes the audit buffer and closes the
// database when the Engine opened it.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.scheduler != nil {
			<-e.scheduler.Stop().Done()
		}
		if e.audit != nil {
			e.audit.Close()
		}
		if e.ownsDB && e.db != nil {
			if err := e.db.Close(); err != nil {
				e.logger.Warn("close database failed", "error", err)
			}
		}
	})
}

// Ping checks that the relational store answers.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.db == nil {
		return ErrEngineNotReady
	}
	return e.db.PingContext(ctx)
}

// MetricsSnapshot copies the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// CSRFExempt reports whether path may mutate without a CSRF token.
func (e *Engine) CSRFExempt(path string) bool {
	path = strings.TrimSuffix(path, "/")
	for _, p := range e.config.CSRF.ExemptPaths {
		if strings.TrimSuffix(p, "/") == path {
			return true
		}
	}
	return false
}

// IsServiceToken compares token to the configured service credential in
// constant time. Always false when none is configured.
func (e *Engine) IsServiceToken(token string) bool {
	want := e.config.Service.Token
	if want == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1
}

// ServicePrincipal is the identity given to service-token callers.
func ServicePrincipal() Principal {
	return Principal{Service: true}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
