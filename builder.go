package famguard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/famguard/internal/audit"
	"github.com/MrEthical07/famguard/internal/database"
	"github.com/MrEthical07/famguard/internal/limiters"
	"github.com/MrEthical07/famguard/internal/rate"
	"github.com/MrEthical07/famguard/internal/stores"
	"github.com/MrEthical07/famguard/jwt"
	"github.com/MrEthical07/famguard/notify"
	"github.com/MrEthical07/famguard/password"
	"github.com/MrEthical07/famguard/permission"
	"github.com/MrEthical07/famguard/refresh"
	"github.com/MrEthical07/famguard/revocation"
	"github.com/MrEthical07/famguard/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder can be used for one Build only.
type Builder struct {
	config Config

	sqlDB  *sql.DB
	dbKind string
	redis  redis.UniversalClient

	logger    *slog.Logger
	notifier  notify.Notifier
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New starts a Builder from DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithDB uses an open database handle of the given type (sqlite, postgres,
// mysql) instead of opening Config.Database. The Engine does not close it.
func (b *Builder) WithDB(db *sql.DB, kind string) *Builder {
	b.sqlDB = db
	b.dbKind = kind
	return b
}

// WithRedis shares the blacklist, CSRF tokens and throttle counters through
// redis. Without it every instance keeps its own in memory.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithNotifier delivers security alerts and password reset links. The
// default logs them, without the reset secret.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink receives audit events when Config.Audit is enabled. The
// default writes them to the logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces time.Now everywhere in the Engine.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, connects the relational store and
// wires every component. It also starts the maintenance scheduler when
// enabled.
func (b *Builder) Build(ctx context.Context) (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- RELATIONAL STORE --------
	db, ownsDB, err := b.openDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		applied, err := db.Migrate(ctx)
		if err != nil {
			if ownsDB {
				_ = db.Close()
			}
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("database migrated", "dialect", db.Dialect.Name(), "applied", applied)
		}
	}

	e := &Engine{
		config:  cfg,
		logger:  logger,
		now:     now,
		db:      db,
		ownsDB:  ownsDB,
		metrics: NewMetrics(cfg.Metrics),
	}
	fail := func(err error) (*Engine, error) {
		e.Close()
		return nil, err
	}

	e.users = stores.NewUserStore(db)
	e.families = stores.NewFamilyStore(db)
	e.resets = stores.NewPasswordResetStore(db)

	// -------- CREDENTIALS --------
	e.passwords, err = password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return fail(err)
	}

	e.tokens, err = jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Now:           now,
	})
	if err != nil {
		return fail(err)
	}

	e.refresh, err = refresh.NewService(stores.NewRefreshStore(db), cfg.Refresh.TTL, now)
	if err != nil {
		return fail(err)
	}

	// -------- SESSIONS --------
	e.sessions = session.NewManager(stores.NewSessionStore(db), session.Config{
		DefaultTrustTTL:  cfg.Session.TrustTTL,
		SuspiciousWindow: cfg.Session.SuspiciousWindow,
	}, now)

	// -------- SHARED CACHE --------
	var backend revocation.Backend
	if b.redis != nil {
		backend = revocation.NewRedisBackend(b.redis)
	} else {
		backend = revocation.NewMemoryBackend(now)
	}
	e.revocation = revocation.NewCache(backend, revocation.Config{CSRFTTL: cfg.CSRF.TTL}, logger)
	e.revocation.OnDegraded = func(string) { e.metrics.Inc(MetricCacheDegraded) }

	counter := rate.Select(b.redis, logger, now, func() { e.metrics.Inc(MetricThrottleFallback) })
	e.loginThrottle = limiters.NewLoginThrottle(counter, limiters.LoginConfig{
		Window:      cfg.Throttle.LoginWindow,
		MaxFailures: cfg.Throttle.LoginMaxFailures,
	})
	e.downloads = limiters.NewDownloadMonitor(counter, limiters.DownloadConfig{
		Window:    cfg.Throttle.DownloadWindow,
		Threshold: cfg.Throttle.DownloadThreshold,
	})
	e.signups = limiters.NewSignupThrottle(counter, limiters.SignupConfig{
		Window:   cfg.Throttle.SignupWindow,
		MaxPerIP: cfg.Throttle.SignupMaxPerIP,
	})
	e.resetThrottle = limiters.NewResetThrottle(counter, limiters.ResetConfig{
		Window:      cfg.Reset.Window,
		MaxRequests: cfg.Reset.MaxRequests,
	})

	// -------- PERMISSIONS --------
	e.permissions = permission.NewEngine(e.families, now)

	// -------- AUDIT + ALERTS --------
	var sinks audit.MultiSink
	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = audit.NewSlogSink(logger)
		}
		sinks = append(sinks, sink)
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	e.notifier = notifier
	sinks = append(sinks, notify.NewAuditSink(notifier, logger))

	bufferSize := cfg.Audit.BufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}
	e.audit = audit.NewDispatcher(audit.Config{
		Enabled:    true,
		BufferSize: bufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sinks)

	// -------- MAINTENANCE --------
	if cfg.Maintenance.Enabled {
		if err := e.startMaintenance(cfg.Maintenance.SweepSchedule); err != nil {
			return fail(err)
		}
	}

	b.built = true
	return e, nil
}

func (b *Builder) openDatabase(ctx context.Context, cfg DatabaseConfig) (*database.DB, bool, error) {
	if b.sqlDB != nil {
		db, err := database.Wrap(b.sqlDB, b.dbKind)
		return db, false, err
	}
	db, err := database.Open(ctx, database.Config{Type: cfg.Type, Path: cfg.Path, URL: cfg.URL})
	if err != nil {
		return nil, false, err
	}
	return db, true, nil
}
