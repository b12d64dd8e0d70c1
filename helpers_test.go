package famguard

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/famguard/notify"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-horse-battery"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, ev AuditEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == kind {
			n++
		}
	}
	return n
}

// waitFor polls until at least n events of kind arrived.
func (s *recordingSink) waitFor(t *testing.T, kind string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.count(kind) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d %s events, got %d", n, kind, s.count(kind))
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (r *alertRecorder) Notify(_ context.Context, a notify.Alert) error {
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	r.mu.Unlock()
	return nil
}

// last returns the newest alert of kind.
func (r *alertRecorder) last(kind notify.Kind) (notify.Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.alerts) - 1; i >= 0; i-- {
		if r.alerts[i].Kind == kind {
			return r.alerts[i], true
		}
	}
	return notify.Alert{}, false
}

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *testClock
	sink   *recordingSink
	alerts *alertRecorder
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	cfg := TestConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "famguard.db")
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{mr: mr, rdb: rdb, clock: newTestClock(), sink: &recordingSink{}, alerts: &alertRecorder{}}
	env.engine, err = New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithAuditSink(env.sink).
		WithNotifier(env.alerts).
		WithClock(env.clock.Now).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	t.Cleanup(func() {
		env.engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

func clientCtx(ip string) context.Context {
	ctx := WithClientIP(context.Background(), ip)
	return WithUserAgent(ctx, "famguard-test/1.0")
}

func (env *testEnv) register(t *testing.T, email string) {
	t.Helper()
	if _, err := env.engine.Register(context.Background(), email, testPassword); err != nil {
		t.Fatalf("register %s failed: %v", email, err)
	}
}

func (env *testEnv) login(t *testing.T, email, deviceID string) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(clientCtx("203.0.113.10"), email, testPassword, Device{ID: deviceID, Name: "phone"})
	if err != nil {
		t.Fatalf("login %s failed: %v", email, err)
	}
	return res
}

// principal re-authenticates access so family membership changes show up.
func (env *testEnv) principal(t *testing.T, access string) Principal {
	t.Helper()
	p, err := env.engine.Authenticate(context.Background(), access)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	return p
}

// member registers email, logs in and returns the access token.
func (env *testEnv) member(t *testing.T, email string) string {
	t.Helper()
	env.register(t, email)
	return env.login(t, email, "device-"+email).AccessToken
}
