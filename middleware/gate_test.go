package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/MrEthical07/famguard"
	"github.com/MrEthical07/famguard/family"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	password     = "correct-horse-battery"
	serviceToken = "svc-0123456789abcdef0123456789abcdef"
)

type gateEnv struct {
	engine *famguard.Engine
	mr     *miniredis.Miniredis
	logger *slog.Logger
}

func newGateEnv(t *testing.T) *gateEnv {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	cfg := famguard.TestConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "gate.db")
	cfg.Service.Token = serviceToken
	cfg.Audit.Enabled = false

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := famguard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(logger).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return &gateEnv{engine: engine, mr: mr, logger: logger}
}

type account struct {
	login     *famguard.LoginResult
	principal famguard.Principal
}

func (env *gateEnv) signup(t *testing.T, email string) account {
	t.Helper()
	ctx := famguard.WithClientIP(context.Background(), "198.51.100.7")
	if _, err := env.engine.Register(ctx, email, password); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	res, err := env.engine.Login(ctx, email, password, famguard.Device{ID: "dev-" + email})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return account{login: res, principal: env.refreshPrincipal(t, res.AccessToken)}
}

func (env *gateEnv) refreshPrincipal(t *testing.T, access string) famguard.Principal {
	t.Helper()
	p, err := env.engine.Authenticate(context.Background(), access)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	return p
}

// household returns an admin and a child account in one family.
func (env *gateEnv) household(t *testing.T) (admin, child account, adminProfile, childProfile family.Profile) {
	t.Helper()
	ctx := context.Background()
	admin = env.signup(t, "admin@example.com")
	_, adminProfile, err := env.engine.CreateFamily(ctx, admin.principal, "Okafor", "Ngozi")
	if err != nil {
		t.Fatalf("create family failed: %v", err)
	}
	admin.principal = env.refreshPrincipal(t, admin.login.AccessToken)

	inv, err := env.engine.CreateInvite(ctx, admin.principal, "kid@example.com", family.AccountChild)
	if err != nil {
		t.Fatalf("create invite failed: %v", err)
	}
	child = env.signup(t, "kid@example.com")
	childProfile, err = env.engine.AcceptInvite(ctx, child.principal, inv.Code, "Kid")
	if err != nil {
		t.Fatalf("accept invite failed: %v", err)
	}
	child.principal = env.refreshPrincipal(t, child.login.AccessToken)
	return admin, child, adminProfile, childProfile
}

func okHandler(t *testing.T, check func(r *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, method, path, token string, headers map[string]string) int {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestGateRequiresBearer(t *testing.T) {
	env := newGateEnv(t)
	h := RequireUser(env.engine)(okHandler(t, nil))

	if code := serve(h, http.MethodGet, "/me", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", code)
	}
	if code := serve(h, http.MethodGet, "/me", "not-a-jwt", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage, got %d", code)
	}

	a := env.signup(t, "solo@example.com")
	h = RequireUser(env.engine)(okHandler(t, func(r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok || p.UserID != a.principal.UserID {
			t.Errorf("expected principal %d in context, got %+v", a.principal.UserID, p)
		}
	}))
	if code := serve(h, http.MethodGet, "/me", a.login.AccessToken, nil); code != http.StatusNoContent {
		t.Fatalf("expected pass, got %d", code)
	}
}

func TestGateRejectsBlockedDeviceBeforePermission(t *testing.T) {
	env := newGateEnv(t)
	admin, _, adminProfile, _ := env.household(t)
	ctx := context.Background()

	laptop, err := env.engine.Login(famguard.WithClientIP(ctx, "198.51.100.7"), "admin@example.com", password, famguard.Device{ID: "laptop"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := env.engine.BlockDevice(ctx, env.refreshPrincipal(t, laptop.AccessToken), admin.login.Session.ID); err != nil {
		t.Fatalf("block failed: %v", err)
	}

	h := RequireProfile(env.engine, family.ActionView)(okHandler(t, nil))
	headers := map[string]string{ProfileHeader: strconv.FormatInt(adminProfile.ID, 10)}
	if code := serve(h, http.MethodGet, "/records", admin.login.AccessToken, headers); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for blocked device, got %d", code)
	}
	if code := serve(h, http.MethodGet, "/records", laptop.AccessToken, headers); code != http.StatusNoContent {
		t.Fatalf("expected the other device to pass, got %d", code)
	}
}

func TestGateRejectsBlacklistedToken(t *testing.T) {
	env := newGateEnv(t)
	a := env.signup(t, "solo@example.com")
	h := RequireUser(env.engine)(okHandler(t, nil))

	if err := env.engine.Logout(context.Background(), a.login.RefreshToken, a.login.AccessToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if code := serve(h, http.MethodGet, "/me", a.login.AccessToken, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", code)
	}

	ctx := famguard.WithClientIP(context.Background(), "198.51.100.7")
	again, err := env.engine.Login(ctx, "solo@example.com", password, famguard.Device{ID: "dev-solo@example.com"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if code := serve(h, http.MethodGet, "/me", again.AccessToken, nil); code != http.StatusNoContent {
		t.Fatalf("expected a fresh token on the same device to pass, got %d", code)
	}
}

func TestGateFailsOpenWithoutRedis(t *testing.T) {
	env := newGateEnv(t)
	a := env.signup(t, "solo@example.com")
	h := RequireUser(env.engine)(okHandler(t, nil))

	env.mr.Close()
	start := time.Now()
	if code := serve(h, http.MethodGet, "/me", a.login.AccessToken, nil); code != http.StatusNoContent {
		t.Fatalf("expected reads to fail open, got %d", code)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("fail-open path took too long")
	}
	if code := serve(h, http.MethodPost, "/devices/1/trust", a.login.AccessToken, map[string]string{CSRFHeader: "anything"}); code != http.StatusForbidden {
		t.Fatalf("expected csrf to fail safe, got %d", code)
	}
}

func TestGateCSRF(t *testing.T) {
	env := newGateEnv(t)
	a := env.signup(t, "solo@example.com")
	h := RequireUser(env.engine)(okHandler(t, nil))

	if code := serve(h, http.MethodPost, "/devices/1/trust", a.login.AccessToken, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf, got %d", code)
	}
	if code := serve(h, http.MethodGet, "/devices", a.login.AccessToken, nil); code != http.StatusNoContent {
		t.Fatalf("expected GET to skip csrf, got %d", code)
	}
	if code := serve(h, http.MethodPost, "/auth/logout", a.login.AccessToken, nil); code != http.StatusNoContent {
		t.Fatalf("expected exempt path to pass, got %d", code)
	}

	token, err := env.engine.IssueCSRF(context.Background(), a.principal)
	if err != nil {
		t.Fatalf("issue csrf failed: %v", err)
	}
	headers := map[string]string{CSRFHeader: token}
	if code := serve(h, http.MethodPost, "/devices/1/trust", a.login.AccessToken, headers); code != http.StatusNoContent {
		t.Fatalf("expected pass with csrf, got %d", code)
	}
	headers[CSRFHeader] = token + "x"
	if code := serve(h, http.MethodDelete, "/devices/1", a.login.AccessToken, headers); code != http.StatusForbidden {
		t.Fatalf("expected 403 with a wrong csrf token, got %d", code)
	}
}

func TestGateProfileResolution(t *testing.T) {
	env := newGateEnv(t)
	admin, child, adminProfile, childProfile := env.household(t)
	loner := env.signup(t, "loner@example.com")

	var seen int64
	h := RequireProfile(env.engine, "")(okHandler(t, func(r *http.Request) {
		seen, _ = ProfileIDFromContext(r.Context())
		if d, ok := DecisionFromContext(r.Context()); !ok || !d.Allowed {
			t.Errorf("expected an allow decision in context, got %+v", d)
		}
	}))

	if code := serve(h, http.MethodGet, "/records", loner.login.AccessToken, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for a user outside any family, got %d", code)
	}
	if code := serve(h, http.MethodGet, "/records", child.login.AccessToken, nil); code != http.StatusNoContent {
		t.Fatalf("expected child to reach own records, got %d", code)
	}
	if seen != childProfile.ID {
		t.Fatalf("expected profile %d, got %d", childProfile.ID, seen)
	}

	bad := map[string]string{ProfileHeader: "abc"}
	if code := serve(h, http.MethodGet, "/records", admin.login.AccessToken, bad); code != http.StatusForbidden {
		t.Fatalf("expected 403 for a malformed profile id, got %d", code)
	}

	target := map[string]string{ProfileHeader: strconv.FormatInt(adminProfile.ID, 10)}
	if code := serve(h, http.MethodGet, "/records", child.login.AccessToken, target); code != http.StatusForbidden {
		t.Fatalf("expected child to be denied the admin profile, got %d", code)
	}

	// Admin editing the child profile needs csrf and then passes the shortcut.
	token, err := env.engine.IssueCSRF(context.Background(), admin.principal)
	if err != nil {
		t.Fatalf("issue csrf failed: %v", err)
	}
	edit := map[string]string{ProfileHeader: strconv.FormatInt(childProfile.ID, 10), CSRFHeader: token}
	if code := serve(h, http.MethodPut, "/records", admin.login.AccessToken, edit); code != http.StatusNoContent {
		t.Fatalf("expected admin edit to pass, got %d", code)
	}
}

func TestGateServiceToken(t *testing.T) {
	env := newGateEnv(t)

	service := Gate(env.engine, Options{AllowService: true})(okHandler(t, func(r *http.Request) {
		p, _ := PrincipalFromContext(r.Context())
		if !p.Service {
			t.Errorf("expected the service principal, got %+v", p)
		}
	}))
	if code := serve(service, http.MethodPost, "/internal/sweep", serviceToken, nil); code != http.StatusNoContent {
		t.Fatalf("expected service caller to pass, got %d", code)
	}

	user := RequireUser(env.engine)(okHandler(t, nil))
	if code := serve(user, http.MethodGet, "/me", serviceToken, nil); code != http.StatusForbidden {
		t.Fatalf("expected service token refused on a user route, got %d", code)
	}

	scoped := Gate(env.engine, Options{AllowService: true, ProfileScoped: true})(okHandler(t, nil))
	if code := serve(scoped, http.MethodGet, "/records", serviceToken, map[string]string{ProfileHeader: "1"}); code != http.StatusForbidden {
		t.Fatalf("expected service token refused on a profile route, got %d", code)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := bearerToken(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("bearerToken(%q) = %q, %v", tt.in, got, ok)
		}
	}
}

func TestActionFor(t *testing.T) {
	if actionFor(http.MethodGet) != family.ActionView ||
		actionFor(http.MethodPatch) != family.ActionEdit ||
		actionFor(http.MethodDelete) != family.ActionDelete {
		t.Fatalf("unexpected method mapping")
	}
}
