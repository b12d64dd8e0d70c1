package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrEthical07/famguard"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const password = "correct-horse-battery"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	cfg := famguard.TestConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "api.db")
	cfg.Audit.Enabled = false

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := famguard.New().WithConfig(cfg).WithRedis(rdb).WithLogger(logger).Build(context.Background())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	srv := httptest.NewServer(New(engine, Options{Logger: logger}))
	t.Cleanup(func() {
		srv.Close()
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return srv
}

type client struct {
	t      *testing.T
	base   string
	access string
	csrf   string
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal failed: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		c.t.Fatalf("new request failed: %v", err)
	}
	if c.access != "" {
		req.Header.Set("Authorization", "Bearer "+c.access)
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s failed: %v", path, err)
		}
	}
	return res.StatusCode
}

// signup registers, logs in and fetches a csrf token.
func signup(t *testing.T, base, email string) *client {
	t.Helper()
	c := &client{t: t, base: base}
	if code := c.do(http.MethodPost, "/auth/register", map[string]string{"email": email, "password": password}, nil); code != http.StatusCreated {
		t.Fatalf("register expected 201, got %d", code)
	}
	var login loginResponse
	body := map[string]string{"email": email, "password": password, "device_id": "dev-" + email, "device_name": "phone"}
	if code := c.do(http.MethodPost, "/auth/login", body, &login); code != http.StatusOK {
		t.Fatalf("login expected 200, got %d", code)
	}
	if login.AccessToken == "" || login.RefreshToken == "" || !login.NewDevice {
		t.Fatalf("unexpected login response %+v", login)
	}
	c.access = login.AccessToken
	var csrf map[string]string
	if code := c.do(http.MethodGet, "/auth/csrf", nil, &csrf); code != http.StatusOK {
		t.Fatalf("csrf expected 200, got %d", code)
	}
	c.csrf = csrf["csrf_token"]
	return c
}

func TestAuthEndpoints(t *testing.T) {
	srv := newServer(t)
	anon := &client{t: t, base: srv.URL}

	body := map[string]string{"email": "a@example.com", "password": "short"}
	if code := anon.do(http.MethodPost, "/auth/register", body, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a short password, got %d", code)
	}
	if code := anon.do(http.MethodPost, "/auth/register", map[string]any{"email": 7}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", code)
	}

	a := signup(t, srv.URL, "a@example.com")
	body["password"] = password
	if code := anon.do(http.MethodPost, "/auth/register", body, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 for a duplicate, got %d", code)
	}

	wrong := map[string]string{"email": "a@example.com", "password": "wrong-password-123", "device_id": "x"}
	if code := anon.do(http.MethodPost, "/auth/login", wrong, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a wrong password, got %d", code)
	}

	var devices []famguard.DeviceInfo
	if code := a.do(http.MethodGet, "/devices", nil, &devices); code != http.StatusOK {
		t.Fatalf("devices expected 200, got %d", code)
	}
	if len(devices) != 1 || !devices[0].Current {
		t.Fatalf("unexpected devices %+v", devices)
	}

	path := fmt.Sprintf("/devices/%d/trust", devices[0].SessionID)
	noCSRF := &client{t: t, base: srv.URL, access: a.access}
	if code := noCSRF.do(http.MethodPost, path, nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf, got %d", code)
	}
	if code := a.do(http.MethodPost, path, map[string]int{"ttl_seconds": 3600}, nil); code != http.StatusNoContent {
		t.Fatalf("trust expected 204, got %d", code)
	}
	if code := a.do(http.MethodPost, "/devices/99999/block", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown session, got %d", code)
	}

	var all map[string]int64
	if code := a.do(http.MethodPost, "/auth/logout-all", nil, &all); code != http.StatusOK {
		t.Fatalf("logout-all expected 200, got %d", code)
	}
	if all["revoked"] != 1 {
		t.Fatalf("expected one revoked token, got %v", all)
	}
	if code := a.do(http.MethodGet, "/devices", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected the access token to be blacklisted, got %d", code)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	srv := newServer(t)
	anon := &client{t: t, base: srv.URL}
	if code := anon.do(http.MethodPost, "/auth/register", map[string]string{"email": "b@example.com", "password": password}, nil); code != http.StatusCreated {
		t.Fatalf("register expected 201, got %d", code)
	}
	var login loginResponse
	if code := anon.do(http.MethodPost, "/auth/login", map[string]string{"email": "b@example.com", "password": password, "device_id": "tab"}, &login); code != http.StatusOK {
		t.Fatalf("login expected 200, got %d", code)
	}

	var pair famguard.TokenPair
	if code := anon.do(http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": login.RefreshToken}, &pair); code != http.StatusOK {
		t.Fatalf("refresh expected 200, got %d", code)
	}
	if code := anon.do(http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": login.RefreshToken}, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected a spent token to be refused, got %d", code)
	}

	c := &client{t: t, base: srv.URL, access: pair.AccessToken}
	if code := c.do(http.MethodPost, "/auth/logout", map[string]string{"refresh_token": pair.RefreshToken}, nil); code != http.StatusNoContent {
		t.Fatalf("logout expected 204, got %d", code)
	}
	if code := c.do(http.MethodGet, "/devices", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected the access token to be blacklisted, got %d", code)
	}
}

func TestFamilyFlow(t *testing.T) {
	srv := newServer(t)
	admin := signup(t, srv.URL, "admin@example.com")

	var created struct {
		Family  familyView  `json:"family"`
		Profile profileView `json:"profile"`
	}
	if code := admin.do(http.MethodPost, "/families", map[string]string{"name": "Haddad", "display_name": "Rami"}, &created); code != http.StatusCreated {
		t.Fatalf("create family expected 201, got %d", code)
	}
	// Family membership is read from the user row on every request.
	var inv inviteView
	if code := admin.do(http.MethodPost, "/invites", map[string]string{"email": "kid@example.com", "account_type": "child"}, &inv); code != http.StatusCreated {
		t.Fatalf("invite expected 201, got %d", code)
	}

	kid := signup(t, srv.URL, "kid@example.com")
	accept := map[string]string{"code": strings.ToLower(inv.Code)}
	noCSRF := &client{t: t, base: srv.URL, access: kid.access}
	if code := noCSRF.do(http.MethodPost, "/invites/accept", accept, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for accept without csrf, got %d", code)
	}
	var kidProfile profileView
	if code := kid.do(http.MethodPost, "/invites/accept", accept, &kidProfile); code != http.StatusOK {
		t.Fatalf("accept expected 200, got %d", code)
	}
	if kidProfile.AccountType != "child" || kidProfile.DisplayName != "kid" {
		t.Fatalf("unexpected profile %+v", kidProfile)
	}

	var access accessResponse
	path := fmt.Sprintf("/profiles/%d/access?action=edit", kidProfile.ID)
	if code := admin.do(http.MethodGet, path, nil, &access); code != http.StatusOK {
		t.Fatalf("access expected 200, got %d", code)
	}
	if !access.Allowed || access.Rule != "family_admin" {
		t.Fatalf("unexpected decision %+v", access)
	}

	if code := kid.do(http.MethodGet, fmt.Sprintf("/profiles/%d/access", created.Profile.ID), nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected the child to be refused the admin profile, got %d", code)
	}
	if code := kid.do(http.MethodGet, fmt.Sprintf("/profiles/%d/access?action=edit", kidProfile.ID), nil, &access); code != http.StatusOK {
		t.Fatalf("own profile check expected 200, got %d", code)
	}
	if access.Allowed {
		t.Fatalf("a child cannot edit own data: %+v", access)
	}

	if code := admin.do(http.MethodGet, fmt.Sprintf("/profiles/%d/access?download=1", kidProfile.ID), nil, &access); code != http.StatusOK {
		t.Fatalf("download check expected 200, got %d", code)
	}
	if access.Downloads != 1 || access.Flagged {
		t.Fatalf("unexpected download result %+v", access)
	}

	if code := kid.do(http.MethodPost, "/profiles", map[string]string{"display_name": "Pet", "account_type": "child"}, nil); code != http.StatusForbidden {
		t.Fatalf("expected a child to be refused profile creation, got %d", code)
	}
	if code := admin.do(http.MethodPost, "/invites/NOPE/cancel", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown invite, got %d", code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(t)
	anon := &client{t: t, base: srv.URL}

	var health map[string]string
	if code := anon.do(http.MethodGet, "/healthz", nil, &health); code != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("unexpected health %d %v", code, health)
	}

	res, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(raw), "famguard_login_success_total 0") {
		t.Fatalf("expected counters in metrics output, got:\n%s", raw)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{famguard.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
		{fmt.Errorf("%w: %w", famguard.ErrUnauthenticated, famguard.ErrDeviceBlocked), http.StatusUnauthorized, "unauthorized"},
		{famguard.ErrLoginThrottled, http.StatusTooManyRequests, famguard.ErrLoginThrottled.Error()},
		{fmt.Errorf("%w: too short", famguard.ErrPasswordPolicy), http.StatusBadRequest, "password policy violation: too short"},
		{famguard.ErrShareNotFound, http.StatusNotFound, "share not found"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		status, msg := statusFor(tt.err)
		if status != tt.status || msg != tt.msg {
			t.Fatalf("statusFor(%v) = %d %q, want %d %q", tt.err, status, msg, tt.status, tt.msg)
		}
	}
}

func TestPasswordResetEndpoints(t *testing.T) {
	srv := newServer(t)
	signup(t, srv.URL, "forgetful@example.com")
	anon := &client{t: t, base: srv.URL}

	for _, email := range []string{"forgetful@example.com", "nobody@example.com"} {
		if code := anon.do(http.MethodPost, "/auth/password-reset", map[string]string{"email": email}, nil); code != http.StatusAccepted {
			t.Fatalf("reset request for %s expected 202, got %d", email, code)
		}
	}
	if code := anon.do(http.MethodPost, "/auth/password-reset", map[string]string{"email": "nope"}, nil); code != http.StatusBadRequest {
		t.Fatalf("malformed email expected 400, got %d", code)
	}
	body := map[string]string{"token": "not-a-token", "password": "a-much-better-passphrase"}
	if code := anon.do(http.MethodPost, "/auth/password-reset/confirm", body, nil); code != http.StatusBadRequest {
		t.Fatalf("bogus token expected 400, got %d", code)
	}

	// Two requests from this address so far; the limit is three.
	anon.do(http.MethodPost, "/auth/password-reset", map[string]string{"email": "third@example.com"}, nil)
	if code := anon.do(http.MethodPost, "/auth/password-reset", map[string]string{"email": "fourth@example.com"}, nil); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the address is over the limit, got %d", code)
	}
}
