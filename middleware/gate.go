package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrEthical07/famguard"
	"github.com/MrEthical07/famguard/family"
	"github.com/MrEthical07/famguard/permission"
)

// ProfileHeader names the target profile of a request.
const ProfileHeader = "X-Profile-Id"

// CSRFHeader carries the CSRF token on mutating requests.
const CSRFHeader = "X-CSRF-Token"

type principalContextKey struct{}
type profileContextKey struct{}
type decisionContextKey struct{}

// PrincipalFromContext returns the caller the gate admitted.
func PrincipalFromContext(ctx context.Context) (famguard.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(famguard.Principal)
	return p, ok
}

// ProfileIDFromContext returns the target profile of a profile-scoped route.
func ProfileIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(profileContextKey{}).(int64)
	return id, ok
}

// DecisionFromContext returns the permission decision that admitted the
// request.
func DecisionFromContext(ctx context.Context) (permission.Decision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(permission.Decision)
	return d, ok
}

// Authenticator is the part of the engine the gate drives.
type Authenticator interface {
	IsServiceToken(token string) bool
	Authenticate(ctx context.Context, raw string) (famguard.Principal, error)
	ValidateCSRF(ctx context.Context, p famguard.Principal, token string) bool
	CSRFExempt(path string) bool
	ResolveProfile(ctx context.Context, p famguard.Principal, header string) (int64, error)
	Authorize(ctx context.Context, p famguard.Principal, action family.Action, profileID int64) (permission.Decision, error)
}

var _ Authenticator = (*famguard.Engine)(nil)

// Options shapes one route's gate.
type Options struct {
	// AllowService admits the static service credential. Service callers
	// never pass a profile-scoped gate.
	AllowService bool
	// ProfileScoped resolves the target profile and asks the permission
	// engine before the handler runs.
	ProfileScoped bool
	// Action fixes the permission action. Empty derives it from the method.
	Action family.Action
	// ProfileID extracts the requested profile id. The default reads
	// X-Profile-Id.
	ProfileID func(r *http.Request) string
	Logger    *slog.Logger
}

// Gate admits a request only after every check passes, in order: bearer
// credential, service credential or access token, CSRF on mutating
// methods, target profile, permission.
func Gate(engine Authenticator, opts Options) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	profileID := opts.ProfileID
	if profileID == nil {
		profileID = func(r *http.Request) string { return r.Header.Get(ProfileHeader) }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}
			ctx := r.Context()

			if engine.IsServiceToken(token) {
				if !opts.AllowService || opts.ProfileScoped {
					logger.Info("service credential refused", "path", r.URL.Path)
					forbidden(w)
					return
				}
				ctx = context.WithValue(ctx, principalContextKey{}, famguard.ServicePrincipal())
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			p, err := engine.Authenticate(ctx, token)
			if err != nil {
				if errors.Is(err, famguard.ErrUnauthenticated) {
					unauthorized(w)
					return
				}
				logger.Error("authentication failed", "error", err)
				internalError(w)
				return
			}
			ctx = context.WithValue(ctx, principalContextKey{}, p)

			if mutating(r.Method) && !engine.CSRFExempt(r.URL.Path) &&
				!engine.ValidateCSRF(ctx, p, r.Header.Get(CSRFHeader)) {
				logger.Info("csrf check failed", "user_id", p.UserID, "path", r.URL.Path)
				forbidden(w)
				return
			}

			if opts.ProfileScoped {
				target, err := engine.ResolveProfile(ctx, p, profileID(r))
				if err != nil {
					if isClientProfileErr(err) {
						logger.Info("target profile unresolved", "user_id", p.UserID, "reason", err.Error())
						forbidden(w)
						return
					}
					logger.Error("resolve profile failed", "error", err)
					internalError(w)
					return
				}
				action := opts.Action
				if action == "" {
					action = actionFor(r.Method)
				}
				d, err := engine.Authorize(ctx, p, action, target)
				if err != nil {
					logger.Error("permission check failed", "error", err)
					internalError(w)
					return
				}
				if !d.Allowed {
					logger.Info("permission denied",
						"user_id", p.UserID, "profile_id", target, "action", action,
						"rule", d.Rule, "reason", d.Reason)
					forbidden(w)
					return
				}
				ctx = context.WithValue(ctx, profileContextKey{}, target)
				ctx = context.WithValue(ctx, decisionContextKey{}, d)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser admits any authenticated user and runs no permission check.
func RequireUser(engine Authenticator) func(http.Handler) http.Handler {
	return Gate(engine, Options{})
}

// RequireProfile admits callers allowed to perform action on the target
// profile. An empty action is derived from the method.
func RequireProfile(engine Authenticator, action family.Action) func(http.Handler) http.Handler {
	return Gate(engine, Options{ProfileScoped: true, Action: action})
}

func isClientProfileErr(err error) bool {
	return errors.Is(err, famguard.ErrProfileAmbiguous) ||
		errors.Is(err, famguard.ErrInvalidInput) ||
		errors.Is(err, famguard.ErrNotInFamily)
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func actionFor(method string) family.Action {
	switch method {
	case http.MethodDelete:
		return family.ActionDelete
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return family.ActionEdit
	}
	return family.ActionView
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func forbidden(w http.ResponseWriter) {
	http.Error(w, "forbidden", http.StatusForbidden)
}

func internalError(w http.ResponseWriter) {
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
