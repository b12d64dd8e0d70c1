package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/famguard"
	"github.com/MrEthical07/famguard/family"
	"github.com/MrEthical07/famguard/metrics/export/prometheus"
	"github.com/MrEthical07/famguard/middleware"
	"github.com/gorilla/mux"
)

// Options configures the HTTP surface.
type Options struct {
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
	Logger     *slog.Logger
}

// Server routes requests to one engine.
type Server struct {
	engine *famguard.Engine
	logger *slog.Logger
	router *mux.Router
}

func New(engine *famguard.Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: engine, logger: logger, router: mux.NewRouter()}
	s.routes(opts.TrustProxy)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(trustProxy bool) {
	r := s.router
	r.Use(middleware.ClientInfo(trustProxy))

	user := middleware.Gate(s.engine, middleware.Options{Logger: s.logger})
	userOrService := middleware.Gate(s.engine, middleware.Options{AllowService: true, Logger: s.logger})
	profile := middleware.Gate(s.engine, middleware.Options{
		ProfileScoped: true,
		Action:        family.ActionView,
		ProfileID:     func(r *http.Request) string { return mux.Vars(r)["id"] },
		Logger:        s.logger,
	})

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", prometheus.NewExporter(s.engine).Handler()).Methods(http.MethodGet)

	r.HandleFunc("/auth/register", s.register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", s.refresh).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", s.logout).Methods(http.MethodPost)
	r.HandleFunc("/auth/password-reset", s.requestReset).Methods(http.MethodPost)
	r.HandleFunc("/auth/password-reset/confirm", s.confirmReset).Methods(http.MethodPost)
	r.Handle("/auth/logout-all", user(http.HandlerFunc(s.logoutAll))).Methods(http.MethodPost)
	r.Handle("/auth/csrf", user(http.HandlerFunc(s.csrf))).Methods(http.MethodGet)

	r.Handle("/devices", user(http.HandlerFunc(s.listDevices))).Methods(http.MethodGet)
	r.Handle("/devices/revoke-others", user(http.HandlerFunc(s.revokeOthers))).Methods(http.MethodPost)
	r.Handle("/devices/block-others", user(http.HandlerFunc(s.blockOthers))).Methods(http.MethodPost)
	r.Handle("/devices/{id:[0-9]+}/trust", user(http.HandlerFunc(s.trustDevice))).Methods(http.MethodPost)
	r.Handle("/devices/{id:[0-9]+}/untrust", user(http.HandlerFunc(s.deviceAction(s.engine.UntrustDevice)))).Methods(http.MethodPost)
	r.Handle("/devices/{id:[0-9]+}/block", user(http.HandlerFunc(s.deviceAction(s.engine.BlockDevice)))).Methods(http.MethodPost)
	r.Handle("/devices/{id:[0-9]+}/unblock", user(http.HandlerFunc(s.deviceAction(s.engine.UnblockDevice)))).Methods(http.MethodPost)
	r.Handle("/devices/{id:[0-9]+}", user(http.HandlerFunc(s.deviceAction(s.engine.RevokeDevice)))).Methods(http.MethodDelete)

	r.Handle("/families", user(http.HandlerFunc(s.createFamily))).Methods(http.MethodPost)
	r.Handle("/profiles", user(http.HandlerFunc(s.createProfile))).Methods(http.MethodPost)
	r.Handle("/profiles/{id:[0-9]+}/caregivers", user(http.HandlerFunc(s.addCaregiver))).Methods(http.MethodPost)
	r.Handle("/profiles/{id:[0-9]+}/shares", user(http.HandlerFunc(s.shareData))).Methods(http.MethodPost)
	r.Handle("/profiles/{id:[0-9]+}/access", profile(http.HandlerFunc(s.profileAccess))).Methods(http.MethodGet)
	r.Handle("/shares/{id:[0-9]+}/revoke", user(http.HandlerFunc(s.revokeShare))).Methods(http.MethodPost)
	r.Handle("/invites", user(http.HandlerFunc(s.createInvite))).Methods(http.MethodPost)
	r.Handle("/invites/accept", user(http.HandlerFunc(s.acceptInvite))).Methods(http.MethodPost)
	r.Handle("/invites/{code}/cancel", user(http.HandlerFunc(s.cancelInvite))).Methods(http.MethodPost)
	r.Handle("/users/{id:[0-9]+}/active", userOrService(http.HandlerFunc(s.setUserActive))).Methods(http.MethodPut)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.engine.Ping(ctx); err != nil {
		respondWithError(w, s.logger, http.StatusServiceUnavailable, "unavailable", "health check failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func principal(r *http.Request) famguard.Principal {
	p, _ := middleware.PrincipalFromContext(r.Context())
	return p
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, famguard.ErrInvalidInput
	}
	return id, nil
}
