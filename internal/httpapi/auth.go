package httpapi

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/famguard"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, "decode register request", err)
		return
	}
	u, err := s.engine.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, "register failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"user_id": u.ID, "email": u.Email})
}

type loginRequest struct {
	credentials
	famguard.Device
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, "decode login request", err)
		return
	}
	res, err := s.engine.Login(r.Context(), req.Email, req.Password, req.Device)
	if err != nil {
		s.fail(w, "login failed", err)
		return
	}
	respondJSON(w, http.StatusOK, loginResponse{
		TokenPair:  res.TokenPair,
		UserID:     res.UserID,
		SessionID:  res.Session.ID,
		NewDevice:  res.NewDevice,
		Suspicious: res.Suspicious,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, "decode refresh request", err)
		return
	}
	pair, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.fail(w, "refresh failed", err)
		return
	}
	respondJSON(w, http.StatusOK, pair)
}

// logout spends the refresh token in the body. A bearer access token, when
// present, is blacklisted as well.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, "decode logout request", err)
		return
	}
	access := ""
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		access = h[7:]
	}
	if err := s.engine.Logout(r.Context(), req.RefreshToken, access); err != nil {
		s.fail(w, "logout failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.LogoutAll(r.Context(), principal(r))
	if err != nil {
		s.fail(w, "logout all failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"revoked": n})
}

func (s *Server) csrf(w http.ResponseWriter, r *http.Request) {
	token, err := s.engine.IssueCSRF(r.Context(), principal(r))
	if err != nil {
		s.fail(w, "issue csrf token failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (s *Server) requestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, "decode reset request", err)
		return
	}
	if err := s.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.fail(w, "password reset request failed", err)
		return
	}
	// Same answer whether or not the account exists.
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) confirmReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, "decode reset confirmation", err)
		return
	}
	if err := s.engine.ConfirmPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		s.fail(w, "password reset failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
