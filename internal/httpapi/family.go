package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/famguard"
	"github.com/MrEthical07/famguard/family"
	"github.com/MrEthical07/famguard/middleware"
	"github.com/gorilla/mux"
)

type createFamilyRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

func (s *Server) createFamily(w http.ResponseWriter, r *http.Request) {
	var req createFamilyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, "decode family request", err)
		return
	}
	f, prof, err := s.engine.CreateFamily(r.Context(), principal(r), req.Name, req.DisplayName)
	if err != nil {
		s.fail(w, "create family failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"family":  viewFamily(f),
		"profile": viewProfile(prof),
	})
}

type createProfileRequest struct {
	DisplayName      string             `json:"display_name"`
	AccountType      family.AccountType `json:"account_type"`
	AllowQuickAccess bool               `json:"allow_quick_access"`
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, "decode profile request", err)
		return
	}
	prof, err := s.engine.CreateProfile(r.Context(), principal(r), famguard.ProfileInput{
		DisplayName:      req.DisplayName,
		AccountType:      req.AccountType,
		AllowQuickAccess: req.AllowQuickAccess,
	})
	if err != nil {
		s.fail(w, "create profile failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, viewProfile(prof))
}

type caregiverRequest struct {
	CaregiverUserID int64              `json:"caregiver_user_id"`
	AccessLevel     family.AccessLevel `json:"access_level"`
}

func (s *Server) addCaregiver(w http.ResponseWriter, r *http.Request) {
	profileID, err := pathID(r)
	if err != nil {
		s.fail(w, "bad profile id", err)
		return
	}
	var req caregiverRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, "decode caregiver request", err)
		return
	}
	c, err := s.engine.AddCaregiver(r.Context(), principal(r), profileID, req.CaregiverUserID, req.AccessLevel)
	if err != nil {
		s.fail(w, "add caregiver failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, caregiverView{
		ID:              c.ID,
		ProfileID:       c.ProfileID,
		CaregiverUserID: c.CaregiverUserID,
		AccessLevel:     c.AccessLevel,
		CreatedAt:       c.CreatedAt,
	})
}

type shareRequest struct {
	ToProfileID int64                   `json:"to_profile_id"`
	Permissions family.SharePermissions `json:"permissions"`
	ExpiresAt   *time.Time              `json:"expires_at"`
}

func (s *Server) shareData(w http.ResponseWriter, r *http.Request) {
	from, err := pathID(r)
	if err != nil {
		s.fail(w, "bad profile id", err)
		return
	}
	var req shareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, "decode share request", err)
		return
	}
	sh, err := s.engine.ShareData(r.Context(), principal(r), famguard.ShareInput{
		FromProfileID: from,
		ToProfileID:   req.ToProfileID,
		Permissions:   req.Permissions,
		ExpiresAt:     req.ExpiresAt,
	})
	if err != nil {
		s.fail(w, "share data failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, shareView{
		ID:            sh.ID,
		FromProfileID: sh.FromProfileID,
		ToProfileID:   sh.ToProfileID,
		Permissions:   sh.Permissions,
		ExpiresAt:     sh.ExpiresAt,
		CreatedAt:     sh.CreatedAt,
	})
}

func (s *Server) revokeShare(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, "bad share id", err)
		return
	}
	if err := s.engine.RevokeShare(r.Context(), principal(r), id); err != nil {
		s.fail(w, "revoke share failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inviteRequest struct {
	Email       string             `json:"email"`
	AccountType family.AccountType `json:"account_type"`
}

func (s *Server) createInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, "decode invite request", err)
		return
	}
	inv, err := s.engine.CreateInvite(r.Context(), principal(r), req.Email, req.AccountType)
	if err != nil {
		s.fail(w, "create invite failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, inviteView{
		Code:        inv.Code,
		Email:       inv.Email,
		AccountType: inv.AccountType,
		Status:      inv.Status,
		ExpiresAt:   inv.ExpiresAt,
	})
}

type acceptRequest struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
}

func (s *Server) acceptInvite(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, "decode accept request", err)
		return
	}
	prof, err := s.engine.AcceptInvite(r.Context(), principal(r), req.Code, req.DisplayName)
	if err != nil {
		s.fail(w, "accept invite failed", err)
		return
	}
	respondJSON(w, http.StatusOK, viewProfile(prof))
}

func (s *Server) cancelInvite(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.CancelInvite(r.Context(), principal(r), mux.Vars(r)["code"]); err != nil {
		s.fail(w, "cancel invite failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type accessResponse struct {
	ProfileID int64         `json:"profile_id"`
	Action    family.Action `json:"action"`
	Allowed   bool          `json:"allowed"`
	Rule      string        `json:"rule"`
	Downloads int           `json:"downloads,omitempty"`
	Flagged   bool          `json:"flagged,omitempty"`
}

// profileAccess runs behind the profile gate, so view is already granted.
// It reports the decision for ?action= and records a download on
// ?download=1.
func (s *Server) profileAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principal(r)
	profileID, _ := middleware.ProfileIDFromContext(ctx)

	action := family.Action(r.URL.Query().Get("action"))
	if action == "" {
		action = family.ActionView
	}
	if !action.Valid() {
		s.fail(w, "unknown action", famguard.ErrInvalidInput)
		return
	}
	d, err := s.engine.Authorize(ctx, p, action, profileID)
	if err != nil {
		s.fail(w, "authorize failed", err)
		return
	}
	resp := accessResponse{ProfileID: profileID, Action: action, Allowed: d.Allowed, Rule: string(d.Rule)}

	if r.URL.Query().Get("download") == "1" {
		res, err := s.engine.RecordDownload(ctx, p, profileID)
		if err != nil {
			s.fail(w, "record download failed", err)
			return
		}
		resp.Downloads = res.Count
		resp.Flagged = res.Flagged
	}
	respondJSON(w, http.StatusOK, resp)
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (s *Server) setUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, "bad user id", err)
		return
	}
	var req activeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, "decode active request", err)
		return
	}
	if err := s.engine.SetUserActive(r.Context(), principal(r), id, req.Active); err != nil {
		s.fail(w, "set user active failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
