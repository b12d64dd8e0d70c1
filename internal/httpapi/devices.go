package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/famguard"
)

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.engine.ListDevices(r.Context(), principal(r))
	if err != nil {
		s.fail(w, "list devices failed", err)
		return
	}
	if devices == nil {
		devices = []famguard.DeviceInfo{}
	}
	respondJSON(w, http.StatusOK, devices)
}

type trustRequest struct {
	TTLSeconds int64 `json:"ttl_seconds"`
}

func (s *Server) trustDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, "bad session id", err)
		return
	}
	var req trustRequest
	// The body is optional; an empty one takes the configured window.
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.fail(w, "decode trust request", err)
		return
	}
	if req.TTLSeconds < 0 {
		s.fail(w, "negative trust ttl", famguard.ErrInvalidInput)
		return
	}
	if err := s.engine.TrustDevice(r.Context(), principal(r), id, time.Duration(req.TTLSeconds)*time.Second); err != nil {
		s.fail(w, "trust device failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deviceAction adapts an engine call on one of the caller's sessions.
func (s *Server) deviceAction(fn func(context.Context, famguard.Principal, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.fail(w, "bad session id", err)
			return
		}
		if err := fn(r.Context(), principal(r), id); err != nil {
			s.fail(w, "device action failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) revokeOthers(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.RevokeOtherDevices(r.Context(), principal(r))
	if err != nil {
		s.fail(w, "revoke other devices failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (s *Server) blockOthers(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.BlockOtherDevices(r.Context(), principal(r))
	if err != nil {
		s.fail(w, "block other devices failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"blocked": n})
}
