package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/famguard"
)

const maxBodyBytes = 1 << 20

// respondWithError logs err under logMsg and sends userMsg only.
func respondWithError(w http.ResponseWriter, logger *slog.Logger, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		if status >= http.StatusInternalServerError {
			logger.Error(logMsg, "error", err)
		} else {
			logger.Info(logMsg, "error", err)
		}
	}
	http.Error(w, userMsg, status)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(famguard.ErrInvalidInput, err)
	}
	return nil
}

type errorMapping struct {
	target error
	status int
}

// errorStatus is checked in order; the first match wins.
var errorStatus = []errorMapping{
	{famguard.ErrInvalidCredentials, http.StatusUnauthorized},
	{famguard.ErrUnauthenticated, http.StatusUnauthorized},
	{famguard.ErrRefreshInvalid, http.StatusUnauthorized},
	{famguard.ErrLoginThrottled, http.StatusTooManyRequests},
	{famguard.ErrResetThrottled, http.StatusTooManyRequests},
	{famguard.ErrSignupThrottled, http.StatusTooManyRequests},
	{famguard.ErrDeviceBlocked, http.StatusForbidden},
	{famguard.ErrForbidden, http.StatusForbidden},
	{famguard.ErrCSRFInvalid, http.StatusForbidden},
	{famguard.ErrPasswordPolicy, http.StatusBadRequest},
	{famguard.ErrInvalidInput, http.StatusBadRequest},
	{famguard.ErrDeviceUnidentified, http.StatusBadRequest},
	{famguard.ErrProfileAmbiguous, http.StatusBadRequest},
	{famguard.ErrInviteInvalid, http.StatusBadRequest},
	{famguard.ErrResetInvalid, http.StatusBadRequest},
	{famguard.ErrAccountExists, http.StatusConflict},
	{famguard.ErrConflict, http.StatusConflict},
	{famguard.ErrAlreadyInFamily, http.StatusConflict},
	{famguard.ErrNotInFamily, http.StatusConflict},
	{famguard.ErrProfileNotFound, http.StatusNotFound},
	{famguard.ErrSessionNotFound, http.StatusNotFound},
	{famguard.ErrShareNotFound, http.StatusNotFound},
	{famguard.ErrUserNotFound, http.StatusNotFound},
}

// statusFor maps an engine error to a status and the sentinel's text. Wrapped
// detail never reaches the client, except for the password policy message.
func statusFor(err error) (int, string) {
	for _, m := range errorStatus {
		if errors.Is(err, m.target) {
			if m.target == famguard.ErrPasswordPolicy {
				return m.status, err.Error()
			}
			return m.status, m.target.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

func (s *Server) fail(w http.ResponseWriter, logMsg string, err error) {
	status, msg := statusFor(err)
	respondWithError(w, s.logger, status, msg, logMsg, err)
}
