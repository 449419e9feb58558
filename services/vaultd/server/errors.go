package server

import (
	"encoding/json"
	"errors"
	"net/http"

	nativevault "stakevault/native/vault"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// errorStatus maps a vault error onto the HTTP status returned to clients.
func errorStatus(err error) int {
	switch {
	case nativevault.IsAuthorization(err):
		return http.StatusForbidden
	case nativevault.IsAvailability(err),
		errors.Is(err, nativevault.ErrAlreadyRewarder),
		errors.Is(err, nativevault.ErrNotRewarderYet),
		errors.Is(err, nativevault.ErrAlreadyBlacklisted),
		errors.Is(err, nativevault.ErrNotBlacklisted):
		return http.StatusConflict
	case nativevault.IsValidation(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// errorClass labels rejections for metrics.
func errorClass(err error) string {
	switch errorStatus(err) {
	case http.StatusForbidden:
		return "authorization"
	case http.StatusConflict:
		return "availability"
	case http.StatusUnprocessableEntity:
		return "validation"
	default:
		return "internal"
	}
}

func (s *Server) writeVaultError(w http.ResponseWriter, op string, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("vault operation failed", "operation", op, "error", err.Error())
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
