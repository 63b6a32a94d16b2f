package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"auth-control-plane/internal/auth"
	"auth-control-plane/internal/retry"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	respondJSON(w, status, map[string]string{"error": code})
}

// writeServiceError maps the service error taxonomy to HTTP. Credential and
// token failures collapse into one generic 401 body; the precise cause only
// reaches the log.
func writeServiceError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status, code := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("server: request failed")
	} else {
		log.Debug().Err(err).Msg("server: request rejected")
	}
	writeError(w, status, code)
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, auth.ErrEmailAlreadyRegistered):
		return http.StatusConflict, "email_already_registered"
	case errors.Is(err, auth.ErrEmailNotVerified):
		return http.StatusForbidden, "email_not_verified"
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusGone, "token_expired"
	case errors.Is(err, auth.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrSessionExpired):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, retry.ErrRetriesExhausted):
		return http.StatusServiceUnavailable, "service_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
