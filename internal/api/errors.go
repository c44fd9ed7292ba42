package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jcossey/contacthub/internal/auth"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeUnauthorized  = "unauthorised"
	ErrCodeConflict      = "conflict"
	ErrCodeUnprocessable = "unprocessable"
	ErrCodeInternal      = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAuthError maps auth service errors to HTTP responses.
//
// Credential and token failures map to 401; malformed or mis-scoped
// single-purpose tokens surface as 422 from the confirmation handlers
// (handled there); anything unrecognised is a 500.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, "invalid credentials")
	case errors.Is(err, auth.ErrTokenExpired):
		writeUnauthorized(w, "token has expired")
	case errors.Is(err, auth.ErrTokenSignature),
		errors.Is(err, auth.ErrTokenMalformed),
		errors.Is(err, auth.ErrInvalidScope):
		writeUnauthorized(w, "could not validate credentials")
	case errors.Is(err, auth.ErrTokenRevoked):
		writeUnauthorized(w, "refresh token has been revoked")
	case errors.Is(err, auth.ErrUnknownPrincipal):
		writeUnauthorized(w, "could not validate credentials")
	case errors.Is(err, auth.ErrEmailExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "account already exists")
	default:
		writeInternalError(w, "internal server error")
	}
}
