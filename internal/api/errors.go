package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mblarson/omnihome/internal/automation"
	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/persistence"
	"github.com/mblarson/omnihome/internal/providers"
	"github.com/mblarson/omnihome/internal/providers/tuya"
	"github.com/mblarson/omnihome/internal/voice"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // best-effort write; the connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// writeServiceError maps a domain error to a status code. Unknown errors
// are logged and reported as 500 without their text.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, automation.ErrSceneNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, device.ErrInvalidDeviceType),
		errors.Is(err, device.ErrInvalidName),
		errors.Is(err, device.ErrInvalidValue),
		errors.Is(err, device.ErrEmptyUpdate),
		errors.Is(err, persistence.ErrInvalidConfig),
		errors.Is(err, tuya.ErrMissingCredentials),
		errors.Is(err, tuya.ErrInvalidAccessID),
		errors.Is(err, tuya.ErrUnknownRegion):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, providers.ErrNoPendingLink),
		errors.Is(err, providers.ErrStateMismatch):
		writeBadRequest(w, err.Error())
	case errors.Is(err, device.ErrDeviceExists),
		errors.Is(err, automation.ErrSceneDisabled),
		errors.Is(err, providers.ErrLinkInProgress),
		errors.Is(err, voice.ErrSessionActive):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		writeInternalError(w, "internal server error")
	}
}
