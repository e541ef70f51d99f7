package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/services"
)

// ApiResponse wraps successful payloads.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// statusForError maps service sentinels to an HTTP status and error code.
func statusForError(err error) (int, string) {
	var qe *services.QueryError
	if errors.As(err, &qe) {
		if qe.Code == apperrors.CodeUnsafeQuery {
			return http.StatusBadRequest, string(qe.Code)
		}
		return http.StatusUnprocessableEntity, string(qe.Code)
	}
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrVersionConflict):
		return http.StatusConflict, "version_conflict"
	case errors.Is(err, apperrors.ErrJobRunning):
		return http.StatusConflict, "job_running"
	case errors.Is(err, apperrors.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, apperrors.ErrSeedRecipeProtected):
		return http.StatusConflict, "seed_recipe_protected"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrUnknownConnection):
		return http.StatusUnprocessableEntity, "unknown_connection"
	case errors.Is(err, apperrors.ErrUnknownProvider):
		return http.StatusUnprocessableEntity, "unknown_provider"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeServiceError logs and writes err. Unmapped errors keep their text out of
// the response.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	status, code := statusForError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("operation", op), zap.Error(err))
		msg = op + " failed"
	} else {
		logger.Debug("Request rejected", zap.String("operation", op), zap.Error(err))
	}
	if err := ErrorResponse(w, status, code, msg); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

func writeOK(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

func writeBadRequest(w http.ResponseWriter, logger *zap.Logger, code, msg string) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, msg); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, logger, "invalid_request", "Invalid request body")
		return false
	}
	return true
}
