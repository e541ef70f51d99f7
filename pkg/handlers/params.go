package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseID extracts and validates the {id} path parameter.
// Returns uuid.Nil and false after writing an error response on failure.
func ParseID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_id", "Invalid ID format", logger)
}

func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeBadRequest(w, logger, errorCode, errorMessage)
		return uuid.Nil, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter. Missing values return def.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int, logger *zap.Logger) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeBadRequest(w, logger, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// queryBool reads an optional boolean query parameter. Missing values return def.
func queryBool(w http.ResponseWriter, r *http.Request, name string, def bool, logger *zap.Logger) (bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		writeBadRequest(w, logger, "invalid_"+name, name+" must be true or false")
		return false, false
	}
	return b, true
}
