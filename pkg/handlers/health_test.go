package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/services"
)

func TestHealthHandler(t *testing.T) {
	cfg := &config.Config{
		Version:     "test-version",
		Env:         "test",
		Database:    config.DatabaseConfig{Type: "memory"},
		Datasources: []config.DatasourceConfig{{ID: "warehouse", Type: "postgres"}},
	}
	mux := http.NewServeMux()
	NewHealthHandler(cfg, zap.NewNop()).RegisterRoutes(mux)

	rec := serve(t, mux, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = serve(t, mux, http.MethodGet, "/ping", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ping PingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ping))
	assert.Equal(t, "ok", ping.Status)
	assert.Equal(t, "test-version", ping.Version)
	assert.Equal(t, "ekaya-dictionary", ping.Service)
	assert.Equal(t, 1, ping.Connections)
	assert.Equal(t, "memory", ping.Store)
}

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, ErrorResponse(w, http.StatusNotFound, "not_found", "job not found"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	body := decodeError(t, w)
	assert.Equal(t, "not_found", body["error"])
	assert.Equal(t, "job not found", body["message"])
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{fmt.Errorf("job: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{apperrors.ErrConflict, http.StatusConflict, "conflict"},
		{apperrors.ErrVersionConflict, http.StatusConflict, "version_conflict"},
		{apperrors.ErrSeedRecipeProtected, http.StatusConflict, "seed_recipe_protected"},
		{apperrors.ErrJobRunning, http.StatusConflict, "job_running"},
		{apperrors.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
		{apperrors.ErrUnknownConnection, http.StatusUnprocessableEntity, "unknown_connection"},
		{apperrors.ErrUnknownProvider, http.StatusUnprocessableEntity, "unknown_provider"},
		{&services.QueryError{Code: apperrors.CodeUnsafeQuery}, http.StatusBadRequest, "UNSAFE_QUERY"},
		{fmt.Errorf("profile: %w", &services.QueryError{Code: apperrors.CodeExecutionError}), http.StatusUnprocessableEntity, "EXECUTION_ERROR"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			status, code := statusForError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}
