package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
)

func newJobsMux(svc *mockJobService) *http.ServeMux {
	mux := http.NewServeMux()
	NewJobsHandler(svc, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestJobsHandler_SubmitReturnsAccepted(t *testing.T) {
	svc := newMockJobService()
	mux := newJobsMux(svc)

	rec := serve(t, mux, http.MethodPost, "/api/jobs", `{
		"name": "nightly",
		"db_id": "warehouse",
		"tables": [{"schema": "public", "table": "users"}],
		"analysis_types": ["column_documentation"],
		"provider": "openai"
	}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp SubmitJobResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, models.JobStatusPending, resp.Status)
	assert.Contains(t, svc.jobs, resp.JobID)

	require.NotNil(t, svc.submitted)
	assert.Equal(t, "warehouse", svc.submitted.DatabaseID)
	assert.Equal(t, []models.TableRef{{Schema: "public", Table: "users"}}, svc.submitted.Tables)
	assert.Equal(t, "openai", svc.submitted.Provider)
}

func TestJobsHandler_SubmitErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		submitErr  error
		wantStatus int
		wantCode   string
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest, "invalid_request"},
		{"invalid input", `{}`, fmt.Errorf("%w: db_id is required", apperrors.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{"unknown connection", `{}`, apperrors.ErrUnknownConnection, http.StatusUnprocessableEntity, "unknown_connection"},
		{"unknown provider", `{}`, apperrors.ErrUnknownProvider, http.StatusUnprocessableEntity, "unknown_provider"},
		{"internal", `{}`, fmt.Errorf("failed to create job: boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockJobService()
			svc.submitErr = tt.submitErr

			rec := serve(t, newJobsMux(svc), http.MethodPost, "/api/jobs", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body["error"])
			if tt.wantStatus == http.StatusInternalServerError {
				assert.NotContains(t, body["message"], "boom")
			}
		})
	}
}

func TestJobsHandler_GetCancelDelete(t *testing.T) {
	svc := newMockJobService()
	mux := newJobsMux(svc)
	rec := serve(t, mux, http.MethodPost, "/api/jobs", `{"db_id":"warehouse"}`)
	var submitted SubmitJobResponse
	decodeData(t, rec, &submitted)
	path := "/api/jobs/" + submitted.JobID.String()

	rec = serve(t, mux, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var job models.Job
	decodeData(t, rec, &job)
	assert.Equal(t, submitted.JobID, job.ID)

	rec = serve(t, mux, http.MethodPost, path+"/cancel", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	decodeData(t, rec, &job)
	assert.True(t, job.CancelRequested)

	svc.deleteErr = apperrors.ErrJobRunning
	rec = serve(t, mux, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	svc.deleteErr = nil
	rec = serve(t, mux, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(t, mux, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobsHandler_CancelFinishedJobConflicts(t *testing.T) {
	svc := newMockJobService()
	svc.cancelErr = fmt.Errorf("%w: job already succeeded", apperrors.ErrInvalidTransition)
	mux := newJobsMux(svc)

	rec := serve(t, mux, http.MethodPost, "/api/jobs/550e8400-e29b-41d4-a716-446655440000/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, rec)["error"])
}

func TestJobsHandler_InvalidID(t *testing.T) {
	rec := serve(t, newJobsMux(newMockJobService()), http.MethodGet, "/api/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_id", decodeError(t, rec)["error"])
}

func TestJobsHandler_List(t *testing.T) {
	svc := newMockJobService()
	mux := newJobsMux(svc)
	for i := 0; i < 2; i++ {
		serve(t, mux, http.MethodPost, "/api/jobs", `{"db_id":"warehouse"}`)
	}

	rec := serve(t, mux, http.MethodGet, "/api/jobs?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp JobListResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, 2, resp.Total)

	rec = serve(t, mux, http.MethodGet, "/api/jobs?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
