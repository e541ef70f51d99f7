package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/services"
)

// SubmitJobResponse for POST /api/jobs
type SubmitJobResponse struct {
	JobID  uuid.UUID        `json:"job_id"`
	Status models.JobStatus `json:"status"`
}

// JobListResponse for GET /api/jobs
type JobListResponse struct {
	Jobs  []*models.Job `json:"jobs"`
	Total int           `json:"total"`
}

// JobsHandler handles analysis job HTTP requests.
type JobsHandler struct {
	jobService services.JobService
	logger     *zap.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(jobService services.JobService, logger *zap.Logger) *JobsHandler {
	return &JobsHandler{
		jobService: jobService,
		logger:     logger.Named("jobs-handler"),
	}
}

// RegisterRoutes registers the jobs handler's routes on the given mux.
func (h *JobsHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/jobs"

	mux.HandleFunc("POST "+base, h.Submit)
	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("GET "+base+"/{id}", h.Get)
	mux.HandleFunc("POST "+base+"/{id}/cancel", h.Cancel)
	mux.HandleFunc("DELETE "+base+"/{id}", h.Delete)
}

// Submit handles POST /api/jobs
func (h *JobsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req services.SubmitJobRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	job, err := h.jobService.Submit(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, "submit_job", err)
		return
	}

	writeOK(w, h.logger, http.StatusAccepted, SubmitJobResponse{JobID: job.ID, Status: job.Status})
}

// List handles GET /api/jobs?limit=
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 0, h.logger)
	if !ok {
		return
	}

	jobs, err := h.jobService.List(r.Context(), limit)
	if err != nil {
		writeServiceError(w, h.logger, "list_jobs", err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, JobListResponse{Jobs: jobs, Total: len(jobs)})
}

// Get handles GET /api/jobs/{id}
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	job, err := h.jobService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "get_job", err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, job)
}

// Cancel handles POST /api/jobs/{id}/cancel
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	job, err := h.jobService.Cancel(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "cancel_job", err)
		return
	}

	writeOK(w, h.logger, http.StatusAccepted, job)
}

// Delete handles DELETE /api/jobs/{id}
func (h *JobsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.jobService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, "delete_job", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
