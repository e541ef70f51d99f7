package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/repositories"
)

// JobRepository keeps jobs in process. Returned jobs are deep copies.
type JobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*models.Job
}

func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: make(map[uuid.UUID]*models.Job)}
}

var _ repositories.JobRepository = (*JobRepository)(nil)

func (r *JobRepository) Create(_ context.Context, job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if _, exists := r.jobs[job.ID]; exists {
		return apperrors.ErrConflict
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.Metadata == nil {
		job.Metadata = models.JobMetadata{}
	}

	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *JobRepository) Get(_ context.Context, id uuid.UUID) (*models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *JobRepository) List(_ context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	jobs := r.snapshot(func(*models.Job) bool { return true })
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *JobRepository) ListByStatus(_ context.Context, status models.JobStatus) ([]*models.Job, error) {
	jobs := r.snapshot(func(j *models.Job) bool { return j.Status == status })
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs, nil
}

func (r *JobRepository) UpdateStatus(_ context.Context, job *models.Job, from models.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.jobs[job.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if stored.Status != from {
		return fmt.Errorf("%w: expected %s -> %s, job is %s",
			apperrors.ErrInvalidTransition, from, job.Status, stored.Status)
	}

	next := cloneJob(job)
	next.CancelRequested = stored.CancelRequested
	next.CreatedAt = stored.CreatedAt
	r.jobs[job.ID] = next
	return nil
}

func (r *JobRepository) SaveProgress(_ context.Context, id uuid.UUID, metadata models.JobMetadata, result *models.JobResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.jobs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if stored.Status != models.JobStatusRunning {
		return fmt.Errorf("%w: job is %s", apperrors.ErrInvalidTransition, stored.Status)
	}
	now := time.Now().UTC()
	stored.Metadata = metadata.Clone()
	stored.Result = cloneResult(result)
	stored.UpdatedAt = now
	stored.HeartbeatAt = &now
	return nil
}

func (r *JobRepository) Heartbeat(_ context.Context, id uuid.UUID, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.jobs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if stored.Status != models.JobStatusRunning || stored.Owner != owner {
		return fmt.Errorf("%w: job is %s under %q", apperrors.ErrInvalidTransition, stored.Status, stored.Owner)
	}
	now := time.Now().UTC()
	stored.HeartbeatAt = &now
	return nil
}

func (r *JobRepository) RequestCancel(_ context.Context, id uuid.UUID) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if !stored.Status.IsActive() {
		return nil, fmt.Errorf("%w: job is %s", apperrors.ErrInvalidTransition, stored.Status)
	}
	stored.CancelRequested = true
	stored.UpdatedAt = time.Now().UTC()
	return cloneJob(stored), nil
}

func (r *JobRepository) IsCancelRequested(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.jobs[id]
	if !ok {
		return false, apperrors.ErrNotFound
	}
	return stored.CancelRequested, nil
}

func (r *JobRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.jobs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if stored.Status == models.JobStatusRunning {
		return apperrors.ErrJobRunning
	}
	delete(r.jobs, id)
	return nil
}

func (r *JobRepository) FailOrphaned(_ context.Context, message string, staleBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	var n int64
	for _, job := range r.jobs {
		if job.Status != models.JobStatusRunning {
			continue
		}
		if job.HeartbeatAt != nil && !job.HeartbeatAt.Before(staleBefore) {
			continue
		}
		msg := message
		job.Status = models.JobStatusFailed
		job.ErrorMessage = &msg
		job.CompletedAt = &now
		job.UpdatedAt = now
		n++
	}
	return n, nil
}

func (r *JobRepository) snapshot(keep func(*models.Job) bool) []*models.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Job
	for _, job := range r.jobs {
		if keep(job) {
			out = append(out, cloneJob(job))
		}
	}
	return out
}

func cloneJob(j *models.Job) *models.Job {
	c := *j
	c.Tables = append([]models.TableRef(nil), j.Tables...)
	c.AnalysisTypes = append([]string(nil), j.AnalysisTypes...)
	if j.RecipeOverrides != nil {
		c.RecipeOverrides = make(map[string]uuid.UUID, len(j.RecipeOverrides))
		for k, v := range j.RecipeOverrides {
			c.RecipeOverrides[k] = v
		}
	}
	if j.Metadata != nil {
		c.Metadata = j.Metadata.Clone()
	}
	c.Result = cloneResult(j.Result)
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		c.ErrorMessage = &msg
	}
	if j.HeartbeatAt != nil {
		hb := *j.HeartbeatAt
		c.HeartbeatAt = &hb
	}
	return &c
}

// cloneResult deep-copies through JSON, matching what a round trip through
// the PostgreSQL store would return.
func cloneResult(r *models.JobResult) *models.JobResult {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	var out models.JobResult
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return &out
}
