package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/database"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
)

// JobRepository provides data access for analysis jobs.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	List(ctx context.Context, limit int) ([]*models.Job, error)
	ListByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)

	// UpdateStatus persists job only if its stored status is still from.
	// Returns ErrInvalidTransition when another writer moved the job first.
	UpdateStatus(ctx context.Context, job *models.Job, from models.JobStatus) error

	// SaveProgress persists metadata and the partial result of a running job.
	SaveProgress(ctx context.Context, id uuid.UUID, metadata models.JobMetadata, result *models.JobResult) error

	// RequestCancel flags a pending or running job for cooperative cancellation.
	RequestCancel(ctx context.Context, id uuid.UUID) (*models.Job, error)
	IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error)

	// Delete removes a job. Running jobs are refused with ErrJobRunning.
	Delete(ctx context.Context, id uuid.UUID) error

	// Heartbeat refreshes heartbeat_at of a running job held by owner.
	// Returns ErrInvalidTransition when the job is no longer running under owner.
	Heartbeat(ctx context.Context, id uuid.UUID, owner string) error

	// FailOrphaned marks running jobs failed with message when their last
	// heartbeat is older than staleBefore (or missing). Jobs whose owner is
	// still heartbeating are left alone.
	FailOrphaned(ctx context.Context, message string, staleBefore time.Time) (int64, error)
}

type jobRepository struct {
	db *database.DB
}

// NewJobRepository creates a new JobRepository backed by PostgreSQL.
func NewJobRepository(db *database.DB) JobRepository {
	return &jobRepository{db: db}
}

var _ JobRepository = (*jobRepository)(nil)

const jobColumns = `id, name, status, database_id, tables, analysis_types, provider, model,
	recipe_overrides, metadata, result, error_message, cancel_requested,
	COALESCE(owner, ''), heartbeat_at,
	created_at, updated_at, started_at, completed_at`

func (r *jobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	ensureJobCollections(job)

	query := `
		INSERT INTO analysis_jobs (
			id, name, status, database_id, tables, analysis_types, provider, model,
			recipe_overrides, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		job.ID, job.Name, job.Status, job.DatabaseID, job.Tables, job.AnalysisTypes,
		job.Provider, job.Model, job.RecipeOverrides, job.Metadata,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *jobRepository) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *jobRepository) List(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (r *jobRepository) ListByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE status = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (r *jobRepository) UpdateStatus(ctx context.Context, job *models.Job, from models.JobStatus) error {
	ensureJobCollections(job)

	query := `
		UPDATE analysis_jobs
		SET status = $2, metadata = $3, result = $4, error_message = $5,
		    started_at = $6, completed_at = $7, updated_at = $8,
		    owner = NULLIF($10, ''), heartbeat_at = $11
		WHERE id = $1 AND status = $9`

	tag, err := r.db.Exec(ctx, query,
		job.ID, job.Status, job.Metadata, job.Result, job.ErrorMessage,
		job.StartedAt, job.CompletedAt, job.UpdatedAt, from,
		job.Owner, job.HeartbeatAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, job.ID, from, job.Status)
	}
	return nil
}

func (r *jobRepository) SaveProgress(ctx context.Context, id uuid.UUID, metadata models.JobMetadata, result *models.JobResult) error {
	if metadata == nil {
		metadata = models.JobMetadata{}
	}

	query := `
		UPDATE analysis_jobs
		SET metadata = $2, result = $3, updated_at = NOW(), heartbeat_at = NOW()
		WHERE id = $1 AND status = 'running'`

	tag, err := r.db.Exec(ctx, query, id, metadata, result)
	if err != nil {
		return fmt.Errorf("failed to save job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id, models.JobStatusRunning, models.JobStatusRunning)
	}
	return nil
}

func (r *jobRepository) RequestCancel(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `
		UPDATE analysis_jobs
		SET cancel_requested = TRUE, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'running')
		RETURNING ` + jobColumns

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, getErr := r.Get(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			return nil, fmt.Errorf("%w: job is %s", apperrors.ErrInvalidTransition, existing.Status)
		}
		return nil, fmt.Errorf("failed to request cancel: %w", err)
	}
	return job, nil
}

func (r *jobRepository) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var requested bool
	err := r.db.QueryRow(ctx, `SELECT cancel_requested FROM analysis_jobs WHERE id = $1`, id).Scan(&requested)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, apperrors.ErrNotFound
		}
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return requested, nil
}

func (r *jobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM analysis_jobs WHERE id = $1 AND status <> 'running'`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return apperrors.ErrJobRunning
}

func (r *jobRepository) Heartbeat(ctx context.Context, id uuid.UUID, owner string) error {
	query := `
		UPDATE analysis_jobs
		SET heartbeat_at = NOW()
		WHERE id = $1 AND status = 'running' AND owner = $2`

	tag, err := r.db.Exec(ctx, query, id, owner)
	if err != nil {
		return fmt.Errorf("failed to record job heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id, models.JobStatusRunning, models.JobStatusRunning)
	}
	return nil
}

func (r *jobRepository) FailOrphaned(ctx context.Context, message string, staleBefore time.Time) (int64, error) {
	query := `
		UPDATE analysis_jobs
		SET status = 'failed', error_message = $1, completed_at = NOW(), updated_at = NOW()
		WHERE status = 'running' AND (heartbeat_at IS NULL OR heartbeat_at < $2)`

	tag, err := r.db.Exec(ctx, query, message, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to fail orphaned jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// missOrConflict distinguishes a missing job from one whose status moved on.
func (r *jobRepository) missOrConflict(ctx context.Context, id uuid.UUID, from, to models.JobStatus) error {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: expected %s -> %s, job is %s",
		apperrors.ErrInvalidTransition, from, to, existing.Status)
}

// ensureJobCollections replaces nil maps and slices, which pgx would encode
// as SQL NULL in NOT NULL jsonb columns.
func ensureJobCollections(job *models.Job) {
	if job.Tables == nil {
		job.Tables = []models.TableRef{}
	}
	if job.AnalysisTypes == nil {
		job.AnalysisTypes = []string{}
	}
	if job.RecipeOverrides == nil {
		job.RecipeOverrides = map[string]uuid.UUID{}
	}
	if job.Metadata == nil {
		job.Metadata = models.JobMetadata{}
	}
}

func collectJobs(rows pgx.Rows) ([]*models.Job, error) {
	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(
		&j.ID, &j.Name, &j.Status, &j.DatabaseID, &j.Tables, &j.AnalysisTypes,
		&j.Provider, &j.Model, &j.RecipeOverrides, &j.Metadata, &j.Result,
		&j.ErrorMessage, &j.CancelRequested,
		&j.Owner, &j.HeartbeatAt,
		&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
