package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/cache"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/prompts"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/repositories"
)

// ProviderCatalog reports which LLM providers are configured.
// *llm.Adapter satisfies it.
type ProviderCatalog interface {
	HasProvider(name string) bool
}

// JobRunner schedules accepted jobs. *JobEngine satisfies it.
type JobRunner interface {
	Enqueue(job *models.Job) error
}

// JobService accepts, reports on and cancels analysis jobs.
type JobService interface {
	// Submit validates the request, stores the job as pending and schedules it.
	Submit(ctx context.Context, req *SubmitJobRequest) (*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	List(ctx context.Context, limit int) ([]*models.Job, error)

	// Cancel requests cooperative cancellation. The engine observes it before
	// the next stage. Terminal jobs return ErrInvalidTransition.
	Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error)

	// Delete removes a job that is not running.
	Delete(ctx context.Context, id uuid.UUID) error
}

// SubmitJobRequest is the body of a job submission.
type SubmitJobRequest struct {
	Name            string               `json:"name"`
	DatabaseID      string               `json:"db_id"`
	Tables          []models.TableRef    `json:"tables"`
	AnalysisTypes   []string             `json:"analysis_types"`
	Provider        string               `json:"provider"`
	Model           string               `json:"model"`
	RecipeOverrides map[string]uuid.UUID `json:"recipe_overrides,omitempty"`
}

type jobService struct {
	jobs        repositories.JobRepository
	recipes     repositories.RecipeRepository
	connections ConnectionOpener
	providers   ProviderCatalog
	runner      JobRunner
	signals     cache.JobSignals
	logger      *zap.Logger
}

// NewJobService creates a new job service.
func NewJobService(
	jobs repositories.JobRepository,
	recipes repositories.RecipeRepository,
	connections ConnectionOpener,
	providers ProviderCatalog,
	runner JobRunner,
	signals cache.JobSignals,
	logger *zap.Logger,
) JobService {
	if signals == nil {
		signals = cache.NewLocalSignals()
	}
	return &jobService{
		jobs:        jobs,
		recipes:     recipes,
		connections: connections,
		providers:   providers,
		runner:      runner,
		signals:     signals,
		logger:      logger.Named("jobs"),
	}
}

var _ JobService = (*jobService)(nil)

func (s *jobService) Submit(ctx context.Context, req *SubmitJobRequest) (*models.Job, error) {
	if err := s.validate(ctx, req); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = fmt.Sprintf("%s analysis", req.DatabaseID)
	}

	job := &models.Job{
		Name:            name,
		Status:          models.JobStatusPending,
		DatabaseID:      req.DatabaseID,
		Tables:          req.Tables,
		AnalysisTypes:   req.AnalysisTypes,
		Provider:        strings.TrimSpace(req.Provider),
		Model:           strings.TrimSpace(req.Model),
		RecipeOverrides: req.RecipeOverrides,
		Metadata:        models.JobMetadata{},
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.signals.SetStatus(ctx, job.ID, job.Status); err != nil {
		s.logger.Debug("Failed to mirror job status", zap.String("job_id", job.ID.String()), zap.Error(err))
	}

	if err := s.runner.Enqueue(job); err != nil {
		// An unscheduled pending row would only run after the next restart.
		if delErr := s.jobs.Delete(context.WithoutCancel(ctx), job.ID); delErr != nil {
			s.logger.Error("Failed to remove unscheduled job",
				zap.String("job_id", job.ID.String()),
				zap.Error(delErr))
		}
		if clearErr := s.signals.Clear(context.WithoutCancel(ctx), job.ID); clearErr != nil {
			s.logger.Debug("Failed to clear job signals", zap.String("job_id", job.ID.String()), zap.Error(clearErr))
		}
		return nil, fmt.Errorf("failed to schedule job: %w", err)
	}

	s.logger.Info("Submitted analysis job",
		zap.String("job_id", job.ID.String()),
		zap.String("database_id", job.DatabaseID),
		zap.Int("tables", len(job.Tables)),
		zap.Strings("analysis_types", job.AnalysisTypes))
	return job, nil
}

func (s *jobService) validate(ctx context.Context, req *SubmitJobRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request body is required", apperrors.ErrInvalidInput)
	}
	req.DatabaseID = strings.TrimSpace(req.DatabaseID)
	if req.DatabaseID == "" {
		return fmt.Errorf("%w: db_id is required", apperrors.ErrInvalidInput)
	}
	if !slices.Contains(s.connections.IDs(), req.DatabaseID) {
		return fmt.Errorf("%w: %s", apperrors.ErrUnknownConnection, req.DatabaseID)
	}

	if len(req.Tables) == 0 {
		return fmt.Errorf("%w: at least one table is required", apperrors.ErrInvalidInput)
	}
	for i := range req.Tables {
		t := &req.Tables[i]
		t.Schema = strings.TrimSpace(t.Schema)
		t.Table = strings.TrimSpace(t.Table)
		if t.Schema == "" || t.Table == "" {
			return fmt.Errorf("%w: tables[%d] needs schema and table", apperrors.ErrInvalidInput, i)
		}
	}

	if len(req.AnalysisTypes) == 0 {
		return fmt.Errorf("%w: at least one analysis type is required", apperrors.ErrInvalidInput)
	}
	for _, analysisType := range req.AnalysisTypes {
		if err := s.checkAnalysisType(ctx, analysisType, req.RecipeOverrides); err != nil {
			return err
		}
	}

	if p := strings.TrimSpace(req.Provider); p != "" && !s.providers.HasProvider(p) {
		return fmt.Errorf("%w: %s", apperrors.ErrUnknownProvider, p)
	}
	return nil
}

// checkAnalysisType accepts a type that some recipe or built-in template can
// render.
func (s *jobService) checkAnalysisType(ctx context.Context, analysisType string, overrides map[string]uuid.UUID) error {
	if _, ok := prompts.Builtin(analysisType); ok {
		return nil
	}
	if _, ok := overrides[analysisType]; ok {
		return nil
	}
	_, err := s.recipes.GetDefault(ctx, analysisType)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrNotFound):
		return fmt.Errorf("%w: unknown analysis type %q", apperrors.ErrInvalidInput, analysisType)
	default:
		return err
	}
}

func (s *jobService) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.jobs.Get(ctx, id)
}

func (s *jobService) List(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.jobs.List(ctx, limit)
}

func (s *jobService) Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.RequestCancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.signals.RequestCancel(ctx, id); err != nil {
		s.logger.Warn("Failed to publish cancel signal, engine will read the stored flag",
			zap.String("job_id", id.String()), zap.Error(err))
	}

	s.logger.Info("Cancellation requested",
		zap.String("job_id", id.String()),
		zap.String("status", string(job.Status)))
	return job, nil
}

func (s *jobService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.jobs.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.signals.Clear(ctx, id); err != nil {
		s.logger.Debug("Failed to clear job signals", zap.String("job_id", id.String()), zap.Error(err))
	}
	s.logger.Info("Deleted job", zap.String("job_id", id.String()))
	return nil
}
