package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/cache"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/llm"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/logging"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/observability"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/prompts"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/repositories"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/services/workqueue"
)

// ShutdownMessage is recorded on jobs that were running when the engine stopped.
const ShutdownMessage = "interrupted by shutdown"

// persistTimeout bounds the final status write once the run context is gone.
const persistTimeout = 10 * time.Second

// EngineConfig tunes the job engine.
type EngineConfig struct {
	MaxConcurrent    int
	LLMTimeout       time.Duration
	PromptSampleRows int

	// InstanceID is recorded as the owner of every job this engine runs.
	InstanceID string
	// HeartbeatInterval is how often a running job's heartbeat is refreshed.
	HeartbeatInterval time.Duration
	// OrphanAfter is how stale a running job's heartbeat must be before
	// another instance may fail it.
	OrphanAfter time.Duration
	// RetainFinished bounds the finished tasks reported by Tasks.
	RetainFinished int
}

// JobEngine runs analysis jobs on a throttled work queue. Each job runs its
// (table, analysis type) stages sequentially on one goroutine.
type JobEngine struct {
	jobs       repositories.JobRepository
	schema     SchemaService
	renderer   PromptRenderer
	llmClient  llm.LLMClient
	dictionary DictionaryService
	signals    cache.JobSignals
	queue      *workqueue.Queue
	cfg        EngineConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewJobEngine creates an engine and its work queue.
func NewJobEngine(
	jobs repositories.JobRepository,
	schema SchemaService,
	renderer PromptRenderer,
	llmClient llm.LLMClient,
	dictionary DictionaryService,
	signals cache.JobSignals,
	cfg EngineConfig,
	logger *zap.Logger,
) *JobEngine {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 120 * time.Second
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.OrphanAfter <= cfg.HeartbeatInterval {
		cfg.OrphanAfter = 6 * cfg.HeartbeatInterval
	}
	if signals == nil {
		signals = cache.NewLocalSignals()
	}

	logger = logger.Named("engine").With(zap.String("instance_id", cfg.InstanceID))
	queueOpts := []workqueue.QueueOption{
		workqueue.WithStrategy(workqueue.NewThrottledStrategy(cfg.MaxConcurrent)),
		workqueue.WithOnUpdate(func(t workqueue.TaskSnapshot) {
			logger.Debug("Queue task updated",
				zap.String("job_id", t.ID),
				zap.String("status", string(t.Status)),
				zap.String("error", t.Error))
		}),
	}
	if cfg.RetainFinished > 0 {
		queueOpts = append(queueOpts, workqueue.WithRetainFinished(cfg.RetainFinished))
	}

	return &JobEngine{
		jobs:       jobs,
		schema:     schema,
		renderer:   renderer,
		llmClient:  llmClient,
		dictionary: dictionary,
		signals:    signals,
		queue:      workqueue.New(logger, queueOpts...),
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue schedules a pending job.
func (e *JobEngine) Enqueue(job *models.Job) error {
	id := job.ID
	task := workqueue.NewFuncTask(id.String(), "analysis job "+job.Name, func(ctx context.Context) error {
		return e.Run(ctx, id)
	})
	if err := e.queue.Enqueue(task); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", id, err)
	}
	return nil
}

// Recover fails running jobs whose owner stopped heartbeating and
// re-enqueues the pending ones. Call once on boot before serving requests.
// Jobs with a fresh heartbeat belong to a live instance and are left alone.
func (e *JobEngine) Recover(ctx context.Context) error {
	failed, err := e.failOrphaned(ctx)
	if err != nil {
		return err
	}
	pending, err := e.jobs.ListByStatus(ctx, models.JobStatusPending)
	if err != nil {
		return err
	}
	for _, job := range pending {
		if err := e.Enqueue(job); err != nil {
			return err
		}
	}
	if failed > 0 || len(pending) > 0 {
		e.logger.Info("Recovered jobs",
			zap.Int64("orphaned_failed", failed),
			zap.Int("pending_requeued", len(pending)))
	}
	return nil
}

// StartOrphanSweep periodically fails running jobs whose owner stopped
// heartbeating. It returns when ctx is done.
func (e *JobEngine) StartOrphanSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.cfg.OrphanAfter)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := e.failOrphaned(ctx)
				if err != nil {
					e.logger.Warn("Orphan sweep failed", zap.Error(err))
				} else if n > 0 {
					e.logger.Info("Failed orphaned jobs", zap.Int64("count", n))
				}
			}
		}
	}()
}

func (e *JobEngine) failOrphaned(ctx context.Context) (int64, error) {
	return e.jobs.FailOrphaned(ctx, ShutdownMessage, e.now().Add(-e.cfg.OrphanAfter))
}

// Wait blocks until the queue is idle.
func (e *JobEngine) Wait(ctx context.Context) error {
	return e.queue.Wait(ctx)
}

// Progress reports queue occupancy.
func (e *JobEngine) Progress() workqueue.Progress {
	return e.queue.Progress()
}

// InstanceID is the owner recorded on jobs this engine runs.
func (e *JobEngine) InstanceID() string {
	return e.cfg.InstanceID
}

// Tasks lists active and recently finished queue tasks.
func (e *JobEngine) Tasks() []workqueue.TaskSnapshot {
	return e.queue.GetTasks()
}

// Shutdown cancels running jobs and waits for them to record their final state.
func (e *JobEngine) Shutdown(ctx context.Context) error {
	return e.queue.Shutdown(ctx)
}

// tableInputs is the rendered context of one table, shared by every
// analysis type of a job.
type tableInputs struct {
	schemaSummary string
	sampleRows    string
	err           error
	code          apperrors.Code
}

// Run executes one job to a terminal state. A job that is no longer pending
// is left untouched.
func (e *JobEngine) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job.Status != models.JobStatusPending {
		e.logger.Info("Skipping job that is not pending",
			zap.String("job_id", jobID.String()),
			zap.String("status", string(job.Status)))
		return nil
	}

	ctx, span := observability.StartSpan(ctx, "engine.run_job",
		attribute.String("job.id", jobID.String()),
		attribute.Int("job.stages", job.StageCount()))
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	if err := job.Transition(models.JobStatusRunning, e.now()); err != nil {
		spanErr = err
		return err
	}
	job.Owner = e.cfg.InstanceID
	if err := e.jobs.UpdateStatus(ctx, job, models.JobStatusPending); err != nil {
		if errors.Is(err, apperrors.ErrInvalidTransition) {
			return nil
		}
		spanErr = err
		return err
	}
	e.mirrorStatus(ctx, job)
	stopHeartbeat := e.startHeartbeat(ctx, job.ID)
	defer stopHeartbeat()

	if job.Metadata == nil {
		job.Metadata = models.JobMetadata{}
	}
	job.Result = models.NewJobResult()

	e.logger.Info("Job started",
		zap.String("job_id", jobID.String()),
		zap.String("database_id", job.DatabaseID),
		zap.Int("stages", job.StageCount()))

	inputs := make(map[models.TableRef]*tableInputs, len(job.Tables))
	index := 0
	for _, table := range job.Tables {
		for _, analysisType := range job.AnalysisTypes {
			if ctx.Err() != nil {
				spanErr = e.finish(ctx, job, models.JobStatusFailed, ShutdownMessage)
				return spanErr
			}
			if e.cancelRequested(ctx, job.ID) {
				spanErr = e.finish(ctx, job, models.JobStatusCancelled, "")
				return spanErr
			}

			in, ok := inputs[table]
			if !ok {
				in = e.prepareTable(ctx, job.DatabaseID, table)
				inputs[table] = in
			}

			stage, parsed := e.runStage(ctx, job, table, analysisType, in, index)
			job.Result.Record(stage, parsed)
			index++

			if err := e.jobs.SaveProgress(ctx, job.ID, job.Metadata.Clone(), job.Result); err != nil {
				e.logger.Warn("Failed to persist job progress",
					zap.String("job_id", jobID.String()),
					zap.Error(err))
			}
		}
	}

	if ctx.Err() != nil {
		spanErr = e.finish(ctx, job, models.JobStatusFailed, ShutdownMessage)
		return spanErr
	}
	if job.Result.SucceededStages() == 0 {
		spanErr = e.finish(ctx, job, models.JobStatusFailed, noUsableStagesMessage(job.Result))
		return spanErr
	}
	spanErr = e.finish(ctx, job, models.JobStatusSucceeded, "")
	return spanErr
}

// prepareTable profiles and samples a table once per job. Failures are kept
// so every stage on the table records them.
func (e *JobEngine) prepareTable(ctx context.Context, connectionID string, table models.TableRef) *tableInputs {
	profile, err := e.schema.ProfileTable(ctx, connectionID, table.Schema, table.Table, 0)
	if err != nil {
		return &tableInputs{err: err, code: errorCode(err, apperrors.CodeExecutionError)}
	}

	sample, err := e.schema.SampleRows(ctx, connectionID, table.Schema, table.Table, e.cfg.PromptSampleRows)
	if err != nil {
		return &tableInputs{err: err, code: errorCode(err, apperrors.CodeExecutionError)}
	}

	columns := make([]string, len(sample.Columns))
	for i, c := range sample.Columns {
		columns[i] = c.Name
	}
	return &tableInputs{
		schemaSummary: prompts.BuildSchemaSummary(profile),
		sampleRows:    prompts.FormatSampleRows(columns, sample.Rows, 0),
	}
}

func (e *JobEngine) runStage(ctx context.Context, job *models.Job, table models.TableRef, analysisType string, in *tableInputs, index int) (models.StageResult, json.RawMessage) {
	stage := models.StageResult{
		Index:        index,
		Schema:       table.Schema,
		Table:        table.Table,
		AnalysisType: analysisType,
		Status:       models.StageStatusFailed,
		StartedAt:    e.now(),
	}
	fail := func(code apperrors.Code, msg string) (models.StageResult, json.RawMessage) {
		stage.ErrorCode = code
		stage.ErrorMessage = msg
		stage.CompletedAt = e.now()
		e.logger.Warn("Stage failed",
			zap.String("job_id", job.ID.String()),
			zap.String("table", table.Qualified()),
			zap.String("analysis_type", analysisType),
			zap.String("code", string(code)),
			zap.String("error", msg))
		return stage, nil
	}

	ctx, span := observability.StartSpan(ctx, "engine.stage",
		attribute.String("table", table.Qualified()),
		attribute.String("analysis.type", analysisType))
	defer func() {
		var err error
		if stage.Status != models.StageStatusSucceeded {
			err = errors.New(stage.ErrorMessage)
		}
		observability.EndSpan(span, err)
	}()

	if in.err != nil {
		return fail(in.code, logging.SanitizeError(in.err))
	}

	var override *uuid.UUID
	if id, ok := job.RecipeOverrides[analysisType]; ok {
		override = &id
	}
	prompt, err := e.renderer.Render(ctx, analysisType, override, in.schemaSummary, in.sampleRows)
	if err != nil {
		return fail(apperrors.CodeRenderError, err.Error())
	}
	stage.RecipeID = prompt.RecipeID
	stage.PromptSource = string(prompt.Source)
	job.Metadata.SetPromptOnce(analysisType, prompt.SystemMessage, prompt.UserMessage)

	provider, model := job.Provider, job.Model
	if provider == "" && prompt.DefaultProvider != nil {
		provider = *prompt.DefaultProvider
	}
	if model == "" && prompt.DefaultModel != nil {
		model = *prompt.DefaultModel
	}

	llmCtx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
	resp, err := e.llmClient.Generate(llmCtx, prompt.SystemMessage, prompt.UserMessage, provider, model)
	cancel()
	if err != nil {
		return fail(apperrors.CodeLLMError, llm.ClassifyError(err).Error())
	}
	job.Metadata.SetRawOutput(table.Schema, table.Table, analysisType, resp.Content)

	var outcome llm.ParseOutcome
	if prompts.ExpectsArray(analysisType) {
		outcome = llm.ParseArray(resp.Content)
	} else {
		outcome = llm.ParseResult(resp.Content)
	}
	if !outcome.OK {
		stage.RawExcerpt = outcome.RawExcerpt
		return fail(apperrors.CodeParseError, outcome.Reason)
	}

	stage.Status = models.StageStatusSucceeded
	stage.ParseStrategy = outcome.Strategy
	if models.IngestsDictionary(analysisType) {
		stage.Ingestion = e.dictionary.IngestParsed(ctx, job.DatabaseID, table.Schema, table.Table, outcome.Value)
	}
	stage.CompletedAt = e.now()
	return stage, outcome.Value
}

// finish moves a running job to its terminal state. The write uses a context
// detached from ctx so a shutdown still records the outcome.
func (e *JobEngine) finish(ctx context.Context, job *models.Job, status models.JobStatus, message string) error {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := job.Transition(status, e.now()); err != nil {
		return err
	}
	if message != "" {
		job.ErrorMessage = &message
	}
	if err := e.jobs.UpdateStatus(persistCtx, job, models.JobStatusRunning); err != nil {
		e.logger.Error("Failed to persist job outcome",
			zap.String("job_id", job.ID.String()),
			zap.String("status", string(status)),
			zap.Error(err))
		return err
	}
	e.mirrorStatus(persistCtx, job)
	if err := e.signals.Clear(persistCtx, job.ID); err != nil {
		e.logger.Debug("Failed to clear job signals", zap.String("job_id", job.ID.String()), zap.Error(err))
	}

	e.logger.Info("Job finished",
		zap.String("job_id", job.ID.String()),
		zap.String("status", string(status)),
		zap.Int("stages", len(job.Result.Stages)),
		zap.Int("succeeded", job.Result.SucceededStages()))
	return nil
}

// startHeartbeat refreshes the job's heartbeat until the returned stop
// function is called.
func (e *JobEngine) startHeartbeat(ctx context.Context, id uuid.UUID) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(e.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := e.jobs.Heartbeat(ctx, id, e.cfg.InstanceID)
				if errors.Is(err, apperrors.ErrInvalidTransition) {
					// finished, or taken over by the orphan sweep
					return
				}
				if err != nil && ctx.Err() == nil {
					e.logger.Warn("Failed to record job heartbeat",
						zap.String("job_id", id.String()),
						zap.Error(err))
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// cancelRequested consults the signal backend first and the store second.
func (e *JobEngine) cancelRequested(ctx context.Context, id uuid.UUID) bool {
	if requested, err := e.signals.IsCancelRequested(ctx, id); err == nil && requested {
		return true
	} else if err != nil {
		e.logger.Debug("Cancel signal unavailable", zap.String("job_id", id.String()), zap.Error(err))
	}

	requested, err := e.jobs.IsCancelRequested(ctx, id)
	if err != nil {
		e.logger.Warn("Failed to read cancel flag", zap.String("job_id", id.String()), zap.Error(err))
		return false
	}
	return requested
}

func (e *JobEngine) mirrorStatus(ctx context.Context, job *models.Job) {
	if err := e.signals.SetStatus(ctx, job.ID, job.Status); err != nil {
		e.logger.Debug("Failed to mirror job status", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}

func errorCode(err error, fallback apperrors.Code) apperrors.Code {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return fallback
}

func noUsableStagesMessage(result *models.JobResult) string {
	if len(result.Stages) == 0 {
		return "job has no stages"
	}
	first := result.Stages[0]
	return fmt.Sprintf("no analysis stage succeeded; first error on %s.%s %s: %s: %s",
		first.Schema, first.Table, first.AnalysisType, first.ErrorCode, first.ErrorMessage)
}
