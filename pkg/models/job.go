package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
)

// ============================================================================
// Job Status
// ============================================================================

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal returns true if the job can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCancelled
}

// IsActive returns true if the job is pending or running.
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusRunning},
	JobStatusRunning: {JobStatusSucceeded, JobStatusFailed, JobStatusCancelled},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PreviousJobStatuses returns the statuses from which next can be reached.
func PreviousJobStatuses(next JobStatus) []JobStatus {
	var prev []JobStatus
	for from, targets := range jobTransitions {
		for _, to := range targets {
			if to == next {
				prev = append(prev, from)
			}
		}
	}
	return prev
}

// ============================================================================
// Analysis Types
// ============================================================================

const (
	AnalysisColumnDocumentation = "column_documentation"
	AnalysisDataQuality         = "data_quality"
	AnalysisTableSummary        = "table_summary"
	AnalysisPIIDetection        = "pii_detection"
)

// IngestsDictionary reports whether parsed output of this analysis type feeds the dictionary.
func IngestsDictionary(analysisType string) bool {
	return analysisType == AnalysisColumnDocumentation
}

// ============================================================================
// Job
// ============================================================================

// TableRef identifies one table of a job.
type TableRef struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

// Qualified returns schema.table.
func (t TableRef) Qualified() string {
	return t.Schema + "." + t.Table
}

// Job is one asynchronous analysis over a set of tables.
type Job struct {
	ID              uuid.UUID            `json:"id"`
	Name            string               `json:"name"`
	Status          JobStatus            `json:"status"`
	DatabaseID      string               `json:"database_id"`
	Tables          []TableRef           `json:"tables"`
	AnalysisTypes   []string             `json:"analysis_types"`
	Provider        string               `json:"provider"`
	Model           string               `json:"model"`
	RecipeOverrides map[string]uuid.UUID `json:"recipe_overrides,omitempty"`
	Metadata        JobMetadata          `json:"metadata"`
	Result          *JobResult           `json:"result,omitempty"`
	ErrorMessage    *string              `json:"error_message,omitempty"`
	CancelRequested bool                 `json:"cancel_requested"`
	Owner           string               `json:"owner,omitempty"`
	HeartbeatAt     *time.Time           `json:"heartbeat_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
}

// StageCount is the number of (table, analysis type) stages the job runs.
func (j *Job) StageCount() int {
	return len(j.Tables) * len(j.AnalysisTypes)
}

// Transition moves the job to next, stamping timestamps. Returns
// ErrInvalidTransition when the state machine forbids the move.
func (j *Job) Transition(next JobStatus, now time.Time) error {
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	j.UpdatedAt = now
	if next == JobStatusRunning {
		j.StartedAt = &now
		j.HeartbeatAt = &now
	}
	if next.IsTerminal() {
		j.CompletedAt = &now
	}
	return nil
}

// ============================================================================
// Job Metadata
// ============================================================================

// JobMetadata is a flat string map persisted with the job. Prompt keys are
// write-once: the first stage of an analysis type records its rendered prompts.
type JobMetadata map[string]string

func SystemMessageKey(analysisType string) string { return analysisType + "_system_message" }
func UserMessageKey(analysisType string) string   { return analysisType + "_user_message" }

func RawOutputKey(schema, table, analysisType string) string {
	return fmt.Sprintf("%s.%s.%s_raw_output", schema, table, analysisType)
}

// SetPromptOnce records the rendered prompts for an analysis type unless they
// are already present. Returns true when written.
func (m JobMetadata) SetPromptOnce(analysisType, system, user string) bool {
	if _, exists := m[SystemMessageKey(analysisType)]; exists {
		return false
	}
	m[SystemMessageKey(analysisType)] = system
	m[UserMessageKey(analysisType)] = user
	return true
}

// SetRawOutput stores the raw LLM text of one stage.
func (m JobMetadata) SetRawOutput(schema, table, analysisType, raw string) {
	m[RawOutputKey(schema, table, analysisType)] = raw
}

// Clone returns a copy safe to hand to another goroutine.
func (m JobMetadata) Clone() JobMetadata {
	out := make(JobMetadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ============================================================================
// Job Result
// ============================================================================

type StageStatus string

const (
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusFailed    StageStatus = "failed"
)

type IngestionStatus string

const (
	IngestionProcessed IngestionStatus = "processed"
	IngestionSkipped   IngestionStatus = "skipped"
	IngestionFailed    IngestionStatus = "failed"
)

// IngestionResult records what happened when a stage fed the dictionary.
type IngestionResult struct {
	Status    IngestionStatus `json:"status"`
	Processed int             `json:"processed"`
	Rejected  int             `json:"rejected,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	ErrorCode apperrors.Code  `json:"error_code,omitempty"`
}

// StageResult is the outcome of one (table, analysis type) stage.
type StageResult struct {
	Index         int              `json:"index"`
	Schema        string           `json:"schema"`
	Table         string           `json:"table"`
	AnalysisType  string           `json:"analysis_type"`
	Status        StageStatus      `json:"status"`
	RecipeID      *uuid.UUID       `json:"recipe_id,omitempty"`
	PromptSource  string           `json:"prompt_source,omitempty"`
	ParseStrategy string           `json:"parse_strategy,omitempty"`
	ErrorCode     apperrors.Code   `json:"error_code,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	RawExcerpt    string           `json:"raw_excerpt,omitempty"`
	Ingestion     *IngestionResult `json:"ingestion,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   time.Time        `json:"completed_at"`
}

// AnalysisSummary aggregates the stages of one analysis type. Outputs holds the
// parsed JSON keyed by schema.table.
type AnalysisSummary struct {
	Succeeded        int                        `json:"succeeded"`
	Failed           int                        `json:"failed"`
	EntriesIngested  int                        `json:"entries_ingested,omitempty"`
	IngestionSkipped int                        `json:"ingestion_skipped,omitempty"`
	Outputs          map[string]json.RawMessage `json:"outputs,omitempty"`
}

// JobResult is the structured result of a job, keyed by analysis type, plus
// the ordered list of completed stages.
type JobResult struct {
	Analyses map[string]*AnalysisSummary `json:"analyses"`
	Stages   []StageResult               `json:"stages"`
}

func NewJobResult() *JobResult {
	return &JobResult{Analyses: make(map[string]*AnalysisSummary)}
}

// Record appends a stage and folds it into the per-type summary.
func (r *JobResult) Record(stage StageResult, parsed json.RawMessage) {
	r.Stages = append(r.Stages, stage)

	summary, ok := r.Analyses[stage.AnalysisType]
	if !ok {
		summary = &AnalysisSummary{}
		r.Analyses[stage.AnalysisType] = summary
	}

	if stage.Status == StageStatusSucceeded {
		summary.Succeeded++
		if parsed != nil {
			if summary.Outputs == nil {
				summary.Outputs = make(map[string]json.RawMessage)
			}
			summary.Outputs[stage.Schema+"."+stage.Table] = parsed
		}
	} else {
		summary.Failed++
	}

	if stage.Ingestion != nil {
		switch stage.Ingestion.Status {
		case IngestionProcessed:
			summary.EntriesIngested += stage.Ingestion.Processed
		case IngestionSkipped:
			summary.IngestionSkipped++
		}
	}
}

// SucceededStages counts usable stages.
func (r *JobResult) SucceededStages() int {
	n := 0
	for _, s := range r.Stages {
		if s.Status == StageStatusSucceeded {
			n++
		}
	}
	return n
}
