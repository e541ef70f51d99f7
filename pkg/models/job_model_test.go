package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
)

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusSucceeded, false},
		{JobStatusPending, JobStatusCancelled, false},
		{JobStatusRunning, JobStatusSucceeded, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusRunning, JobStatusCancelled, true},
		{JobStatusRunning, JobStatusPending, false},
		{JobStatusSucceeded, JobStatusFailed, false},
		{JobStatusCancelled, JobStatusRunning, false},
		{JobStatusFailed, JobStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPreviousJobStatuses(t *testing.T) {
	assert.ElementsMatch(t, []JobStatus{JobStatusRunning}, PreviousJobStatuses(JobStatusCancelled))
	assert.ElementsMatch(t, []JobStatus{JobStatusPending}, PreviousJobStatuses(JobStatusRunning))
	assert.Empty(t, PreviousJobStatuses(JobStatusPending))
}

func TestJob_Transition(t *testing.T) {
	now := time.Now()
	job := &Job{Status: JobStatusPending}

	require.NoError(t, job.Transition(JobStatusRunning, now))
	require.NotNil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)

	require.NoError(t, job.Transition(JobStatusSucceeded, now))
	require.NotNil(t, job.CompletedAt)

	err := job.Transition(JobStatusRunning, now)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Equal(t, JobStatusSucceeded, job.Status)
}

func TestJobMetadata_SetPromptOnce(t *testing.T) {
	m := JobMetadata{}

	assert.True(t, m.SetPromptOnce("column_documentation", "sys-1", "user-1"))
	assert.False(t, m.SetPromptOnce("column_documentation", "sys-2", "user-2"))

	assert.Equal(t, "sys-1", m["column_documentation_system_message"])
	assert.Equal(t, "user-1", m["column_documentation_user_message"])

	m.SetRawOutput("public", "users", "column_documentation", "[]")
	assert.Equal(t, "[]", m["public.users.column_documentation_raw_output"])

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"column_documentation_system_message":"sys-1"`)
}

func TestJobResult_Record(t *testing.T) {
	r := NewJobResult()

	r.Record(StageResult{Schema: "public", Table: "users", AnalysisType: "column_documentation", Status: StageStatusSucceeded,
		Ingestion: &IngestionResult{Status: IngestionProcessed, Processed: 3}}, json.RawMessage(`[{"column_name":"email"}]`))
	r.Record(StageResult{Schema: "public", Table: "orders", AnalysisType: "column_documentation", Status: StageStatusFailed,
		ErrorCode: apperrors.CodeParseError}, nil)
	r.Record(StageResult{Schema: "public", Table: "users", AnalysisType: "table_summary", Status: StageStatusSucceeded}, json.RawMessage(`{}`))

	assert.Equal(t, 2, r.SucceededStages())
	require.Len(t, r.Stages, 3)

	doc := r.Analyses["column_documentation"]
	require.NotNil(t, doc)
	assert.Equal(t, 1, doc.Succeeded)
	assert.Equal(t, 1, doc.Failed)
	assert.Equal(t, 3, doc.EntriesIngested)
	assert.Contains(t, doc.Outputs, "public.users")
	assert.NotContains(t, doc.Outputs, "public.orders")
}
