package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/services"
)

// mockJobService implements services.JobService for handler tests.
type mockJobService struct {
	submitted *services.SubmitJobRequest
	jobs      map[uuid.UUID]*models.Job
	submitErr error
	cancelErr error
	deleteErr error
}

func newMockJobService() *mockJobService {
	return &mockJobService{jobs: map[uuid.UUID]*models.Job{}}
}

func (m *mockJobService) Submit(ctx context.Context, req *services.SubmitJobRequest) (*models.Job, error) {
	m.submitted = req
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	job := &models.Job{ID: uuid.New(), Name: req.Name, Status: models.JobStatusPending, DatabaseID: req.DatabaseID}
	m.jobs[job.ID] = job
	return job, nil
}

func (m *mockJobService) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return job, nil
}

func (m *mockJobService) List(ctx context.Context, limit int) ([]*models.Job, error) {
	out := make([]*models.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (m *mockJobService) Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	job, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	job.CancelRequested = true
	return job, nil
}

func (m *mockJobService) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.jobs[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.jobs, id)
	return nil
}

// mockQueryService implements services.QueryService for handler tests.
type mockQueryService struct {
	lastSQL string
	result  *models.QueryResult
}

func (m *mockQueryService) Execute(ctx context.Context, connectionID, sql string, page, pageSize int) *models.QueryResult {
	return m.ExecuteWithParams(ctx, connectionID, sql, nil, page, pageSize)
}

func (m *mockQueryService) ExecuteWithParams(ctx context.Context, connectionID, sql string, params []any, page, pageSize int) *models.QueryResult {
	m.lastSQL = sql
	return m.result
}

func (m *mockQueryService) Run(ctx context.Context, conn *datasource.Connection, req datasource.QueryRequest) (*datasource.QueryExecutionResult, error) {
	return nil, nil
}

// mockSchemaService implements services.SchemaService for handler tests.
type mockSchemaService struct {
	tables     []models.TableInfo
	profile    *models.TableProfile
	profileErr error
	distinct   int
}

func (m *mockSchemaService) ListSchemas(ctx context.Context, connectionID string) ([]string, error) {
	if connectionID != "warehouse" {
		return nil, apperrors.ErrUnknownConnection
	}
	return []string{"public"}, nil
}

func (m *mockSchemaService) ListTables(ctx context.Context, connectionID, schema string) ([]models.TableInfo, error) {
	return m.tables, nil
}

func (m *mockSchemaService) GetColumns(ctx context.Context, connectionID, schema, table string) ([]models.ColumnInfo, error) {
	return nil, apperrors.ErrNotFound
}

func (m *mockSchemaService) ProfileTable(ctx context.Context, connectionID, schema, table string, maxDistinct int) (*models.TableProfile, error) {
	m.distinct = maxDistinct
	if m.profileErr != nil {
		return nil, m.profileErr
	}
	return m.profile, nil
}

func (m *mockSchemaService) SampleRows(ctx context.Context, connectionID, schema, table string, n int) (*datasource.QueryExecutionResult, error) {
	return nil, nil
}

// staticConnections implements services.ConnectionOpener.
type staticConnections []string

func (s staticConnections) IDs() []string { return s }

func (s staticConnections) Open(ctx context.Context, id string) (*datasource.Connection, error) {
	return nil, apperrors.ErrUnknownConnection
}

// serve runs a request through mux and returns the recorder.
func serve(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// decodeData decodes the data field of an ApiResponse into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, resp.Success)
	require.NoError(t, json.Unmarshal(resp.Data, dst))
}

// decodeError decodes an ErrorResponse body.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}
