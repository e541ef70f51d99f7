package services

import (
	"context"
	"strings"
	"sync"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
)

// mockExecutor records every request it receives.
type mockExecutor struct {
	mu        sync.Mutex
	calls     []datasource.QueryRequest
	queryFunc func(ctx context.Context, req datasource.QueryRequest) (*datasource.QueryExecutionResult, error)
}

func (m *mockExecutor) Query(ctx context.Context, req datasource.QueryRequest) (*datasource.QueryExecutionResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.queryFunc != nil {
		return m.queryFunc(ctx, req)
	}
	return &datasource.QueryExecutionResult{Rows: []map[string]any{}}, nil
}

func (m *mockExecutor) Calls() []datasource.QueryRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]datasource.QueryRequest(nil), m.calls...)
}

// mockOpener serves fixed connections backed by mock executors.
type mockOpener struct {
	executors map[string]*mockExecutor
}

func newMockOpener(id string, exec *mockExecutor) *mockOpener {
	return &mockOpener{executors: map[string]*mockExecutor{id: exec}}
}

func (m *mockOpener) IDs() []string {
	ids := make([]string, 0, len(m.executors))
	for id := range m.executors {
		ids = append(ids, id)
	}
	return ids
}

func (m *mockOpener) Open(_ context.Context, id string) (*datasource.Connection, error) {
	exec, ok := m.executors[id]
	if !ok {
		return nil, apperrors.ErrUnknownConnection
	}
	return &datasource.Connection{
		ID:       id,
		Type:     "postgres",
		Database: id,
		Executor: exec,
		Dialect:  postgres.Dialect{},
	}, nil
}

// mockSchemaService serves a fixed profile and sample per table.
type mockSchemaService struct {
	mu        sync.Mutex
	profiles  map[string]*models.TableProfile
	samples   map[string]*datasource.QueryExecutionResult
	profileFn func(schema, table string) error
	profiled  []string
}

func newMockSchemaService() *mockSchemaService {
	return &mockSchemaService{
		profiles: make(map[string]*models.TableProfile),
		samples:  make(map[string]*datasource.QueryExecutionResult),
	}
}

// usersTable is public.users as seeded by the integration fixtures.
func (m *mockSchemaService) withUsersTable() *mockSchemaService {
	m.profiles["public.users"] = &models.TableProfile{
		Schema:           "public",
		Table:            "users",
		RowCountEstimate: 95,
		SampledRows:      95,
		Columns: []models.ColumnProfile{
			{Name: "id", DataType: "integer", DistinctCount: 95},
			{Name: "email", DataType: "text", DistinctCount: 95, TopValues: []models.ValueCount{{Value: "user1@example.com", Count: 1}}},
			{Name: "created_at", DataType: "timestamp with time zone", DistinctCount: 90},
		},
	}
	m.samples["public.users"] = &datasource.QueryExecutionResult{
		Columns: []datasource.ColumnInfo{{Name: "id", Type: "int4"}, {Name: "email", Type: "text"}},
		Rows: []map[string]any{
			{"id": int64(1), "email": "user1@example.com"},
			{"id": int64(2), "email": "user2@example.com"},
		},
		RowCount: 2,
	}
	return m
}

func (m *mockSchemaService) withTable(schema, table string) *mockSchemaService {
	key := schema + "." + table
	m.profiles[key] = &models.TableProfile{
		Schema:  schema,
		Table:   table,
		Columns: []models.ColumnProfile{{Name: "id", DataType: "integer"}},
	}
	m.samples[key] = &datasource.QueryExecutionResult{
		Columns: []datasource.ColumnInfo{{Name: "id", Type: "int4"}},
		Rows:    []map[string]any{{"id": int64(1)}},
	}
	return m
}

func (m *mockSchemaService) ListSchemas(context.Context, string) ([]string, error) {
	return []string{"public"}, nil
}

func (m *mockSchemaService) ListTables(_ context.Context, _ string, schema string) ([]models.TableInfo, error) {
	var out []models.TableInfo
	for key := range m.profiles {
		if s, t, ok := strings.Cut(key, "."); ok && s == schema {
			out = append(out, models.TableInfo{Schema: s, Name: t, Type: "BASE TABLE"})
		}
	}
	return out, nil
}

func (m *mockSchemaService) GetColumns(_ context.Context, _ string, schema, table string) ([]models.ColumnInfo, error) {
	p, ok := m.profiles[schema+"."+table]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cols := make([]models.ColumnInfo, len(p.Columns))
	for i, c := range p.Columns {
		cols[i] = models.ColumnInfo{Name: c.Name, DataType: c.DataType, OrdinalPosition: i + 1}
	}
	return cols, nil
}

func (m *mockSchemaService) ProfileTable(_ context.Context, _ string, schema, table string, _ int) (*models.TableProfile, error) {
	m.mu.Lock()
	m.profiled = append(m.profiled, schema+"."+table)
	m.mu.Unlock()

	if m.profileFn != nil {
		if err := m.profileFn(schema, table); err != nil {
			return nil, err
		}
	}
	p, ok := m.profiles[schema+"."+table]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return p, nil
}

func (m *mockSchemaService) SampleRows(_ context.Context, _ string, schema, table string, _ int) (*datasource.QueryExecutionResult, error) {
	s, ok := m.samples[schema+"."+table]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return s, nil
}

func (m *mockSchemaService) Profiled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.profiled...)
}

// mockProviders reports a fixed provider set.
type mockProviders map[string]bool

func (m mockProviders) HasProvider(name string) bool { return m[name] }

// recordingRunner collects enqueued jobs without running them.
type recordingRunner struct {
	mu   sync.Mutex
	jobs []*models.Job
	err  error
}

func (r *recordingRunner) Enqueue(job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}
