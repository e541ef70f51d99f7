package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/cache"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/repositories/memory"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/services"
)

// countingExecutor records calls and answers every query with one row.
type countingExecutor struct {
	calls int
}

func (e *countingExecutor) Query(ctx context.Context, req datasource.QueryRequest) (*datasource.QueryExecutionResult, error) {
	e.calls++
	return &datasource.QueryExecutionResult{
		Columns:   []datasource.ColumnInfo{{Name: "n", Type: "int8"}},
		Rows:      []map[string]any{{"n": float64(3)}},
		RowCount:  1,
		TotalRows: 1,
	}, nil
}

type singleConnection struct {
	exec *countingExecutor
}

func (c *singleConnection) IDs() []string { return []string{"warehouse"} }

func (c *singleConnection) Open(ctx context.Context, id string) (*datasource.Connection, error) {
	if id != "warehouse" {
		return nil, apperrors.ErrUnknownConnection
	}
	return &datasource.Connection{ID: id, Type: "postgres", Executor: c.exec, Dialect: postgres.Dialect{}}, nil
}

type providerSet map[string]bool

func (p providerSet) HasProvider(name string) bool { return p[name] }

type recordingRunner struct {
	jobs []*models.Job
}

func (r *recordingRunner) Enqueue(job *models.Job) error {
	r.jobs = append(r.jobs, job)
	return nil
}

// stubSchema implements services.SchemaService.
type stubSchema struct{}

func (stubSchema) ListSchemas(ctx context.Context, connectionID string) ([]string, error) {
	if connectionID != "warehouse" {
		return nil, apperrors.ErrUnknownConnection
	}
	return []string{"public", "sales"}, nil
}

func (stubSchema) ListTables(ctx context.Context, connectionID, schema string) ([]models.TableInfo, error) {
	return []models.TableInfo{{Schema: schema, Name: schema + "_t", Type: "table"}}, nil
}

func (stubSchema) GetColumns(ctx context.Context, connectionID, schema, table string) ([]models.ColumnInfo, error) {
	return nil, nil
}

func (stubSchema) ProfileTable(ctx context.Context, connectionID, schema, table string, maxDistinct int) (*models.TableProfile, error) {
	if table == "missing" {
		return nil, &services.QueryError{Code: apperrors.CodeExecutionError, Message: "relation does not exist"}
	}
	return &models.TableProfile{Schema: schema, Table: table, SampledRows: 95}, nil
}

func (stubSchema) SampleRows(ctx context.Context, connectionID, schema, table string, n int) (*datasource.QueryExecutionResult, error) {
	return nil, nil
}

type toolFixture struct {
	t          *testing.T
	server     *server.MCPServer
	exec       *countingExecutor
	runner     *recordingRunner
	dictionary services.DictionaryService
}

func newToolFixture(t *testing.T) *toolFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	exec := &countingExecutor{}
	opener := &singleConnection{exec: exec}
	runner := &recordingRunner{}
	dictionary := services.NewDictionaryService(memory.NewDictionaryRepository(), logger)

	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	Register(s, &Deps{
		Queries: services.NewQueryService(opener, config.QueryConfig{}, logger),
		Schema:  stubSchema{},
		Jobs: services.NewJobService(memory.NewJobRepository(), memory.NewRecipeRepository(), opener,
			providerSet{"openai": true}, runner, cache.NewLocalSignals(), logger),
		Dictionary: dictionary,
		Logger:     logger,
	})
	return &toolFixture{t: t, server: s, exec: exec, runner: runner, dictionary: dictionary}
}

// callTool executes a tool through HandleMessage and returns the result.
func (f *toolFixture) callTool(name string, arguments map[string]any) *mcp.CallToolResult {
	f.t.Helper()
	reqBytes, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      1,
		"params":  map[string]any{"name": name, "arguments": arguments},
	})
	require.NoError(f.t, err)

	respBytes, err := json.Marshal(f.server.HandleMessage(context.Background(), reqBytes))
	require.NoError(f.t, err)

	var response struct {
		Result *mcp.CallToolResult `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(f.t, json.Unmarshal(respBytes, &response))
	require.Nil(f.t, response.Error, "unexpected JSON-RPC error")
	require.NotNil(f.t, response.Result)
	return response.Result
}

// decodeText unmarshals the first text content of a result.
func decodeText(t *testing.T, result *mcp.CallToolResult, dst any) {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(text.Text), dst))
}

func TestRegister_ListsAllTools(t *testing.T) {
	f := newToolFixture(t)

	respBytes, err := json.Marshal(f.server.HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &response))

	found := map[string]bool{}
	for _, tool := range response.Result.Tools {
		found[tool.Name] = true
	}
	for _, name := range []string{"execute_query", "list_tables", "profile_table", "submit_analysis_job", "get_analysis_job", "search_dictionary"} {
		assert.True(t, found[name], "tool %s should be registered", name)
	}
}

func TestExecuteQueryTool(t *testing.T) {
	f := newToolFixture(t)

	var ok models.QueryResult
	decodeText(t, f.callTool("execute_query", map[string]any{
		"connection_id": "warehouse",
		"sql":           "SELECT COUNT(*) AS n FROM users",
		"page_size":     float64(10),
	}), &ok)
	assert.True(t, ok.OK)
	assert.Equal(t, 10, ok.PageSize)
	calls := f.exec.calls
	assert.Positive(t, calls)

	var rejected models.QueryResult
	decodeText(t, f.callTool("execute_query", map[string]any{
		"connection_id": "warehouse",
		"sql":           "DROP TABLE users",
	}), &rejected)
	assert.False(t, rejected.OK)
	assert.Equal(t, apperrors.CodeUnsafeQuery, rejected.ErrorCode)
	assert.Equal(t, calls, f.exec.calls, "unsafe SQL must not reach the executor")

	missing := f.callTool("execute_query", map[string]any{"connection_id": "warehouse"})
	assert.True(t, missing.IsError)
}

func TestListTablesTool(t *testing.T) {
	f := newToolFixture(t)

	var all listTablesResult
	decodeText(t, f.callTool("list_tables", map[string]any{"connection_id": "warehouse"}), &all)
	assert.Len(t, all.Tables, 2)

	var one listTablesResult
	decodeText(t, f.callTool("list_tables", map[string]any{"connection_id": "warehouse", "schema": "sales"}), &one)
	require.Len(t, one.Tables, 1)
	assert.Equal(t, "sales_t", one.Tables[0].Name)

	unknown := f.callTool("list_tables", map[string]any{"connection_id": "elsewhere"})
	assert.True(t, unknown.IsError)
	var errResp ErrorResponse
	decodeText(t, unknown, &errResp)
	assert.Equal(t, "unknown_connection", errResp.Code)
}

func TestProfileTableTool(t *testing.T) {
	f := newToolFixture(t)

	var profile models.TableProfile
	decodeText(t, f.callTool("profile_table", map[string]any{
		"connection_id": "warehouse", "schema": "public", "table": "users",
	}), &profile)
	assert.Equal(t, int64(95), profile.SampledRows)

	failed := f.callTool("profile_table", map[string]any{
		"connection_id": "warehouse", "schema": "public", "table": "missing",
	})
	assert.True(t, failed.IsError)
	var errResp ErrorResponse
	decodeText(t, failed, &errResp)
	assert.Equal(t, string(apperrors.CodeExecutionError), errResp.Code)
}

func TestSubmitAndGetAnalysisJobTools(t *testing.T) {
	f := newToolFixture(t)

	var submitted submitJobResult
	decodeText(t, f.callTool("submit_analysis_job", map[string]any{
		"connection_id":  "warehouse",
		"tables":         []any{"public.users", "public.orders"},
		"analysis_types": []any{models.AnalysisColumnDocumentation},
	}), &submitted)
	assert.Equal(t, models.JobStatusPending, submitted.Status)
	assert.Equal(t, 2, submitted.Stages)
	require.Len(t, f.runner.jobs, 1)

	var job models.Job
	decodeText(t, f.callTool("get_analysis_job", map[string]any{"job_id": submitted.JobID}), &job)
	assert.Equal(t, submitted.JobID, job.ID.String())
	assert.Equal(t, "warehouse", job.DatabaseID)

	bad := f.callTool("submit_analysis_job", map[string]any{
		"connection_id":  "warehouse",
		"tables":         []any{"users"},
		"analysis_types": []any{models.AnalysisColumnDocumentation},
	})
	assert.True(t, bad.IsError)

	provider := f.callTool("submit_analysis_job", map[string]any{
		"connection_id":  "warehouse",
		"tables":         []any{"public.users"},
		"analysis_types": []any{models.AnalysisColumnDocumentation},
		"provider":       "mystery",
	})
	var errResp ErrorResponse
	decodeText(t, provider, &errResp)
	assert.Equal(t, "unknown_provider", errResp.Code)

	notFound := f.callTool("get_analysis_job", map[string]any{"job_id": "550e8400-e29b-41d4-a716-446655440000"})
	assert.True(t, notFound.IsError)
}

func TestSearchDictionaryTool(t *testing.T) {
	f := newToolFixture(t)
	_, err := f.dictionary.Upsert(context.Background(), "warehouse", []models.DictionaryEntryInput{
		{SchemaName: "public", TableName: "users", ColumnName: "email", BusinessDescription: "Contact email", Tags: []string{"PII"}},
		{SchemaName: "public", TableName: "users", ColumnName: "created_at", BusinessDescription: "Signup time"},
		{SchemaName: "public", TableName: "orders", ColumnName: "total", BusinessDescription: "Order total"},
	})
	require.NoError(t, err)

	var byTag searchDictionaryResult
	decodeText(t, f.callTool("search_dictionary", map[string]any{"query": "pii"}), &byTag)
	require.Equal(t, 1, byTag.Total)
	assert.Equal(t, "email", byTag.Entries[0].ColumnName)

	var byTable searchDictionaryResult
	decodeText(t, f.callTool("search_dictionary", map[string]any{"database": "warehouse", "table": "users"}), &byTable)
	assert.Equal(t, 2, byTable.Total)

	var limited searchDictionaryResult
	decodeText(t, f.callTool("search_dictionary", map[string]any{"limit": float64(1)}), &limited)
	assert.Equal(t, 3, limited.Total)
	assert.Len(t, limited.Entries, 1)
	assert.True(t, limited.Truncated)
}

func TestParseTableRefs(t *testing.T) {
	refs, err := parseTableRefs([]string{"public.users", "sales.order.items"})
	require.NoError(t, err)
	assert.Equal(t, []models.TableRef{{Schema: "public", Table: "users"}, {Schema: "sales", Table: "order.items"}}, refs)

	_, err = parseTableRefs(nil)
	assert.Error(t, err)
	_, err = parseTableRefs([]string{".users"})
	assert.Error(t, err)
}
