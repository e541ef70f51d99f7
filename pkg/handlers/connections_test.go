package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/services"
)

func newConnectionsMux(query *mockQueryService, schema *mockSchemaService) *http.ServeMux {
	mux := http.NewServeMux()
	NewConnectionsHandler(staticConnections{"warehouse", "analytics"}, query, schema, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestConnectionsHandler_ListSorted(t *testing.T) {
	rec := serve(t, newConnectionsMux(&mockQueryService{}, &mockSchemaService{}), http.MethodGet, "/api/connections", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ConnectionListResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, []string{"analytics", "warehouse"}, resp.Connections)
}

func TestConnectionsHandler_QueryReturnsResultValues(t *testing.T) {
	query := &mockQueryService{result: models.QueryFailure(apperrors.CodeUnsafeQuery, "only SELECT statements are allowed")}
	mux := newConnectionsMux(query, &mockSchemaService{})

	rec := serve(t, mux, http.MethodPost, "/api/connections/warehouse/query", `{"sql":"DELETE FROM users","page":1,"page_size":10}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.QueryResult
	decodeData(t, rec, &result)
	assert.False(t, result.OK)
	assert.Equal(t, apperrors.CodeUnsafeQuery, result.ErrorCode)
	assert.Equal(t, "DELETE FROM users", query.lastSQL)
}

func TestConnectionsHandler_QueryRequiresSQL(t *testing.T) {
	rec := serve(t, newConnectionsMux(&mockQueryService{}, &mockSchemaService{}), http.MethodPost, "/api/connections/warehouse/query", `{"page":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_sql", decodeError(t, rec)["error"])
}

func TestConnectionsHandler_Schemas(t *testing.T) {
	schema := &mockSchemaService{tables: []models.TableInfo{{Schema: "public", Name: "users", Type: "table"}}}
	mux := newConnectionsMux(&mockQueryService{}, schema)

	rec := serve(t, mux, http.MethodGet, "/api/connections/warehouse/schemas", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, mux, http.MethodGet, "/api/connections/elsewhere/schemas", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(t, mux, http.MethodGet, "/api/connections/warehouse/schemas/public/tables", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tables TableListResponse
	decodeData(t, rec, &tables)
	assert.Equal(t, 1, tables.Total)

	rec = serve(t, mux, http.MethodGet, "/api/connections/warehouse/schemas/public/tables/missing/columns", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConnectionsHandler_Profile(t *testing.T) {
	schema := &mockSchemaService{profile: &models.TableProfile{Schema: "public", Table: "users", SampledRows: 95}}
	mux := newConnectionsMux(&mockQueryService{}, schema)

	rec := serve(t, mux, http.MethodGet, "/api/connections/warehouse/schemas/public/tables/users/profile?max_distinct=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var profile models.TableProfile
	decodeData(t, rec, &profile)
	assert.Equal(t, int64(95), profile.SampledRows)
	assert.Equal(t, 5, schema.distinct)

	schema.profileErr = &services.QueryError{Code: apperrors.CodeExecutionError, Message: "relation does not exist"}
	rec = serve(t, mux, http.MethodGet, "/api/connections/warehouse/schemas/public/tables/users/profile", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(apperrors.CodeExecutionError), decodeError(t, rec)["error"])

	rec = serve(t, mux, http.MethodGet, "/api/connections/warehouse/schemas/public/tables/users/profile?max_distinct=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
