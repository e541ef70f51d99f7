package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/repositories/memory"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/services"
)

func newDictionaryMux(t *testing.T) (*http.ServeMux, services.DictionaryService) {
	t.Helper()
	svc := services.NewDictionaryService(memory.NewDictionaryRepository(), zap.NewNop())
	mux := http.NewServeMux()
	NewDictionaryHandler(svc, zap.NewNop()).RegisterRoutes(mux)

	_, err := svc.Upsert(context.Background(), "warehouse", []models.DictionaryEntryInput{
		{SchemaName: "public", TableName: "users", ColumnName: "email", BusinessDescription: "contact email"},
		{SchemaName: "public", TableName: "orders", ColumnName: "total", BusinessDescription: "order total"},
	})
	require.NoError(t, err)
	return mux, svc
}

const emailVersionsPath = "/api/dictionary/versions?database=warehouse&schema=public&table=users&column=email"

func TestDictionaryHandler_ListFilters(t *testing.T) {
	mux, _ := newDictionaryMux(t)

	rec := serve(t, mux, http.MethodGet, "/api/dictionary?database=warehouse", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp DictionaryListResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, 2, resp.Total)

	rec = serve(t, mux, http.MethodGet, "/api/dictionary?database=warehouse&table=users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &resp)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "email", resp.Entries[0].ColumnName)

	rec = serve(t, mux, http.MethodGet, "/api/dictionary?active_only=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDictionaryHandler_EditAsNewVersionThenActivate(t *testing.T) {
	mux, _ := newDictionaryMux(t)

	rec := serve(t, mux, http.MethodGet, emailVersionsPath, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var versions DictionaryListResponse
	decodeData(t, rec, &versions)
	require.Equal(t, 1, versions.Total)
	v1 := versions.Entries[0]

	rec = serve(t, mux, http.MethodGet, "/api/dictionary/"+v1.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, mux, http.MethodPut, "/api/dictionary/"+v1.ID.String(),
		`{"business_description":"primary contact address","create_new_version":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v2 models.DictionaryEntry
	decodeData(t, rec, &v2)
	assert.Equal(t, 2, v2.VersionNumber)
	assert.Equal(t, models.EntrySourceHumanEdited, v2.Source)
	assert.Equal(t, "primary contact address", v2.BusinessDescription)

	rec = serve(t, mux, http.MethodGet, emailVersionsPath, "")
	decodeData(t, rec, &versions)
	require.Equal(t, 2, versions.Total)

	// Re-activating v1 leaves exactly one active version.
	rec = serve(t, mux, http.MethodPost, "/api/dictionary/"+v1.ID.String()+"/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, mux, http.MethodGet, "/api/dictionary?database=warehouse&table=users&active_only=true", "")
	var active DictionaryListResponse
	decodeData(t, rec, &active)
	require.Equal(t, 1, active.Total)
	assert.Equal(t, 1, active.Entries[0].VersionNumber)
}

func TestDictionaryHandler_VersionsNeedFullKey(t *testing.T) {
	mux, _ := newDictionaryMux(t)

	rec := serve(t, mux, http.MethodGet, "/api/dictionary/versions?database=warehouse", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decodeError(t, rec)["error"])
}

func TestDictionaryHandler_UnknownEntry(t *testing.T) {
	mux, _ := newDictionaryMux(t)

	rec := serve(t, mux, http.MethodPost, "/api/dictionary/550e8400-e29b-41d4-a716-446655440000/activate", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
