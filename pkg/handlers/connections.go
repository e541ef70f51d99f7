package handlers

import (
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/services"
)

// ExecuteQueryRequest for POST /api/connections/{cid}/query
type ExecuteQueryRequest struct {
	SQL      string `json:"sql"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Params   []any  `json:"params,omitempty"`
}

// ConnectionListResponse for GET /api/connections
type ConnectionListResponse struct {
	Connections []string `json:"connections"`
}

// TableListResponse for GET /api/connections/{cid}/schemas/{schema}/tables
type TableListResponse struct {
	Tables []models.TableInfo `json:"tables"`
	Total  int                `json:"total"`
}

// ConnectionsHandler exposes the connection registry, read-only queries and schema
// introspection.
type ConnectionsHandler struct {
	connections   services.ConnectionOpener
	queryService  services.QueryService
	schemaService services.SchemaService
	logger        *zap.Logger
}

// NewConnectionsHandler creates a new connections handler.
func NewConnectionsHandler(
	connections services.ConnectionOpener,
	queryService services.QueryService,
	schemaService services.SchemaService,
	logger *zap.Logger,
) *ConnectionsHandler {
	return &ConnectionsHandler{
		connections:   connections,
		queryService:  queryService,
		schemaService: schemaService,
		logger:        logger.Named("connections-handler"),
	}
}

// RegisterRoutes registers the connections handler's routes on the given mux.
func (h *ConnectionsHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/connections"
	table := base + "/{cid}/schemas/{schema}/tables/{table}"

	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("POST "+base+"/{cid}/query", h.Query)
	mux.HandleFunc("GET "+base+"/{cid}/schemas", h.ListSchemas)
	mux.HandleFunc("GET "+base+"/{cid}/schemas/{schema}/tables", h.ListTables)
	mux.HandleFunc("GET "+table+"/columns", h.GetColumns)
	mux.HandleFunc("GET "+table+"/profile", h.Profile)
}

// List handles GET /api/connections
func (h *ConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	ids := slices.Clone(h.connections.IDs())
	slices.Sort(ids)
	writeOK(w, h.logger, http.StatusOK, ConnectionListResponse{Connections: ids})
}

// Query handles POST /api/connections/{cid}/query.
// Validation and execution failures are result values and return 200.
func (h *ConnectionsHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req ExecuteQueryRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.SQL == "" {
		writeBadRequest(w, h.logger, "missing_sql", "sql is required")
		return
	}

	result := h.queryService.ExecuteWithParams(r.Context(), r.PathValue("cid"), req.SQL, req.Params, req.Page, req.PageSize)
	writeOK(w, h.logger, http.StatusOK, result)
}

// ListSchemas handles GET /api/connections/{cid}/schemas
func (h *ConnectionsHandler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.schemaService.ListSchemas(r.Context(), r.PathValue("cid"))
	if err != nil {
		writeServiceError(w, h.logger, "list_schemas", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, map[string][]string{"schemas": schemas})
}

// ListTables handles GET /api/connections/{cid}/schemas/{schema}/tables
func (h *ConnectionsHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.schemaService.ListTables(r.Context(), r.PathValue("cid"), r.PathValue("schema"))
	if err != nil {
		writeServiceError(w, h.logger, "list_tables", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, TableListResponse{Tables: tables, Total: len(tables)})
}

// GetColumns handles GET .../tables/{table}/columns
func (h *ConnectionsHandler) GetColumns(w http.ResponseWriter, r *http.Request) {
	columns, err := h.schemaService.GetColumns(r.Context(), r.PathValue("cid"), r.PathValue("schema"), r.PathValue("table"))
	if err != nil {
		writeServiceError(w, h.logger, "get_columns", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, map[string][]models.ColumnInfo{"columns": columns})
}

// Profile handles GET .../tables/{table}/profile?max_distinct=
func (h *ConnectionsHandler) Profile(w http.ResponseWriter, r *http.Request) {
	maxDistinct, ok := queryInt(w, r, "max_distinct", 0, h.logger)
	if !ok {
		return
	}

	profile, err := h.schemaService.ProfileTable(r.Context(), r.PathValue("cid"), r.PathValue("schema"), r.PathValue("table"), maxDistinct)
	if err != nil {
		writeServiceError(w, h.logger, "profile_table", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, profile)
}
