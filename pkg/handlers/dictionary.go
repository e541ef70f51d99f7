package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/services"
)

// DictionaryListResponse for GET /api/dictionary
type DictionaryListResponse struct {
	Entries []*models.DictionaryEntry `json:"entries"`
	Total   int                       `json:"total"`
}

// UpdateDictionaryEntryRequest for PUT /api/dictionary/{id}
type UpdateDictionaryEntryRequest struct {
	models.DictionaryEntryUpdate
	CreateNewVersion bool `json:"create_new_version"`
}

// DictionaryHandler handles data dictionary HTTP requests.
type DictionaryHandler struct {
	dictionaryService services.DictionaryService
	logger            *zap.Logger
}

// NewDictionaryHandler creates a new dictionary handler.
func NewDictionaryHandler(dictionaryService services.DictionaryService, logger *zap.Logger) *DictionaryHandler {
	return &DictionaryHandler{
		dictionaryService: dictionaryService,
		logger:            logger.Named("dictionary-handler"),
	}
}

// RegisterRoutes registers the dictionary handler's routes on the given mux.
func (h *DictionaryHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/dictionary"

	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("GET "+base+"/versions", h.Versions)
	mux.HandleFunc("GET "+base+"/{id}", h.Get)
	mux.HandleFunc("PUT "+base+"/{id}", h.Update)
	mux.HandleFunc("POST "+base+"/{id}/activate", h.Activate)
}

// List handles GET /api/dictionary?database=&schema=&table=&active_only=
func (h *DictionaryHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly, ok := queryBool(w, r, "active_only", true, h.logger)
	if !ok {
		return
	}
	q := r.URL.Query()

	entries, err := h.dictionaryService.List(r.Context(), models.DictionaryFilter{
		DatabaseName: q.Get("database"),
		SchemaName:   q.Get("schema"),
		TableName:    q.Get("table"),
		ActiveOnly:   activeOnly,
	})
	if err != nil {
		writeServiceError(w, h.logger, "list_dictionary", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, DictionaryListResponse{Entries: entries, Total: len(entries)})
}

// Versions handles GET /api/dictionary/versions?database=&schema=&table=&column=
func (h *DictionaryHandler) Versions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	versions, err := h.dictionaryService.GetVersions(r.Context(), models.ColumnKey{
		Database: q.Get("database"),
		Schema:   q.Get("schema"),
		Table:    q.Get("table"),
		Column:   q.Get("column"),
	})
	if err != nil {
		writeServiceError(w, h.logger, "get_dictionary_versions", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, DictionaryListResponse{Entries: versions, Total: len(versions)})
}

// Get handles GET /api/dictionary/{id}
func (h *DictionaryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	entry, err := h.dictionaryService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "get_dictionary_entry", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, entry)
}

// Update handles PUT /api/dictionary/{id}
func (h *DictionaryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}
	var req UpdateDictionaryEntryRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	entry, err := h.dictionaryService.Update(r.Context(), id, req.DictionaryEntryUpdate, req.CreateNewVersion)
	if err != nil {
		writeServiceError(w, h.logger, "update_dictionary_entry", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, entry)
}

// Activate handles POST /api/dictionary/{id}/activate
func (h *DictionaryHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	entry, err := h.dictionaryService.Activate(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "activate_dictionary_entry", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, entry)
}
