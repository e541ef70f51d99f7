package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/services"
)

// RecipeListResponse for GET /api/recipes
type RecipeListResponse struct {
	Recipes []*models.Recipe `json:"recipes"`
	Total   int              `json:"total"`
}

// CloneRecipeRequest for POST /api/recipes/{id}/clone
type CloneRecipeRequest struct {
	Name string `json:"name"`
}

// RecipesHandler handles prompt recipe HTTP requests.
type RecipesHandler struct {
	recipeService services.RecipeService
	logger        *zap.Logger
}

// NewRecipesHandler creates a new recipes handler.
func NewRecipesHandler(recipeService services.RecipeService, logger *zap.Logger) *RecipesHandler {
	return &RecipesHandler{
		recipeService: recipeService,
		logger:        logger.Named("recipes-handler"),
	}
}

// RegisterRoutes registers the recipes handler's routes on the given mux.
func (h *RecipesHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/recipes"

	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("POST "+base, h.Create)
	mux.HandleFunc("GET "+base+"/{id}", h.Get)
	mux.HandleFunc("PUT "+base+"/{id}", h.Update)
	mux.HandleFunc("DELETE "+base+"/{id}", h.Delete)
	mux.HandleFunc("POST "+base+"/{id}/clone", h.Clone)
	mux.HandleFunc("POST "+base+"/{id}/default", h.SetDefault)
}

// List handles GET /api/recipes?action_type=
func (h *RecipesHandler) List(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.recipeService.List(r.Context(), r.URL.Query().Get("action_type"))
	if err != nil {
		writeServiceError(w, h.logger, "list_recipes", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, RecipeListResponse{Recipes: recipes, Total: len(recipes)})
}

// Create handles POST /api/recipes
func (h *RecipesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateRecipeRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	recipe, err := h.recipeService.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, "create_recipe", err)
		return
	}
	writeOK(w, h.logger, http.StatusCreated, recipe)
}

// Get handles GET /api/recipes/{id}
func (h *RecipesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	recipe, err := h.recipeService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "get_recipe", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, recipe)
}

// Update handles PUT /api/recipes/{id}
func (h *RecipesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}
	var req services.UpdateRecipeRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	recipe, err := h.recipeService.Update(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, h.logger, "update_recipe", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, recipe)
}

// Delete handles DELETE /api/recipes/{id}?force=true
func (h *RecipesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}
	force, ok := queryBool(w, r, "force", false, h.logger)
	if !ok {
		return
	}

	if err := h.recipeService.Delete(r.Context(), id, force); err != nil {
		writeServiceError(w, h.logger, "delete_recipe", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clone handles POST /api/recipes/{id}/clone. The body is optional.
func (h *RecipesHandler) Clone(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}
	var req CloneRecipeRequest
	if r.ContentLength > 0 && !decodeBody(w, r, h.logger, &req) {
		return
	}

	recipe, err := h.recipeService.Clone(r.Context(), id, req.Name)
	if err != nil {
		writeServiceError(w, h.logger, "clone_recipe", err)
		return
	}
	writeOK(w, h.logger, http.StatusCreated, recipe)
}

// SetDefault handles POST /api/recipes/{id}/default
func (h *RecipesHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	recipe, err := h.recipeService.SetDefault(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "set_default_recipe", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, recipe)
}
