package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/repositories"
)

// RecipeRepository keeps recipes in process. One mutex guards the default
// flag so a default swap is never observed half done.
type RecipeRepository struct {
	mu      sync.RWMutex
	recipes map[uuid.UUID]*models.Recipe
}

func NewRecipeRepository() *RecipeRepository {
	return &RecipeRepository{recipes: make(map[uuid.UUID]*models.Recipe)}
}

var _ repositories.RecipeRepository = (*RecipeRepository)(nil)

func (r *RecipeRepository) Create(_ context.Context, recipe *models.Recipe) error {
	if err := recipe.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if recipe.ID == uuid.Nil {
		recipe.ID = uuid.New()
	}
	if _, exists := r.recipes[recipe.ID]; exists {
		return apperrors.ErrConflict
	}
	now := time.Now().UTC()
	recipe.CreatedAt = now
	recipe.UpdatedAt = now

	if recipe.Metadata.IsDefault {
		r.clearDefaultLocked(recipe.ActionType, recipe.ID, now)
	}
	r.recipes[recipe.ID] = cloneRecipe(recipe)
	return nil
}

func (r *RecipeRepository) Get(_ context.Context, id uuid.UUID) (*models.Recipe, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recipe, ok := r.recipes[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneRecipe(recipe), nil
}

func (r *RecipeRepository) Update(_ context.Context, recipe *models.Recipe) error {
	if err := recipe.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.recipes[recipe.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	now := time.Now().UTC()
	recipe.CreatedAt = stored.CreatedAt
	recipe.UpdatedAt = now

	if recipe.Metadata.IsDefault {
		r.clearDefaultLocked(recipe.ActionType, recipe.ID, now)
	}
	r.recipes[recipe.ID] = cloneRecipe(recipe)
	return nil
}

func (r *RecipeRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.recipes[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.recipes, id)
	for _, other := range r.recipes {
		if other.Metadata.ClonedFrom != nil && *other.Metadata.ClonedFrom == id {
			other.Metadata.ClonedFrom = nil
		}
	}
	return nil
}

func (r *RecipeRepository) List(_ context.Context, actionType string) ([]*models.Recipe, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Recipe
	for _, recipe := range r.recipes {
		if actionType == "" || recipe.ActionType == actionType {
			out = append(out, cloneRecipe(recipe))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ActionType != out[j].ActionType {
			return out[i].ActionType < out[j].ActionType
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *RecipeRepository) FindByName(_ context.Context, name, actionType string) (*models.Recipe, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, recipe := range r.recipes {
		if recipe.Name == name && recipe.ActionType == actionType {
			return cloneRecipe(recipe), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *RecipeRepository) GetDefault(_ context.Context, actionType string) (*models.Recipe, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, recipe := range r.recipes {
		if recipe.ActionType == actionType && recipe.Metadata.IsDefault {
			return cloneRecipe(recipe), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *RecipeRepository) SetDefault(_ context.Context, id uuid.UUID) (*models.Recipe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recipe, ok := r.recipes[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	now := time.Now().UTC()
	r.clearDefaultLocked(recipe.ActionType, id, now)
	recipe.Metadata.IsDefault = true
	recipe.UpdatedAt = now
	return cloneRecipe(recipe), nil
}

func (r *RecipeRepository) clearDefaultLocked(actionType string, keep uuid.UUID, now time.Time) {
	for id, other := range r.recipes {
		if id != keep && other.ActionType == actionType && other.Metadata.IsDefault {
			other.Metadata.IsDefault = false
			other.UpdatedAt = now
		}
	}
}

func cloneRecipe(r *models.Recipe) *models.Recipe {
	c := *r
	if r.DefaultProvider != nil {
		v := *r.DefaultProvider
		c.DefaultProvider = &v
	}
	if r.DefaultModel != nil {
		v := *r.DefaultModel
		c.DefaultModel = &v
	}
	if r.Metadata.ClonedFrom != nil {
		v := *r.Metadata.ClonedFrom
		c.Metadata.ClonedFrom = &v
	}
	return &c
}
