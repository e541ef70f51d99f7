package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/prompts"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/repositories"
)

// RecipeService manages prompt recipes.
type RecipeService interface {
	Create(ctx context.Context, req *CreateRecipeRequest) (*models.Recipe, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Recipe, error)
	Update(ctx context.Context, id uuid.UUID, req *UpdateRecipeRequest) (*models.Recipe, error)
	List(ctx context.Context, actionType string) ([]*models.Recipe, error)

	// Clone copies a recipe as a non-default user recipe.
	Clone(ctx context.Context, id uuid.UUID, name string) (*models.Recipe, error)

	// Delete removes a recipe. Seed recipes require force.
	Delete(ctx context.Context, id uuid.UUID, force bool) error

	SetDefault(ctx context.Context, id uuid.UUID) (*models.Recipe, error)
	GetDefault(ctx context.Context, actionType string) (*models.Recipe, error)

	// Seed installs the embedded seed recipes that are not present yet,
	// matched by (name, action_type). Returns how many were created.
	Seed(ctx context.Context) (int, error)
}

// CreateRecipeRequest contains fields for creating a recipe.
type CreateRecipeRequest struct {
	Name            string  `json:"name"`
	ActionType      string  `json:"action_type"`
	DefaultProvider *string `json:"default_provider,omitempty"`
	DefaultModel    *string `json:"default_model,omitempty"`
	SystemMessage   string  `json:"system_message"`
	UserTemplate    string  `json:"user_template"`
	IsDefault       bool    `json:"is_default"`
}

// UpdateRecipeRequest contains fields for updating a recipe.
// All fields are optional - only non-nil values are updated.
type UpdateRecipeRequest struct {
	Name            *string `json:"name,omitempty"`
	ActionType      *string `json:"action_type,omitempty"`
	DefaultProvider *string `json:"default_provider,omitempty"`
	DefaultModel    *string `json:"default_model,omitempty"`
	SystemMessage   *string `json:"system_message,omitempty"`
	UserTemplate    *string `json:"user_template,omitempty"`
	IsDefault       *bool   `json:"is_default,omitempty"`
}

type recipeService struct {
	repo   repositories.RecipeRepository
	logger *zap.Logger
}

// NewRecipeService creates a new recipe service.
func NewRecipeService(repo repositories.RecipeRepository, logger *zap.Logger) RecipeService {
	return &recipeService{
		repo:   repo,
		logger: logger.Named("recipes"),
	}
}

var _ RecipeService = (*recipeService)(nil)

func (s *recipeService) Create(ctx context.Context, req *CreateRecipeRequest) (*models.Recipe, error) {
	recipe := &models.Recipe{
		Name:            strings.TrimSpace(req.Name),
		ActionType:      strings.TrimSpace(req.ActionType),
		DefaultProvider: emptyToNil(req.DefaultProvider),
		DefaultModel:    emptyToNil(req.DefaultModel),
		SystemMessage:   req.SystemMessage,
		UserTemplate:    req.UserTemplate,
		Metadata: models.RecipeMetadata{
			IsDefault: req.IsDefault,
			Source:    models.RecipeSourceUser,
		},
	}

	if err := s.repo.Create(ctx, recipe); err != nil {
		return nil, err
	}

	s.logger.Info("Created recipe",
		zap.String("recipe_id", recipe.ID.String()),
		zap.String("action_type", recipe.ActionType),
		zap.Bool("is_default", recipe.Metadata.IsDefault))
	return recipe, nil
}

func (s *recipeService) Get(ctx context.Context, id uuid.UUID) (*models.Recipe, error) {
	return s.repo.Get(ctx, id)
}

func (s *recipeService) Update(ctx context.Context, id uuid.UUID, req *UpdateRecipeRequest) (*models.Recipe, error) {
	recipe, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		recipe.Name = strings.TrimSpace(*req.Name)
	}
	if req.ActionType != nil {
		recipe.ActionType = strings.TrimSpace(*req.ActionType)
	}
	if req.DefaultProvider != nil {
		recipe.DefaultProvider = emptyToNil(req.DefaultProvider)
	}
	if req.DefaultModel != nil {
		recipe.DefaultModel = emptyToNil(req.DefaultModel)
	}
	if req.SystemMessage != nil {
		recipe.SystemMessage = *req.SystemMessage
	}
	if req.UserTemplate != nil {
		recipe.UserTemplate = *req.UserTemplate
	}
	if req.IsDefault != nil {
		recipe.Metadata.IsDefault = *req.IsDefault
	}

	if err := s.repo.Update(ctx, recipe); err != nil {
		return nil, err
	}
	return recipe, nil
}

func (s *recipeService) List(ctx context.Context, actionType string) ([]*models.Recipe, error) {
	return s.repo.List(ctx, actionType)
}

func (s *recipeService) Clone(ctx context.Context, id uuid.UUID, name string) (*models.Recipe, error) {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = src.Name + " (copy)"
	}
	srcID := src.ID

	clone := &models.Recipe{
		Name:            name,
		ActionType:      src.ActionType,
		DefaultProvider: src.DefaultProvider,
		DefaultModel:    src.DefaultModel,
		SystemMessage:   src.SystemMessage,
		UserTemplate:    src.UserTemplate,
		Metadata: models.RecipeMetadata{
			IsDefault:  false,
			Source:     models.RecipeSourceUser,
			ClonedFrom: &srcID,
		},
	}
	if err := s.repo.Create(ctx, clone); err != nil {
		return nil, err
	}

	s.logger.Info("Cloned recipe",
		zap.String("source_id", srcID.String()),
		zap.String("recipe_id", clone.ID.String()))
	return clone, nil
}

func (s *recipeService) Delete(ctx context.Context, id uuid.UUID, force bool) error {
	recipe, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if recipe.IsSeed() && !force {
		return apperrors.ErrSeedRecipeProtected
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Deleted recipe",
		zap.String("recipe_id", id.String()),
		zap.Bool("seed", recipe.IsSeed()))
	return nil
}

func (s *recipeService) SetDefault(ctx context.Context, id uuid.UUID) (*models.Recipe, error) {
	recipe, err := s.repo.SetDefault(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Set default recipe",
		zap.String("recipe_id", id.String()),
		zap.String("action_type", recipe.ActionType))
	return recipe, nil
}

func (s *recipeService) GetDefault(ctx context.Context, actionType string) (*models.Recipe, error) {
	return s.repo.GetDefault(ctx, actionType)
}

func (s *recipeService) Seed(ctx context.Context) (int, error) {
	seeds, err := prompts.SeedRecipes()
	if err != nil {
		return 0, err
	}

	created := 0
	for _, seed := range seeds {
		_, err := s.repo.FindByName(ctx, seed.Name, seed.ActionType)
		if err == nil {
			continue
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return created, fmt.Errorf("failed to look up seed recipe %q: %w", seed.Name, err)
		}

		// Never steal the default from an operator's choice.
		isDefault := seed.IsDefault
		if isDefault {
			if _, err := s.repo.GetDefault(ctx, seed.ActionType); err == nil {
				isDefault = false
			}
		}

		recipe := &models.Recipe{
			Name:            seed.Name,
			ActionType:      seed.ActionType,
			DefaultProvider: emptyToNil(&seed.DefaultProvider),
			DefaultModel:    emptyToNil(&seed.DefaultModel),
			SystemMessage:   seed.SystemMessage,
			UserTemplate:    seed.UserTemplate,
			Metadata: models.RecipeMetadata{
				IsDefault: isDefault,
				Source:    models.RecipeSourceSeed,
			},
		}
		if err := s.repo.Create(ctx, recipe); err != nil {
			return created, fmt.Errorf("failed to seed recipe %q: %w", seed.Name, err)
		}
		created++
	}

	if created > 0 {
		s.logger.Info("Seeded recipes", zap.Int("created", created))
	}
	return created, nil
}

func emptyToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
