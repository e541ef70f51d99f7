package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/prompts"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/repositories"
)

// PromptSource records which step of recipe resolution produced a prompt.
type PromptSource string

const (
	PromptSourceOverride PromptSource = "override"
	PromptSourceDefault  PromptSource = "default"
	PromptSourceBuiltin  PromptSource = "builtin"
)

// RenderedPrompt is a recipe materialized for one table.
type RenderedPrompt struct {
	SystemMessage   string
	UserMessage     string
	RecipeID        *uuid.UUID
	Source          PromptSource
	DefaultProvider *string
	DefaultModel    *string
}

// PromptRenderer resolves a recipe and substitutes its placeholders.
type PromptRenderer interface {
	// Render resolves recipeID, then the action type's default recipe, then
	// the built-in template. A missing override or one bound to another
	// action type falls through to the next step.
	Render(ctx context.Context, actionType string, recipeID *uuid.UUID, schemaSummary, sampleRows string) (*RenderedPrompt, error)
}

type promptRenderer struct {
	recipes repositories.RecipeRepository
	logger  *zap.Logger
}

// NewPromptRenderer creates a new prompt renderer.
func NewPromptRenderer(recipes repositories.RecipeRepository, logger *zap.Logger) PromptRenderer {
	return &promptRenderer{
		recipes: recipes,
		logger:  logger.Named("prompts"),
	}
}

var _ PromptRenderer = (*promptRenderer)(nil)

func (r *promptRenderer) Render(ctx context.Context, actionType string, recipeID *uuid.UUID, schemaSummary, sampleRows string) (*RenderedPrompt, error) {
	if recipe := r.resolveOverride(ctx, actionType, recipeID); recipe != nil {
		return renderRecipe(recipe, PromptSourceOverride, schemaSummary, sampleRows), nil
	}

	recipe, err := r.recipes.GetDefault(ctx, actionType)
	switch {
	case err == nil:
		return renderRecipe(recipe, PromptSourceDefault, schemaSummary, sampleRows), nil
	case !errors.Is(err, apperrors.ErrNotFound):
		r.logger.Warn("Failed to load default recipe, using built-in template",
			zap.String("action_type", actionType),
			zap.Error(err))
	}

	tmpl, ok := prompts.Builtin(actionType)
	if !ok {
		return nil, fmt.Errorf("%w: no recipe or built-in template for analysis type %q", apperrors.ErrInvalidInput, actionType)
	}
	return &RenderedPrompt{
		SystemMessage: tmpl.SystemMessage,
		UserMessage:   prompts.Render(tmpl.UserTemplate, schemaSummary, sampleRows),
		Source:        PromptSourceBuiltin,
	}, nil
}

func (r *promptRenderer) resolveOverride(ctx context.Context, actionType string, recipeID *uuid.UUID) *models.Recipe {
	if recipeID == nil || *recipeID == uuid.Nil {
		return nil
	}

	recipe, err := r.recipes.Get(ctx, *recipeID)
	if err != nil {
		r.logger.Warn("Recipe override unavailable, falling back",
			zap.String("recipe_id", recipeID.String()),
			zap.String("action_type", actionType),
			zap.Error(err))
		return nil
	}
	if recipe.ActionType != actionType {
		r.logger.Warn("Recipe override is for another action type, falling back",
			zap.String("recipe_id", recipeID.String()),
			zap.String("action_type", actionType),
			zap.String("recipe_action_type", recipe.ActionType))
		return nil
	}
	return recipe
}

func renderRecipe(recipe *models.Recipe, source PromptSource, schemaSummary, sampleRows string) *RenderedPrompt {
	id := recipe.ID
	return &RenderedPrompt{
		SystemMessage:   recipe.SystemMessage,
		UserMessage:     prompts.Render(recipe.UserTemplate, schemaSummary, sampleRows),
		RecipeID:        &id,
		Source:          source,
		DefaultProvider: recipe.DefaultProvider,
		DefaultModel:    recipe.DefaultModel,
	}
}
