package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
)

// RecipeSource records where a recipe came from.
type RecipeSource string

const (
	RecipeSourceSeed RecipeSource = "seed"
	RecipeSourceUser RecipeSource = "user"
)

// IsValid checks if the source is a known value.
func (s RecipeSource) IsValid() bool {
	return s == RecipeSourceSeed || s == RecipeSourceUser
}

// RecipeMetadata is the closed set of recipe flags.
type RecipeMetadata struct {
	IsDefault  bool         `json:"is_default"`
	Source     RecipeSource `json:"source"`
	ClonedFrom *uuid.UUID   `json:"cloned_from,omitempty"`
}

// Recipe is a stored prompt template for one action type.
type Recipe struct {
	ID              uuid.UUID      `json:"id"`
	Name            string         `json:"name"`
	ActionType      string         `json:"action_type"`
	DefaultProvider *string        `json:"default_provider,omitempty"`
	DefaultModel    *string        `json:"default_model,omitempty"`
	SystemMessage   string         `json:"system_message"`
	UserTemplate    string         `json:"user_template"`
	Metadata        RecipeMetadata `json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Validate checks the fields every stored recipe must carry.
func (r *Recipe) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: recipe name is required", apperrors.ErrInvalidInput)
	}
	if r.ActionType == "" {
		return fmt.Errorf("%w: action_type is required", apperrors.ErrInvalidInput)
	}
	if r.UserTemplate == "" {
		return fmt.Errorf("%w: user_template is required", apperrors.ErrInvalidInput)
	}
	if !r.Metadata.Source.IsValid() {
		return fmt.Errorf("%w: metadata.source must be seed or user, got %q", apperrors.ErrInvalidInput, r.Metadata.Source)
	}
	return nil
}

// IsSeed reports whether the recipe was installed at bootstrap.
func (r *Recipe) IsSeed() bool {
	return r.Metadata.Source == RecipeSourceSeed
}
