package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/database"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
)

// RecipeRepository provides data access for prompt recipes.
type RecipeRepository interface {
	Create(ctx context.Context, recipe *models.Recipe) error
	Get(ctx context.Context, id uuid.UUID) (*models.Recipe, error)
	Update(ctx context.Context, recipe *models.Recipe) error
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns recipes ordered by action type then name. An empty
	// actionType lists all recipes.
	List(ctx context.Context, actionType string) ([]*models.Recipe, error)
	FindByName(ctx context.Context, name, actionType string) (*models.Recipe, error)

	// GetDefault returns the default recipe of an action type or ErrNotFound.
	GetDefault(ctx context.Context, actionType string) (*models.Recipe, error)

	// SetDefault makes id the only default of its action type.
	SetDefault(ctx context.Context, id uuid.UUID) (*models.Recipe, error)
}

type recipeRepository struct {
	db *database.DB
}

// NewRecipeRepository creates a new RecipeRepository backed by PostgreSQL.
func NewRecipeRepository(db *database.DB) RecipeRepository {
	return &recipeRepository{db: db}
}

var _ RecipeRepository = (*recipeRepository)(nil)

const recipeColumns = `id, name, action_type, default_provider, default_model, system_message,
	user_template, is_default, source, cloned_from, created_at, updated_at`

func (r *recipeRepository) Create(ctx context.Context, recipe *models.Recipe) error {
	if err := recipe.Validate(); err != nil {
		return err
	}
	if recipe.ID == uuid.Nil {
		recipe.ID = uuid.New()
	}
	now := time.Now().UTC()
	recipe.CreatedAt = now
	recipe.UpdatedAt = now

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if recipe.Metadata.IsDefault {
		if err := clearDefault(ctx, tx, recipe.ActionType, recipe.ID); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO recipes (
			id, name, action_type, default_provider, default_model, system_message,
			user_template, is_default, source, cloned_from, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = tx.Exec(ctx, query,
		recipe.ID, recipe.Name, recipe.ActionType, recipe.DefaultProvider, recipe.DefaultModel,
		recipe.SystemMessage, recipe.UserTemplate, recipe.Metadata.IsDefault,
		recipe.Metadata.Source, recipe.Metadata.ClonedFrom, recipe.CreatedAt, recipe.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create recipe: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *recipeRepository) Get(ctx context.Context, id uuid.UUID) (*models.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes WHERE id = $1`

	recipe, err := scanRecipe(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	return recipe, nil
}

func (r *recipeRepository) Update(ctx context.Context, recipe *models.Recipe) error {
	if err := recipe.Validate(); err != nil {
		return err
	}
	recipe.UpdatedAt = time.Now().UTC()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if recipe.Metadata.IsDefault {
		if err := clearDefault(ctx, tx, recipe.ActionType, recipe.ID); err != nil {
			return err
		}
	}

	query := `
		UPDATE recipes
		SET name = $2, action_type = $3, default_provider = $4, default_model = $5,
		    system_message = $6, user_template = $7, is_default = $8, source = $9,
		    cloned_from = $10, updated_at = $11
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query,
		recipe.ID, recipe.Name, recipe.ActionType, recipe.DefaultProvider, recipe.DefaultModel,
		recipe.SystemMessage, recipe.UserTemplate, recipe.Metadata.IsDefault,
		recipe.Metadata.Source, recipe.Metadata.ClonedFrom, recipe.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to update recipe: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *recipeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM recipes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *recipeRepository) List(ctx context.Context, actionType string) ([]*models.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes
		WHERE ($1 = '' OR action_type = $1)
		ORDER BY action_type, name`

	rows, err := r.db.Query(ctx, query, actionType)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	defer rows.Close()

	var recipes []*models.Recipe
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipe: %w", err)
		}
		recipes = append(recipes, recipe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipes: %w", err)
	}
	return recipes, nil
}

func (r *recipeRepository) FindByName(ctx context.Context, name, actionType string) (*models.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes WHERE name = $1 AND action_type = $2 LIMIT 1`

	recipe, err := scanRecipe(r.db.QueryRow(ctx, query, name, actionType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find recipe: %w", err)
	}
	return recipe, nil
}

func (r *recipeRepository) GetDefault(ctx context.Context, actionType string) (*models.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes WHERE action_type = $1 AND is_default`

	recipe, err := scanRecipe(r.db.QueryRow(ctx, query, actionType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get default recipe: %w", err)
	}
	return recipe, nil
}

func (r *recipeRepository) SetDefault(ctx context.Context, id uuid.UUID) (*models.Recipe, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	recipe, err := scanRecipe(tx.QueryRow(ctx,
		`SELECT `+recipeColumns+` FROM recipes WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load recipe: %w", err)
	}

	if err := clearDefault(ctx, tx, recipe.ActionType, recipe.ID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE recipes SET is_default = TRUE, updated_at = $2 WHERE id = $1`, id, now); err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.ErrConflict
		}
		return nil, fmt.Errorf("failed to set default recipe: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	recipe.Metadata.IsDefault = true
	recipe.UpdatedAt = now
	return recipe, nil
}

// clearDefault drops the default flag from every other recipe of actionType.
func clearDefault(ctx context.Context, tx pgx.Tx, actionType string, keep uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE recipes SET is_default = FALSE, updated_at = NOW()
		WHERE action_type = $1 AND is_default AND id <> $2`, actionType, keep)
	if err != nil {
		return fmt.Errorf("failed to clear default recipe: %w", err)
	}
	return nil
}

func scanRecipe(row pgx.Row) (*models.Recipe, error) {
	var rec models.Recipe
	err := row.Scan(
		&rec.ID, &rec.Name, &rec.ActionType, &rec.DefaultProvider, &rec.DefaultModel,
		&rec.SystemMessage, &rec.UserTemplate, &rec.Metadata.IsDefault, &rec.Metadata.Source,
		&rec.Metadata.ClonedFrom, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
