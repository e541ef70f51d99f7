package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
)

func newRecipe(name, actionType string, isDefault bool) *models.Recipe {
	return &models.Recipe{
		Name:         name,
		ActionType:   actionType,
		UserTemplate: "Describe {schema_summary}",
		Metadata:     models.RecipeMetadata{IsDefault: isDefault, Source: models.RecipeSourceUser},
	}
}

func TestRecipes_SetDefaultSwapsAtomically(t *testing.T) {
	ctx := context.Background()
	repo := NewRecipeRepository()

	a := newRecipe("a", models.AnalysisColumnDocumentation, true)
	b := newRecipe("b", models.AnalysisColumnDocumentation, false)
	other := newRecipe("c", models.AnalysisDataQuality, true)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	require.NoError(t, repo.Create(ctx, other))

	updated, err := repo.SetDefault(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, updated.Metadata.IsDefault)

	def, err := repo.GetDefault(ctx, models.AnalysisColumnDocumentation)
	require.NoError(t, err)
	assert.Equal(t, b.ID, def.ID)

	storedA, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, storedA.Metadata.IsDefault)

	otherDefault, err := repo.GetDefault(ctx, models.AnalysisDataQuality)
	require.NoError(t, err)
	assert.Equal(t, other.ID, otherDefault.ID, "defaults of other action types are untouched")
}

func TestRecipes_CreateDefaultClearsPrevious(t *testing.T) {
	ctx := context.Background()
	repo := NewRecipeRepository()

	first := newRecipe("first", models.AnalysisTableSummary, true)
	second := newRecipe("second", models.AnalysisTableSummary, true)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	list, err := repo.List(ctx, models.AnalysisTableSummary)
	require.NoError(t, err)
	defaults := 0
	for _, r := range list {
		if r.Metadata.IsDefault {
			defaults++
			assert.Equal(t, second.ID, r.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestRecipes_RejectsInvalid(t *testing.T) {
	repo := NewRecipeRepository()
	err := repo.Create(context.Background(), &models.Recipe{Name: "x", ActionType: "t", UserTemplate: "u"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRecipes_DeleteClearsClonedFrom(t *testing.T) {
	ctx := context.Background()
	repo := NewRecipeRepository()

	src := newRecipe("src", models.AnalysisPIIDetection, false)
	require.NoError(t, repo.Create(ctx, src))
	clone := newRecipe("clone", models.AnalysisPIIDetection, false)
	clone.Metadata.ClonedFrom = &src.ID
	require.NoError(t, repo.Create(ctx, clone))

	require.NoError(t, repo.Delete(ctx, src.ID))
	stored, err := repo.Get(ctx, clone.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Metadata.ClonedFrom)

	assert.ErrorIs(t, repo.Delete(ctx, uuid.New()), apperrors.ErrNotFound)
}
