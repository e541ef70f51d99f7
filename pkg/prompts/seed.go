package prompts

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed_recipes.yaml
var seedRecipesYAML []byte

// SeedRecipe is one entry of seed_recipes.yaml.
type SeedRecipe struct {
	Name            string `yaml:"name"`
	ActionType      string `yaml:"action_type"`
	IsDefault       bool   `yaml:"is_default"`
	DefaultProvider string `yaml:"default_provider"`
	DefaultModel    string `yaml:"default_model"`
	SystemMessage   string `yaml:"system_message"`
	UserTemplate    string `yaml:"user_template"`
}

type seedFile struct {
	Recipes []SeedRecipe `yaml:"recipes"`
}

// SeedRecipes parses the embedded seed file.
func SeedRecipes() ([]SeedRecipe, error) {
	return ParseSeedRecipes(seedRecipesYAML)
}

// ParseSeedRecipes parses a seed file, rejecting entries without a name,
// action type or user template, and action types with more than one default.
func ParseSeedRecipes(data []byte) ([]SeedRecipe, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed recipes: %w", err)
	}

	defaults := make(map[string]string)
	for i, r := range f.Recipes {
		if r.Name == "" || r.ActionType == "" || r.UserTemplate == "" {
			return nil, fmt.Errorf("seed recipe %d: name, action_type and user_template are required", i)
		}
		if r.IsDefault {
			if prev, dup := defaults[r.ActionType]; dup {
				return nil, fmt.Errorf("seed recipes %q and %q are both default for %s", prev, r.Name, r.ActionType)
			}
			defaults[r.ActionType] = r.Name
		}
	}
	return f.Recipes, nil
}
