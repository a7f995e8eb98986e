package taskgraph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRecipe reads a recipe table from a YAML file.
func LoadRecipe(path string) (*Recipe, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe: %w", err)
	}
	var r Recipe
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parse recipe %s: %w", path, err)
	}
	if r.Name == "" {
		return nil, fmt.Errorf("recipe %s: missing name", path)
	}
	return &r, nil
}
