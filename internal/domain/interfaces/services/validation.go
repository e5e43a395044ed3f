// Package services defines interfaces for domain service contracts.
package services

import "github.com/ochairo/feedstock/internal/domain/entities"

// RecipeValidator checks a rendered recipe against the recipe schema and build contract
type RecipeValidator interface {
	Validate(recipe *entities.Recipe) *entities.ValidationReport
}

// ScriptChecker reports shell syntax errors in a build script
type ScriptChecker interface {
	CheckSyntax(script string) error
}
