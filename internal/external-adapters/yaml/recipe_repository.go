package yaml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"github.com/ochairo/feedstock/internal/domain/entities"
	"github.com/ochairo/feedstock/internal/domain/interfaces"
)

// RecipeFileName is the recipe file inside a feedstock-style recipe directory
const RecipeFileName = "meta.yaml"

const maxParallelParses = 8

// RecipeRepository implements repositories.RecipeRepository over a recipes directory.
// A recipe named foo lives in foo/meta.yaml or in foo.yaml (foo.yml).
type RecipeRepository struct {
	recipesDir string
	parser     *RecipeParser
	logger     interfaces.Logger
}

// NewRecipeRepository creates a new YAML-based recipe repository
func NewRecipeRepository(recipesDir string, parser *RecipeParser, logger interfaces.Logger) *RecipeRepository {
	if parser == nil {
		parser = NewRecipeParser(nil)
	}
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &RecipeRepository{
		recipesDir: recipesDir,
		parser:     parser,
		logger:     logger,
	}
}

// GetRecipe retrieves a package recipe by name. name may also be a path to a
// recipe file or recipe directory.
func (r *RecipeRepository) GetRecipe(_ context.Context, name string) (*entities.Recipe, error) {
	filePath, ok := r.resolve(name)
	if !ok {
		return nil, zerr.With(fmt.Errorf("%w: %s", entities.ErrRecipeNotFound, name), "recipe", name)
	}
	return r.parser.ParseFile(filePath)
}

// ListRecipes returns all parsable recipes sorted by name. Recipes that fail
// to parse are logged and skipped.
func (r *RecipeRepository) ListRecipes(ctx context.Context) ([]*entities.Recipe, error) {
	paths, err := r.recipeFiles()
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		recipes = make([]*entities.Recipe, 0, len(paths))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelParses)
	for _, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			recipe, err := r.parser.ParseFile(p)
			if err != nil {
				r.logger.Warn("skipping unparsable recipe", interfaces.F("path", p), interfaces.F("error", err))
				return nil
			}
			mu.Lock()
			recipes = append(recipes, recipe)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(recipes, func(i, j int) bool { return recipes[i].Name < recipes[j].Name })
	return recipes, nil
}

// RecipePaths returns the recipe file of every recipe in the directory
func (r *RecipeRepository) RecipePaths() ([]string, error) {
	return r.recipeFiles()
}

// RecipePath returns the file a recipe name resolves to
func (r *RecipeRepository) RecipePath(name string) (string, error) {
	filePath, ok := r.resolve(name)
	if !ok {
		return "", zerr.With(fmt.Errorf("%w: %s", entities.ErrRecipeNotFound, name), "recipe", name)
	}
	return filePath, nil
}

func (r *RecipeRepository) resolve(name string) (string, bool) {
	candidates := []string{
		name,
		filepath.Join(name, RecipeFileName),
		filepath.Join(r.recipesDir, name, RecipeFileName),
		filepath.Join(r.recipesDir, name+".yaml"),
		filepath.Join(r.recipesDir, name+".yml"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

func (r *RecipeRepository) recipeFiles() ([]string, error) {
	entries, err := os.ReadDir(r.recipesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipes directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			p := filepath.Join(r.recipesDir, entry.Name(), RecipeFileName)
			if _, err := os.Stat(p); err == nil {
				paths = append(paths, p)
			}
			continue
		}
		if strings.HasSuffix(entry.Name(), ".yaml") || strings.HasSuffix(entry.Name(), ".yml") {
			paths = append(paths, filepath.Join(r.recipesDir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
