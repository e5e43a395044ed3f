package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/ochairo/feedstock/internal/config"
	"github.com/ochairo/feedstock/internal/domain-adapters/gateways"
	"github.com/ochairo/feedstock/internal/domain/interfaces"
	"github.com/ochairo/feedstock/internal/domain/services"
	"github.com/ochairo/feedstock/internal/external-adapters/logging"
	"github.com/ochairo/feedstock/internal/external-adapters/yaml"
)

// app holds state shared by every subcommand once configuration is loaded
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	recipesDir string
	logLevel   string

	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "feedstock",
		Short:         "Render, lint, build and package conda-style Python recipes",
		Long:          "feedstock reads meta.yaml recipes, checks them against the recipe schema and build contract, and builds, import-tests and packages them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is ./feedstock.yaml)")
	root.PersistentFlags().StringVar(&a.recipesDir, "recipes-dir", "", "path to recipes directory")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newRenderCmd(a),
		newLintCmd(a),
		newSourceURLCmd(a),
		newChecksumCmd(a),
		newListCmd(a),
		newOutdatedCmd(a),
		newBuildCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, used, err := config.Load(config.LoadOptions{ConfigFilePath: a.configPath})
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("recipes-dir") {
		cfg.RecipesDir = a.recipesDir
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}

	a.cfg = cfg
	a.logger = logging.New(a.stderr, cfg.LogLevel)
	if used != "" {
		a.logger.Debug("loaded config", interfaces.F("file", used))
	}
	return nil
}

func (a *app) parser() *yaml.RecipeParser {
	return yaml.NewRecipeParser(map[string]string{"PYTHON": a.cfg.Python})
}

func (a *app) repository() *yaml.RecipeRepository {
	return yaml.NewRecipeRepository(a.cfg.RecipesDir, a.parser(), a.logger)
}

func (a *app) validator() *services.RecipeValidator {
	return services.NewRecipeValidator(gateways.NewScriptExecutor(a.logger, a.cfg.Python, a.cfg.BuildTimeout))
}
