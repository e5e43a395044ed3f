package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ochairo/feedstock/internal/domain-adapters/gateways"
	orchestrators "github.com/ochairo/feedstock/internal/domain-orchestrators"
	"github.com/ochairo/feedstock/internal/domain/interfaces"
	"github.com/ochairo/feedstock/internal/domain/services"
	"github.com/ochairo/feedstock/internal/external-adapters/gpg"
)

func newBuildCmd(a *app) *cobra.Command {
	var (
		skipValidation bool
		skipTests      bool
		outputDir      string
		quiet          bool
	)

	cmd := &cobra.Command{
		Use:   "build <recipe>",
		Short: "Fetch, verify, build, test and package a recipe",
		Long: `Build downloads the recipe's source archive, verifies its checksum (and
signature when one is declared), runs the build script with $PREFIX pointing at
a fresh install prefix, runs the import tests and packages the prefix.

The process exits with the build or test script's own status when that phase
fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("output-dir") {
				cfg.OutputDir = outputDir
			}
			workDir, err := filepath.Abs(cfg.WorkDir)
			if err != nil {
				return err
			}
			outDir, err := filepath.Abs(cfg.OutputDir)
			if err != nil {
				return err
			}

			executor := gateways.NewScriptExecutor(a.logger, cfg.Python, cfg.BuildTimeout)
			if !quiet {
				executor.StreamOutput(cmd.ErrOrStderr(), cmd.ErrOrStderr())
			}

			orchestrator := orchestrators.NewBuildOrchestrator(orchestrators.BuildDeps{
				Recipes:    a.repository(),
				Validator:  services.NewRecipeValidator(executor),
				Fetcher:    gateways.NewDownloader(cfg.CacheDir, cfg.HTTPTimeout, a.logger),
				Checksums:  gateways.NewChecksumVerifier(),
				Signatures: gpg.NewVerifier(a.logger),
				Builder:    executor,
				Tester:     gateways.NewImportTester(executor, a.logger),
				Packager:   gateways.NewPackager(a.logger),
			}, orchestrators.BuildOrchestratorConfig{
				WorkDir:        workDir,
				OutputDir:      outDir,
				SkipValidation: skipValidation || cfg.SkipValidation,
				SkipTests:      skipTests,
			}, a.logger)

			fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render("Building "+args[0]))
			result, err := orchestrator.BuildPackage(cmd.Context(), args[0])
			if err != nil {
				if result != nil && result.Validation != nil {
					for _, issue := range result.Validation.Errors() {
						fmt.Fprintf(cmd.OutOrStdout(), "    %s %s: %s\n", errorStyle.Render("error"), issue.Field, issue.Message)
					}
				}
				code := 1
				phase := orchestrators.PhaseLoad
				if result != nil {
					code = result.ExitCode
					phase = result.Phase
				}
				a.logger.Error("build failed", append([]interfaces.Field{interfaces.F("phase", phase)}, interfaces.ErrorFields(err)...)...)
				return &exitError{code: code, err: fmt.Errorf("%s phase: %w", phase, err)}
			}

			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓ ")+result.GetBuildSummary())
			if result.Package != nil && result.Package.Checksum != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", labelStyle.Render("sha256:"), result.Package.Checksum)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "build even when the recipe has validation errors")
	cmd.Flags().BoolVar(&skipTests, "skip-tests", false, "skip the test section")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for built packages (default from config)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not stream build output")
	return cmd
}
