// Package orchestrators coordinates complex workflows across multiple domain services.
package orchestrators

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ochairo/feedstock/internal/domain/entities"
	"github.com/ochairo/feedstock/internal/domain/interfaces"
	"github.com/ochairo/feedstock/internal/domain/interfaces/gateways"
	"github.com/ochairo/feedstock/internal/domain/interfaces/repositories"
	"github.com/ochairo/feedstock/internal/domain/interfaces/services"
)

// Build phases, in execution order
const (
	PhaseLoad      = "load"
	PhaseValidate  = "validate"
	PhaseFetch     = "fetch"
	PhaseChecksum  = "checksum"
	PhaseSignature = "signature"
	PhaseExtract   = "extract"
	PhaseBuild     = "build"
	PhaseTest      = "test"
	PhasePackage   = "package"
	PhaseDone      = "done"
)

// BuildRunner runs a recipe's build script and reports its exit status
type BuildRunner interface {
	RunBuild(ctx context.Context, recipe *entities.Recipe, sourceDir, prefix string) (int, error)
}

// TestRunner runs a recipe's test section and reports the failing exit status
type TestRunner interface {
	Test(ctx context.Context, recipe *entities.Recipe, workDir, prefix string) (int, error)
}

// Packager archives an install prefix into a distributable package
type Packager interface {
	PackagePrefix(ctx context.Context, recipe *entities.Recipe, prefix, outputDir string) (*entities.Artifact, error)
}

// BuildOrchestrator coordinates the complete package build workflow
type BuildOrchestrator struct {
	recipeRepo repositories.RecipeRepository
	validator  services.RecipeValidator
	fetcher    gateways.SourceFetcher
	checksums  gateways.ChecksumVerifier
	signatures gateways.SignatureVerifier
	builder    BuildRunner
	tester     TestRunner
	packager   Packager
	config     BuildOrchestratorConfig
	logger     interfaces.Logger
}

// BuildOrchestratorConfig holds configuration for the orchestrator
type BuildOrchestratorConfig struct {
	WorkDir        string
	OutputDir      string
	SkipValidation bool
	SkipTests      bool
}

// BuildDeps groups the ports a build runs through. Signatures may be nil,
// in which case recipes declaring a signature fail the signature phase.
type BuildDeps struct {
	Recipes    repositories.RecipeRepository
	Validator  services.RecipeValidator
	Fetcher    gateways.SourceFetcher
	Checksums  gateways.ChecksumVerifier
	Signatures gateways.SignatureVerifier
	Builder    BuildRunner
	Tester     TestRunner
	Packager   Packager
}

// NewBuildOrchestrator creates a new build orchestrator
func NewBuildOrchestrator(deps BuildDeps, config BuildOrchestratorConfig, logger interfaces.Logger) *BuildOrchestrator {
	if config.WorkDir == "" {
		config.WorkDir = filepath.Join(".feedstock", "work")
	}
	if config.OutputDir == "" {
		config.OutputDir = "dist"
	}
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}

	return &BuildOrchestrator{
		recipeRepo: deps.Recipes,
		validator:  deps.Validator,
		fetcher:    deps.Fetcher,
		checksums:  deps.Checksums,
		signatures: deps.Signatures,
		builder:    deps.Builder,
		tester:     deps.Tester,
		packager:   deps.Packager,
		config:     config,
		logger:     logger,
	}
}

// BuildResult contains the result of a build operation. ExitCode is 0 on
// success, the script's own exit status when the build or test phase fails,
// and 1 for any other failure.
type BuildResult struct {
	Recipe           *entities.Recipe
	Validation       *entities.ValidationReport
	Archive          *entities.Artifact
	Source           *entities.Artifact
	Package          *entities.Artifact
	Phase            string
	ExitCode         int
	DownloadDuration time.Duration
	BuildDuration    time.Duration
	TestDuration     time.Duration
	TotalDuration    time.Duration
	Success          bool
	Error            error
}

func (r *BuildResult) fail(phase string, exitCode int, err error) (*BuildResult, error) {
	if exitCode <= 0 {
		exitCode = 1
	}
	r.Phase = phase
	r.ExitCode = exitCode
	r.Error = err
	return r, err
}

// BuildPackage loads, validates, fetches, verifies, builds, tests and
// packages the named recipe.
func (o *BuildOrchestrator) BuildPackage(ctx context.Context, name string) (*BuildResult, error) {
	startTime := time.Now()
	result := &BuildResult{Phase: PhaseLoad}
	defer func() { result.TotalDuration = time.Since(startTime) }()

	recipe, err := o.recipeRepo.GetRecipe(ctx, name)
	if err != nil {
		return result.fail(PhaseLoad, 1, fmt.Errorf("failed to load recipe: %w", err))
	}
	result.Recipe = recipe
	log := func(msg string, fields ...interfaces.Field) {
		o.logger.Info(msg, append([]interfaces.Field{interfaces.F("recipe", recipe.Name)}, fields...)...)
	}

	// Validate
	report := o.validator.Validate(recipe)
	result.Validation = report
	for _, issue := range report.Warnings() {
		o.logger.Warn("recipe warning", interfaces.F("field", issue.Field), interfaces.F("message", issue.Message))
	}
	if !report.Valid() {
		messages := make([]string, 0, len(report.Errors()))
		for _, issue := range report.Errors() {
			messages = append(messages, issue.Field+": "+issue.Message)
		}
		if !o.config.SkipValidation {
			return result.fail(PhaseValidate, 1,
				fmt.Errorf("%w: %s", entities.ErrInvalidRecipe, strings.Join(messages, "; ")))
		}
		o.logger.Warn("continuing despite validation errors", interfaces.F("errors", len(messages)))
	}

	buildDir := filepath.Join(o.config.WorkDir, fmt.Sprintf("%s-%s", recipe.Name, recipe.Version))
	srcDir := filepath.Join(buildDir, "src")
	prefix := filepath.Join(buildDir, "prefix")
	testDir := filepath.Join(buildDir, "test")
	if err := os.RemoveAll(buildDir); err != nil {
		return result.fail(PhaseFetch, 1, fmt.Errorf("failed to clean work directory: %w", err))
	}
	for _, dir := range []string{srcDir, prefix, testDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return result.fail(PhaseFetch, 1, fmt.Errorf("failed to create work directory: %w", err))
		}
	}

	// Fetch
	downloadStart := time.Now()
	archive, err := o.fetcher.FetchSource(ctx, recipe)
	if err != nil {
		return result.fail(PhaseFetch, 1, fmt.Errorf("failed to fetch source: %w", err))
	}
	result.Archive = archive
	result.DownloadDuration = time.Since(downloadStart)
	log("source fetched", interfaces.F("path", archive.Path))

	// Checksum
	if recipe.Source.HashValue == "" {
		return result.fail(PhaseChecksum, 1, fmt.Errorf("%w: source checksum", entities.ErrMissingField))
	}
	if err := o.checksums.VerifyChecksum(ctx, archive.Path, recipe.Source.HashType, recipe.Source.HashValue); err != nil {
		return result.fail(PhaseChecksum, 1, err)
	}
	archive.Checksum = strings.ToLower(recipe.Source.HashValue)
	log("checksum verified", interfaces.F("type", recipe.Source.HashType))

	// Signature
	if recipe.Source.SignatureURL != "" {
		if err := o.verifySignature(ctx, recipe, archive); err != nil {
			return result.fail(PhaseSignature, 1, err)
		}
		log("signature verified")
	}

	// Extract
	source, err := o.fetcher.ExtractSource(ctx, archive, srcDir)
	if err != nil {
		return result.fail(PhaseExtract, 1, err)
	}
	result.Source = source

	// Build
	buildStart := time.Now()
	code, err := o.builder.RunBuild(ctx, recipe, source.Path, prefix)
	result.BuildDuration = time.Since(buildStart)
	if err != nil {
		return result.fail(PhaseBuild, code, err)
	}
	log("build completed", interfaces.F("duration", result.BuildDuration.Round(time.Millisecond)))

	// Test
	if !o.config.SkipTests {
		testStart := time.Now()
		code, err = o.tester.Test(ctx, recipe, testDir, prefix)
		result.TestDuration = time.Since(testStart)
		if err != nil {
			return result.fail(PhaseTest, code, err)
		}
		log("tests passed", interfaces.F("imports", len(recipe.Test.Imports)))
	}

	// Package
	pkg, err := o.packager.PackagePrefix(ctx, recipe, prefix, o.config.OutputDir)
	if err != nil {
		return result.fail(PhasePackage, 1, fmt.Errorf("packaging failed: %w", err))
	}
	result.Package = pkg

	result.Phase = PhaseDone
	result.Success = true
	return result, nil
}

func (o *BuildOrchestrator) verifySignature(ctx context.Context, recipe *entities.Recipe, archive *entities.Artifact) error {
	if o.signatures == nil {
		return fmt.Errorf("recipe declares a signature but no signature verifier is configured")
	}
	if recipe.Source.GPGKeysURL == "" {
		return fmt.Errorf("%w: source.gpg_keys_url", entities.ErrMissingField)
	}
	if err := o.signatures.ImportKeysFromURL(ctx, recipe.Source.GPGKeysURL); err != nil {
		return err
	}
	return o.signatures.VerifySignature(ctx, archive.Path, recipe.Source.SignatureURL)
}

// GetBuildSummary returns a human-readable summary of the build
func (r *BuildResult) GetBuildSummary() string {
	if !r.Success {
		return fmt.Sprintf("Build failed in %s phase (exit code %d): %v", r.Phase, r.ExitCode, r.Error)
	}

	return fmt.Sprintf(`Build successful!
Package: %s %s
Output: %s
Download: %v
Build: %v
Test: %v
Total: %v`,
		r.Recipe.Name,
		r.Recipe.Version,
		r.Package.Path,
		r.DownloadDuration.Round(time.Millisecond),
		r.BuildDuration.Round(time.Millisecond),
		r.TestDuration.Round(time.Millisecond),
		r.TotalDuration.Round(time.Millisecond),
	)
}
