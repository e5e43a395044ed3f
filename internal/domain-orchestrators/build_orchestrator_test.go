package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ochairo/feedstock/internal/domain/entities"
)

// Mock implementations for testing
type mockRecipeRepository struct {
	recipe *entities.Recipe
	err    error
}

func (m *mockRecipeRepository) GetRecipe(_ context.Context, _ string) (*entities.Recipe, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.recipe, nil
}

func (m *mockRecipeRepository) ListRecipes(_ context.Context) ([]*entities.Recipe, error) {
	return []*entities.Recipe{m.recipe}, nil
}

type mockValidator struct {
	errors   []string
	warnings []string
}

func (m *mockValidator) Validate(recipe *entities.Recipe) *entities.ValidationReport {
	report := &entities.ValidationReport{Recipe: recipe}
	for _, field := range m.errors {
		report.AddError(field, "invalid")
	}
	for _, field := range m.warnings {
		report.AddWarning(field, "questionable")
	}
	return report
}

type mockFetcher struct {
	fetchErr   error
	extractErr error
	fetched    int
}

func (m *mockFetcher) FetchSource(_ context.Context, recipe *entities.Recipe) (*entities.Artifact, error) {
	m.fetched++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return &entities.Artifact{Name: recipe.Name, Version: recipe.Version, Path: "/cache/" + recipe.Source.Filename, Type: entities.ArtifactArchive}, nil
}

func (m *mockFetcher) ExtractSource(_ context.Context, archive *entities.Artifact, destDir string) (*entities.Artifact, error) {
	if m.extractErr != nil {
		return nil, m.extractErr
	}
	return &entities.Artifact{Name: archive.Name, Version: archive.Version, Path: destDir + "/src", Type: entities.ArtifactSource}, nil
}

type mockChecksumVerifier struct {
	err error
}

func (m *mockChecksumVerifier) VerifyChecksum(_ context.Context, _, _, _ string) error {
	return m.err
}

type mockSignatureVerifier struct {
	importedFrom string
	verified     bool
	err          error
}

func (m *mockSignatureVerifier) ImportKeysFromURL(_ context.Context, keysURL string) error {
	m.importedFrom = keysURL
	return nil
}

func (m *mockSignatureVerifier) VerifySignature(_ context.Context, _, _ string) error {
	m.verified = m.err == nil
	return m.err
}

type mockBuilder struct {
	code  int
	err   error
	calls int
}

func (m *mockBuilder) RunBuild(_ context.Context, _ *entities.Recipe, _, _ string) (int, error) {
	m.calls++
	return m.code, m.err
}

type mockTester struct {
	code  int
	err   error
	calls int
}

func (m *mockTester) Test(_ context.Context, _ *entities.Recipe, _, _ string) (int, error) {
	m.calls++
	return m.code, m.err
}

type mockPackager struct {
	err error
}

func (m *mockPackager) PackagePrefix(_ context.Context, recipe *entities.Recipe, _, outputDir string) (*entities.Artifact, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &entities.Artifact{
		Name:    recipe.Name,
		Version: recipe.Version,
		Path:    fmt.Sprintf("%s/%s-%s-%d.tar.gz", outputDir, recipe.Name, recipe.Version, recipe.Build.Number),
		Type:    entities.ArtifactPackage,
	}, nil
}

func testRecipe() *entities.Recipe {
	return &entities.Recipe{
		Name:    "pathtemplater",
		Version: "1.0.0.dev7",
		Source: entities.RecipeSource{
			Filename:  "pathtemplater-1.0.0.dev7.tar.gz",
			URL:       "https://pypi.io/packages/source/p/pathtemplater/pathtemplater-1.0.0.dev7.tar.gz",
			HashType:  "sha256",
			HashValue: strings.Repeat("ab", 32),
		},
		Build: entities.RecipeBuild{Script: "python setup.py install --single-version-externally-managed --record=record.txt"},
		Test:  entities.RecipeTest{Imports: []string{"pathtemplater"}},
	}
}

type harness struct {
	repo       *mockRecipeRepository
	validator  *mockValidator
	fetcher    *mockFetcher
	checksums  *mockChecksumVerifier
	signatures *mockSignatureVerifier
	builder    *mockBuilder
	tester     *mockTester
	packager   *mockPackager
	config     BuildOrchestratorConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		repo:       &mockRecipeRepository{recipe: testRecipe()},
		validator:  &mockValidator{},
		fetcher:    &mockFetcher{},
		checksums:  &mockChecksumVerifier{},
		signatures: &mockSignatureVerifier{},
		builder:    &mockBuilder{},
		tester:     &mockTester{},
		packager:   &mockPackager{},
		config:     BuildOrchestratorConfig{WorkDir: t.TempDir(), OutputDir: t.TempDir()},
	}
}

func (h *harness) orchestrator() *BuildOrchestrator {
	return NewBuildOrchestrator(BuildDeps{
		Recipes:    h.repo,
		Validator:  h.validator,
		Fetcher:    h.fetcher,
		Checksums:  h.checksums,
		Signatures: h.signatures,
		Builder:    h.builder,
		Tester:     h.tester,
		Packager:   h.packager,
	}, h.config, nil)
}

// Test successful build workflow
func TestBuildOrchestrator_BuildPackage_Success(t *testing.T) {
	h := newHarness(t)

	result, err := h.orchestrator().BuildPackage(context.Background(), "pathtemplater")
	if err != nil {
		t.Fatalf("BuildPackage() error = %v", err)
	}

	if !result.Success {
		t.Error("Expected successful build")
	}
	if result.Phase != PhaseDone {
		t.Errorf("Phase = %v, want %v", result.Phase, PhaseDone)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if result.Package == nil || !strings.HasSuffix(result.Package.Path, "pathtemplater-1.0.0.dev7-0.tar.gz") {
		t.Errorf("Package = %+v", result.Package)
	}
	if result.Archive.Checksum != strings.Repeat("ab", 32) {
		t.Errorf("Archive.Checksum = %q", result.Archive.Checksum)
	}
	if h.builder.calls != 1 || h.tester.calls != 1 {
		t.Errorf("builder calls = %d, tester calls = %d, want 1 and 1", h.builder.calls, h.tester.calls)
	}
	if h.signatures.importedFrom != "" {
		t.Error("signature phase should be skipped without source.signature_url")
	}

	summary := result.GetBuildSummary()
	if !strings.Contains(summary, "Build successful") || !strings.Contains(summary, "pathtemplater 1.0.0.dev7") {
		t.Errorf("GetBuildSummary() = %q", summary)
	}
}

func TestBuildOrchestrator_BuildPackage_Failures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness)
		wantPhase string
		wantCode  int
		wantErr   error
	}{
		{
			name:      "recipe not found",
			setup:     func(h *harness) { h.repo.err = entities.ErrRecipeNotFound },
			wantPhase: PhaseLoad,
			wantCode:  1,
			wantErr:   entities.ErrRecipeNotFound,
		},
		{
			name:      "validation errors",
			setup:     func(h *harness) { h.validator.errors = []string{"source.sha256"} },
			wantPhase: PhaseValidate,
			wantCode:  1,
			wantErr:   entities.ErrInvalidRecipe,
		},
		{
			name:      "download fails",
			setup:     func(h *harness) { h.fetcher.fetchErr = errors.New("HTTP 404") },
			wantPhase: PhaseFetch,
			wantCode:  1,
		},
		{
			name:      "checksum mismatch",
			setup:     func(h *harness) { h.checksums.err = entities.ErrChecksumMismatch },
			wantPhase: PhaseChecksum,
			wantCode:  1,
			wantErr:   entities.ErrChecksumMismatch,
		},
		{
			name:      "no checksum declared",
			setup:     func(h *harness) { h.repo.recipe.Source.HashValue = "" },
			wantPhase: PhaseChecksum,
			wantCode:  1,
			wantErr:   entities.ErrMissingField,
		},
		{
			name: "bad signature",
			setup: func(h *harness) {
				h.repo.recipe.Source.SignatureURL = "https://example.com/archive.asc"
				h.repo.recipe.Source.GPGKeysURL = "https://example.com/KEYS"
				h.signatures.err = entities.ErrSignatureInvalid
			},
			wantPhase: PhaseSignature,
			wantCode:  1,
			wantErr:   entities.ErrSignatureInvalid,
		},
		{
			name:      "signature without keys",
			setup:     func(h *harness) { h.repo.recipe.Source.SignatureURL = "https://example.com/archive.asc" },
			wantPhase: PhaseSignature,
			wantCode:  1,
			wantErr:   entities.ErrMissingField,
		},
		{
			name:      "extraction fails",
			setup:     func(h *harness) { h.fetcher.extractErr = errors.New("unsupported archive format") },
			wantPhase: PhaseExtract,
			wantCode:  1,
		},
		{
			name: "build script exits 3",
			setup: func(h *harness) {
				h.builder.code = 3
				h.builder.err = entities.ErrScriptFailed
			},
			wantPhase: PhaseBuild,
			wantCode:  3,
			wantErr:   entities.ErrScriptFailed,
		},
		{
			name: "build script timeout",
			setup: func(h *harness) {
				h.builder.code = -1
				h.builder.err = entities.ErrScriptFailed
			},
			wantPhase: PhaseBuild,
			wantCode:  1,
			wantErr:   entities.ErrScriptFailed,
		},
		{
			name: "import test fails",
			setup: func(h *harness) {
				h.tester.code = 1
				h.tester.err = entities.ErrImportTestFailed
			},
			wantPhase: PhaseTest,
			wantCode:  1,
			wantErr:   entities.ErrImportTestFailed,
		},
		{
			name: "test command exits 4",
			setup: func(h *harness) {
				h.tester.code = 4
				h.tester.err = entities.ErrImportTestFailed
			},
			wantPhase: PhaseTest,
			wantCode:  4,
			wantErr:   entities.ErrImportTestFailed,
		},
		{
			name:      "packaging fails",
			setup:     func(h *harness) { h.packager.err = errors.New("disk full") },
			wantPhase: PhasePackage,
			wantCode:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			result, err := h.orchestrator().BuildPackage(context.Background(), "pathtemplater")
			if err == nil {
				t.Fatal("BuildPackage() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("BuildPackage() error = %v, want %v", err, tt.wantErr)
			}
			if result.Success {
				t.Error("result.Success should be false")
			}
			if result.Phase != tt.wantPhase {
				t.Errorf("Phase = %v, want %v", result.Phase, tt.wantPhase)
			}
			if result.ExitCode != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d", result.ExitCode, tt.wantCode)
			}
			if !strings.Contains(result.GetBuildSummary(), "Build failed in "+tt.wantPhase) {
				t.Errorf("GetBuildSummary() = %q", result.GetBuildSummary())
			}
		})
	}
}

func TestBuildOrchestrator_BuildPackage_SkipValidation(t *testing.T) {
	h := newHarness(t)
	h.validator.errors = []string{"source.sha256"}
	h.config.SkipValidation = true

	result, err := h.orchestrator().BuildPackage(context.Background(), "pathtemplater")
	if err != nil {
		t.Fatalf("BuildPackage() error = %v", err)
	}
	if !result.Success {
		t.Error("Expected build to proceed past validation errors")
	}
	if result.Validation.Valid() {
		t.Error("validation report should still record the errors")
	}
}

func TestBuildOrchestrator_BuildPackage_SkipTests(t *testing.T) {
	h := newHarness(t)
	h.config.SkipTests = true
	h.tester.err = entities.ErrImportTestFailed

	result, err := h.orchestrator().BuildPackage(context.Background(), "pathtemplater")
	if err != nil {
		t.Fatalf("BuildPackage() error = %v", err)
	}
	if h.tester.calls != 0 {
		t.Errorf("tester calls = %d, want 0", h.tester.calls)
	}
	if !result.Success {
		t.Error("Expected successful build")
	}
}

func TestBuildOrchestrator_BuildPackage_Signature(t *testing.T) {
	h := newHarness(t)
	h.repo.recipe.Source.SignatureURL = "https://example.com/archive.asc"
	h.repo.recipe.Source.GPGKeysURL = "https://example.com/KEYS"

	result, err := h.orchestrator().BuildPackage(context.Background(), "pathtemplater")
	if err != nil {
		t.Fatalf("BuildPackage() error = %v", err)
	}
	if !result.Success {
		t.Error("Expected successful build")
	}
	if h.signatures.importedFrom != "https://example.com/KEYS" || !h.signatures.verified {
		t.Errorf("signature phase not run: %+v", h.signatures)
	}
}

func TestBuildOrchestrator_BuildPackage_ValidationStopsBeforeFetch(t *testing.T) {
	h := newHarness(t)
	h.validator.errors = []string{"source.sha256"}

	if _, err := h.orchestrator().BuildPackage(context.Background(), "pathtemplater"); err == nil {
		t.Fatal("BuildPackage() should fail")
	}
	if h.fetcher.fetched != 0 {
		t.Errorf("source fetched %d times, want 0", h.fetcher.fetched)
	}
}
