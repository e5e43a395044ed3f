package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ochairo/feedstock/internal/domain/entities"
	ports "github.com/ochairo/feedstock/internal/domain/interfaces/services"
)

var (
	pythonModulePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
	setupInstallPattern = regexp.MustCompile(`setup\.py\s+install\b`)
)

// Build backends accepted in host requirements of a Python recipe
var buildBackends = []string{"setuptools", "pip", "wheel", "flit-core", "poetry-core", "hatchling"}

// RecipeValidator checks recipes against the required keys and the build contract
type RecipeValidator struct {
	scripts ports.ScriptChecker
}

// NewRecipeValidator creates a validator. scripts may be nil, in which case
// build scripts are not syntax-checked.
func NewRecipeValidator(scripts ports.ScriptChecker) *RecipeValidator {
	return &RecipeValidator{scripts: scripts}
}

// Validate runs every check and returns the collected issues
func (v *RecipeValidator) Validate(recipe *entities.Recipe) *entities.ValidationReport {
	report := &entities.ValidationReport{Recipe: recipe}

	v.checkPackage(recipe, report)
	v.checkSource(recipe, report)
	v.checkBuild(recipe, report)
	v.checkRequirements(recipe, report)
	v.checkTest(recipe, report)
	v.checkAbout(recipe, report)

	return report
}

func (v *RecipeValidator) checkPackage(recipe *entities.Recipe, report *entities.ValidationReport) {
	if recipe.Name == "" {
		report.AddError("package.name", "required")
	} else if strings.ToLower(recipe.Name) != recipe.Name {
		report.AddWarning("package.name", "should be lowercase")
	}
	if recipe.Version == "" {
		report.AddError("package.version", "required")
	} else if strings.Contains(recipe.Version, "-") {
		report.AddError("package.version", "must not contain '-'")
	}
}

func (v *RecipeValidator) checkSource(recipe *entities.Recipe, report *entities.ValidationReport) {
	src := recipe.Source
	if src.URL == "" {
		report.AddError("source.url", "required")
	}
	if src.Filename == "" {
		report.AddError("source.fn", "required")
	} else if recipe.Name != "" && recipe.Version != "" && recipe.FileExt() != "" {
		if want, err := ArchiveFilename(recipe.Name, recipe.Version, recipe.FileExt()); err == nil && want != src.Filename {
			report.AddWarning("source.fn", fmt.Sprintf("%s differs from expected %s", src.Filename, want))
		}
	}

	switch {
	case src.HashType == "":
		report.AddError("source.<hash_type>", "a checksum (md5, sha1, sha256 or sha512) is required")
	case src.HashValue == "":
		report.AddError("source."+src.HashType, "empty checksum")
	default:
		if err := ValidateChecksum(src.HashType, src.HashValue); err != nil {
			report.AddError("source."+src.HashType, err.Error())
		}
	}

	if src.URL != "" && recipe.Name != "" && recipe.Version != "" {
		if err := CheckSourceURL(recipe); err != nil {
			report.AddError("source.url", err.Error())
		}
	}

	if src.SignatureURL != "" && src.GPGKeysURL == "" {
		report.AddError("source.gpg_keys_url", "required when source.signature_url is set")
	}
}

func (v *RecipeValidator) checkBuild(recipe *entities.Recipe, report *entities.ValidationReport) {
	script := strings.TrimSpace(recipe.Build.Script)
	if script == "" {
		report.AddError("build.script", "required")
		return
	}
	if recipe.Build.Number < 0 {
		report.AddError("build.number", "must not be negative")
	}
	if v.scripts != nil {
		if err := v.scripts.CheckSyntax(script); err != nil {
			report.AddError("build.script", err.Error())
		}
	}
	if setupInstallPattern.MatchString(script) {
		if !strings.Contains(script, "--single-version-externally-managed") {
			report.AddWarning("build.script", "setup.py install should pass --single-version-externally-managed")
		}
		if !strings.Contains(script, "--record") {
			report.AddWarning("build.script", "setup.py install should pass --record=record.txt")
		}
	}
}

func (v *RecipeValidator) checkRequirements(recipe *entities.Recipe, report *entities.ValidationReport) {
	reqs := recipe.Requirements
	if len(reqs.Host) == 0 {
		report.AddError("requirements.host", "required")
	} else {
		if !containsPackage(reqs.Host, "python") {
			report.AddError("requirements.host", "must include a python interpreter")
		}
		hasBackend := false
		for _, backend := range buildBackends {
			if containsPackage(reqs.Host, backend) {
				hasBackend = true
				break
			}
		}
		if !hasBackend {
			report.AddError("requirements.host", "must include a build backend (setuptools or pip)")
		}
	}

	if len(reqs.Run) == 0 {
		report.AddError("requirements.run", "required")
	} else if !containsPackage(reqs.Run, "python") {
		report.AddError("requirements.run", "must include a python interpreter")
	}
}

func (v *RecipeValidator) checkTest(recipe *entities.Recipe, report *entities.ValidationReport) {
	if len(recipe.Test.Imports) == 0 {
		report.AddError("test.imports", "required")
		return
	}
	for _, mod := range recipe.Test.Imports {
		if !pythonModulePattern.MatchString(mod) {
			report.AddError("test.imports", fmt.Sprintf("%q is not a python module name", mod))
		}
	}
}

func (v *RecipeValidator) checkAbout(recipe *entities.Recipe, report *entities.ValidationReport) {
	if len(recipe.About) == 0 {
		report.AddError("about", "required")
		return
	}
	for _, key := range []string{entities.AboutHome, entities.AboutLicense, entities.AboutSummary} {
		if strings.TrimSpace(recipe.AboutValue(key)) == "" {
			report.AddWarning("about."+key, "missing")
		}
	}
}

// RequirementName strips version constraints and selectors from a requirement spec
// ("python >=3.6  # [py3k]" becomes "python").
func RequirementName(spec string) string {
	if i := strings.Index(spec, "#"); i >= 0 {
		spec = spec[:i]
	}
	spec = strings.TrimSpace(spec)
	if i := strings.IndexAny(spec, " <>=!~"); i >= 0 {
		spec = spec[:i]
	}
	return strings.ToLower(spec)
}

func containsPackage(reqs []string, name string) bool {
	for _, r := range reqs {
		if RequirementName(r) == name {
			return true
		}
	}
	return false
}
