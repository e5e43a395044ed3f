package entities

import (
	"path"
	"path/filepath"
	"strings"
)

// Recipe represents a package build recipe after template rendering
type Recipe struct {
	Name         string
	Version      string
	Source       RecipeSource
	Build        RecipeBuild
	Requirements RecipeRequirements
	Test         RecipeTest
	About        map[string]string
	Variables    map[string]string // values bound by {% set %} statements
	Path         string            // file the recipe was read from, empty for in-memory recipes
}

// RecipeSource describes where the source archive lives and how to verify it
type RecipeSource struct {
	Filename     string // source.fn
	URL          string
	HashType     string // md5, sha1, sha256 or sha512
	HashValue    string
	SignatureURL string
	GPGKeysURL   string
}

// RecipeBuild represents the build section of a recipe
type RecipeBuild struct {
	Number         int
	Script         string
	TimeoutMinutes int
}

// RecipeRequirements lists dependencies per phase
type RecipeRequirements struct {
	Build []string
	Host  []string
	Run   []string
}

// RecipeTest lists the post-install smoke tests
type RecipeTest struct {
	Imports  []string
	Commands []string
}

// Well-known keys of the about section.
const (
	AboutHome          = "home"
	AboutLicense       = "license"
	AboutLicenseFamily = "license_family"
	AboutLicenseFile   = "license_file"
	AboutSummary       = "summary"
	AboutDevURL        = "dev_url"
)

var archiveExtensions = []string{"tar.gz", "tar.bz2", "tar.xz", "tgz", "tar", "zip"}

// FileExt returns the source archive extension without the leading dot.
func (r *Recipe) FileExt() string {
	if ext := r.Variables["file_ext"]; ext != "" {
		return ext
	}
	for _, candidate := range []string{r.Source.Filename, path.Base(r.Source.URL)} {
		for _, ext := range archiveExtensions {
			if strings.HasSuffix(candidate, "."+ext) {
				return ext
			}
		}
	}
	return ""
}

// ArchiveName returns the file name the source archive is stored under
func (r *Recipe) ArchiveName() string {
	if r.Source.Filename != "" {
		return r.Source.Filename
	}
	return path.Base(r.Source.URL)
}

// AboutValue returns an about field or an empty string
func (r *Recipe) AboutValue(key string) string {
	if r.About == nil {
		return ""
	}
	return r.About[key]
}

// RecipeDir returns the directory holding the recipe file
func (r *Recipe) RecipeDir() string {
	if r.Path == "" {
		return ""
	}
	return filepath.Dir(r.Path)
}
