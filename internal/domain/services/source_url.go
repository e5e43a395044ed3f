// Package services implements recipe business rules that need no I/O.
package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ochairo/feedstock/internal/domain/entities"
)

// PyPISourceBase is the PyPI source-distribution mirror recipes download from.
const PyPISourceBase = "https://pypi.io/packages/source"

// SourceURL derives the PyPI source archive URL for a package:
// <base>/<first letter of name>/<name>/<name>-<version>.<fileExt>
func SourceURL(name, version, fileExt string) (string, error) {
	filename, err := ArchiveFilename(name, version, fileExt)
	if err != nil {
		return "", err
	}
	first, _ := utf8.DecodeRuneInString(name)
	return fmt.Sprintf("%s/%c/%s/%s", PyPISourceBase, first, name, filename), nil
}

// ArchiveFilename returns <name>-<version>.<fileExt>, the value of source.fn.
func ArchiveFilename(name, version, fileExt string) (string, error) {
	switch {
	case name == "":
		return "", fmt.Errorf("%w: package.name", entities.ErrMissingField)
	case version == "":
		return "", fmt.Errorf("%w: package.version", entities.ErrMissingField)
	case fileExt == "":
		return "", fmt.Errorf("%w: file extension", entities.ErrMissingField)
	}
	return fmt.Sprintf("%s-%s.%s", name, version, strings.TrimPrefix(fileExt, ".")), nil
}

// IsPyPISource reports whether a URL points at the PyPI source mirror
func IsPyPISource(url string) bool {
	return strings.HasPrefix(url, PyPISourceBase+"/") ||
		strings.HasPrefix(url, "https://pypi.org/packages/source/") ||
		strings.HasPrefix(url, "https://files.pythonhosted.org/packages/source/")
}

// CheckSourceURL compares a recipe's source.url with the URL derived from its
// name, version and file extension. Non-PyPI sources are not checked.
func CheckSourceURL(recipe *entities.Recipe) error {
	if !IsPyPISource(recipe.Source.URL) {
		return nil
	}
	want, err := SourceURL(recipe.Name, recipe.Version, recipe.FileExt())
	if err != nil {
		return err
	}
	got := strings.Replace(recipe.Source.URL, "https://pypi.org/", "https://pypi.io/", 1)
	got = strings.Replace(got, "https://files.pythonhosted.org/", "https://pypi.io/", 1)
	if got != want {
		return fmt.Errorf("source.url %s does not match derived %s", recipe.Source.URL, want)
	}
	return nil
}
