// Package entities defines core domain models and data structures.
package entities

// Artifact types produced while building a recipe.
const (
	ArtifactArchive = "archive" // downloaded source archive
	ArtifactSource  = "source"  // extracted source tree
	ArtifactPackage = "package" // packaged install prefix
)

// Artifact represents a file or directory produced while building a recipe
type Artifact struct {
	Name     string
	Version  string
	Path     string
	Type     string
	Checksum string // hex digest, set for archives and packages
}
