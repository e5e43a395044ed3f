package gateways

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ochairo/feedstock/internal/domain/entities"
	"github.com/ochairo/feedstock/internal/domain/interfaces"
)

// PackageIndex is the metadata stored as info/index.json inside a package
type PackageIndex struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Build       string   `json:"build"`
	BuildNumber int      `json:"build_number"`
	Depends     []string `json:"depends"`
	License     string   `json:"license,omitempty"`
	Timestamp   int64    `json:"timestamp"`
}

// Packager archives a build's install prefix into a distributable package
type Packager struct {
	logger interfaces.Logger
	now    func() time.Time
}

// NewPackager creates a new packager
func NewPackager(logger interfaces.Logger) *Packager {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &Packager{logger: logger, now: time.Now}
}

// PackageFileName returns <name>-<version>-<build_number>.tar.gz
func PackageFileName(recipe *entities.Recipe) string {
	return fmt.Sprintf("%s-%s-%d.tar.gz", recipe.Name, recipe.Version, recipe.Build.Number)
}

// NewPackageIndex describes recipe as a package depending on its run requirements
func NewPackageIndex(recipe *entities.Recipe, timestamp time.Time) PackageIndex {
	depends := make([]string, 0, len(recipe.Requirements.Run))
	depends = append(depends, recipe.Requirements.Run...)
	return PackageIndex{
		Name:        recipe.Name,
		Version:     recipe.Version,
		Build:       fmt.Sprintf("%d", recipe.Build.Number),
		BuildNumber: recipe.Build.Number,
		Depends:     depends,
		License:     recipe.AboutValue(entities.AboutLicense),
		Timestamp:   timestamp.UnixMilli(),
	}
}

// PackagePrefix writes everything the build installed under prefix, plus
// info/index.json and info/files, into outputDir.
func (p *Packager) PackagePrefix(
	ctx context.Context,
	recipe *entities.Recipe,
	prefix, outputDir string,
) (*entities.Artifact, error) {
	info, err := os.Stat(prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to stat install prefix: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("install prefix %s is not a directory", prefix)
	}

	if outputDir == "" {
		outputDir = "dist"
	}
	tarballPath := filepath.Join(outputDir, PackageFileName(recipe))

	index := NewPackageIndex(recipe, p.now())
	files, err := p.createTarball(ctx, prefix, tarballPath, index)
	if err != nil {
		_ = os.Remove(tarballPath)
		return nil, fmt.Errorf("failed to create package: %w", err)
	}
	if files == 0 {
		p.logger.Warn("build installed no files into the prefix", interfaces.F("recipe", recipe.Name))
	}

	sum, err := NewChecksumVerifier().CalculateChecksum(tarballPath, "sha256")
	if err != nil {
		return nil, err
	}

	p.logger.Info("package created",
		interfaces.F("recipe", recipe.Name),
		interfaces.F("path", tarballPath),
		interfaces.F("files", files))

	return &entities.Artifact{
		Name:     recipe.Name,
		Version:  recipe.Version,
		Path:     tarballPath,
		Type:     entities.ArtifactPackage,
		Checksum: sum,
	}, nil
}

// createTarball archives prefix and appends the info/ metadata. It returns
// the number of installed files recorded in info/files.
func (p *Packager) createTarball(ctx context.Context, prefix, tarballPath string, index PackageIndex) (int, error) {
	if err := os.MkdirAll(filepath.Dir(tarballPath), 0750); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	//nolint:gosec // G304: File path tarballPath is constructed for package output
	file, err := os.Create(tarballPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create tarball file: %w", err)
	}
	//nolint:errcheck // closed explicitly on the success path
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	tarWriter := tar.NewWriter(gzipWriter)

	var installed []string
	err = filepath.WalkDir(prefix, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(prefix, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)
		if relPath == "info" || strings.HasPrefix(relPath, "info/") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		var linkTarget string
		if info.Mode()&os.ModeSymlink != 0 {
			linkTarget, err = os.Readlink(path)
			if err != nil {
				p.logger.Warn("skipping unreadable symlink", interfaces.F("path", path), interfaces.F("error", err))
				return nil
			}
		}

		header, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return fmt.Errorf("failed to create tar header: %w", err)
		}
		header.Name = relPath

		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write tar header: %w", err)
		}
		if info.IsDir() {
			return nil
		}
		installed = append(installed, relPath)

		if info.Mode().IsRegular() {
			return copyInto(tarWriter, path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	filesList := strings.Join(installed, "\n")
	if len(installed) > 0 {
		filesList += "\n"
	}
	indexJSON, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to encode index.json: %w", err)
	}

	modTime := time.UnixMilli(index.Timestamp)
	for _, entry := range []struct {
		name string
		data []byte
	}{
		{"info/files", []byte(filesList)},
		{"info/index.json", append(indexJSON, '\n')},
	} {
		header := &tar.Header{
			Name:     entry.name,
			Mode:     0644,
			Size:     int64(len(entry.data)),
			ModTime:  modTime,
			Typeflag: tar.TypeReg,
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return 0, fmt.Errorf("failed to write tar header: %w", err)
		}
		if _, err := tarWriter.Write(entry.data); err != nil {
			return 0, fmt.Errorf("failed to write %s: %w", entry.name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("failed to close tarball: %w", err)
	}
	return len(installed), nil
}

func copyInto(w io.Writer, path string) error {
	//nolint:gosec // G304: File path from filepath.WalkDir for packaging
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write file to tar: %w", err)
	}
	return nil
}
