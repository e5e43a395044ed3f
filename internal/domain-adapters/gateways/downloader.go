package gateways

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/ochairo/feedstock/internal/domain/entities"
	"github.com/ochairo/feedstock/internal/domain/interfaces"
)

// maxExtractedFileSize caps a single extracted file (decompression bombs)
var maxExtractedFileSize int64 = 1 << 30

// Downloader fetches recipe source archives into a local cache and unpacks them
type Downloader struct {
	httpClient *http.Client
	cacheDir   string
	checksums  *checksumVerifier
	logger     interfaces.Logger
}

// NewDownloader creates a new downloader caching archives under cacheDir
func NewDownloader(cacheDir string, timeout time.Duration, logger interfaces.Logger) *Downloader {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &Downloader{
		httpClient: &http.Client{Timeout: timeout},
		cacheDir:   cacheDir,
		checksums:  NewChecksumVerifier(),
		logger:     logger,
	}
}

// CachePath returns where the archive for url is stored. Archives from
// different URLs never share a directory even when their file names match.
func (d *Downloader) CachePath(url, filename string) string {
	key := strconv.FormatUint(xxhash.Sum64String(url), 16)
	return filepath.Join(d.cacheDir, key, filename)
}

// FetchSource downloads the recipe's source archive, reusing a cached copy
func (d *Downloader) FetchSource(ctx context.Context, recipe *entities.Recipe) (*entities.Artifact, error) {
	url := recipe.Source.URL
	if url == "" {
		return nil, fmt.Errorf("%w: source.url", entities.ErrMissingField)
	}

	dest := d.CachePath(url, recipe.ArchiveName())

	artifact := &entities.Artifact{
		Name:    recipe.Name,
		Version: recipe.Version,
		Path:    dest,
		Type:    entities.ArtifactArchive,
	}

	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		if d.cachedCopyMatches(ctx, recipe, dest) {
			d.logger.Info("using cached source", interfaces.F("recipe", recipe.Name), interfaces.F("path", dest))
			return artifact, nil
		}
		d.logger.Warn("cached source does not match declared checksum, downloading again",
			interfaces.F("recipe", recipe.Name), interfaces.F("path", dest))
		if err := os.Remove(dest); err != nil {
			return nil, fmt.Errorf("failed to evict cached source: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	d.logger.Info("downloading source", interfaces.F("recipe", recipe.Name), interfaces.F("url", url))
	if err := d.downloadFile(ctx, url, dest); err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	return artifact, nil
}

// cachedCopyMatches reports whether a cached archive may be reused. A copy
// that fails the recipe's checksum is stale; a recipe whose checksum cannot
// be checked (absent, malformed or unsupported) keeps the cached copy and
// fails later in the checksum phase.
func (d *Downloader) cachedCopyMatches(ctx context.Context, recipe *entities.Recipe, path string) bool {
	err := d.checksums.VerifyChecksum(ctx, path, recipe.Source.HashType, recipe.Source.HashValue)
	return err == nil || ctx.Err() != nil ||
		errors.Is(err, entities.ErrMalformedChecksum) ||
		errors.Is(err, entities.ErrUnsupportedHashType)
}

// downloadFile writes url to dest through a temporary file so an interrupted
// download never leaves a partial archive in the cache.
func (d *Downloader) downloadFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "feedstock/1.0")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to move download into cache: %w", err)
	}

	d.logger.Debug("downloaded", interfaces.F("file", filepath.Base(dest)), interfaces.F("bytes", written))
	return nil
}

// ExtractSource unpacks archive into destDir. When the archive holds a single
// top-level directory (the usual sdist layout) that directory is returned.
func (d *Downloader) ExtractSource(ctx context.Context, archive *entities.Artifact, destDir string) (*entities.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(destDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	name := strings.ToLower(archive.Path)
	var err error
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		err = d.extractTarGz(archive.Path, destDir)
	case strings.HasSuffix(name, ".tar.bz2"), strings.HasSuffix(name, ".tbz2"):
		err = d.extractTarBz2(archive.Path, destDir)
	case strings.HasSuffix(name, ".tar"):
		err = d.extractTarFile(archive.Path, destDir)
	case strings.HasSuffix(name, ".zip"):
		err = d.extractZip(archive.Path, destDir)
	default:
		err = fmt.Errorf("unsupported archive format: %s", filepath.Base(archive.Path))
	}
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}

	root := destDir
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted directory: %w", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		root = filepath.Join(destDir, entries[0].Name())
	}

	d.logger.Debug("extracted source", interfaces.F("path", root))
	return &entities.Artifact{
		Name:    archive.Name,
		Version: archive.Version,
		Path:    root,
		Type:    entities.ArtifactSource,
	}, nil
}

func (d *Downloader) extractTarGz(tarPath, destDir string) error {
	//nolint:gosec // G304: File path tarPath is function parameter for extraction
	file, err := os.Open(tarPath)
	if err != nil {
		return fmt.Errorf("failed to open tar.gz: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	//nolint:errcheck // Defer close on gzip reader
	defer gzr.Close()

	return d.extractTar(tar.NewReader(gzr), destDir)
}

func (d *Downloader) extractTarBz2(tarPath, destDir string) error {
	//nolint:gosec // G304: File path tarPath is function parameter for extraction
	file, err := os.Open(tarPath)
	if err != nil {
		return fmt.Errorf("failed to open tar.bz2: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer file.Close()

	return d.extractTar(tar.NewReader(bzip2.NewReader(file)), destDir)
}

func (d *Downloader) extractTarFile(tarPath, destDir string) error {
	//nolint:gosec // G304: File path tarPath is function parameter for extraction
	file, err := os.Open(tarPath)
	if err != nil {
		return fmt.Errorf("failed to open tar: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer file.Close()

	return d.extractTar(tar.NewReader(file), destDir)
}

func (d *Downloader) extractTar(tr *tar.Reader, destDir string) error {
	// Symlinks are created after regular files so their targets exist.
	type symlinkInfo struct {
		target   string
		linkname string
	}
	var symlinks []symlinkInfo

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("tar read error: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0750); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}

		case tar.TypeReg:
			//nolint:gosec // G115: tar header mode fits in FileMode
			if err := writeFile(target, tr, os.FileMode(header.Mode)); err != nil {
				return err
			}

		case tar.TypeSymlink:
			symlinks = append(symlinks, symlinkInfo{target: target, linkname: header.Linkname})

		case tar.TypeXGlobalHeader:
			// pax metadata, nothing to extract

		default:
			d.logger.Warn("ignoring unsupported archive entry",
				interfaces.F("type", string(header.Typeflag)),
				interfaces.F("name", header.Name))
		}
	}

	for _, link := range symlinks {
		if err := os.MkdirAll(filepath.Dir(link.target), 0750); err != nil {
			return fmt.Errorf("failed to create directory for symlink: %w", err)
		}
		if err := os.Symlink(link.linkname, link.target); err != nil {
			d.logger.Warn("failed to create symlink",
				interfaces.F("link", link.target),
				interfaces.F("target", link.linkname),
				interfaces.F("error", err))
		}
	}
	return nil
}

func (d *Downloader) extractZip(zipPath, destDir string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	//nolint:errcheck // Defer close on read-only archive
	defer zr.Close()

	for _, f := range zr.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0750); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		err = writeFile(target, rc, f.Mode().Perm())
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// safeJoin joins an archive entry name onto destDir, rejecting entries that
// would land outside it.
func safeJoin(destDir, name string) (string, error) {
	//nolint:gosec // G305: Path traversal validated below
	target := filepath.Join(destDir, name)
	cleanDest := filepath.Clean(destDir)
	if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid file path in archive: %s", name)
	}
	return target, nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if mode == 0 {
		mode = 0644
	}

	//nolint:gosec // G304: target validated by safeJoin
	out, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	n, err := io.Copy(out, io.LimitReader(r, maxExtractedFileSize+1))
	if err == nil && n > maxExtractedFileSize {
		err = fmt.Errorf("%s exceeds the %d byte limit for a single file", filepath.Base(target), maxExtractedFileSize)
	}
	if err != nil {
		_ = out.Close()
		_ = os.Remove(target)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}
