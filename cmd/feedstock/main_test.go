package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shippedRecipes = "../../recipes"

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeRecipe(t *testing.T, dir, name, body string) {
	t.Helper()
	recipeDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(recipeDir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(recipeDir, "meta.yaml"), []byte(body), 0600))
}

// fixedRecipe is the shipped pathtemplater recipe with a well-formed digest
func fixedRecipe(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(shippedRecipes, "pathtemplater", "meta.yaml"))
	require.NoError(t, err)
	return strings.Replace(string(data),
		"f407322e36e1ff9b62602731b6a3d3517347d91b98295a278fd565fb666501ec3",
		"f407322e36e1ff9b62602731b6a3d3517347d91b98295a278fd565fb666501ec", 1)
}

func TestSourceURL(t *testing.T) {
	code, stdout, _ := runCLI(t, "source-url", "pathtemplater", "1.0.0.dev7")
	require.Equal(t, 0, code)
	assert.Equal(t, "https://pypi.io/packages/source/p/pathtemplater/pathtemplater-1.0.0.dev7.tar.gz\n", stdout)

	code, stdout, _ = runCLI(t, "source-url", "pathtemplater", "1.0.0.dev7", "zip", "--filename")
	require.Equal(t, 0, code)
	assert.Equal(t, "pathtemplater-1.0.0.dev7.zip\n", stdout)
}

func TestSourceURL_MissingVersion(t *testing.T) {
	code, _, stderr := runCLI(t, "source-url", "pathtemplater", "")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "package.version")
}

func TestRender(t *testing.T) {
	code, stdout, _ := runCLI(t, "--recipes-dir", shippedRecipes, "render", "pathtemplater")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "url: https://pypi.io/packages/source/p/pathtemplater/pathtemplater-1.0.0.dev7.tar.gz")
	assert.Contains(t, stdout, "'sha256': 'f407322e36e1ff9b62602731b6a3d3517347d91b98295a278fd565fb666501ec3'")
	assert.NotContains(t, stdout, "{%")

	code, stdout, _ = runCLI(t, "--recipes-dir", shippedRecipes, "render", "pathtemplater", "--vars")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, `version = "1.0.0.dev7"`)
}

func TestRender_NotFound(t *testing.T) {
	code, _, stderr := runCLI(t, "--recipes-dir", t.TempDir(), "render", "missing")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "recipe not found")
}

func TestLint_ShippedRecipeHasMalformedDigest(t *testing.T) {
	code, stdout, stderr := runCLI(t, "--recipes-dir", shippedRecipes, "lint")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "source.sha256")
	assert.Contains(t, stdout, "must be 64 hex characters, got 65")
	assert.Contains(t, stderr, "1 of 1 recipes failed lint")
}

func TestLint_Clean(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "pathtemplater", fixedRecipe(t))

	code, stdout, _ := runCLI(t, "--recipes-dir", dir, "lint", "pathtemplater")
	require.Equal(t, 0, code, stdout)
	assert.Contains(t, stdout, "1 recipes passed lint")
}

func TestLint_Strict(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "pathtemplater", strings.Replace(fixedRecipe(t), "  summary:", "  notes:", 1))

	code, _, _ := runCLI(t, "--recipes-dir", dir, "lint")
	assert.Equal(t, 0, code)

	code, stdout, _ := runCLI(t, "--recipes-dir", dir, "lint", "--strict")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "about.summary")
}

func TestLint_UnparsableRecipe(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "broken", "{% set name = \"broken\" %}\npackage:\n  name: {{ nme }}\n")

	code, stdout, _ := runCLI(t, "--recipes-dir", dir, "lint")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "nme")
}

func TestChecksum(t *testing.T) {
	file := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, os.WriteFile(file, []byte("source"), 0600))
	sum := sha256.Sum256([]byte("source"))
	digest := hex.EncodeToString(sum[:])

	code, stdout, _ := runCLI(t, "checksum", file)
	require.Equal(t, 0, code)
	assert.Equal(t, digest+"  "+file+"\n", stdout)

	code, _, _ = runCLI(t, "checksum", file, "--verify", digest)
	assert.Equal(t, 0, code)

	code, _, stderr := runCLI(t, "checksum", file, "--verify", digest+"0")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "got 65")

	code, _, stderr = runCLI(t, "checksum", file, "--type", "crc32")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unsupported")
}

func TestList(t *testing.T) {
	code, stdout, _ := runCLI(t, "--recipes-dir", shippedRecipes, "list")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "pathtemplater")
	assert.Contains(t, stdout, "1.0.0.dev7")
	assert.Contains(t, stdout, "Package for templating paths")
}

func TestOutdated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pypi/pathtemplater/json", r.URL.Path)
		fmt.Fprint(w, `{"info":{"name":"pathtemplater","version":"1.0.0"},"releases":{}}`)
	}))
	defer server.Close()

	dir := t.TempDir()
	recipes := filepath.Join(dir, "recipes")
	writeRecipe(t, recipes, "pathtemplater", fixedRecipe(t))
	config := filepath.Join(dir, "feedstock.yaml")
	require.NoError(t, os.WriteFile(config, []byte("recipes_dir: "+recipes+"\npypi_url: "+server.URL+"\n"), 0600))

	code, stdout, _ := runCLI(t, "--config", config, "outdated")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "outdated")
	assert.Contains(t, stdout, "1 recipe(s) behind PyPI")
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := runCLI(t, "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown command")
}

// buildFixture lays out a recipe whose source is served by a local server,
// a stub interpreter and a config file pointing every directory into a
// temp dir. It returns the config path and the output directory.
func buildFixture(t *testing.T, script string) (string, string) {
	t.Helper()
	dir := t.TempDir()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	content := []byte("VALUE = 1\n")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "demo-1.0/", Typeflag: tar.TypeDir, Mode: 0755}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "demo-1.0/demo.py", Mode: 0644, Size: int64(len(content))}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	archive := buf.Bytes()
	sum := sha256.Sum256(archive)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	}))
	t.Cleanup(server.Close)

	python := filepath.Join(dir, "python")
	//nolint:gosec // G306: stub interpreter must be executable
	require.NoError(t, os.WriteFile(python, []byte("#!/bin/sh\nexit 0\n"), 0700))

	recipes := filepath.Join(dir, "recipes")
	writeRecipe(t, recipes, "demo", fmt.Sprintf(`{%% set version = "1.0" %%}
package:
  name: demo
  version: {{ version }}
source:
  fn: demo-{{ version }}.tar.gz
  url: %s/demo-{{ version }}.tar.gz
  sha256: %s
build:
  number: 0
  script: %s
requirements:
  host:
    - python
    - setuptools
  run:
    - python
test:
  imports:
    - demo
about:
  home: https://example.com/demo
  license: MIT
  summary: Demo package
`, server.URL, hex.EncodeToString(sum[:]), script))

	output := filepath.Join(dir, "dist")
	config := filepath.Join(dir, "feedstock.yaml")
	require.NoError(t, os.WriteFile(config, []byte(fmt.Sprintf(
		"recipes_dir: %s\nwork_dir: %s\ncache_dir: %s\noutput_dir: %s\npython: %s\n",
		recipes, filepath.Join(dir, "work"), filepath.Join(dir, "cache"), output, python)), 0600))
	return config, output
}

func TestBuild(t *testing.T) {
	config, output := buildFixture(t, `mkdir -p "$PREFIX/lib" && cp demo.py "$PREFIX/lib/"`)

	code, stdout, stderr := runCLI(t, "--config", config, "build", "demo")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Build successful!")
	assert.FileExists(t, filepath.Join(output, "demo-1.0-0.tar.gz"))
}

func TestBuild_PropagatesScriptExitCode(t *testing.T) {
	config, output := buildFixture(t, "exit 3")

	code, _, stderr := runCLI(t, "--config", config, "build", "demo", "--quiet")
	assert.Equal(t, 3, code)
	assert.Contains(t, stderr, "build phase")
	assert.NoFileExists(t, filepath.Join(output, "demo-1.0-0.tar.gz"))
}
