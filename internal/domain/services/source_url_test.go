package services

import (
	"errors"
	"testing"

	"github.com/ochairo/feedstock/internal/domain/entities"
)

func TestSourceURL(t *testing.T) {
	tests := []struct {
		name    string
		pkg     string
		version string
		ext     string
		want    string
		wantErr bool
	}{
		{
			name:    "pathtemplater sdist",
			pkg:     "pathtemplater",
			version: "1.0.0.dev7",
			ext:     "tar.gz",
			want:    "https://pypi.io/packages/source/p/pathtemplater/pathtemplater-1.0.0.dev7.tar.gz",
		},
		{
			name:    "zip archive",
			pkg:     "requests",
			version: "2.31.0",
			ext:     "zip",
			want:    "https://pypi.io/packages/source/r/requests/requests-2.31.0.zip",
		},
		{
			name:    "leading dot in extension is dropped",
			pkg:     "attrs",
			version: "23.1.0",
			ext:     ".tar.gz",
			want:    "https://pypi.io/packages/source/a/attrs/attrs-23.1.0.tar.gz",
		},
		{
			name:    "first letter keeps case",
			pkg:     "PyYAML",
			version: "6.0",
			ext:     "tar.gz",
			want:    "https://pypi.io/packages/source/P/PyYAML/PyYAML-6.0.tar.gz",
		},
		{name: "empty name", pkg: "", version: "1.0", ext: "tar.gz", wantErr: true},
		{name: "empty version", pkg: "x", version: "", ext: "tar.gz", wantErr: true},
		{name: "empty extension", pkg: "x", version: "1.0", ext: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SourceURL(tt.pkg, tt.version, tt.ext)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SourceURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, entities.ErrMissingField) {
					t.Errorf("SourceURL() error = %v, want ErrMissingField", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("SourceURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSourceURL_Deterministic(t *testing.T) {
	a, _ := SourceURL("pathtemplater", "1.0.0.dev7", "tar.gz")
	b, _ := SourceURL("pathtemplater", "1.0.0.dev7", "tar.gz")
	if a != b {
		t.Errorf("SourceURL() not deterministic: %s != %s", a, b)
	}
}

func TestCheckSourceURL(t *testing.T) {
	base := func(url string) *entities.Recipe {
		return &entities.Recipe{
			Name:      "pathtemplater",
			Version:   "1.0.0.dev7",
			Variables: map[string]string{"file_ext": "tar.gz"},
			Source:    entities.RecipeSource{URL: url},
		}
	}

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "matches", url: "https://pypi.io/packages/source/p/pathtemplater/pathtemplater-1.0.0.dev7.tar.gz"},
		{name: "pypi.org alias", url: "https://pypi.org/packages/source/p/pathtemplater/pathtemplater-1.0.0.dev7.tar.gz"},
		{name: "stale version", url: "https://pypi.io/packages/source/p/pathtemplater/pathtemplater-1.0.0.dev4.tar.gz", wantErr: true},
		{name: "wrong letter", url: "https://pypi.io/packages/source/t/pathtemplater/pathtemplater-1.0.0.dev7.tar.gz", wantErr: true},
		{name: "github archive is not checked", url: "https://github.com/twlee79/pathtemplater/archive/v1.0.0.tar.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSourceURL(base(tt.url))
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckSourceURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
