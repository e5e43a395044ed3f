// Package yaml provides YAML-based recipe parsing and repository implementations.
package yaml

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ochairo/feedstock/internal/domain/entities"
)

// yamlRecipe represents the raw meta.yaml structure after template rendering
type yamlRecipe struct {
	Package      yamlPackage       `yaml:"package"`
	Source       yamlSource        `yaml:"source"`
	Build        yamlBuild         `yaml:"build"`
	Requirements yamlRequirements  `yaml:"requirements"`
	Test         yamlTest          `yaml:"test"`
	About        map[string]string `yaml:"about"`
	Extra        map[string]any    `yaml:"extra"`
}

type yamlPackage struct {
	Name    flexString `yaml:"name"`
	Version flexString `yaml:"version"`
}

type yamlSource struct {
	Fn           string `yaml:"fn"`
	URL          string `yaml:"url"`
	MD5          string `yaml:"md5"`
	SHA1         string `yaml:"sha1"`
	SHA256       string `yaml:"sha256"`
	SHA512       string `yaml:"sha512"`
	SignatureURL string `yaml:"signature_url"`
	GPGKeysURL   string `yaml:"gpg_keys_url"`
}

type yamlBuild struct {
	Number         int         `yaml:"number"`
	Script         scriptLines `yaml:"script"`
	TimeoutMinutes int         `yaml:"timeout_minutes"`
}

type yamlRequirements struct {
	Build []string `yaml:"build"`
	Host  []string `yaml:"host"`
	Run   []string `yaml:"run"`
}

type yamlTest struct {
	Imports  []string `yaml:"imports"`
	Commands []string `yaml:"commands"`
}

// flexString accepts scalars of any YAML type (version: 1.0 is a float)
type flexString string

func (f *flexString) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", node.Line)
	}
	*f = flexString(node.Value)
	return nil
}

// scriptLines accepts build.script as a string or a list of commands
type scriptLines string

func (s *scriptLines) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = scriptLines(node.Value)
		return nil
	case yaml.SequenceNode:
		var lines []string
		if err := node.Decode(&lines); err != nil {
			return err
		}
		*s = scriptLines(strings.Join(lines, "\n"))
		return nil
	default:
		return fmt.Errorf("line %d: build.script must be a string or a list", node.Line)
	}
}

// RecipeParser renders and parses meta.yaml recipe files
type RecipeParser struct {
	renderer *TemplateRenderer
}

// NewRecipeParser creates a new YAML parser. context supplies template names
// such as PYTHON that recipes may use without setting them.
func NewRecipeParser(context map[string]string) *RecipeParser {
	return &RecipeParser{
		renderer: NewTemplateRenderer(context),
	}
}

// ParseFile parses a recipe file into a Recipe entity
func (p *RecipeParser) ParseFile(filePath string) (*entities.Recipe, error) {
	//nolint:gosec // G304: filePath is recipe definition path from repository
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	recipe, err := p.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	recipe.Path = filePath
	return recipe, nil
}

// Render expands the template tags of a recipe document
func (p *RecipeParser) Render(data []byte) (*RenderResult, error) {
	return p.renderer.Render(data)
}

// Parse renders the template and parses the resulting YAML into a Recipe entity
func (p *RecipeParser) Parse(data []byte) (*entities.Recipe, error) {
	rendered, err := p.renderer.Render(data)
	if err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	var raw yamlRecipe
	if err := yaml.Unmarshal(rendered.Output, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if raw.Package.Name == "" {
		return nil, fmt.Errorf("recipe must have a name")
	}

	hashType, hashValue, err := convertChecksum(raw.Source)
	if err != nil {
		return nil, err
	}

	return &entities.Recipe{
		Name:    string(raw.Package.Name),
		Version: string(raw.Package.Version),
		Source: entities.RecipeSource{
			Filename:     raw.Source.Fn,
			URL:          raw.Source.URL,
			HashType:     hashType,
			HashValue:    hashValue,
			SignatureURL: raw.Source.SignatureURL,
			GPGKeysURL:   raw.Source.GPGKeysURL,
		},
		Build: entities.RecipeBuild{
			Number:         raw.Build.Number,
			Script:         strings.TrimSpace(string(raw.Build.Script)),
			TimeoutMinutes: raw.Build.TimeoutMinutes,
		},
		Requirements: entities.RecipeRequirements{
			Build: dedupe(raw.Requirements.Build),
			Host:  dedupe(raw.Requirements.Host),
			Run:   dedupe(raw.Requirements.Run),
		},
		Test: entities.RecipeTest{
			Imports:  dedupe(raw.Test.Imports),
			Commands: raw.Test.Commands,
		},
		About:     raw.About,
		Variables: rendered.Variables,
	}, nil
}

// convertChecksum picks the single declared digest out of the source section
func convertChecksum(src yamlSource) (string, string, error) {
	declared := [][2]string{
		{"md5", src.MD5},
		{"sha1", src.SHA1},
		{"sha256", src.SHA256},
		{"sha512", src.SHA512},
	}

	var hashType, hashValue string
	for _, d := range declared {
		if d[1] == "" {
			continue
		}
		if hashType != "" {
			return "", "", fmt.Errorf("source declares both %s and %s; keep one checksum", hashType, d[0])
		}
		hashType, hashValue = d[0], strings.TrimSpace(d[1])
	}
	return hashType, hashValue, nil
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
