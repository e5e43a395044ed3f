// Package config loads feedstock settings from defaults, an optional config
// file and FEEDSTOCK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "feedstock"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "feedstock"
	// EnvPrefix prefixes environment variable overrides.
	EnvPrefix = "FEEDSTOCK"
)

// Config holds all tool settings
type Config struct {
	RecipesDir     string        `mapstructure:"recipes_dir"`
	WorkDir        string        `mapstructure:"work_dir"`
	CacheDir       string        `mapstructure:"cache_dir"`
	OutputDir      string        `mapstructure:"output_dir"`
	Python         string        `mapstructure:"python"`
	LogLevel       string        `mapstructure:"log_level"`
	BuildTimeout   time.Duration `mapstructure:"build_timeout"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	SkipValidation bool          `mapstructure:"skip_validation"`
	PyPIURL        string        `mapstructure:"pypi_url"`
}

// DefaultConfig returns the built-in settings
func DefaultConfig() *Config {
	return &Config{
		RecipesDir:   "recipes",
		WorkDir:      ".feedstock/work",
		CacheDir:     ".feedstock/cache",
		OutputDir:    "dist",
		Python:       "python",
		LogLevel:     "info",
		BuildTimeout: 30 * time.Minute,
		HTTPTimeout:  5 * time.Minute,
		PyPIURL:      "https://pypi.org",
	}
}

// LoadOptions selects where configuration is read from
type LoadOptions struct {
	// ConfigFilePath, when set, must exist and is used exclusively.
	ConfigFilePath string
	// SearchDirs are searched for feedstock.yaml when no explicit path is given.
	SearchDirs []string
}

// Load resolves configuration. It returns the settings and the config file
// that was used, if any.
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("recipes_dir", defaults.RecipesDir)
	v.SetDefault("work_dir", defaults.WorkDir)
	v.SetDefault("cache_dir", defaults.CacheDir)
	v.SetDefault("output_dir", defaults.OutputDir)
	v.SetDefault("python", defaults.Python)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("build_timeout", defaults.BuildTimeout)
	v.SetDefault("http_timeout", defaults.HTTPTimeout)
	v.SetDefault("skip_validation", defaults.SkipValidation)
	v.SetDefault("pypi_url", defaults.PyPIURL)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFilePath != "" {
		if _, err := os.Stat(opts.ConfigFilePath); err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", opts.ConfigFilePath)
		}
		v.SetConfigFile(opts.ConfigFilePath)
	} else {
		v.SetConfigName(ConfigFileName)
		v.SetConfigType("yaml")
		dirs := opts.SearchDirs
		if len(dirs) == 0 {
			dirs = []string{"."}
		}
		for _, dir := range dirs {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, "", fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return cfg, v.ConfigFileUsed(), nil
}

// Validate rejects settings the build cannot run with
func (c *Config) Validate() error {
	switch {
	case c.RecipesDir == "":
		return fmt.Errorf("recipes_dir must not be empty")
	case c.Python == "":
		return fmt.Errorf("python must not be empty")
	case c.BuildTimeout <= 0:
		return fmt.Errorf("build_timeout must be positive, got %s", c.BuildTimeout)
	case c.HTTPTimeout <= 0:
		return fmt.Errorf("http_timeout must be positive, got %s", c.HTTPTimeout)
	}
	return nil
}
