package inlay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the .inlay.yaml configuration file.
type Config struct {
	// Log level for the language server (debug, info, warn, error)
	LogLevel string `yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`

	Resolve ResolveConfig `yaml:"resolve,omitempty"`
	Collect CollectConfig `yaml:"collect,omitempty"`

	// Built-in expression value hints
	Expr ExprConfig `yaml:"expr,omitempty"`

	// External language servers whose hints are merged in
	Upstream []UpstreamConfig `yaml:"upstream,omitempty" validate:"unique=Name,dive"`

	// Per-language word and token rules, keyed by language id
	Languages map[string]LanguageConfig `yaml:"languages,omitempty" validate:"dive"`
}

// ResolveConfig bounds hint resolution.
type ResolveConfig struct {
	// Maximum number of wait-and-retry rounds a single resolve performs
	MaxRounds int `yaml:"max_rounds,omitempty" validate:"omitempty,min=1,max=64"`
}

// CollectConfig bounds hint collection.
type CollectConfig struct {
	// Upper bound for one collection across all providers (e.g. "2s")
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ExprConfig configures the expression value provider.
type ExprConfig struct {
	Enabled   *bool `yaml:"enabled,omitempty"`
	ShowTypes bool  `yaml:"show_types,omitempty"`
	MaxLength int   `yaml:"max_length,omitempty" validate:"omitempty,min=4"`
}

// UpstreamConfig describes an external language server.
type UpstreamConfig struct {
	Name      string   `yaml:"name"      validate:"required"`
	Command   string   `yaml:"command"   validate:"required"`
	Args      []string `yaml:"args,omitempty"`
	Languages []string `yaml:"languages" validate:"required,min=1,unique"`
}

// LanguageConfig overrides word and token rules for one language.
type LanguageConfig struct {
	// Regular expression matching a single word
	WordPattern string `yaml:"word_pattern,omitempty"`

	// Lines longer than this are not tokenized on demand
	CheapLineLength int `yaml:"cheap_line_length,omitempty" validate:"omitempty,min=1"`

	// Token rules, tried in order. Empty means the built-in tokenizer.
	Tokens []TokenRule `yaml:"tokens,omitempty" validate:"dive"`
}

// TokenRule is a named regular expression.
type TokenRule struct {
	Name    string `yaml:"name"    validate:"required"`
	Pattern string `yaml:"pattern" validate:"required"`
}

// ExprEnabled reports whether expression hints are on. They default to on.
func (c *Config) ExprEnabled() bool {
	return c.Expr.Enabled == nil || *c.Expr.Enabled
}

// MaxResolveRounds returns the configured bound, or fallback when unset.
func (c *Config) MaxResolveRounds(fallback int) int {
	if c.Resolve.MaxRounds > 0 {
		return c.Resolve.MaxRounds
	}

	return fallback
}

// UpstreamFor returns the upstream servers that handle language.
func (c *Config) UpstreamFor(language string) []UpstreamConfig {
	var out []UpstreamConfig

	for _, u := range c.Upstream {
		for _, l := range u.Languages {
			if l == language || l == AnyLanguage {
				out = append(out, u)

				break
			}
		}
	}

	return out
}

// DefaultConfigNames are the filenames we search for.
var DefaultConfigNames = []string{".inlay.yaml", ".inlay.yml", "inlay.yaml", "inlay.yml"}

// LoadConfigOrDefault finds and loads the nearest .inlay.yaml walking up
// from dir. Without one it returns an empty config and an empty path.
func LoadConfigOrDefault(dir string) (*Config, string, error) {
	path, err := FindConfig(dir)
	if errors.Is(err, ErrConfigNotFound) {
		return &Config{}, "", nil
	}

	if err != nil {
		return nil, "", err
	}

	cfg, err := LoadConfigFile(path)

	return cfg, path, err
}

// FindConfig searches for a config file starting from dir and walking up.
func FindConfig(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for dir := absDir; ; {
		for _, name := range DefaultConfigNames {
			path := filepath.Join(dir, name)

			_, err := os.Stat(path)
			if err == nil {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrConfigNotFound
		}

		dir = parent
	}
}

// LoadConfigFile loads a config from a specific path.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	return ParseConfig(data)
}

// ParseConfig decodes and validates YAML config data.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config

	err := yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, err
	}

	err = validator.New().Struct(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return &cfg, nil
}
