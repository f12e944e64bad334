// Package config loads the tokenash configuration: a YAML file layered
// with environment overrides. A missing file is fine; defaults cover a
// single-provider local setup.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/bond/tokenash/internal/logger"
)

// ProviderConfig enables one provider and carries its credential.
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
}

// ChartConfig controls the published chart.
type ChartConfig struct {
	Title  string `yaml:"title"`
	Days   int    `yaml:"days"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// GithubConfig locates the README section the publisher manages.
type GithubConfig struct {
	ReadmePath   string `yaml:"readme_path"`
	SectionStart string `yaml:"section_start"`
	SectionEnd   string `yaml:"section_end"`
}

// Config is the full runtime configuration.
type Config struct {
	StorePath    string                    `yaml:"store_path"`
	FetchDays    int                       `yaml:"fetch_days"`
	FetchTimeout time.Duration             `yaml:"fetch_timeout"`
	Timezone     string                    `yaml:"timezone"`
	LogLevel     string                    `yaml:"log_level"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
	Chart        ChartConfig               `yaml:"chart"`
	Github       GithubConfig              `yaml:"github"`
}

// envOverrides are applied after the file so secrets can stay out of it.
type envOverrides struct {
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	StorePath       string `envconfig:"TOKENASH_STORE_PATH"`
	LogLevel        string `envconfig:"TOKENASH_LOG_LEVEL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StorePath:    "data/usage.json",
		FetchDays:    7,
		FetchTimeout: 60 * time.Second,
		Timezone:     "UTC",
		LogLevel:     "info",
		Providers:    map[string]ProviderConfig{},
		Chart: ChartConfig{
			Title:  "Token Consumption",
			Days:   7,
			Width:  800,
			Height: 400,
		},
		Github: GithubConfig{
			ReadmePath:   "README.md",
			SectionStart: "<!-- TOKENASH:START -->",
			SectionEnd:   "<!-- TOKENASH:END -->",
		},
	}
}

// Load reads the config file at path, layers a .env file (if present) and
// process environment on top, and fills defaults. A missing config file is
// not an error; a malformed one is.
func Load(path string) (*Config, error) {
	// Best effort; the process environment wins over .env entries.
	if err := godotenv.Load(); err == nil {
		logger.Debugw("loaded .env file")
	}

	cfg := Default()
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		logger.Debugw("config file missing, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	cfg.applyEnv(env)
	cfg.fillDefaults()

	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(env envOverrides) {
	if env.StorePath != "" {
		c.StorePath = env.StorePath
	}
	if env.LogLevel != "" {
		c.LogLevel = env.LogLevel
	}
	if env.OpenAIAPIKey != "" {
		p := c.Providers["openai"]
		p.Enabled = true
		p.APIKey = env.OpenAIAPIKey
		c.Providers["openai"] = p
	}
	if env.AnthropicAPIKey != "" {
		p := c.Providers["anthropic"]
		p.Enabled = true
		p.APIKey = env.AnthropicAPIKey
		c.Providers["anthropic"] = p
	}
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.StorePath == "" {
		c.StorePath = def.StorePath
	}
	if c.FetchDays <= 0 {
		c.FetchDays = def.FetchDays
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = def.FetchTimeout
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	if c.Chart.Title == "" {
		c.Chart.Title = def.Chart.Title
	}
	if c.Chart.Days <= 0 {
		c.Chart.Days = def.Chart.Days
	}
	if c.Chart.Width <= 0 {
		c.Chart.Width = def.Chart.Width
	}
	if c.Chart.Height <= 0 {
		c.Chart.Height = def.Chart.Height
	}
	if c.Github.ReadmePath == "" {
		c.Github.ReadmePath = def.Github.ReadmePath
	}
	if c.Github.SectionStart == "" {
		c.Github.SectionStart = def.Github.SectionStart
	}
	if c.Github.SectionEnd == "" {
		c.Github.SectionEnd = def.Github.SectionEnd
	}
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// EnabledProviders returns the names of enabled providers with a key set,
// in a fixed order.
func (c *Config) EnabledProviders() []string {
	var names []string
	for _, name := range []string{"anthropic", "openai"} {
		p, ok := c.Providers[name]
		if ok && p.Enabled && p.APIKey != "" {
			names = append(names, name)
		}
	}
	return names
}
