package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("TOKENASH_STORE_PATH", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "data/usage.json", cfg.StorePath)
	assert.Equal(t, 7, cfg.FetchDays)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, "README.md", cfg.Github.ReadmePath)
	assert.Empty(t, cfg.EnabledProviders())
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
store_path: /var/lib/tokenash/usage.json
fetch_days: 14
timezone: America/New_York
providers:
  openai:
    enabled: true
    api_key: sk-test
  anthropic:
    enabled: false
    api_key: sk-ant-test
chart:
  title: My Usage
  days: 30
github:
  readme_path: docs/README.md
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/tokenash/usage.json", cfg.StorePath)
	assert.Equal(t, 14, cfg.FetchDays)
	assert.Equal(t, "America/New_York", cfg.Timezone)
	assert.Equal(t, "My Usage", cfg.Chart.Title)
	assert.Equal(t, 30, cfg.Chart.Days)
	assert.Equal(t, "docs/README.md", cfg.Github.ReadmePath)
	// Unset values fall back to defaults.
	assert.Equal(t, 800, cfg.Chart.Width)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)

	// Disabled providers stay out even with a key set.
	assert.Equal(t, []string{"openai"}, cfg.EnabledProviders())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers: [not a map"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadInvalidTimezone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timezone: Mars/Olympus\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	t.Setenv("TOKENASH_STORE_PATH", "/tmp/override.json")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.json", cfg.StorePath)
	assert.Equal(t, []string{"anthropic", "openai"}, cfg.EnabledProviders())
	assert.Equal(t, "sk-env", cfg.Providers["openai"].APIKey)
	assert.Equal(t, "sk-ant-env", cfg.Providers["anthropic"].APIKey)
}

func TestEnvKeyOverridesFileKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env-wins")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
providers:
  openai:
    enabled: true
    api_key: sk-from-file
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-env-wins", cfg.Providers["openai"].APIKey)
}
