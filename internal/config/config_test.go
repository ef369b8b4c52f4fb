package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roomdex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	assert.Equal(t, SearchBackendBleve, cfg.Search.Backend)
	assert.Equal(t, 20, cfg.Search.PageSize)
	assert.Equal(t, StateBackendBolt, cfg.State.Backend)
	assert.Equal(t, "127.0.0.1:3000", cfg.Server.Addr)
	assert.Equal(t, "roomdex", cfg.Matrix.DeviceName)
	assert.Equal(t, 1024, cfg.Ingest.MemberCacheSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NotNil(t, cfg.Matrix.Indices)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ParsesYAMLAndResolvesRelativePaths(t *testing.T) {
	// Given: a config file with indices and a relative state location
	path := writeConfig(t, `
matrix:
  homeserver_url: https://matrix.example.org
  username: indexer
  indices:
    general: "!abc:example.org"
    offtopic: "#offtopic:example.org"
search:
  backend: meilisearch
  url: http://search:7700
  page_size: 50
state:
  backend: sqlite
  location: state
`)

	// When: loading it
	cfg, err := Load(path)
	require.NoError(t, err)

	// Then: values are read and paths sit next to the config file
	dir := filepath.Dir(path)
	assert.Equal(t, "https://matrix.example.org", cfg.Matrix.HomeserverURL)
	assert.Equal(t, "!abc:example.org", cfg.Matrix.Indices["general"])
	assert.Equal(t, "#offtopic:example.org", cfg.Matrix.Indices["offtopic"])
	assert.Equal(t, SearchBackendMeilisearch, cfg.Search.Backend)
	assert.Equal(t, 50, cfg.Search.PageSize)
	assert.Equal(t, filepath.Join(dir, "state"), cfg.State.Location)
	assert.Equal(t, filepath.Join(dir, "session.json"), cfg.Matrix.SessionPath)
	assert.Equal(t, path, cfg.Path())
	// untouched sections keep defaults
	assert.Equal(t, "127.0.0.1:3000", cfg.Server.Addr)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	path := writeConfig(t, "matrix: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	// Given: a file and ROOMDEX_* variables
	path := writeConfig(t, "server:\n  addr: 0.0.0.0:9000\n")
	t.Setenv("ROOMDEX_ADDR", "127.0.0.1:4000")
	t.Setenv("ROOMDEX_PASSWORD", "hunter2")
	t.Setenv("ROOMDEX_PAGE_SIZE", "5")

	// When: loading
	cfg, err := Load(path)
	require.NoError(t, err)

	// Then: the environment takes precedence
	assert.Equal(t, "127.0.0.1:4000", cfg.Server.Addr)
	assert.Equal(t, "hunter2", cfg.Matrix.Password)
	assert.Equal(t, 5, cfg.Search.PageSize)
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	// Given: a .env beside the config file
	path := writeConfig(t, "version: 1\n")
	envPath := filepath.Join(filepath.Dir(path), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("ROOMDEX_USERNAME=from-dotenv\n"), 0o600))
	t.Setenv("ROOMDEX_USERNAME", "")
	require.NoError(t, os.Unsetenv("ROOMDEX_USERNAME"))
	t.Cleanup(func() { _ = os.Unsetenv("ROOMDEX_USERNAME") })

	// When: loading
	cfg, err := Load(path)
	require.NoError(t, err)

	// Then: the .env value is applied
	assert.Equal(t, "from-dotenv", cfg.Matrix.Username)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown search backend", func(c *Config) { c.Search.Backend = "solr" }, "search.backend"},
		{"meilisearch without url", func(c *Config) { c.Search.Backend = "meilisearch"; c.Search.URL = "" }, "search.url"},
		{"unknown state backend", func(c *Config) { c.State.Backend = "redis" }, "state.backend"},
		{"zero page size", func(c *Config) { c.Search.PageSize = 0 }, "page_size"},
		{"bad duration", func(c *Config) { c.Ingest.DrainTimeout = "soon" }, "ingest.drain_timeout"},
		{"bad room ref", func(c *Config) { c.Matrix.Indices["general"] = "general" }, "matrix.indices[general]"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateLogin(t *testing.T) {
	cfg := NewConfig()
	err := cfg.ValidateLogin()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matrix.homeserver_url")
	assert.Contains(t, err.Error(), "matrix.username")

	cfg.Matrix.HomeserverURL = "https://matrix.example.org"
	cfg.Matrix.Username = "indexer"
	assert.NoError(t, cfg.ValidateLogin())
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 3*time.Second, Duration("3s", time.Second))
	assert.Equal(t, time.Second, Duration("", time.Second))
	assert.Equal(t, time.Second, Duration("nonsense", time.Second))
}
