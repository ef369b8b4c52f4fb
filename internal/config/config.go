// Package config loads roomdex configuration from YAML, an optional .env file
// and ROOMDEX_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config path used when --config is not given.
const DefaultConfigFile = "roomdex.yaml"

// Search engine backends.
const (
	SearchBackendBleve       = "bleve"
	SearchBackendMeilisearch = "meilisearch"
)

// Mapping store backends.
const (
	StateBackendBolt   = "bolt"
	StateBackendSQLite = "sqlite"
)

// Config represents the complete roomdex configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Matrix  MatrixConfig  `yaml:"matrix" json:"matrix"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	State   StateConfig   `yaml:"state" json:"state"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Ingest  IngestConfig  `yaml:"ingest" json:"ingest"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// path is the file this config was loaded from, if any.
	path string
}

// MatrixConfig configures the homeserver account the bot syncs as.
type MatrixConfig struct {
	HomeserverURL string `yaml:"homeserver_url" json:"homeserver_url"`
	Username      string `yaml:"username" json:"username"`
	Password      string `yaml:"password" json:"-"`
	DeviceName    string `yaml:"device_name" json:"device_name"`
	SessionPath   string `yaml:"session_path" json:"session_path"`

	// Indices maps an index name to the room it indexes.
	// Rooms may be given as an id (!abc:server) or an alias (#room:server).
	Indices map[string]string `yaml:"indices" json:"indices"`
}

// SearchConfig configures the search engine.
type SearchConfig struct {
	// Backend is "bleve" (embedded, default) or "meilisearch".
	Backend string `yaml:"backend" json:"backend"`
	URL     string `yaml:"url" json:"url"`
	Key     string `yaml:"key" json:"-"`
	// DataDir holds bleve indexes. Empty keeps them in memory.
	DataDir  string `yaml:"data_dir" json:"data_dir"`
	PageSize int    `yaml:"page_size" json:"page_size"`
	Timeout  string `yaml:"timeout" json:"timeout"`
}

// StateConfig configures the mapping store.
type StateConfig struct {
	// Backend is "bolt" (default, single process) or "sqlite".
	Backend  string `yaml:"backend" json:"backend"`
	Location string `yaml:"location" json:"location"`
}

// ServerConfig configures the HTTP query gateway.
type ServerConfig struct {
	Addr           string   `yaml:"addr" json:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	RequestTimeout string   `yaml:"request_timeout" json:"request_timeout"`
	ShutdownGrace  string   `yaml:"shutdown_grace" json:"shutdown_grace"`
}

// IngestConfig tunes the event pipeline.
type IngestConfig struct {
	QueueSize       int    `yaml:"queue_size" json:"queue_size"`
	MemberCacheSize int    `yaml:"member_cache_size" json:"member_cache_size"`
	DrainTimeout    string `yaml:"drain_timeout" json:"drain_timeout"`
	ConfigDebounce  string `yaml:"config_debounce" json:"config_debounce"`
}

// LoggingConfig configures the slog output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns a config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Matrix: MatrixConfig{
			DeviceName:  "roomdex",
			SessionPath: "session.json",
			Indices:     map[string]string{},
		},
		Search: SearchConfig{
			Backend:  SearchBackendBleve,
			URL:      "http://127.0.0.1:7700",
			DataDir:  "data/indexes",
			PageSize: 20,
			Timeout:  "10s",
		},
		State: StateConfig{
			Backend:  StateBackendBolt,
			Location: "data",
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:3000",
			AllowedOrigins: []string{"*"},
			RequestTimeout: "30s",
			ShutdownGrace:  "5s",
		},
		Ingest: IngestConfig{
			QueueSize:       256,
			MemberCacheSize: 1024,
			DrainTimeout:    "10s",
			ConfigDebounce:  "500ms",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// Load reads the config at path, applies .env and ROOMDEX_* overrides and
// validates the result. A missing file at the default path yields defaults;
// a missing explicit path is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	cfg := NewConfig()
	cfg.path = path

	if err := cfg.loadYAML(path); err != nil {
		if !os.IsNotExist(err) || path != DefaultConfigFile {
			return nil, err
		}
	}

	// .env never overrides variables already set in the environment
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Dir returns the directory relative paths are resolved against.
func (c *Config) Dir() string {
	if c.path == "" {
		return "."
	}
	return filepath.Dir(c.path)
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if c.Matrix.Indices == nil {
		c.Matrix.Indices = map[string]string{}
	}
	return nil
}

// resolvePaths makes relative state paths relative to the config file.
func (c *Config) resolvePaths() {
	dir := c.Dir()
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Matrix.SessionPath = abs(c.Matrix.SessionPath)
	c.Search.DataDir = abs(c.Search.DataDir)
	c.State.Location = abs(c.State.Location)
	c.Logging.File = abs(c.Logging.File)
}

// applyEnvOverrides applies ROOMDEX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	str := map[string]*string{
		"ROOMDEX_HOMESERVER_URL": &c.Matrix.HomeserverURL,
		"ROOMDEX_USERNAME":       &c.Matrix.Username,
		"ROOMDEX_PASSWORD":       &c.Matrix.Password,
		"ROOMDEX_SEARCH_BACKEND": &c.Search.Backend,
		"ROOMDEX_SEARCH_URL":     &c.Search.URL,
		"ROOMDEX_SEARCH_KEY":     &c.Search.Key,
		"ROOMDEX_STATE_BACKEND":  &c.State.Backend,
		"ROOMDEX_STATE_LOCATION": &c.State.Location,
		"ROOMDEX_ADDR":           &c.Server.Addr,
		"ROOMDEX_LOG_LEVEL":      &c.Logging.Level,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("ROOMDEX_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.PageSize = n
		}
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Search.Backend) {
	case SearchBackendBleve, SearchBackendMeilisearch:
	default:
		return fmt.Errorf("search.backend must be 'bleve' or 'meilisearch', got %q", c.Search.Backend)
	}
	if strings.EqualFold(c.Search.Backend, SearchBackendMeilisearch) && c.Search.URL == "" {
		return fmt.Errorf("search.url is required for the meilisearch backend")
	}

	switch strings.ToLower(c.State.Backend) {
	case StateBackendBolt, StateBackendSQLite:
	default:
		return fmt.Errorf("state.backend must be 'bolt' or 'sqlite', got %q", c.State.Backend)
	}

	if c.Search.PageSize <= 0 {
		return fmt.Errorf("search.page_size must be positive, got %d", c.Search.PageSize)
	}
	if c.Ingest.QueueSize < 0 {
		return fmt.Errorf("ingest.queue_size must be non-negative, got %d", c.Ingest.QueueSize)
	}
	if c.Ingest.MemberCacheSize <= 0 {
		return fmt.Errorf("ingest.member_cache_size must be positive, got %d", c.Ingest.MemberCacheSize)
	}

	durations := map[string]string{
		"search.timeout":         c.Search.Timeout,
		"server.request_timeout": c.Server.RequestTimeout,
		"server.shutdown_grace":  c.Server.ShutdownGrace,
		"ingest.drain_timeout":   c.Ingest.DrainTimeout,
		"ingest.config_debounce": c.Ingest.ConfigDebounce,
	}
	for name, v := range durations {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s must be a duration like \"10s\", got %q", name, v)
		}
	}

	for name, room := range c.Matrix.Indices {
		if name == "" {
			return fmt.Errorf("matrix.indices has an empty index name")
		}
		if !strings.HasPrefix(room, "!") && !strings.HasPrefix(room, "#") {
			return fmt.Errorf("matrix.indices[%s] must be a room id (!...) or alias (#...), got %q", name, room)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// ValidateLogin reports the fields needed before the bot can log in.
func (c *Config) ValidateLogin() error {
	var missing []string
	if c.Matrix.HomeserverURL == "" {
		missing = append(missing, "matrix.homeserver_url")
	}
	if c.Matrix.Username == "" {
		missing = append(missing, "matrix.username")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Duration parses one of the duration strings, falling back to def when it is
// empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
