// Package config loads and validates metasearch settings.
//
// Settings are layered in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. User settings ($XDG_CONFIG_HOME/metasearch/settings.yaml)
//  3. An explicit settings file (--config)
//  4. Environment variables (METASEARCH_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	merrors "github.com/searxng/searxng-sub003/internal/errors"
)

const (
	// SettingsFileName is the name of the settings file inside the config directory.
	SettingsFileName = "settings.yaml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "METASEARCH_"
)

// Config is the root settings document.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Outgoing  OutgoingConfig  `yaml:"outgoing" json:"outgoing"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Engines   []EngineConfig  `yaml:"engines" json:"engines"`
}

// ServerConfig configures the serving surfaces.
type ServerConfig struct {
	Bind string `yaml:"bind" json:"bind"`
	Port int    `yaml:"port" json:"port"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Transport selects the serve surface: http or stdio (MCP).
	Transport string `yaml:"transport" json:"transport"`
}

// Addr returns the listen address for the HTTP API.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}

// SearchConfig controls aggregation.
type SearchConfig struct {
	DefaultLanguage string        `yaml:"default_language" json:"default_language"`
	SafeSearch      int           `yaml:"safe_search" json:"safe_search"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	RankConstant    int           `yaml:"rank_constant" json:"rank_constant"`

	// CategoriesOrder lists categories emitted first, in this order.
	CategoriesOrder []string `yaml:"categories_order" json:"categories_order"`

	// DefaultCategories apply when a query selects neither engines nor categories.
	DefaultCategories []string `yaml:"default_categories" json:"default_categories"`

	SuspendAfterFailures int           `yaml:"suspend_after_failures" json:"suspend_after_failures"`
	SuspendFor           time.Duration `yaml:"suspend_for" json:"suspend_for"`
}

// OutgoingConfig controls requests sent to network engines.
type OutgoingConfig struct {
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	MaxRequestTimeout time.Duration `yaml:"max_request_timeout" json:"max_request_timeout"`
	Retries           int           `yaml:"retries" json:"retries"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
}

// TelemetryConfig controls the local usage store.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// EngineConfig declares one engine instance.
type EngineConfig struct {
	Name string `yaml:"name" json:"name"`

	// Engine is the adapter type, e.g. duckduckgo, json, html, sqlite, bleve.
	Engine string `yaml:"engine" json:"engine"`

	Shortcut   string            `yaml:"shortcut,omitempty" json:"shortcut,omitempty"`
	Categories []string          `yaml:"categories,omitempty" json:"categories,omitempty"`
	Weight     float64           `yaml:"weight,omitempty" json:"weight,omitempty"`
	Timeout    time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Disabled   bool              `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Paging     bool              `yaml:"paging,omitempty" json:"paging,omitempty"`
	Options    map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// Option returns an adapter option or fallback when unset.
func (e EngineConfig) Option(key, fallback string) string {
	if v, ok := e.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// DefaultCategoriesOrder is the category emission order used when none is configured.
var DefaultCategoriesOrder = []string{
	"general", "images", "videos", "news", "map", "it",
	"packages", "files", "science", "other",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Bind:      "127.0.0.1",
			Port:      8888,
			LogLevel:  "info",
			Transport: "http",
		},
		Search: SearchConfig{
			DefaultLanguage:      "all",
			SafeSearch:           0,
			Timeout:              4 * time.Second,
			RankConstant:         60,
			CategoriesOrder:      append([]string(nil), DefaultCategoriesOrder...),
			DefaultCategories:    []string{"general"},
			SuspendAfterFailures: 3,
			SuspendFor:           time.Minute,
		},
		Outgoing: OutgoingConfig{
			RequestTimeout:    3 * time.Second,
			MaxRequestTimeout: 10 * time.Second,
			Retries:           0,
			UserAgent:         "metasearch/1.0 (+https://github.com/searxng/searxng-sub003)",
			MaxBodyBytes:      5 << 20,
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			Path:    defaultTelemetryPath(),
		},
	}
}

// defaultTelemetryPath returns the default telemetry database path.
func defaultTelemetryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".metasearch", "telemetry.db")
	}
	return filepath.Join(home, ".metasearch", "telemetry.db")
}

// GetUserConfigPath returns the path to the user settings file.
// It follows the XDG Base Directory layout:
//   - $XDG_CONFIG_HOME/metasearch/settings.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/metasearch/settings.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "metasearch", SettingsFileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "metasearch", SettingsFileName)
	}
	return filepath.Join(home, ".config", "metasearch", SettingsFileName)
}

// GetUserConfigDir returns the directory containing the user settings.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user settings file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// LoadUserConfig loads the user settings file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	return ReadFile(configPath)
}

// Load builds the effective configuration. path names an explicit settings
// file and may be empty; a non-empty path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	// Step 1: user settings (if present)
	userCfg, err := LoadUserConfig()
	if err != nil {
		return nil, err
	}
	if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	// Step 2: explicit settings file
	if path != "" {
		if !fileExists(path) {
			return nil, merrors.New(merrors.ErrCodeConfigNotFound,
				fmt.Sprintf("settings file not found: %s", path), nil).
				WithSuggestion("Run 'metasearch config init' to create one")
		}
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	// Step 3: environment (highest precedence)
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, merrors.ConfigError(fmt.Sprintf("invalid configuration: %s", err), err)
	}
	return cfg, nil
}

// LoadFile reads a single settings file over the defaults without consulting
// user settings or the environment.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, merrors.ConfigError(fmt.Sprintf("invalid configuration: %s", err), err)
	}
	return cfg, nil
}

// ReadFile parses one settings file as written, without defaults,
// environment overrides or validation.
func ReadFile(path string) (*Config, error) {
	var parsed Config
	if err := parsed.readYAML(path); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// WriteTemplate writes a settings template to path, creating its directory.
func WriteTemplate(path, template string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(template), 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	var parsed Config
	if err := parsed.readYAML(path); err != nil {
		return err
	}
	c.mergeWith(&parsed)
	return nil
}

func (c *Config) readYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return merrors.ConfigError(fmt.Sprintf("failed to read settings file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return merrors.ConfigError(fmt.Sprintf("failed to parse settings file %s", path), err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Server
	if other.Server.Bind != "" {
		c.Server.Bind = other.Server.Bind
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}

	// Search
	if other.Search.DefaultLanguage != "" {
		c.Search.DefaultLanguage = other.Search.DefaultLanguage
	}
	if other.Search.SafeSearch != 0 {
		c.Search.SafeSearch = other.Search.SafeSearch
	}
	if other.Search.Timeout != 0 {
		c.Search.Timeout = other.Search.Timeout
	}
	if other.Search.RankConstant != 0 {
		c.Search.RankConstant = other.Search.RankConstant
	}
	if len(other.Search.CategoriesOrder) > 0 {
		c.Search.CategoriesOrder = other.Search.CategoriesOrder
	}
	if len(other.Search.DefaultCategories) > 0 {
		c.Search.DefaultCategories = other.Search.DefaultCategories
	}
	if other.Search.SuspendAfterFailures != 0 {
		c.Search.SuspendAfterFailures = other.Search.SuspendAfterFailures
	}
	if other.Search.SuspendFor != 0 {
		c.Search.SuspendFor = other.Search.SuspendFor
	}

	// Outgoing
	if other.Outgoing.RequestTimeout != 0 {
		c.Outgoing.RequestTimeout = other.Outgoing.RequestTimeout
	}
	if other.Outgoing.MaxRequestTimeout != 0 {
		c.Outgoing.MaxRequestTimeout = other.Outgoing.MaxRequestTimeout
	}
	if other.Outgoing.Retries != 0 {
		c.Outgoing.Retries = other.Outgoing.Retries
	}
	if other.Outgoing.UserAgent != "" {
		c.Outgoing.UserAgent = other.Outgoing.UserAgent
	}
	if other.Outgoing.MaxBodyBytes != 0 {
		c.Outgoing.MaxBodyBytes = other.Outgoing.MaxBodyBytes
	}

	// Telemetry: Enabled can be set to false, so it follows Path
	if other.Telemetry.Path != "" {
		c.Telemetry.Path = other.Telemetry.Path
		c.Telemetry.Enabled = other.Telemetry.Enabled
	}

	// Engines replace the list wholesale.
	if len(other.Engines) > 0 {
		c.Engines = append([]EngineConfig(nil), other.Engines...)
	}
}

// applyEnvOverrides applies METASEARCH_* environment variable overrides.
// Malformed values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "BIND"); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv(EnvPrefix + "PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
	if v := os.Getenv(EnvPrefix + "TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv(EnvPrefix + "SEARCH_TIMEOUT"); v != "" {
		if d, err := ParseDuration(v); err == nil && d > 0 {
			c.Search.Timeout = d
		}
	}
	if v := os.Getenv(EnvPrefix + "REQUEST_TIMEOUT"); v != "" {
		if d, err := ParseDuration(v); err == nil && d > 0 {
			c.Outgoing.RequestTimeout = d
		}
	}
	if v := os.Getenv(EnvPrefix + "RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Outgoing.Retries = n
		}
	}
	if v := os.Getenv(EnvPrefix + "TELEMETRY"); v != "" {
		c.Telemetry.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
}

// ParseDuration accepts Go durations ("1.5s") and bare seconds ("1.5").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	validTransports := map[string]bool{"http": true, "stdio": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'http' or 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Search.Timeout <= 0 {
		return fmt.Errorf("search.timeout must be positive, got %s", c.Search.Timeout)
	}
	if c.Search.SafeSearch < 0 || c.Search.SafeSearch > 2 {
		return fmt.Errorf("search.safe_search must be 0, 1 or 2, got %d", c.Search.SafeSearch)
	}
	if c.Search.RankConstant <= 0 {
		return fmt.Errorf("search.rank_constant must be positive, got %d", c.Search.RankConstant)
	}
	if c.Search.SuspendAfterFailures < 0 {
		return fmt.Errorf("search.suspend_after_failures must be non-negative, got %d", c.Search.SuspendAfterFailures)
	}
	if c.Search.SuspendFor < 0 {
		return fmt.Errorf("search.suspend_for must be non-negative, got %s", c.Search.SuspendFor)
	}

	if c.Outgoing.RequestTimeout <= 0 {
		return fmt.Errorf("outgoing.request_timeout must be positive, got %s", c.Outgoing.RequestTimeout)
	}
	if c.Outgoing.MaxRequestTimeout < c.Search.Timeout {
		return fmt.Errorf("outgoing.max_request_timeout (%s) must not be below search.timeout (%s)",
			c.Outgoing.MaxRequestTimeout, c.Search.Timeout)
	}
	if c.Outgoing.Retries < 0 {
		return fmt.Errorf("outgoing.retries must be non-negative, got %d", c.Outgoing.Retries)
	}
	if c.Outgoing.MaxBodyBytes < 0 {
		return fmt.Errorf("outgoing.max_body_bytes must be non-negative, got %d", c.Outgoing.MaxBodyBytes)
	}

	return c.validateEngines()
}

func (c *Config) validateEngines() error {
	names := make(map[string]bool, len(c.Engines))
	shortcuts := make(map[string]string, len(c.Engines))
	for i, e := range c.Engines {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("engines[%d]: name is required", i)
		}
		key := strings.ToLower(e.Name)
		if names[key] {
			return fmt.Errorf("engines[%d]: duplicate engine name %q", i, e.Name)
		}
		names[key] = true

		if e.Engine == "" {
			return fmt.Errorf("engine %q: engine type is required", e.Name)
		}
		if e.Weight < 0 {
			return fmt.Errorf("engine %q: weight must be positive, got %g", e.Name, e.Weight)
		}
		if e.Timeout < 0 {
			return fmt.Errorf("engine %q: timeout must be non-negative, got %s", e.Name, e.Timeout)
		}
		if e.Shortcut != "" {
			sc := strings.ToLower(e.Shortcut)
			if owner, dup := shortcuts[sc]; dup {
				return fmt.Errorf("engine %q: shortcut %q already used by %q", e.Name, e.Shortcut, owner)
			}
			shortcuts[sc] = e.Name
		}
	}
	return nil
}

// EnabledEngines returns the engine entries that are not disabled.
func (c *Config) EnabledEngines() []EngineConfig {
	var out []EngineConfig
	for _, e := range c.Engines {
		if !e.Disabled {
			out = append(out, e)
		}
	}
	return out
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// MergeNewDefaults fills settings that older files leave unset while
// preserving existing values. It returns the dotted names of the fields it added.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	if c.Version == 0 {
		c.Version = defaults.Version
		added = append(added, "version")
	}
	if c.Search.Timeout == 0 {
		c.Search.Timeout = defaults.Search.Timeout
		added = append(added, "search.timeout")
	}
	if c.Search.RankConstant == 0 {
		c.Search.RankConstant = defaults.Search.RankConstant
		added = append(added, "search.rank_constant")
	}
	if len(c.Search.CategoriesOrder) == 0 {
		c.Search.CategoriesOrder = defaults.Search.CategoriesOrder
		added = append(added, "search.categories_order")
	}
	if len(c.Search.DefaultCategories) == 0 {
		c.Search.DefaultCategories = defaults.Search.DefaultCategories
		added = append(added, "search.default_categories")
	}
	if c.Search.SuspendAfterFailures == 0 {
		c.Search.SuspendAfterFailures = defaults.Search.SuspendAfterFailures
		added = append(added, "search.suspend_after_failures")
	}
	if c.Search.SuspendFor == 0 {
		c.Search.SuspendFor = defaults.Search.SuspendFor
		added = append(added, "search.suspend_for")
	}
	if c.Outgoing.RequestTimeout == 0 {
		c.Outgoing.RequestTimeout = defaults.Outgoing.RequestTimeout
		added = append(added, "outgoing.request_timeout")
	}
	if c.Outgoing.MaxRequestTimeout == 0 {
		c.Outgoing.MaxRequestTimeout = defaults.Outgoing.MaxRequestTimeout
		added = append(added, "outgoing.max_request_timeout")
	}
	if c.Outgoing.MaxBodyBytes == 0 {
		c.Outgoing.MaxBodyBytes = defaults.Outgoing.MaxBodyBytes
		added = append(added, "outgoing.max_body_bytes")
	}
	// telemetry.enabled is boolean, "unset" and false look the same
	if c.Telemetry.Path == "" {
		c.Telemetry.Path = defaults.Telemetry.Path
		added = append(added, "telemetry.path")
	}

	return added
}
