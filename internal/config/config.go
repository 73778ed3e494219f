// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"sidetask/internal/utils"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// Storage contexts. "local" keeps the category list in a private data file;
// "shared" keeps it in an external JSON file written by multiple processes.
const (
	ContextLocal  = "local"
	ContextShared = "shared"
)

// JournalConfig holds completion journal settings
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config represents the application configuration. It is an explicit struct
// passed by reference to the components that need it, with explicit load and
// save lifecycle functions.
type Config struct {
	ActiveContext       string        `yaml:"active_context"`
	SharedFilePath      string        `yaml:"shared_file_path"`
	ConfirmTaskDeletion *bool         `yaml:"confirm_task_deletion"` // default true
	DateFormat          string        `yaml:"date_format"`
	FutureTasksCount    int           `yaml:"future_tasks_count"` // 1-15
	SyncDebounceMs      int           `yaml:"sync_debounce_ms"`
	DataPath            string        `yaml:"data_path"`
	Journal             JournalConfig `yaml:"journal"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ActiveContext:    ContextLocal,
		DateFormat:       string(utils.DateFormatISO),
		FutureTasksCount: 5,
		SyncDebounceMs:   100,
	}
}

// Load loads configuration from the specified path, or the default XDG path
// if empty. If the config file doesn't exist, it creates one with defaults.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := writeDefault(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}

	if cfg.SharedFilePath != "" {
		cfg.SharedFilePath = ExpandPath(cfg.SharedFilePath)
	}
	if cfg.DataPath != "" {
		cfg.DataPath = ExpandPath(cfg.DataPath)
	}

	return cfg, nil
}

// writeDefault writes the documented sample config on first run.
func writeDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Save persists the current configuration to the specified path, or the
// default XDG path if empty. Used when settings change at runtime, e.g.
// switching the active context or the shared file path.
func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.GetActiveContext() {
	case ContextLocal, ContextShared:
	default:
		return fmt.Errorf("invalid active_context: %q (must be 'local' or 'shared')", c.ActiveContext)
	}

	if c.GetActiveContext() == ContextShared && c.SharedFilePath == "" {
		return fmt.Errorf("active_context is 'shared' but shared_file_path is not set")
	}

	if !utils.ValidDateFormat(utils.DateFormat(c.DateFormat)) {
		return fmt.Errorf("invalid date_format: %q (must be 'yyyy-mm-dd', 'dd-mm-yyyy' or 'auto')", c.DateFormat)
	}

	if c.FutureTasksCount != 0 && (c.FutureTasksCount < 1 || c.FutureTasksCount > 15) {
		return fmt.Errorf("future_tasks_count must be between 1 and 15, got %d", c.FutureTasksCount)
	}

	if c.SyncDebounceMs < 0 {
		return fmt.Errorf("sync_debounce_ms must not be negative, got %d", c.SyncDebounceMs)
	}

	return nil
}

// GetActiveContext returns the active storage context, defaulting to local.
func (c *Config) GetActiveContext() string {
	if c.ActiveContext == "" {
		return ContextLocal
	}
	return c.ActiveContext
}

// IsShared returns true when the shared storage context is active.
func (c *Config) IsShared() bool {
	return c.GetActiveContext() == ContextShared
}

// GetConfirmTaskDeletion returns whether deletes need confirmation.
// Defaults to true when not configured.
func (c *Config) GetConfirmTaskDeletion() bool {
	if c.ConfirmTaskDeletion == nil {
		return true
	}
	return *c.ConfirmTaskDeletion
}

// GetDateFormat returns the display date format, defaulting to YYYY-MM-DD.
func (c *Config) GetDateFormat() utils.DateFormat {
	if c.DateFormat == "" {
		return utils.DateFormatISO
	}
	return utils.DateFormat(strings.ToLower(c.DateFormat))
}

// GetFutureTasksCount returns the occurrence preview length (1-15).
// Returns 5 if not configured.
func (c *Config) GetFutureTasksCount() int {
	if c.FutureTasksCount < 1 || c.FutureTasksCount > 15 {
		return 5
	}
	return c.FutureTasksCount
}

// GetSyncDebounceMs returns the watcher debounce window in milliseconds.
// Returns 100 if not configured.
func (c *Config) GetSyncDebounceMs() int {
	if c.SyncDebounceMs <= 0 {
		return 100
	}
	return c.SyncDebounceMs
}

// GetDataPath returns the local category data file path.
func (c *Config) GetDataPath() string {
	if c.DataPath == "" {
		return filepath.Join(GetDataDir(), "categories.json")
	}
	return c.DataPath
}

// GetJournalPath returns the completion journal database path.
func (c *Config) GetJournalPath() string {
	if c.Journal.Path == "" {
		return filepath.Join(GetDataDir(), "journal.db")
	}
	return ExpandPath(c.Journal.Path)
}

// IsJournalEnabled returns true if the completion journal is enabled.
func (c *Config) IsJournalEnabled() bool {
	return c.Journal.Enabled
}

// getXDGDir returns a directory path following XDG spec.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "sidetask")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "sidetask")
	}
	return filepath.Join(home, fallbackPath, "sidetask")
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
