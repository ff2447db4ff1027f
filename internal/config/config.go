// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Chat settings
	Chat ChatConfig `yaml:"chat" mapstructure:"chat"`
}

// GlobalConfig contains global settings.
type GlobalConfig struct {
	// DataDir is where message data is stored (default: ~/.local/share/reactchat).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/reactchat).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeoutMs is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// ChatConfig contains conversation view settings.
type ChatConfig struct {
	// InitialPageSize is how many messages the newest page fetches.
	InitialPageSize int `yaml:"initial_page_size" mapstructure:"initial_page_size"`

	// OlderPageSize is how many messages each older page fetches.
	OlderPageSize int `yaml:"older_page_size" mapstructure:"older_page_size"`

	// PollInterval is the live update poll cadence.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// SubscribeBuffer is the live feed channel capacity.
	SubscribeBuffer int `yaml:"subscribe_buffer" mapstructure:"subscribe_buffer"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "reactchat"),
			ConfigDir: filepath.Join(homeDir, ".config", "reactchat"),
		},
		Database: DatabaseConfig{
			Path:           "", // Will be set to DataDir/reactchat.db
			MaxConnections: 10,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		Chat: ChatConfig{
			InitialPageSize: 20,
			OlderPageSize:   10,
			PollInterval:    250 * time.Millisecond,
			SubscribeBuffer: 16,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database.max_connections must be at least 1")
	}
	if c.Chat.InitialPageSize < 1 {
		return fmt.Errorf("chat.initial_page_size must be at least 1")
	}
	if c.Chat.OlderPageSize < 1 {
		return fmt.Errorf("chat.older_page_size must be at least 1")
	}
	if c.Chat.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("chat.poll_interval must be at least 10ms")
	}
	if c.Chat.SubscribeBuffer < 1 {
		return fmt.Errorf("chat.subscribe_buffer must be at least 1")
	}
	switch c.Logging.Format {
	case "", "json", "console":
		// ok
	default:
		return fmt.Errorf("logging.format must be json or console")
	}
	return nil
}

// DatabasePath returns the effective database path, falling back to
// DataDir/reactchat.db when unset.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "reactchat.db")
}

// EnsureDirectories creates the data and config directories if missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Global.DataDir, c.Global.ConfigDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
