// ABOUTME: Configuration loading and parsing for chatd
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chatd configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Chat     ChatConfig     `yaml:"chat"`
	Request  RequestConfig  `yaml:"request"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the listen address for the chat server
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	// URL is the SQLite DSN, e.g. "file:chat.db" or ":memory:"
	URL string `yaml:"url"`

	// ConnectAttempts bounds how many times the connector retries
	// establishing the initial connection before giving up.
	ConnectAttempts int `yaml:"connect_attempts"`

	ConnectBackoff    time.Duration `yaml:"-"`
	ConnectBackoffRaw string        `yaml:"connect_backoff"`
}

// ChatConfig holds message store tuning
type ChatConfig struct {
	// HourlyMessageCap is the per-identity send quota per rolling hour.
	HourlyMessageCap int `yaml:"hourly_message_cap"`
}

// RequestConfig holds per-request handling configuration
type RequestConfig struct {
	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config populated with the built-in defaults:
// local listener, on-disk database, 20 messages per hour, 5s request timeout.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: "127.0.0.1:8000"},
		Database: DatabaseConfig{URL: "file:chat.db", ConnectAttempts: 5, ConnectBackoff: 5 * time.Second},
		Chat:     ChatConfig{HourlyMessageCap: 20},
		Request:  RequestConfig{Timeout: 5 * time.Second},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded. Fields absent
// from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment
// variable values. If the environment variable is not set, it is replaced with
// an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Database.ConnectAttempts < 1 {
		return fmt.Errorf("database.connect_attempts must be at least 1")
	}
	if c.Chat.HourlyMessageCap < 1 {
		return fmt.Errorf("chat.hourly_message_cap must be at least 1")
	}
	if c.Request.Timeout <= 0 {
		return fmt.Errorf("request.timeout must be positive")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Database.ConnectBackoffRaw != "" {
		cfg.Database.ConnectBackoff, err = time.ParseDuration(cfg.Database.ConnectBackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing connect_backoff %q: %w", cfg.Database.ConnectBackoffRaw, err)
		}
	}

	if cfg.Request.TimeoutRaw != "" {
		cfg.Request.Timeout, err = time.ParseDuration(cfg.Request.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Request.TimeoutRaw, err)
		}
	}

	return nil
}
