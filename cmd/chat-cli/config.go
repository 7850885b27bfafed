// ABOUTME: TOML configuration for the chat-cli reference client
// ABOUTME: Loads from CHAT_CLI_CONFIG or ./chat-cli.toml with env var expansion

package main

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the client's connection settings.
type Config struct {
	ServerURL string `toml:"server_url"`
	TokenFile string `toml:"token_file"`
}

func defaultConfig() *Config {
	return &Config{
		ServerURL: "http://127.0.0.1:8000",
		TokenFile: ".chat-token",
	}
}

// loadConfig reads config from CHAT_CLI_CONFIG or ./chat-cli.toml, expanding
// ${VAR} references. A missing file yields the defaults.
func loadConfig() (*Config, error) {
	path := os.Getenv("CHAT_CLI_CONFIG")
	if path == "" {
		path = "chat-cli.toml"
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if _, err := toml.Decode(expandEnvVars(string(data)), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server_url is required")
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}
