package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from path (or the default location when empty)
// and applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = getConfigPath()
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	loadFromEnv(cfg)

	return cfg, nil
}

// getConfigPath returns the path to the config file.
func getConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "ptcagent", "config.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", "ptcagent", "config.yaml")
}

// GetConfigPath returns the path to the config file (exported for external use).
func GetConfigPath() string {
	return getConfigPath()
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// loadFromEnv applies environment variable overrides.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("PTC_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}

	// Priority: PTC_API_KEY > LANGGRAPH_API_KEY
	if v := os.Getenv("PTC_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	} else if v := os.Getenv("LANGGRAPH_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}

	if v := os.Getenv("PTC_ASSISTANT_ID"); v != "" {
		cfg.Server.AssistantID = v
	}

	if v := os.Getenv("PTC_SANDBOX_HOST"); v != "" {
		cfg.Sandbox.SSH.Host = v
		if cfg.Sandbox.Mode == "" || cfg.Sandbox.Mode == "none" {
			cfg.Sandbox.Mode = "ssh"
		}
	}

	if v := os.Getenv("PTC_EMPTY_RESULT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Streaming.EmptyResultThreshold = n
		}
	}

	if v := os.Getenv("PTC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return ErrMissingServer
	}
	if u, err := url.Parse(c.Server.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidServer
	}
	if c.Server.AssistantID == "" {
		return ErrMissingAssistant
	}

	switch c.Sandbox.Mode {
	case "", "none":
	case "ssh":
		if c.Sandbox.SSH.Host == "" {
			return ErrMissingSSHHost
		}
	case "local":
		if c.Sandbox.Local.Root == "" {
			return ErrMissingLocalRoot
		}
	default:
		return ErrUnknownSandbox
	}

	if c.Streaming.EmptyResultThreshold < 1 {
		return ErrInvalidThreshold
	}
	if c.Background.PollInterval <= 0 || c.Background.IdleTimeout <= 0 {
		return ErrInvalidBackground
	}
	return nil
}

// Error types for configuration validation.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrMissingServer     ConfigError = "missing server url: set server.url or PTC_SERVER_URL"
	ErrInvalidServer     ConfigError = "invalid server url: expected scheme://host[:port]"
	ErrMissingAssistant  ConfigError = "missing assistant id: set server.assistant_id or PTC_ASSISTANT_ID"
	ErrMissingSSHHost    ConfigError = "sandbox mode ssh requires sandbox.ssh.host"
	ErrMissingLocalRoot  ConfigError = "sandbox mode local requires sandbox.local.root"
	ErrUnknownSandbox    ConfigError = "unknown sandbox mode: expected ssh, local or none"
	ErrInvalidThreshold  ConfigError = "streaming.empty_result_threshold must be at least 1"
	ErrInvalidBackground ConfigError = "background.poll_interval and background.idle_timeout must be positive"
)
