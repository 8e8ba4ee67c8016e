package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default configuration values.
const (
	DefaultServerURL       = "http://127.0.0.1:2024"
	DefaultAssistantID     = "ptc-agent"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultRunPollInterval = time.Second

	DefaultSandboxHome = "/home/daytona/"
	DefaultSSHPort     = 22
	DefaultSSHTimeout  = 30 * time.Second

	DefaultEmptyResultThreshold = 3
	DefaultMaxMentionFileSize   = 50000

	DefaultBackgroundPollInterval = 500 * time.Millisecond
	DefaultBackgroundIdleTimeout  = 30 * time.Second

	DefaultLogRetentionDays = 7
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:             DefaultServerURL,
			AssistantID:     DefaultAssistantID,
			RequestTimeout:  DefaultRequestTimeout,
			RunPollInterval: DefaultRunPollInterval,
		},
		Sandbox: SandboxConfig{
			Mode:    "none",
			HomeDir: DefaultSandboxHome,
			SSH: SSHConfig{
				Port:    DefaultSSHPort,
				KeyPath: "~/.ssh/id_ed25519",
				Timeout: DefaultSSHTimeout,
			},
		},
		Streaming: StreamingConfig{
			EmptyResultThreshold: DefaultEmptyResultThreshold,
			MaxMentionFileSize:   DefaultMaxMentionFileSize,
		},
		Background: BackgroundConfig{
			PollInterval: DefaultBackgroundPollInterval,
			IdleTimeout:  DefaultBackgroundIdleTimeout,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Dir:           defaultLogDir(),
			RetentionDays: DefaultLogRetentionDays,
		},
		UI: UIConfig{
			CodeStyle:     "monokai",
			MarkdownStyle: "auto",
		},
	}
}

func defaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ptc-agent", "logs")
	}
	return filepath.Join(home, ".ptc-agent", "logs")
}
