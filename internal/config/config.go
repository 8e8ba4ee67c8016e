package config

import "time"

// Config represents the main application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Streaming  StreamingConfig  `yaml:"streaming"`
	Background BackgroundConfig `yaml:"background"`
	Session    SessionConfig    `yaml:"session"`
	Logging    LoggingConfig    `yaml:"logging"`
	UI         UIConfig         `yaml:"ui"`

	// Runtime version information
	Version string `yaml:"-"`
}

// ServerConfig holds the agent runtime connection settings.
type ServerConfig struct {
	// Base URL of the LangGraph-compatible agent server.
	URL string `yaml:"url"`

	// API key sent as x-api-key. Usually set through the environment.
	APIKey string `yaml:"api_key,omitempty"`

	// Assistant (graph) id to run.
	AssistantID string `yaml:"assistant_id"`

	// Timeout for non-streaming requests. Streams are bounded by the turn context.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// How often background run handles poll their status.
	RunPollInterval time.Duration `yaml:"run_poll_interval"`
}

// SandboxConfig selects and configures the execution sandbox.
type SandboxConfig struct {
	// Mode: "ssh", "local" or "none".
	Mode string `yaml:"mode"`

	// Home directory inside the sandbox; stripped from cached file paths.
	HomeDir string `yaml:"home_dir"`

	SSH   SSHConfig   `yaml:"ssh"`
	Local LocalConfig `yaml:"local"`
}

// SSHConfig holds SSH sandbox connection settings.
type SSHConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	User          string        `yaml:"user"`
	KeyPath       string        `yaml:"key_path"`
	KeyPassphrase string        `yaml:"key_passphrase,omitempty"`
	Password      string        `yaml:"password,omitempty"`
	Timeout       time.Duration `yaml:"timeout"`
}

// LocalConfig holds settings for a directory-backed sandbox.
type LocalConfig struct {
	Root string `yaml:"root"`
}

// StreamingConfig tunes the turn engine.
type StreamingConfig struct {
	// Consecutive empty results from sandbox-bound tools before a health probe.
	EmptyResultThreshold int `yaml:"empty_result_threshold"`

	// Maximum bytes of an @mentioned file injected into the prompt.
	MaxMentionFileSize int `yaml:"max_mention_file_size"`

	// Tools whose empty output counts toward the threshold. Empty uses the built-in list.
	SensitiveTools []string `yaml:"sensitive_tools,omitempty"`
}

// BackgroundConfig tunes the background task status display.
type BackgroundConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// SessionConfig holds per-session defaults.
type SessionConfig struct {
	AutoApprove bool `yaml:"auto_approve"`
	PlanMode    bool `yaml:"plan_mode"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	// Chroma style used for code previews.
	CodeStyle string `yaml:"code_style"`

	// Glamour style: "dark", "light", "notty" or "auto".
	MarkdownStyle string `yaml:"markdown_style"`
}
