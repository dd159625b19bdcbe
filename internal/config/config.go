package config

import (
	"time"
)

// ToolServer declares one auxiliary capability process the agent may
// call into during an invocation, launched as `command args...` speaking
// MCP over stdio.
type ToolServer struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// Agent configures how the external coding agent is invoked.
type Agent struct {
	// Command is the agent executable (default "claude").
	Command string `yaml:"command"`
	// Args are fixed arguments prepended to every invocation.
	Args []string `yaml:"args,omitempty"`
	// Model is the model identifier passed through to the agent.
	Model string `yaml:"model,omitempty"`
}

// Config holds all orchestrator settings for one project.
// Loaded from defaults, then <project>/drover.yaml, then CLI flags.
type Config struct {
	// ProjectDir is the project checkout the loop operates on.
	// Always set by the loader; not read from the config file.
	ProjectDir string `yaml:"-"`

	// FeaturesFile is the backlog document, relative to ProjectDir.
	FeaturesFile string `yaml:"features_file"`
	// ProgressFile is the append-only ledger, relative to ProjectDir.
	ProgressFile string `yaml:"progress_file"`
	// InitScript is run once at loop start to prepare the environment.
	InitScript string `yaml:"init_script,omitempty"`

	Agent Agent `yaml:"agent"`

	// MaxRetries bounds agent invocations per feature per run.
	MaxRetries int `yaml:"max_retries"`
	// RetryBackoffMs is the initial retry delay.
	RetryBackoffMs int `yaml:"retry_backoff_ms"`
	// RetryMaxBackoffMs caps the exponential backoff.
	RetryMaxBackoffMs int `yaml:"retry_max_backoff_ms"`
	// InvocationTimeoutSeconds cancels an unresponsive agent invocation.
	InvocationTimeoutSeconds int `yaml:"invocation_timeout_seconds"`

	// MaxConsecutiveFailures halts the run after that many features fail
	// back to back. 0 disables the guard.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
	// HaltOnFailure stops the run on the first permanent feature failure.
	HaltOnFailure bool `yaml:"halt_on_failure"`

	// AutoCommit commits outstanding changes after a successful feature.
	AutoCommit bool `yaml:"auto_commit"`
	// CommitPrefix is prepended to generated commit messages.
	CommitPrefix string `yaml:"commit_prefix,omitempty"`

	// ToolServers maps a name to the process serving that capability.
	ToolServers map[string]ToolServer `yaml:"tool_servers,omitempty"`

	// StartFrom and StopAfter bound the run to a feature id range.
	StartFrom string `yaml:"start_from,omitempty"`
	StopAfter string `yaml:"stop_after,omitempty"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		FeaturesFile:             "features.yaml",
		ProgressFile:             "progress.jsonl",
		Agent:                    Agent{Command: "claude"},
		MaxRetries:               3,
		RetryBackoffMs:           2000,
		RetryMaxBackoffMs:        60000,
		InvocationTimeoutSeconds: 1800,
		MaxConsecutiveFailures:   3,
		AutoCommit:               true,
		LogLevel:                 "info",
	}
}

// RetryBackoff returns the initial backoff as a duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// RetryMaxBackoff returns the backoff cap as a duration.
func (c *Config) RetryMaxBackoff() time.Duration {
	return time.Duration(c.RetryMaxBackoffMs) * time.Millisecond
}

// InvocationTimeout returns the per-invocation bound as a duration.
func (c *Config) InvocationTimeout() time.Duration {
	return time.Duration(c.InvocationTimeoutSeconds) * time.Second
}
