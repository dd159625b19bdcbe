package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/drover-dev/drover/internal/errors"
	"github.com/drover-dev/drover/internal/guard"
)

// FileName is the project configuration file looked up under ProjectDir.
const FileName = "drover.yaml"

// Load reads the project configuration: defaults, overlaid with
// drover.yaml when present. A missing file is not an error; an
// unreadable or invalid one is.
func Load(projectDir string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, fmt.Sprintf("resolve project dir %s", projectDir), err)
	}

	cfg := DefaultConfig()
	cfg.ProjectDir = abs

	path := filepath.Join(abs, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return nil, errors.Wrap(errors.ErrCodeConfigNotFound, fmt.Sprintf("read config file %s", path), err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, fmt.Sprintf("unmarshal config file %s", path), err)
	}
	cfg.ProjectDir = abs

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants, including the command guard
// on every configured command line.
func (c *Config) Validate() error {
	if c.FeaturesFile == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "features_file must not be empty")
	}
	if c.ProgressFile == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "progress_file must not be empty")
	}
	if c.Agent.Command == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "agent.command must not be empty")
	}
	if c.MaxRetries < 1 {
		return errors.New(errors.ErrCodeConfigInvalid, "max_retries must be at least 1")
	}
	if c.RetryBackoffMs < 0 || c.RetryMaxBackoffMs < 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "retry backoff values must be non-negative")
	}
	if c.InvocationTimeoutSeconds < 1 {
		return errors.New(errors.ErrCodeConfigInvalid, "invocation_timeout_seconds must be at least 1")
	}
	if c.MaxConsecutiveFailures < 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "max_consecutive_failures must be non-negative")
	}

	if c.InitScript != "" {
		if err := guard.Check(c.InitScript); err != nil {
			return errors.Wrap(errors.ErrCodeConfigBlocked, "init_script rejected", err).
				WithSuggestion("Remove the blocked pattern from init_script in drover.yaml")
		}
	}
	for name, ts := range c.ToolServers {
		if ts.Command == "" {
			return errors.New(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("tool server %q has no command", name))
		}
		if err := guard.CheckArgv(ts.Command, ts.Args); err != nil {
			return errors.Wrap(errors.ErrCodeConfigBlocked,
				fmt.Sprintf("tool server %q rejected", name), err)
		}
	}

	return nil
}

// FeaturesPath returns the absolute features file path.
func (c *Config) FeaturesPath() string {
	return filepath.Join(c.ProjectDir, c.FeaturesFile)
}

// ProgressPath returns the absolute progress file path.
func (c *Config) ProgressPath() string {
	return filepath.Join(c.ProjectDir, c.ProgressFile)
}
