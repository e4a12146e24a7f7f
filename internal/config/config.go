package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pytestmaker configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Specification input
	Spec SpecConfig `yaml:"spec"`

	// Generated file output
	Output OutputConfig `yaml:"output"`

	// pytest invocation after generation
	Runner RunnerConfig `yaml:"runner"`

	// Watch mode
	Watch WatchConfig `yaml:"watch"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// SpecConfig locates the test specification.
type SpecConfig struct {
	// Path is relative to the workspace unless absolute.
	Path string `yaml:"path"`
}

// OutputConfig controls where and how the suite is written.
type OutputConfig struct {
	// Directory for test_<module>.py, relative to the workspace unless absolute.
	Directory string `yaml:"directory"`

	// VerifySyntax parses the generated file before it replaces the old one.
	VerifySyntax bool `yaml:"verify_syntax"`
}

// RunnerConfig configures the pytest executable.
type RunnerConfig struct {
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args"`

	// Timeout bounds a pytest run; empty or "0" means no limit.
	Timeout string `yaml:"timeout"`
}

// WatchConfig configures regeneration on file change.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// DefaultSpecFile is read when no specification path is configured.
const DefaultSpecFile = "pytest_input.yaml"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "pytestmaker",
		Version: "1.0.0",

		Spec: SpecConfig{
			Path: DefaultSpecFile,
		},

		Output: OutputConfig{
			Directory:    ".",
			VerifySyntax: true,
		},

		Runner: RunnerConfig{
			Binary:  "pytest",
			Timeout: "0",
		},

		Watch: WatchConfig{
			Debounce: "200ms",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config location inside a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".pytestmaker", "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults when there is no config file
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("PYTESTMAKER_SPEC"); path != "" {
		c.Spec.Path = path
	}
	if bin := os.Getenv("PYTESTMAKER_PYTEST"); bin != "" {
		// Allows "python -m pytest"
		fields := strings.Fields(bin)
		c.Runner.Binary = fields[0]
		c.Runner.Args = append(fields[1:], c.Runner.Args...)
	}
	if timeout := os.Getenv("PYTESTMAKER_TIMEOUT"); timeout != "" {
		c.Runner.Timeout = timeout
	}
}

// GetRunnerTimeout returns the pytest timeout; zero means unbounded.
func (c *Config) GetRunnerTimeout() time.Duration {
	if c.Runner.Timeout == "" || c.Runner.Timeout == "0" {
		return 0
	}
	d, err := time.ParseDuration(c.Runner.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// GetWatchDebounce returns the debounce window for watch mode.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 200 * time.Millisecond
	}
	return d
}

// ResolvePath anchors a configured path at the workspace.
func ResolvePath(workspace, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, path)
}

// ValidLevels lists the accepted logging levels.
var ValidLevels = []string{"debug", "info", "warn", "warning", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Spec.Path == "" {
		return fmt.Errorf("spec.path must not be empty")
	}
	if c.Runner.Binary == "" {
		return fmt.Errorf("runner.binary must not be empty")
	}
	if c.Runner.Timeout != "" && c.Runner.Timeout != "0" {
		d, err := time.ParseDuration(c.Runner.Timeout)
		if err != nil {
			return fmt.Errorf("invalid runner.timeout %q: %w", c.Runner.Timeout, err)
		}
		if d < 0 {
			return fmt.Errorf("runner.timeout must not be negative, got %s", d)
		}
	}
	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("invalid watch.debounce %q: %w", c.Watch.Debounce, err)
		}
	}
	if c.Logging.Level != "" {
		valid := false
		for _, l := range ValidLevels {
			if c.Logging.Level == l {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLevels)
		}
	}
	return nil
}
