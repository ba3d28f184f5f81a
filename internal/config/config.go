// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/knightcli/knight/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete knight configuration.
type Config struct {
	// DefaultModel names the entry in Models used for all calls.
	DefaultModel string `toml:"default_model"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `toml:"log_level"`

	// Models maps a short name to a model transport configuration.
	Models map[string]ModelConfig `toml:"models"`

	// GitHub holds hosting-platform credentials.
	GitHub GitHubConfig `toml:"github"`

	// Agent tunes planning and execution behavior.
	Agent AgentConfig `toml:"agent"`

	// Workspace constrains file operations.
	Workspace WorkspaceConfig `toml:"workspace"`
}

// Supported model transport types.
const (
	ModelTypeOllama           = "ollama"
	ModelTypeOpenAICompatible = "openai-compatible"
)

// ModelConfig describes one model endpoint.
type ModelConfig struct {
	// Type selects the wire protocol: "ollama" or "openai-compatible".
	Type string `toml:"type"`
	// Endpoint is the base URL, e.g. http://localhost:11434.
	Endpoint string `toml:"endpoint"`
	// Name is the provider-side model identifier.
	Name string `toml:"name"`
	// APIKey is sent as a bearer token for openai-compatible endpoints.
	APIKey string `toml:"api_key"`
	// Temperature for generation. Zero means provider default.
	Temperature float64 `toml:"temperature"`
	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int `toml:"max_tokens"`
	// RequestsPerMinute rate-limits calls to this endpoint. Zero disables
	// the limiter.
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// GitHubConfig holds hosting-platform credentials and defaults.
type GitHubConfig struct {
	Token         string `toml:"token"`
	Username      string `toml:"username"`
	DefaultBranch string `toml:"default_branch"`
}

// AgentConfig tunes the planner and executor.
type AgentConfig struct {
	// MaxPlanSteps rejects plans longer than this during validation.
	MaxPlanSteps int `toml:"max_plan_steps"`
	// MaxCorrectionRetries bounds recursive shell self-correction.
	MaxCorrectionRetries int `toml:"max_correction_retries"`
	// CaptureLines is the ring buffer size for captured command output.
	CaptureLines int `toml:"capture_lines"`
	// DigestLines is how many trailing output lines are surfaced on success
	// or included in a correction prompt on failure.
	DigestLines int `toml:"digest_lines"`
	// BackgroundGraceSeconds distinguishes "failed immediately" from
	// "still running" for detached server commands.
	BackgroundGraceSeconds int `toml:"background_grace_seconds"`
	// GenerateConcurrency bounds parallel file generation tasks.
	GenerateConcurrency int `toml:"generate_concurrency"`
}

// WorkspaceConfig constrains the file layer.
type WorkspaceConfig struct {
	// Dir is the project root all file operations are contained in.
	// Empty means the process working directory.
	Dir string `toml:"dir"`
	// MaxFileSize in bytes for reads into the session context.
	MaxFileSize int64 `toml:"max_file_size"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultModel: "local",
		LogLevel:     "info",
		Models: map[string]ModelConfig{
			"local": {
				Type:        ModelTypeOllama,
				Endpoint:    "http://localhost:11434",
				Name:        "qwen2.5-coder:7b",
				Temperature: 0.2,
				MaxTokens:   4096,
			},
		},
		GitHub: GitHubConfig{
			DefaultBranch: "main",
		},
		Agent: AgentConfig{
			MaxPlanSteps:           50,
			MaxCorrectionRetries:   3,
			CaptureLines:           200,
			DigestLines:            5,
			BackgroundGraceSeconds: 3,
			GenerateConcurrency:    4,
		},
		Workspace: WorkspaceConfig{
			MaxFileSize: 1 << 20, // 1MB
		},
	}
}

// =============================================================================
// FILE LOCATIONS
// =============================================================================

// Dir returns the knight configuration directory (~/.knight).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".knight"), nil
}

// Path returns the configuration file path (~/.knight/config.toml).
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration: built-in defaults, then the TOML file if it
// exists, then environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	path, err := Path()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		if err := loadTOML(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath reads defaults plus an explicit TOML file. The file must
// exist. Environment overrides still apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := loadTOML(cfg, path); err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadTOML(cfg *Config, path string) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown configuration keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// Save writes the configuration atomically to ~/.knight/config.toml.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	// Config may hold credentials; keep it private to the user.
	return util.AtomicWriteFile(path, []byte(sb.String()), 0o600)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides layers environment variables over the configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("KNIGHT_MODEL"); v != "" {
		c.DefaultModel = v
	}
	if v := os.Getenv("KNIGHT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("KNIGHT_WORKDIR"); v != "" {
		c.Workspace.Dir = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("GITHUB_USERNAME"); v != "" {
		c.GitHub.Username = v
	}
	if v := os.Getenv("KNIGHT_MAX_CORRECTION_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Agent.MaxCorrectionRetries = n
		}
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		if m, ok := c.Models["local"]; ok && m.Type == "ollama" {
			m.Endpoint = v
			c.Models["local"] = m
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors aggregates all validation failures.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.DefaultModel == "" {
		errs = append(errs, ValidationError{"default_model", "must not be empty"})
	} else if _, ok := c.Models[c.DefaultModel]; !ok {
		errs = append(errs, ValidationError{"default_model",
			fmt.Sprintf("model %q is not defined in [models]", c.DefaultModel)})
	}

	for name, m := range c.Models {
		switch m.Type {
		case ModelTypeOllama, ModelTypeOpenAICompatible:
		default:
			errs = append(errs, ValidationError{"models." + name + ".type",
				fmt.Sprintf("unsupported type %q", m.Type)})
		}
		if m.Endpoint == "" {
			errs = append(errs, ValidationError{"models." + name + ".endpoint", "must not be empty"})
		}
		if m.Name == "" {
			errs = append(errs, ValidationError{"models." + name + ".name", "must not be empty"})
		}
		if m.RequestsPerMinute < 0 {
			errs = append(errs, ValidationError{"models." + name + ".requests_per_minute", "must not be negative"})
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{"log_level",
			fmt.Sprintf("unknown level %q", c.LogLevel)})
	}

	if c.Agent.MaxPlanSteps < 1 {
		errs = append(errs, ValidationError{"agent.max_plan_steps", "must be at least 1"})
	}
	if c.Agent.MaxCorrectionRetries < 0 {
		errs = append(errs, ValidationError{"agent.max_correction_retries", "must not be negative"})
	}
	if c.Agent.CaptureLines < 1 {
		errs = append(errs, ValidationError{"agent.capture_lines", "must be at least 1"})
	}
	if c.Agent.GenerateConcurrency < 1 {
		errs = append(errs, ValidationError{"agent.generate_concurrency", "must be at least 1"})
	}
	if c.Workspace.MaxFileSize < 1 {
		errs = append(errs, ValidationError{"workspace.max_file_size", "must be positive"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CurrentModel returns the configuration for the selected default model.
func (c *Config) CurrentModel() (ModelConfig, error) {
	m, ok := c.Models[c.DefaultModel]
	if !ok {
		return ModelConfig{}, fmt.Errorf("model %q not found in configuration", c.DefaultModel)
	}
	return m, nil
}

// WorkDir resolves the workspace directory, defaulting to the process
// working directory.
func (c *Config) WorkDir() (string, error) {
	if c.Workspace.Dir != "" {
		return filepath.Abs(c.Workspace.Dir)
	}
	return os.Getwd()
}
