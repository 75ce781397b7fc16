// Package config loads sitebuilder settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	configDirName  = ".sitebuilder"
	configFileName = "config.yaml"
)

// Config is the full runtime configuration.
type Config struct {
	// Workspace is the project root the agent edits and the preview is
	// written under.
	Workspace string       `yaml:"workspace"`
	LLM       LLMConfig    `yaml:"llm"`
	Agent     AgentConfig  `yaml:"agent"`
	Server    ServerConfig `yaml:"server"`
	Log       LogConfig    `yaml:"log"`

	// Source is the file the config was read from, empty for defaults.
	Source string `yaml:"-"`
}

// DefaultConfig returns a config with every section at its defaults.
func DefaultConfig() *Config {
	return &Config{
		Workspace: "workspace",
		LLM:       *DefaultLLMConfig(),
		Agent:     *DefaultAgentConfig(),
		Server:    *DefaultServerConfig(),
		Log:       *DefaultLogConfig(),
	}
}

func getHomeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, configDirName, configFileName)
}

func getCurrentConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, configDirName, configFileName)
}

// Load reads the first config found in ./.sitebuilder/config.yaml or
// ~/.sitebuilder/config.yaml, falls back to defaults when neither exists,
// and then applies environment overrides.
func Load() (*Config, error) {
	for _, path := range []string{getCurrentConfigPath(), getHomeConfigPath()} {
		if path == "" {
			continue
		}
		cfg, err := LoadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cfg.ApplyEnv(os.Getenv)
		return cfg, nil
	}

	cfg := DefaultConfig()
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// LoadFile reads one YAML file on top of the defaults. Keys missing from the
// file keep their default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.Source = path
	return cfg, nil
}

// Save writes cfg as YAML, creating the parent directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides fields from environment variables. getenv is usually
// os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.LLM.APIKey, "OPENROUTER_API_KEY")
	set(&c.LLM.BaseURL, "OPENROUTER_BASE_URL")
	set(&c.LLM.Model, "OPENROUTER_MODEL")
	set(&c.Workspace, "SITEBUILDER_WORKSPACE")
	set(&c.Server.Addr, "SITEBUILDER_ADDR")
	set(&c.Log.Level, "SITEBUILDER_LOG_LEVEL")
}

// Validate checks every section and returns all problems at once.
func (c *Config) Validate() error {
	result := &ValidationResult{}
	if c.Workspace == "" {
		result.Errors = append(result.Errors, *NewValidationError("workspace", "cannot be empty"))
	}
	for _, v := range []interface{ Validate() error }{&c.LLM, &c.Agent, &c.Server, &c.Log} {
		var verr *ValidationError
		if err := v.Validate(); errors.As(err, &verr) {
			result.Errors = append(result.Errors, *verr)
		} else if err != nil {
			return err
		}
	}
	return result.CombinedError()
}

// WorkspaceRoot returns the absolute workspace path.
func (c *Config) WorkspaceRoot() (string, error) {
	return filepath.Abs(c.Workspace)
}
