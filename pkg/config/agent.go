package config

// AgentConfig contains agent run settings
type AgentConfig struct {
	// ManifestLimit appends up to this many workspace files to the system
	// prompt. Zero leaves the file list out.
	ManifestLimit int `yaml:"manifest_limit"`
}

// DefaultAgentConfig returns sensible defaults for agent configuration
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{ManifestLimit: 0}
}

// Validate checks if the agent configuration is valid
func (c *AgentConfig) Validate() error {
	if c.ManifestLimit < 0 || c.ManifestLimit > 10000 {
		return NewValidationError("agent.manifest_limit", "must be between 0 and 10000")
	}
	return nil
}
