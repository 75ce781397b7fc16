package config

import (
	"net/url"
	"time"

	"github.com/alantheprice/sitebuilder/pkg/llm"
)

// LLMConfig contains the completion endpoint settings
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key,omitempty"`
	Timeout     time.Duration `yaml:"timeout"`
	FramePolicy string        `yaml:"frame_policy"` // lenient or strict
	Referer     string        `yaml:"referer,omitempty"`
	Title       string        `yaml:"title,omitempty"`
}

// DefaultLLMConfig returns sensible defaults for LLM configuration
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		BaseURL:     llm.DefaultBaseURL,
		Model:       "openai/gpt-4o-mini",
		Timeout:     15 * time.Minute,
		FramePolicy: llm.FramePolicyLenient.String(),
		Title:       "sitebuilder",
	}
}

// Validate checks if the LLM configuration is valid
func (c *LLMConfig) Validate() error {
	if c.BaseURL == "" {
		return NewValidationError("llm.base_url", "cannot be empty")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return NewValidationError("llm.base_url", "must be an absolute URL")
	}
	if c.Model == "" {
		return NewValidationError("llm.model", "cannot be empty")
	}
	if c.Timeout <= 0 {
		return NewValidationError("llm.timeout", "must be positive")
	}
	if _, err := llm.ParseFramePolicy(c.FramePolicy); err != nil {
		return NewValidationError("llm.frame_policy", err.Error())
	}
	return nil
}

// ClientOptions converts the config into llm client options.
func (c *LLMConfig) ClientOptions() llm.Options {
	policy, _ := llm.ParseFramePolicy(c.FramePolicy)
	return llm.Options{
		BaseURL:     c.BaseURL,
		Timeout:     c.Timeout,
		FramePolicy: policy,
		Referer:     c.Referer,
		Title:       c.Title,
	}
}
