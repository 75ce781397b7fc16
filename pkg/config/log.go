package config

import (
	"go.uber.org/zap/zapcore"
)

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
	// File is the rotating log file. Empty disables file logging.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultLogConfig returns sensible defaults for log configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:      "info",
		Format:     "console",
		File:       ".sitebuilder/sitebuilder.log",
		MaxSizeMB:  15,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

// Validate checks if the log configuration is valid
func (c *LogConfig) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return NewValidationError("log.level", err.Error())
	}
	if c.Format != "console" && c.Format != "json" {
		return NewValidationError("log.format", "must be console or json")
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return NewValidationError("log", "rotation limits cannot be negative")
	}
	return nil
}
