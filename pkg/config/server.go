package config

import (
	"net"
	"time"
)

// ServerConfig contains web server and preview settings
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	PreviewDebounce time.Duration `yaml:"preview_debounce"`
	// Document is the snapshot name loaded into the editor at startup, if
	// it exists.
	Document string `yaml:"document"`
}

// DefaultServerConfig returns sensible defaults for server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:            "localhost:54321",
		ShutdownTimeout: 5 * time.Second,
		PreviewDebounce: 150 * time.Millisecond,
		Document:        "default",
	}
}

// Validate checks if the server configuration is valid
func (c *ServerConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return NewValidationError("server.addr", "must be host:port")
	}
	if c.ShutdownTimeout <= 0 {
		return NewValidationError("server.shutdown_timeout", "must be positive")
	}
	if c.PreviewDebounce < 0 {
		return NewValidationError("server.preview_debounce", "cannot be negative")
	}
	return nil
}
