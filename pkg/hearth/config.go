// Package hearth provides an HTTP/1.x server built on an event-driven
// transport, with exact and template routing, request hooks and optional
// TLS termination.
package hearth

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/albertbausili/hearth/internal/tlsconn"
)

// Config holds the server configuration options.
type Config struct {
	Addr           string         `yaml:"addr"`            // Server address to bind to
	Multicore      bool           `yaml:"multicore"`       // Enable multicore mode
	NumEventLoop   int            `yaml:"num_event_loop"`  // Number of event loops (0 for auto-detect)
	ReusePort      bool           `yaml:"reuse_port"`      // Enable SO_REUSEPORT for load balancing
	MaxConnections uint32         `yaml:"max_connections"` // Open connection limit, 0 for none
	TLS            tlsconn.Config `yaml:"tls"`             // TLS termination settings
	Logger         *slog.Logger   `yaml:"-"`               // Logger for server events
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Addr:      ":8080",
		Multicore: true,
		ReusePort: true,
		TLS:       tlsconn.DefaultConfig(),
		Logger:    slog.New(slog.DiscardHandler),
	}
}

// Validate checks and normalizes the configuration values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.NumEventLoop < 0 {
		return errors.New("num_event_loop must be >= 0")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	return nil
}
