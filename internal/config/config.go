// Package config loads the hearth command's configuration file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/albertbausili/hearth/pkg/hearth"
	"github.com/albertbausili/hearth/pkg/session"
)

// File is the top-level configuration file layout.
type File struct {
	Server    hearth.Config   `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	AccessLog AccessLogConfig `yaml:"access_log"`
	Session   SessionConfig   `yaml:"session"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	CORS      CORSConfig      `yaml:"cors"`
	Compress  CompressConfig  `yaml:"compress"`
}

// LoggingConfig selects the process log handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// AccessLogConfig toggles per-request logging.
type AccessLogConfig struct {
	Enabled   bool     `yaml:"enabled"`
	SkipPaths []string `yaml:"skip_paths"`
}

// SessionConfig enables cookie sessions.
type SessionConfig struct {
	Enabled        bool `yaml:"enabled"`
	session.Config `yaml:",inline"`
}

// MetricsConfig enables the Prometheus hook and exposition route.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig enables OpenTelemetry tracing. With an empty endpoint spans
// are created but not exported.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"` // OTLP gRPC host:port
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// CORSConfig enables the CORS hook.
type CORSConfig struct {
	Enabled           bool `yaml:"enabled"`
	hearth.CORSConfig `yaml:",inline"`
}

// CompressConfig enables response compression.
type CompressConfig struct {
	Enabled bool `yaml:"enabled"`
	Level   int  `yaml:"level"`
	MinSize int  `yaml:"min_size"`
}

// Default returns the configuration used when no file is given.
func Default() *File {
	compress := hearth.DefaultCompressConfig()
	return &File{
		Server:    hearth.DefaultConfig(),
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		AccessLog: AccessLogConfig{Enabled: true, SkipPaths: []string{"/health"}},
		Session:   SessionConfig{Config: session.DefaultConfig()},
		Metrics:   MetricsConfig{Enabled: true, Path: "/metrics"},
		Tracing: TracingConfig{
			ServiceName: "hearth",
			Insecure:    true,
			SampleRatio: 1,
		},
		CORS:     CORSConfig{CORSConfig: hearth.DefaultCORSConfig()},
		Compress: CompressConfig{Level: compress.Level, MinSize: compress.MinSize},
	}
}

// Validate checks every section and returns the first problem found.
func Validate(cfg *File) error {
	if err := cfg.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging: unknown format %q", cfg.Logging.Format)
	}
	if cfg.Session.Enabled {
		if err := cfg.Session.Validate(); err != nil {
			return err
		}
	}
	if cfg.Metrics.Enabled && (cfg.Metrics.Path == "" || cfg.Metrics.Path[0] != '/') {
		return errors.New("metrics: path must begin with '/'")
	}
	if cfg.Tracing.Enabled && (cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1) {
		return errors.New("tracing: sample_ratio must be within [0, 1]")
	}
	if cfg.Compress.Enabled && (cfg.Compress.Level < 0 || cfg.Compress.Level > 11) {
		return errors.New("compress: level must be within [0, 11]")
	}
	return nil
}
