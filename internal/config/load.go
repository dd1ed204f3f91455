package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path over the defaults and validates the
// result. An empty path yields the defaults.
func Load(path string) (*File, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads path and then applies HEARTH_SECTION_FIELD
// environment variables, which take precedence over the file.
func LoadWithEnvOverrides(path string) (*File, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func read(path string) (*File, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *File) {
	// Server
	if val := os.Getenv("HEARTH_SERVER_ADDR"); val != "" {
		cfg.Server.Addr = val
	}
	setBool("HEARTH_SERVER_MULTICORE", &cfg.Server.Multicore)
	setBool("HEARTH_SERVER_REUSE_PORT", &cfg.Server.ReusePort)
	if val := os.Getenv("HEARTH_SERVER_NUM_EVENT_LOOP"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Server.NumEventLoop = i
		}
	}
	if val := os.Getenv("HEARTH_SERVER_MAX_CONNECTIONS"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.Server.MaxConnections = uint32(i)
		}
	}

	// TLS
	setBool("HEARTH_TLS_ENABLED", &cfg.Server.TLS.Enabled)
	if val := os.Getenv("HEARTH_TLS_CERT_FILE"); val != "" {
		cfg.Server.TLS.CertFile = val
	}
	if val := os.Getenv("HEARTH_TLS_KEY_FILE"); val != "" {
		cfg.Server.TLS.KeyFile = val
	}
	if val := os.Getenv("HEARTH_TLS_CHAIN_FILE"); val != "" {
		cfg.Server.TLS.ChainFile = val
	}
	if val := os.Getenv("HEARTH_TLS_MIN_VERSION"); val != "" {
		cfg.Server.TLS.MinVersion = val
	}
	if val := os.Getenv("HEARTH_TLS_CIPHER_SUITES"); val != "" {
		cfg.Server.TLS.CipherSuites = splitList(val)
	}
	setBool("HEARTH_TLS_WATCH_CERTIFICATES", &cfg.Server.TLS.WatchCertificates)

	// Logging
	if val := os.Getenv("HEARTH_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("HEARTH_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	// Session
	setBool("HEARTH_SESSION_ENABLED", &cfg.Session.Enabled)
	if val := os.Getenv("HEARTH_SESSION_STORAGE"); val != "" {
		cfg.Session.Storage = val
	}
	if val := os.Getenv("HEARTH_SESSION_SQLITE_PATH"); val != "" {
		cfg.Session.SQLitePath = val
	}
	if val := os.Getenv("HEARTH_SESSION_MAX_AGE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Session.MaxAge = d
		}
	}
	if val, ok := os.LookupEnv("HEARTH_SESSION_SWEEP_SCHEDULE"); ok {
		cfg.Session.SweepSchedule = val
	}

	// Metrics
	setBool("HEARTH_METRICS_ENABLED", &cfg.Metrics.Enabled)
	if val := os.Getenv("HEARTH_METRICS_PATH"); val != "" {
		cfg.Metrics.Path = val
	}

	// Tracing
	setBool("HEARTH_TRACING_ENABLED", &cfg.Tracing.Enabled)
	if val := os.Getenv("HEARTH_TRACING_ENDPOINT"); val != "" {
		cfg.Tracing.Endpoint = val
	}
	if val := os.Getenv("HEARTH_TRACING_SERVICE_NAME"); val != "" {
		cfg.Tracing.ServiceName = val
	}
	if val := os.Getenv("HEARTH_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Tracing.SampleRatio = f
		}
	}

	// CORS and compression
	setBool("HEARTH_CORS_ENABLED", &cfg.CORS.Enabled)
	if val := os.Getenv("HEARTH_CORS_ALLOW_ORIGINS"); val != "" {
		cfg.CORS.AllowOrigins = splitList(val)
	}
	setBool("HEARTH_COMPRESS_ENABLED", &cfg.Compress.Enabled)
}

func setBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func splitList(val string) []string {
	var out []string
	for item := range strings.SplitSeq(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
