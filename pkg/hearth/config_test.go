package hearth

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if !cfg.Multicore || !cfg.ReusePort {
		t.Error("expected multicore and reuse port by default")
	}
	if cfg.TLS.Enabled {
		t.Error("TLS should be off by default")
	}
	if cfg.Logger == nil {
		t.Error("expected a logger")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Logger == nil {
		t.Errorf("Validate did not fill defaults: %+v", cfg)
	}

	cfg = DefaultConfig()
	cfg.NumEventLoop = -2
	if err := cfg.Validate(); err == nil {
		t.Error("negative event loop count accepted")
	}

	cfg = DefaultConfig()
	cfg.TLS.Enabled = true
	cfg.TLS.CertFile = "a.crt"
	cfg.TLS.KeyFile = "a.key"
	cfg.TLS.MinVersion = "1.9"
	if err := cfg.Validate(); err == nil {
		t.Error("bad TLS version accepted")
	}
}

func TestConfig_YAML(t *testing.T) {
	src := `
addr: 127.0.0.1:9000
multicore: false
max_connections: 512
tls:
  enabled: true
  cert_file: /etc/hearth/server.crt
  key_file: /etc/hearth/server.key
  min_version: "1.3"
`
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(src), &cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" || cfg.Multicore || cfg.MaxConnections != 512 {
		t.Errorf("server fields = %+v", cfg)
	}
	if !cfg.TLS.Enabled || cfg.TLS.MinVersion != "1.3" || cfg.TLS.CertFile != "/etc/hearth/server.crt" {
		t.Errorf("tls = %+v", cfg.TLS)
	}
	if !cfg.ReusePort {
		t.Error("unset field lost its default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
