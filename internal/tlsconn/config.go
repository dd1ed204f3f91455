// Package tlsconn terminates TLS for event-driven connections. A Session
// runs crypto/tls against in-memory cipher queues so that handshake and
// record processing never block the event loop that feeds it.
package tlsconn

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Config holds TLS termination settings.
type Config struct {
	Enabled           bool          `yaml:"enabled"`
	CertFile          string        `yaml:"cert_file"`
	KeyFile           string        `yaml:"key_file"`
	ChainFile         string        `yaml:"chain_file"`
	MinVersion        string        `yaml:"min_version"`
	MaxVersion        string        `yaml:"max_version"`
	CipherSuites      []string      `yaml:"cipher_suites"`
	SessionCacheSize  int           `yaml:"session_cache_size"`
	SessionTimeout    time.Duration `yaml:"session_timeout"`
	WatchCertificates bool          `yaml:"watch_certificates"`
}

// DefaultConfig returns TLS settings with a TLS 1.2 floor and a server
// side session cache.
func DefaultConfig() Config {
	return Config{
		MinVersion:       "1.2",
		SessionCacheSize: 20480,
		SessionTimeout:   300 * time.Second,
	}
}

// Validate checks the configuration without touching the filesystem.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return errors.New("tls: cert_file and key_file are required")
	}
	minV, err := parseVersion(c.MinVersion)
	if err != nil {
		return err
	}
	maxV, err := parseVersion(c.MaxVersion)
	if err != nil {
		return err
	}
	if minV != 0 && maxV != 0 && minV > maxV {
		return fmt.Errorf("tls: min_version %s is above max_version %s", c.MinVersion, c.MaxVersion)
	}
	if _, err := parseCipherSuites(c.CipherSuites); err != nil {
		return err
	}
	if c.SessionCacheSize < 0 {
		return errors.New("tls: session_cache_size must be >= 0")
	}
	if c.SessionTimeout < 0 {
		return errors.New("tls: session_timeout must be >= 0")
	}
	return nil
}

func parseVersion(v string) (uint16, error) {
	switch v {
	case "":
		return 0, nil
	case "1.0":
		return tls.VersionTLS10, nil
	case "1.1":
		return tls.VersionTLS11, nil
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("tls: unknown protocol version %q", v)
	}
}

func parseCipherSuites(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return nil, nil
	}
	known := make(map[string]uint16)
	for _, cs := range tls.CipherSuites() {
		known[cs.Name] = cs.ID
	}
	for _, cs := range tls.InsecureCipherSuites() {
		known[cs.Name] = cs.ID
	}
	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := known[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("tls: unknown cipher suite %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Context is the process-wide TLS state shared by every Session: the
// crypto/tls configuration, the active certificate and the session cache.
type Context struct {
	cfg   Config
	tls   *tls.Config
	cert  atomic.Pointer[tls.Certificate]
	cache *sessionCache
}

// NewContext loads the certificate material and builds the TLS
// configuration. Any failure here is fatal for server startup.
func NewContext(cfg Config) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	minV, _ := parseVersion(cfg.MinVersion)
	maxV, _ := parseVersion(cfg.MaxVersion)
	suites, _ := parseCipherSuites(cfg.CipherSuites)

	c := &Context{cfg: cfg}
	if err := c.Reload(); err != nil {
		return nil, err
	}

	c.tls = &tls.Config{
		MinVersion:   minV,
		MaxVersion:   maxV,
		CipherSuites: suites,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return c.cert.Load(), nil
		},
	}
	if cfg.SessionCacheSize > 0 {
		c.cache = newSessionCache(cfg.SessionCacheSize, cfg.SessionTimeout)
		c.tls.WrapSession = c.cache.wrap
		c.tls.UnwrapSession = c.cache.unwrap
	} else {
		c.tls.SessionTicketsDisabled = true
	}
	return c, nil
}

// Reload re-reads the certificate, key and chain files and swaps them in
// for new handshakes. Established sessions are unaffected.
func (c *Context) Reload() error {
	cert, err := loadCertificate(c.cfg.CertFile, c.cfg.KeyFile, c.cfg.ChainFile)
	if err != nil {
		return err
	}
	c.cert.Store(&cert)
	return nil
}

// Certificate returns the certificate currently presented to clients.
func (c *Context) Certificate() *tls.Certificate { return c.cert.Load() }

// Config returns the settings the context was built from.
func (c *Context) Config() Config { return c.cfg }

// TLSConfig returns the crypto/tls server configuration. Callers must not
// modify it.
func (c *Context) TLSConfig() *tls.Config { return c.tls }

func loadCertificate(certFile, keyFile, chainFile string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tls: load key pair: %w", err)
	}
	if chainFile != "" {
		data, err := os.ReadFile(chainFile)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("tls: read chain file: %w", err)
		}
		for {
			var block *pem.Block
			block, data = pem.Decode(data)
			if block == nil {
				break
			}
			if block.Type != "CERTIFICATE" {
				continue
			}
			if _, err := x509.ParseCertificate(block.Bytes); err != nil {
				return tls.Certificate{}, fmt.Errorf("tls: parse chain certificate: %w", err)
			}
			cert.Certificate = append(cert.Certificate, block.Bytes)
		}
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tls: parse leaf certificate: %w", err)
	}
	cert.Leaf = leaf
	return cert, nil
}
