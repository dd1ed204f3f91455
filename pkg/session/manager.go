package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/albertbausili/hearth/pkg/hearth"
	"github.com/google/uuid"
)

// Config holds session settings.
type Config struct {
	CookieName    string        `yaml:"cookie_name"`
	MaxAge        time.Duration `yaml:"max_age"`
	Storage       string        `yaml:"storage"` // memory or sqlite
	SQLitePath    string        `yaml:"sqlite_path"`
	SweepSchedule string        `yaml:"sweep_schedule"` // cron spec, empty disables sweeping
}

// DefaultConfig returns the default session settings.
func DefaultConfig() Config {
	return Config{
		CookieName:    "sessionId",
		MaxAge:        time.Hour,
		Storage:       "memory",
		SQLitePath:    "hearth-sessions.db",
		SweepSchedule: "@every 1m",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.CookieName == "" {
		return errors.New("session: cookie_name cannot be empty")
	}
	if c.MaxAge <= 0 {
		return errors.New("session: max_age must be positive")
	}
	switch c.Storage {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("session: sqlite_path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("session: unknown storage %q", c.Storage)
	}
	return nil
}

// NewStorage builds the backend named by the configuration.
func NewStorage(c Config) (Storage, error) {
	switch c.Storage {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "sqlite":
		return NewSQLiteStorage(c.SQLitePath)
	default:
		return nil, fmt.Errorf("session: unknown storage %q", c.Storage)
	}
}

// Manager hands out sessions for requests, creating one and setting the
// cookie when the client has none or its session expired.
type Manager struct {
	storage    Storage
	cookieName string
	maxAge     time.Duration
	now        func() time.Time
}

// NewManager creates a manager over storage. Zero config fields take
// their defaults.
func NewManager(storage Storage, config Config) *Manager {
	def := DefaultConfig()
	if config.CookieName == "" {
		config.CookieName = def.CookieName
	}
	if config.MaxAge <= 0 {
		config.MaxAge = def.MaxAge
	}
	return &Manager{
		storage:    storage,
		cookieName: config.CookieName,
		maxAge:     config.MaxAge,
		now:        time.Now,
	}
}

// Storage returns the backing store.
func (m *Manager) Storage() Storage { return m.storage }

// GetSession returns the request's live session, refreshed and saved. A new
// session is created when the cookie is missing, unknown or expired, and
// its cookie is added to resp.
func (m *Manager) GetSession(req *hearth.Request, resp *hearth.Response) (*Session, error) {
	ctx := req.Context()
	var s *Session
	if id := m.cookieValue(req); id != "" {
		loaded, err := m.storage.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		s = loaded
	}

	now := m.now()
	if s == nil || s.Expired(now) {
		s = New(newID(), m.maxAge, now)
		resp.AddHeader("Set-Cookie", m.cookieName+"="+s.id+"; Path=/; HttpOnly")
	}
	s.Refresh(now)
	if err := m.storage.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Destroy removes the session with the given id.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	return m.storage.Delete(ctx, id)
}

// CleanExpired removes all sessions that have expired.
func (m *Manager) CleanExpired(ctx context.Context) (int, error) {
	return m.storage.DeleteExpired(ctx, m.now())
}

// cookieValue extracts the session id from the Cookie header.
func (m *Manager) cookieValue(req *hearth.Request) string {
	header, ok := req.LookupHeader("Cookie")
	if !ok {
		return ""
	}
	for pair := range strings.SplitSeq(header, ";") {
		name, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if found && name == m.cookieName {
			return value
		}
	}
	return ""
}

// newID returns 32 random hex characters.
func newID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}
