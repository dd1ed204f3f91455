package session

import (
	"context"
	"sync"
	"time"
)

// Storage persists sessions.
//
// Load returns (nil, nil) for an unknown or expired id, so callers can tell
// a miss from a backend failure.
type Storage interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes every session expired at now and reports how
	// many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Close() error
}

// MemoryStorage keeps sessions in process memory. Expired entries are
// dropped lazily on Load and in bulk by DeleteExpired.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Save implements Storage.
func (m *MemoryStorage) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return nil
}

// Load implements Storage.
func (m *MemoryStorage) Load(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if s.Expired(m.now()) {
		m.mu.Lock()
		if m.sessions[id] == s {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
		return nil, nil
	}
	return s, nil
}

// Delete implements Storage.
func (m *MemoryStorage) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// DeleteExpired implements Storage.
func (m *MemoryStorage) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close implements Storage.
func (m *MemoryStorage) Close() error { return nil }
