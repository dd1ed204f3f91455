// Package session keeps per-client state across requests, keyed by a
// cookie. Sessions live in a Storage backend (memory or SQLite) and expire
// after a sliding max age.
package session

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Session is a set of string values bound to one client. It is safe for
// concurrent use.
type Session struct {
	mu        sync.RWMutex
	id        string
	data      map[string]string
	maxAge    time.Duration
	expiresAt time.Time
}

// New creates a session that expires maxAge after now.
func New(id string, maxAge time.Duration, now time.Time) *Session {
	return &Session{
		id:        id,
		data:      make(map[string]string),
		maxAge:    maxAge,
		expiresAt: now.Add(maxAge),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// MaxAge returns the sliding lifetime of the session.
func (s *Session) MaxAge() time.Duration { return s.maxAge }

// ExpiresAt returns the current expiry time.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Expired reports whether the session has expired at now.
func (s *Session) Expired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.After(s.expiresAt)
}

// Refresh pushes the expiry to now plus the max age.
func (s *Session) Refresh(now time.Time) {
	s.mu.Lock()
	s.expiresAt = now.Add(s.maxAge)
	s.mu.Unlock()
}

// Get returns the value stored under key, or "" if absent.
func (s *Session) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[key]
}

// Lookup returns the value stored under key and whether it was present.
func (s *Session) Lookup(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Values returns a copy of all stored values.
func (s *Session) Values() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

// Set stores value under key and saves the session to store. The session
// keeps no reference to the store that owns it.
func (s *Session) Set(ctx context.Context, store Storage, key, value string) error {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	return store.Save(ctx, s)
}

// Delete removes key and saves the session to store.
func (s *Session) Delete(ctx context.Context, store Storage, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return store.Save(ctx, s)
}

// Clear removes every value and saves the session to store.
func (s *Session) Clear(ctx context.Context, store Storage) error {
	s.mu.Lock()
	clear(s.data)
	s.mu.Unlock()
	return store.Save(ctx, s)
}

// snapshot returns a consistent copy of the mutable fields.
func (s *Session) snapshot() (map[string]string, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data), s.expiresAt
}
