package tlsconn

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/google/uuid"
)

// sessionCache keeps resumable session state on the server and hands out
// opaque ids as tickets, so no key material leaves the process.
type sessionCache struct {
	mu      sync.Mutex
	entries *lru.Cache
	ttl     time.Duration
	now     func() time.Time
}

type cachedSession struct {
	state   []byte
	expires time.Time
}

func newSessionCache(size int, ttl time.Duration) *sessionCache {
	return &sessionCache{
		entries: lru.New(size),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *sessionCache) wrap(_ tls.ConnectionState, ss *tls.SessionState) ([]byte, error) {
	state, err := ss.Bytes()
	if err != nil {
		return nil, fmt.Errorf("tls: encode session: %w", err)
	}
	u, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("tls: session id: %w", err)
	}
	id := u[:]

	c.mu.Lock()
	c.entries.Add(string(id), cachedSession{state: state, expires: c.now().Add(c.ttl)})
	c.mu.Unlock()
	return id, nil
}

// unwrap returns nil state for unknown or expired ids, which makes the
// client fall back to a full handshake.
func (c *sessionCache) unwrap(id []byte, _ tls.ConnectionState) (*tls.SessionState, error) {
	key := string(id)

	c.mu.Lock()
	v, ok := c.entries.Get(key)
	if ok && c.ttl > 0 && c.now().After(v.(cachedSession).expires) {
		c.entries.Remove(key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return nil, nil
	}
	ss, err := tls.ParseSessionState(v.(cachedSession).state)
	if err != nil {
		return nil, nil
	}
	return ss, nil
}

func (c *sessionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
