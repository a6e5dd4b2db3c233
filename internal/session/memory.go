package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Expired sessions are
// dropped lazily on access.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*memSession
	now      func() time.Time
}

type memSession struct {
	values    map[string]string
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore. A zero ttl never expires sessions.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]*memSession),
		now:      time.Now,
	}
}

func (m *MemoryStore) live(sessionID string) *memSession {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	if !s.expiresAt.IsZero() && !m.now().Before(s.expiresAt) {
		delete(m.sessions, sessionID)
		return nil
	}
	return s
}

func (m *MemoryStore) touch(s *memSession) {
	if m.ttl > 0 {
		s.expiresAt = m.now().Add(m.ttl)
	}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, sessionID, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.live(sessionID)
	if s == nil {
		return "", false, nil
	}
	v, ok := s.values[key]
	return v, ok, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, sessionID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.live(sessionID)
	if s == nil {
		s = &memSession{values: make(map[string]string)}
		m.sessions[sessionID] = s
	}
	s.values[key] = value
	m.touch(s)
	return nil
}

// Remove implements Store.
func (m *MemoryStore) Remove(_ context.Context, sessionID string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.live(sessionID); s != nil {
		for _, k := range keys {
			delete(s.values, k)
		}
	}
	return nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}

// HealthCheck implements Store.
func (m *MemoryStore) HealthCheck(context.Context) error { return nil }

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

// Len returns the number of sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
