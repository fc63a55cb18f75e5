package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// DefaultTTL is how long an untouched session is kept.
const DefaultTTL = 24 * time.Hour

// Store persists sessions between turns.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. It is lost on restart,
// which the orchestrator tolerates through client echoes.
type MemoryStore struct {
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]memoryEntry
	mu       sync.RWMutex
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]memoryEntry),
	}
}

// Get returns a copy of the stored session.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	entry, exists := m.sessions[id]
	m.mu.RUnlock()

	if !exists || m.now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}
	return entry.session.Clone()
}

// Save stores a copy of s and refreshes its expiry.
func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	c, err := s.Clone()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sessions[s.ID] = memoryEntry{session: c, expiresAt: now.Add(m.ttl)}

	for id, e := range m.sessions {
		if now.After(e.expiresAt) {
			delete(m.sessions, id)
		}
	}
	return nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
