// Package session binds opaque session ids to user ids.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Store maps session ids to user ids with an expiry.
type Store interface {
	Put(ctx context.Context, id string, userID int, ttl time.Duration) error
	Get(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
}

type entry struct {
	userID  int
	expires time.Time
}

// MemoryStore keeps sessions in process memory. Sessions do not survive a
// restart and are not shared between server instances.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]entry
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]entry), now: time.Now}
}

func (m *MemoryStore) Put(_ context.Context, id string, userID int, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = entry{userID: userID, expires: m.now().Add(ttl)}
	m.sweep()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return 0, ErrNotFound
	}
	if !m.now().Before(e.expires) {
		delete(m.sessions, id)
		return 0, ErrNotFound
	}
	return e.userID, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// sweep drops expired sessions. Callers hold mu.
func (m *MemoryStore) sweep() {
	now := m.now()
	for id, e := range m.sessions {
		if !now.Before(e.expires) {
			delete(m.sessions, id)
		}
	}
}
