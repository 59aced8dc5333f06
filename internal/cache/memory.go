package cache

import (
	"context"
	"encoding/json"
	"sync"

	"clinical-intake/internal/intake"
)

// MemoryStore is a process-local session store for single-instance
// deployments and tests. Sessions are stored as JSON so callers never share
// a *Session with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string][]byte{}}
}

func (m *MemoryStore) Save(_ context.Context, sess *intake.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions[sess.ID] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*intake.Session, error) {
	m.mu.RLock()
	data, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(id)
	}
	var sess intake.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
