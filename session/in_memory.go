package session

import (
	"sort"
	"sync"

	"github.com/hupe1980/agentrelay/core"
)

// InMemoryStore is a volatile SessionStore storing transcripts in a process
// local map. It is safe for concurrent access. Each returned session is
// cloned to prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Get returns a clone of an existing session or a fresh, unsaved one.
func (s *InMemoryStore) Get(key, agentID string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[key]; ok {
		return sess.Clone(), nil
	}
	return core.NewSession(key, agentID), nil
}

// Append adds messages to an existing or newly created session.
func (s *InMemoryStore) Append(key, agentID string, msgs ...core.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(key, agentID).Append(msgs...)
	return nil
}

// Replace overwrites the history of an existing or newly created session.
func (s *InMemoryStore) Replace(key, agentID string, msgs []core.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(key, agentID).Replace(msgs)
	return nil
}

// Reset drops the session. Resetting an unknown key is a no-op.
func (s *InMemoryStore) Reset(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

// Keys returns the stored session keys, sorted.
func (s *InMemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// getOrCreateLocked returns the stored session; caller must already hold the
// write lock.
func (s *InMemoryStore) getOrCreateLocked(key, agentID string) *core.Session {
	sess, ok := s.sessions[key]
	if !ok {
		sess = core.NewSession(key, agentID)
		s.sessions[key] = sess
	}
	return sess
}
