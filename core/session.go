package core

import (
	"sync"
	"time"
)

// Session is the persisted transcript of one conversation, keyed by its
// session key. It is safe for concurrent access.
//
// Contract:
//   - Append and Replace update the Updated timestamp
//   - History returns a defensive copy to avoid external mutation
//   - Clone performs a deep copy of the message history
type Session struct {
	Key      string    `json:"key"`
	AgentID  string    `json:"agent_id"`
	Messages []Content `json:"messages"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
	mu       sync.RWMutex
}

// NewSession creates an empty session.
func NewSession(key, agentID string) *Session {
	now := time.Now()
	return &Session{Key: key, AgentID: agentID, Messages: []Content{}, Created: now, Updated: now}
}

// Append adds messages to the end of the history.
func (s *Session) Append(msgs ...Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.Messages = append(s.Messages, m.Clone())
	}
	s.Updated = time.Now()
}

// Replace swaps the whole history, e.g. after compaction.
func (s *Session) Replace(msgs []Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = CloneAll(msgs)
	s.Updated = time.Now()
}

// History returns a copy of the message history.
func (s *Session) History() []Content {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneAll(s.Messages)
}

// Len returns the number of stored messages.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Messages)
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Session{
		Key:      s.Key,
		AgentID:  s.AgentID,
		Messages: CloneAll(s.Messages),
		Created:  s.Created,
		Updated:  s.Updated,
	}
}

// SessionStore persists session transcripts.
type SessionStore interface {
	// Get returns a snapshot of the session, creating it lazily.
	Get(key, agentID string) (*Session, error)
	// Append adds messages to the session, creating it when absent.
	Append(key, agentID string, msgs ...Content) error
	// Replace overwrites the session history.
	Replace(key, agentID string, msgs []Content) error
	// Reset removes the session.
	Reset(key string) error
	// Keys lists stored session keys.
	Keys() []string
}
