package store

import (
	"context"
	"sync"
)

// MemorySessionStore keeps sessions in process memory. Used by one-shot CLI
// runs and tests; everything is lost on exit.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (s *MemorySessionStore) GetOrCreate(_ context.Context, id, provider string) (*Session, error) {
	if err := ValidateSessionID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{ID: id, Provider: provider}
		s.sessions[id] = sess
	}
	return cloneSession(sess), nil
}

func (s *MemorySessionStore) AppendHistory(_ context.Context, sessionID string, entry HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.History = append(sess.History, entry)
	return nil
}

func (s *MemorySessionStore) Close() error { return nil }

// cloneSession returns a copy whose history slice is not shared with the store.
func cloneSession(s *Session) *Session {
	out := *s
	out.History = append([]HistoryEntry(nil), s.History...)
	return &out
}
