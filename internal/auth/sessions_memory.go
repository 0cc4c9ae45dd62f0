package auth

import (
	"context"
	"sync"
)

var _ SessionStore = (*MemorySessionStore)(nil)

// MemorySessionStore keeps sessions in-process, used when no redis
// host is configured.
type MemorySessionStore struct {
	mutex    sync.RWMutex
	sessions map[string]Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: map[string]Session{},
	}
}

func (s *MemorySessionStore) Add(_ context.Context, session Session) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sessions[session.Token] = session
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, token string) (Session, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	session, ok := s.sessions[token]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *MemorySessionStore) Remove(_ context.Context, token string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *MemorySessionStore) Tokens(_ context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	tokens := make([]string, 0, len(s.sessions))
	for token := range s.sessions {
		tokens = append(tokens, token)
	}
	return tokens, nil
}
