package memory

import (
	"context"
	"sync"

	"campusxchange/internal/domain/identity"
)

// SessionStore holds bearer sessions in memory for tests and memory mode.
type SessionStore struct {
	mu    sync.RWMutex
	items map[string]*identity.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{items: make(map[string]*identity.Session)}
}

func (s *SessionStore) ByToken(ctx context.Context, token string) (*identity.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.items[token]
	if !ok {
		return nil, identity.ErrInvalidCredential
	}
	copied := *session
	return &copied, nil
}

func (s *SessionStore) Save(ctx context.Context, session *identity.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.items[session.Token] = &copied
	return nil
}

var _ identity.SessionStore = (*SessionStore)(nil)
