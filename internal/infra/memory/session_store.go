package memory

import (
	"sync"

	"course-quiz-engine/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// It holds at most one session per user.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(userID string, session *app.Session) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.sessions[userID]
	s.sessions[userID] = session
	if prev == session {
		return nil
	}
	return prev
}

func (s *SessionStore) Get(userID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[userID]
	return session, ok
}

func (s *SessionStore) Remove(userID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok {
		return
	}
	if session.ID() == sessionID {
		delete(s.sessions, userID)
	}
}

// Len reports the number of active sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
