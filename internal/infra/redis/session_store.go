package redis

import (
	"context"
	"sync"
	"time"

	"course-quiz-engine/internal/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the claim only while it still names the session.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions themselves stay in a local map; the countdown and broadcast
//     logic is in-process.
//   - Redis holds the claim of each user (quiz:session:{userID} = sessionID).
//     The instance that registered the latest session owns it; other
//     instances see their own session as superseded through Claimed.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		logger:   logger,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(userID string, session *app.Session) *app.Session {
	s.mu.Lock()
	prev := s.sessions[userID]
	s.sessions[userID] = session
	s.mu.Unlock()

	if err := s.client.Set(context.Background(), s.key(userID), session.ID(), s.ttl).Err(); err != nil {
		s.logger.Warn("claim quiz session failed",
			zap.String("user_id", userID),
			zap.String("session_id", session.ID()),
			zap.Error(err),
		)
	}
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
	session, ok := s.sessions[userID]
	if !ok || session.ID() != sessionID {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, userID)
	s.mu.Unlock()

	// another instance may have claimed the user since
	if err := releaseScript.Run(context.Background(), s.client, []string{s.key(userID)}, sessionID).Err(); err != nil {
		s.logger.Warn("release quiz session claim failed",
			zap.String("user_id", userID),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// Claimed reports whether sessionID still holds the user's claim. An expired
// claim counts as held since no other attempt replaced it.
func (s *SessionStore) Claimed(ctx context.Context, userID, sessionID string) (bool, error) {
	id, err := s.client.Get(ctx, s.key(userID)).Result()
	if isMiss(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return id == sessionID, nil
}

func (s *SessionStore) key(userID string) string {
	return "quiz:session:" + userID
}
