package memory

import (
	"context"
	"sync"

	"course-quiz-engine/internal/app"
)

// PendingStore is an in-process app.PendingStore. Its contents do not survive
// a restart.
type PendingStore struct {
	mu      sync.Mutex
	pending []app.PendingResult
}

func NewPendingStore() *PendingStore {
	return &PendingStore{}
}

func (s *PendingStore) SavePending(_ context.Context, p app.PendingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pending {
		if s.pending[i].Result.ID == p.Result.ID {
			s.pending[i] = p
			return nil
		}
	}
	s.pending = append(s.pending, p)
	return nil
}

func (s *PendingStore) DeletePending(_ context.Context, resultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pending {
		if s.pending[i].Result.ID == resultID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *PendingStore) ListPending(context.Context) ([]app.PendingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]app.PendingResult, len(s.pending))
	copy(out, s.pending)
	return out, nil
}
