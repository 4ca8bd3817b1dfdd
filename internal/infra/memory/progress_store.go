package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"course-quiz-engine/internal/domain"
)

// ErrInjected is returned by ProgressStore writes while failures are injected.
var ErrInjected = errors.New("injected write failure")

// ProgressStore keeps StudentProgress records in memory. It implements
// app.ProgressStore and can be told to fail writes, which tests use to
// exercise the persistence failure paths.
type ProgressStore struct {
	mu         sync.RWMutex
	records    map[string]domain.StudentProgress
	failWrites int
	writes     int
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{records: make(map[string]domain.StudentProgress)}
}

func (s *ProgressStore) ReadProgress(_ context.Context, studentID, courseID string) (domain.StudentProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.records[progressKey(studentID, courseID)]
	if !ok {
		return domain.StudentProgress{}, domain.ErrProgressNotFound
	}
	return p.Clone(), nil
}

func (s *ProgressStore) WriteProgress(_ context.Context, progress domain.StudentProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != 0 {
		if s.failWrites > 0 {
			s.failWrites--
		}
		return ErrInjected
	}
	s.writes++
	s.records[progressKey(progress.StudentID, progress.CourseID)] = progress.Clone()
	return nil
}

func (s *ProgressStore) ListByCourse(_ context.Context, courseID string) ([]domain.StudentProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.StudentProgress
	for _, p := range s.records {
		if p.CourseID == courseID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

// FailWrites makes the next n writes fail. A negative n fails every write
// until FailWrites(0) is called.
func (s *ProgressStore) FailWrites(n int) {
	s.mu.Lock()
	s.failWrites = n
	s.mu.Unlock()
}

// Writes reports the number of successful writes.
func (s *ProgressStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func progressKey(studentID, courseID string) string {
	return studentID + "/" + courseID
}
