package memory

import (
	"context"
	"sort"
	"sync"

	"course-quiz-engine/internal/domain"
)

// EnrollmentStore is an in-memory implementation of app.EnrollmentStore.
type EnrollmentStore struct {
	mu          sync.RWMutex
	enrollments map[string]domain.Enrollment
}

func NewEnrollmentStore() *EnrollmentStore {
	return &EnrollmentStore{enrollments: make(map[string]domain.Enrollment)}
}

func (s *EnrollmentStore) CreateEnrollment(_ context.Context, e domain.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey(e.StudentID, e.CourseID)
	if _, ok := s.enrollments[key]; ok {
		return domain.ErrAlreadyEnrolled
	}
	s.enrollments[key] = e
	return nil
}

func (s *EnrollmentStore) ListEnrollments(_ context.Context, studentID string) ([]domain.Enrollment, error) {
	return s.filter(func(e domain.Enrollment) bool { return e.StudentID == studentID }), nil
}

func (s *EnrollmentStore) ListByTeacher(_ context.Context, teacherID string) ([]domain.Enrollment, error) {
	return s.filter(func(e domain.Enrollment) bool { return e.TeacherID == teacherID }), nil
}

func (s *EnrollmentStore) UpdateStatus(_ context.Context, studentID, courseID string, status domain.EnrollmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey(studentID, courseID)
	e, ok := s.enrollments[key]
	if !ok {
		return domain.ErrEnrollmentNotFound
	}
	e.Status = status
	s.enrollments[key] = e
	return nil
}

func (s *EnrollmentStore) filter(keep func(domain.Enrollment) bool) []domain.Enrollment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Enrollment
	for _, e := range s.enrollments {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnrolledAt.Equal(out[j].EnrolledAt) {
			return out[i].EnrolledAt.Before(out[j].EnrolledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
