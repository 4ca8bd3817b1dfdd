package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"course-quiz-engine/internal/auth"
	"course-quiz-engine/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EnrollmentService enrolls students and keeps enrollment status in step
// with course completion.
type EnrollmentService struct {
	store   EnrollmentStore
	courses CourseRepository
	tracker *ProgressTracker
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string

	unsubscribe func()
}

func NewEnrollmentService(store EnrollmentStore, courses CourseRepository, tracker *ProgressTracker, logger *zap.Logger) *EnrollmentService {
	s := &EnrollmentService{
		store:   store,
		courses: courses,
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	s.unsubscribe = tracker.Subscribe(ProgressListenerFunc(s.progressChanged))
	return s
}

// Close detaches the service from the tracker.
func (s *EnrollmentService) Close() {
	s.unsubscribe()
}

// Enroll creates the enrollment of the student in courseID together with an
// empty progress record. A repeated enrollment returns domain.ErrAlreadyEnrolled
// after making sure the progress record exists.
func (s *EnrollmentService) Enroll(ctx context.Context, id auth.Identity, courseID string) (domain.Enrollment, error) {
	if !id.IsStudent() {
		return domain.Enrollment{}, fmt.Errorf("enroll as %s: %w", id.Role, domain.ErrForbidden)
	}
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return domain.Enrollment{}, err
	}

	enrollment := domain.Enrollment{
		ID:         s.newID(),
		StudentID:  id.UserID,
		CourseID:   course.ID,
		TeacherID:  course.TeacherID,
		EnrolledAt: s.now(),
		Status:     domain.EnrollmentActive,
	}
	if err := s.store.CreateEnrollment(ctx, enrollment); err != nil {
		if errors.Is(err, domain.ErrAlreadyEnrolled) {
			if existing, ok := s.find(ctx, id.UserID, courseID); ok {
				// progress creation may have failed on the first attempt
				if _, perr := s.tracker.CreateForEnrollment(ctx, id.UserID, courseID, existing.ID); perr != nil {
					s.logger.Warn("repair progress failed", zap.String("enrollment_id", existing.ID), zap.Error(perr))
				}
			}
		}
		return domain.Enrollment{}, err
	}

	if _, err := s.tracker.CreateForEnrollment(ctx, id.UserID, courseID, enrollment.ID); err != nil {
		return enrollment, fmt.Errorf("create progress: %w", err)
	}
	s.logger.Info("student enrolled",
		zap.String("student_id", id.UserID),
		zap.String("course_id", courseID),
		zap.String("enrollment_id", enrollment.ID),
	)
	return enrollment, nil
}

// ListEnrollments returns the enrollments of the calling student.
func (s *EnrollmentService) ListEnrollments(ctx context.Context, id auth.Identity) ([]domain.Enrollment, error) {
	return s.store.ListEnrollments(ctx, id.UserID)
}

func (s *EnrollmentService) find(ctx context.Context, studentID, courseID string) (domain.Enrollment, bool) {
	list, err := s.store.ListEnrollments(ctx, studentID)
	if err != nil {
		return domain.Enrollment{}, false
	}
	for _, e := range list {
		if e.CourseID == courseID {
			return e, true
		}
	}
	return domain.Enrollment{}, false
}

func (s *EnrollmentService) progressChanged(ctx context.Context, p domain.StudentProgress) {
	if !p.CourseCompleted {
		return
	}
	err := s.store.UpdateStatus(ctx, p.StudentID, p.CourseID, domain.EnrollmentCompleted)
	if err != nil && !errors.Is(err, domain.ErrEnrollmentNotFound) {
		s.logger.Warn("mark enrollment completed failed",
			zap.String("student_id", p.StudentID),
			zap.String("course_id", p.CourseID),
			zap.Error(err),
		)
	}
}
