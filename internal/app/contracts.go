package app

import (
	"context"

	"course-quiz-engine/internal/domain"
)

// CourseRepository supplies course documents (and the quizzes embedded in them).
type CourseRepository interface {
	GetCourse(ctx context.Context, courseID string) (domain.Course, error)
	GetLessonsByCourse(ctx context.Context, courseID string) ([]domain.Lesson, error)
	ListCoursesByTeacher(ctx context.Context, teacherID string) ([]domain.Course, error)
}

// ProgressStore is the durable home of StudentProgress records.
// ReadProgress returns domain.ErrProgressNotFound when no record exists.
type ProgressStore interface {
	ReadProgress(ctx context.Context, studentID, courseID string) (domain.StudentProgress, error)
	WriteProgress(ctx context.Context, progress domain.StudentProgress) error
	ListByCourse(ctx context.Context, courseID string) ([]domain.StudentProgress, error)
}

// EnrollmentStore persists enrollments. CreateEnrollment returns
// domain.ErrAlreadyEnrolled for a duplicate (student, course) pair.
type EnrollmentStore interface {
	CreateEnrollment(ctx context.Context, enrollment domain.Enrollment) error
	ListEnrollments(ctx context.Context, studentID string) ([]domain.Enrollment, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]domain.Enrollment, error)
	UpdateStatus(ctx context.Context, studentID, courseID string, status domain.EnrollmentStatus) error
}

// SessionRepository keeps the active quiz session of each user.
type SessionRepository interface {
	// Put registers s for userID and returns the session it replaced, if any.
	Put(userID string, s *Session) *Session
	Get(userID string) (*Session, bool)
	// Remove drops the user's session only if it is still sessionID.
	Remove(userID, sessionID string)
}

// SessionClaims is implemented by session repositories shared between
// instances. Claimed reports whether sessionID is still the attempt the
// deployment holds for userID; a newer attempt started elsewhere supersedes it.
type SessionClaims interface {
	Claimed(ctx context.Context, userID, sessionID string) (bool, error)
}

// ResultQueue defers quiz results whose persistence failed.
type ResultQueue interface {
	Enqueue(ctx context.Context, p PendingResult)
	// PendingResults lists the queued attempts of quizID for the student.
	PendingResults(studentID, courseID, quizID string) []domain.QuizResult
}

// PendingStore keeps queued results until the reconciler records them.
// SavePending upserts on the result id.
type PendingStore interface {
	SavePending(ctx context.Context, p PendingResult) error
	DeletePending(ctx context.Context, resultID string) error
	ListPending(ctx context.Context) ([]PendingResult, error)
}
