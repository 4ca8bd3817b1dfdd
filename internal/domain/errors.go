package domain

import "errors"

var (
	// ErrInvalidQuiz wraps every validation failure reported by NewQuiz.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrQuizNotFound indicates the quiz is not part of the requested course.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizLoad is returned when an attempt cannot start because its quiz could not be loaded.
	ErrQuizLoad = errors.New("quiz could not be loaded")
	// ErrCourseNotFound indicates the course content could not be found.
	ErrCourseNotFound = errors.New("course not found")
	// ErrLessonNotFound indicates a lesson id outside the course's lesson list.
	ErrLessonNotFound = errors.New("lesson not found")
	// ErrSessionNotFound is returned when the user has no active quiz session.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionClosed is returned when acting on a completed or abandoned session.
	ErrSessionClosed = errors.New("quiz session closed")
	// ErrProgressNotFound is returned before the enrollment created a progress record.
	ErrProgressNotFound = errors.New("progress not found")
	// ErrProgressWrite wraps durable write failures of a progress record.
	ErrProgressWrite = errors.New("progress write failed")
	// ErrResultNotRecorded accompanies a graded attempt whose result may not have been saved.
	ErrResultNotRecorded = errors.New("quiz result may not be recorded")
	// ErrNotEligible is returned when a student is not allowed to start a quiz.
	ErrNotEligible = errors.New("quiz not available")
	// ErrAlreadyEnrolled is returned on a duplicate enrollment.
	ErrAlreadyEnrolled = errors.New("already enrolled")
	// ErrEnrollmentNotFound indicates no enrollment matched.
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	// ErrForbidden is returned when the caller's role does not allow the operation.
	ErrForbidden = errors.New("forbidden")
)
