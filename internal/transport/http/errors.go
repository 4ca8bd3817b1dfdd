package http

import (
	"errors"
	"net/http"

	"course-quiz-engine/internal/app"
	"course-quiz-engine/internal/auth"
	"course-quiz-engine/internal/domain"
)

// errorCode is the stable machine readable code sent next to error messages.
func errorCode(err error) string {
	var unanswered *app.UnansweredError
	switch {
	case errors.As(err, &unanswered):
		return "unanswered_questions"
	case errors.Is(err, auth.ErrNoIdentity), errors.Is(err, auth.ErrInvalidToken):
		return "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, domain.ErrAlreadyEnrolled):
		return "already_enrolled"
	case errors.Is(err, domain.ErrCourseNotFound):
		return "course_not_found"
	case errors.Is(err, domain.ErrQuizNotFound):
		return "quiz_not_found"
	case errors.Is(err, domain.ErrLessonNotFound):
		return "lesson_not_found"
	case errors.Is(err, domain.ErrProgressNotFound):
		return "not_enrolled"
	case errors.Is(err, domain.ErrEnrollmentNotFound):
		return "enrollment_not_found"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, domain.ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, domain.ErrQuizLoad):
		return "quiz_load_failed"
	case errors.Is(err, domain.ErrResultNotRecorded):
		return "result_not_recorded"
	case errors.Is(err, domain.ErrProgressWrite):
		return "progress_write_failed"
	default:
		return "internal"
	}
}

func statusFor(err error) int {
	switch errorCode(err) {
	case "unauthorized":
		return http.StatusUnauthorized
	case "forbidden", "not_eligible":
		return http.StatusForbidden
	case "already_enrolled", "session_closed", "unanswered_questions":
		return http.StatusConflict
	case "course_not_found", "quiz_not_found", "lesson_not_found", "not_enrolled",
		"enrollment_not_found", "session_not_found":
		return http.StatusNotFound
	case "quiz_load_failed", "result_not_recorded", "progress_write_failed":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
