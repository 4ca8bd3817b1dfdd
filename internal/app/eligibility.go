package app

import "course-quiz-engine/internal/domain"

// DecisionReason explains an eligibility decision.
type DecisionReason string

const (
	ReasonNotEnrolled       DecisionReason = "not_enrolled"
	ReasonAttemptsExhausted DecisionReason = "attempts_exhausted"
	ReasonRetake            DecisionReason = "retake"
	ReasonModuleComplete    DecisionReason = "module_complete"
	ReasonModuleIncomplete  DecisionReason = "module_incomplete"
	ReasonCourseComplete    DecisionReason = "course_complete"
	ReasonCourseIncomplete  DecisionReason = "course_incomplete"
	ReasonLessonQuiz        DecisionReason = "lesson_quiz"
	ReasonUnknownOwner      DecisionReason = "unknown_owner"
)

// Decision is the answer of the resolver for one quiz.
type Decision struct {
	QuizID          string         `json:"quizId"`
	Eligible        bool           `json:"eligible"`
	Reason          DecisionReason `json:"reason"`
	AttemptsUsed    int            `json:"attemptsUsed"`
	AttemptsAllowed int            `json:"attemptsAllowed"`
	MissingLessons  []string       `json:"missingLessons,omitempty"`
}

// EligibilityResolver gates quiz attempts on the course structure and the
// student's progress. It holds no state.
type EligibilityResolver struct{}

func NewEligibilityResolver() EligibilityResolver { return EligibilityResolver{} }

// CanTakeQuiz decides whether the student owning progress may start quizID.
// A nil progress means the student is not enrolled.
func (r EligibilityResolver) CanTakeQuiz(course domain.Course, progress *domain.StudentProgress, quizID string) Decision {
	return r.Decide(course, progress, quizID, 0)
}

// Decide is CanTakeQuiz with pending graded attempts of quizID that are not in
// progress yet. They count against the attempt limit.
func (EligibilityResolver) Decide(course domain.Course, progress *domain.StudentProgress, quizID string, pending int) Decision {
	d := Decision{QuizID: quizID}

	quiz, owner, located := course.LocateQuiz(quizID)
	if !located {
		d.Reason = ReasonUnknownOwner
		return d
	}
	d.AttemptsAllowed = quiz.MaxAttemptsOrDefault()

	if progress == nil {
		d.Reason = ReasonNotEnrolled
		return d
	}

	d.AttemptsUsed = progress.Attempts(quizID) + pending
	if d.AttemptsUsed >= d.AttemptsAllowed {
		d.Reason = ReasonAttemptsExhausted
		return d
	}
	if d.AttemptsUsed > 0 {
		d.Eligible, d.Reason = true, ReasonRetake
		return d
	}

	switch owner.Kind {
	case domain.OwnerModule:
		module, ok := course.Module(owner.ModuleID)
		if !ok {
			d.Reason = ReasonUnknownOwner
			return d
		}
		for _, lesson := range module.Lessons {
			if !progress.HasCompletedLesson(lesson.ID) {
				d.MissingLessons = append(d.MissingLessons, lesson.ID)
			}
		}
		if len(d.MissingLessons) > 0 {
			d.Reason = ReasonModuleIncomplete
			return d
		}
		d.Eligible, d.Reason = true, ReasonModuleComplete
	case domain.OwnerCourse:
		if progress.CourseCompleted || progress.OverallProgress >= 100 {
			d.Eligible, d.Reason = true, ReasonCourseComplete
			return d
		}
		d.Reason = ReasonCourseIncomplete
	case domain.OwnerLesson:
		d.Eligible, d.Reason = true, ReasonLessonQuiz
	default:
		d.Reason = ReasonUnknownOwner
	}
	return d
}
