package domain

import (
	"math"
	"slices"
)

// NewStudentProgress returns an empty progress record for an enrollment.
func NewStudentProgress(id, studentID, courseID, enrollmentID string) StudentProgress {
	return StudentProgress{
		ID:               id,
		StudentID:        studentID,
		CourseID:         courseID,
		EnrollmentID:     enrollmentID,
		CompletedLessons: []string{},
		QuizResults:      map[string][]QuizResult{},
	}
}

// HasCompletedLesson reports whether lessonID is in the completed set.
func (p StudentProgress) HasCompletedLesson(lessonID string) bool {
	return slices.Contains(p.CompletedLessons, lessonID)
}

// Attempts returns the number of recorded attempts for quizID.
func (p StudentProgress) Attempts(quizID string) int {
	return len(p.QuizResults[quizID])
}

// HasResult reports whether a result with the given id was already recorded.
func (p StudentProgress) HasResult(quizID, resultID string) bool {
	for _, r := range p.QuizResults[quizID] {
		if r.ID == resultID {
			return true
		}
	}
	return false
}

// BestResult returns the highest scoring attempt of quizID.
func (p StudentProgress) BestResult(quizID string) (QuizResult, bool) {
	results := p.QuizResults[quizID]
	if len(results) == 0 {
		return QuizResult{}, false
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.Score > best.Score {
			best = r
		}
	}
	return best, true
}

// PassedQuiz reports whether any attempt of quizID passed.
func (p StudentProgress) PassedQuiz(quizID string) bool {
	for _, r := range p.QuizResults[quizID] {
		if r.Passed {
			return true
		}
	}
	return false
}

// CompletedWithin counts completed lessons that belong to lessonIDs.
func (p StudentProgress) CompletedWithin(lessonIDs map[string]struct{}) int {
	n := 0
	for _, id := range p.CompletedLessons {
		if _, ok := lessonIDs[id]; ok {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers can mutate it freely.
func (p StudentProgress) Clone() StudentProgress {
	out := p
	out.CompletedLessons = slices.Clone(p.CompletedLessons)
	if out.CompletedLessons == nil {
		out.CompletedLessons = []string{}
	}
	out.QuizResults = make(map[string][]QuizResult, len(p.QuizResults))
	for quizID, results := range p.QuizResults {
		cloned := make([]QuizResult, len(results))
		for i, r := range results {
			r.Answers = slices.Clone(r.Answers)
			cloned[i] = r
		}
		out.QuizResults[quizID] = cloned
	}
	return out
}

// ProgressPercent returns round(completed/total*100) clamped to [0,100].
// ok is false when total is unknown.
func ProgressPercent(completed, total int) (int, bool) {
	if total <= 0 {
		return 0, false
	}
	pct := int(math.Round(float64(completed) / float64(total) * 100))
	return min(max(pct, 0), 100), true
}
