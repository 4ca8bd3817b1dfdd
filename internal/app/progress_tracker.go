package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"course-quiz-engine/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProgressListener is notified after every successful progress mutation.
type ProgressListener interface {
	ProgressChanged(ctx context.Context, progress domain.StudentProgress)
}

// ProgressListenerFunc adapts a function to ProgressListener.
type ProgressListenerFunc func(ctx context.Context, progress domain.StudentProgress)

func (f ProgressListenerFunc) ProgressChanged(ctx context.Context, progress domain.StudentProgress) {
	f(ctx, progress)
}

// ProgressTracker is the single writer of StudentProgress. Mutations of the
// same (student, course) pair are serialized within the process; the store
// remains last-write-wins across processes.
type ProgressTracker struct {
	store   ProgressStore
	courses CourseRepository
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string

	locks sync.Map // progress key -> *sync.Mutex

	mu        sync.RWMutex
	listeners map[int]ProgressListener
	nextID    int
}

func NewProgressTracker(store ProgressStore, courses CourseRepository, logger *zap.Logger) *ProgressTracker {
	return &ProgressTracker{
		store:     store,
		courses:   courses,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
		listeners: make(map[int]ProgressListener),
	}
}

// NewProgressTrackerWithClock is used by tests for deterministic timestamps.
func NewProgressTrackerWithClock(store ProgressStore, courses CourseRepository, logger *zap.Logger, now func() time.Time) *ProgressTracker {
	t := NewProgressTracker(store, courses, logger)
	t.now = now
	return t
}

// Subscribe registers l and returns a function removing it.
func (t *ProgressTracker) Subscribe(l ProgressListener) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = l
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// CreateForEnrollment creates the progress record of an enrollment. It is a
// no-op returning the existing record when one is already present.
func (t *ProgressTracker) CreateForEnrollment(ctx context.Context, studentID, courseID, enrollmentID string) (domain.StudentProgress, error) {
	unlock := t.lock(studentID, courseID)
	defer unlock()

	existing, err := t.store.ReadProgress(ctx, studentID, courseID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrProgressNotFound) {
		return domain.StudentProgress{}, fmt.Errorf("read progress: %w", err)
	}

	progress := domain.NewStudentProgress(t.newID(), studentID, courseID, enrollmentID)
	progress.LastUpdated = t.now()
	return t.write(ctx, progress)
}

// GetProgress returns the student's progress in the course or
// domain.ErrProgressNotFound before enrollment.
func (t *ProgressTracker) GetProgress(ctx context.Context, studentID, courseID string) (domain.StudentProgress, error) {
	progress, err := t.store.ReadProgress(ctx, studentID, courseID)
	if err != nil {
		return domain.StudentProgress{}, err
	}

	// a record written before the lesson total was known caches 0
	if progress.OverallProgress == 0 && len(progress.CompletedLessons) > 0 {
		if ids, known := t.courseLessons(ctx, courseID); known {
			if pct, ok := domain.ProgressPercent(progress.CompletedWithin(ids), len(ids)); ok {
				progress.OverallProgress = pct
			}
		}
	}
	return progress, nil
}

// CourseProgress lists the progress of every student of a course.
func (t *ProgressTracker) CourseProgress(ctx context.Context, courseID string) ([]domain.StudentProgress, error) {
	return t.store.ListByCourse(ctx, courseID)
}

// MarkLessonCompleted adds lessonID to the completed set and recomputes the
// overall percentage. Completing an already completed lesson changes nothing.
func (t *ProgressTracker) MarkLessonCompleted(ctx context.Context, studentID, courseID, lessonID string) (domain.StudentProgress, error) {
	unlock := t.lock(studentID, courseID)
	defer unlock()

	current, err := t.store.ReadProgress(ctx, studentID, courseID)
	if err != nil {
		return domain.StudentProgress{}, err
	}
	if current.HasCompletedLesson(lessonID) {
		return current, nil
	}

	course, courseKnown := t.course(ctx, courseID)
	ids, known := t.lessonIDs(ctx, course, courseKnown, courseID)
	if known {
		if _, ok := ids[lessonID]; !ok {
			return current, fmt.Errorf("%w: %s in course %s", domain.ErrLessonNotFound, lessonID, courseID)
		}
	}

	next := current.Clone()
	next.CompletedLessons = append(next.CompletedLessons, lessonID)
	next.CurrentLesson = lessonID
	if courseKnown {
		next.CurrentModule = moduleOf(course, lessonID)
	}
	if known {
		if pct, ok := domain.ProgressPercent(next.CompletedWithin(ids), len(ids)); ok {
			next.OverallProgress = max(pct, current.OverallProgress)
		}
	}
	t.applyTerminal(&next, course, courseKnown, "")
	next.LastUpdated = t.now()

	saved, err := t.write(ctx, next)
	if err != nil {
		return current, err
	}
	t.logger.Debug("lesson completed",
		zap.String("student_id", studentID),
		zap.String("course_id", courseID),
		zap.String("lesson_id", lessonID),
		zap.Int("overall_progress", saved.OverallProgress),
	)
	return saved, nil
}

// RecordQuizResult appends a graded attempt. Recording the same result id
// twice is a no-op so failed writes can be retried safely.
func (t *ProgressTracker) RecordQuizResult(ctx context.Context, studentID, courseID string, result domain.QuizResult) (domain.StudentProgress, error) {
	unlock := t.lock(studentID, courseID)
	defer unlock()

	current, err := t.store.ReadProgress(ctx, studentID, courseID)
	if err != nil {
		return domain.StudentProgress{}, err
	}
	if result.ID != "" && current.HasResult(result.QuizID, result.ID) {
		return current, nil
	}

	next := current.Clone()
	if result.ID == "" {
		result.ID = t.newID()
	}
	if result.AttemptNumber == 0 {
		result.AttemptNumber = next.Attempts(result.QuizID) + 1
	}
	next.QuizResults[result.QuizID] = append(next.QuizResults[result.QuizID], result)

	course, courseKnown := t.course(ctx, courseID)
	t.applyTerminal(&next, course, courseKnown, result.QuizID)
	next.LastUpdated = t.now()

	saved, err := t.write(ctx, next)
	if err != nil {
		return current, err
	}
	t.logger.Info("quiz result recorded",
		zap.String("student_id", studentID),
		zap.String("course_id", courseID),
		zap.String("quiz_id", result.QuizID),
		zap.Int("score", result.Score),
		zap.Bool("passed", result.Passed),
		zap.Int("attempt", result.AttemptNumber),
		zap.Bool("course_completed", saved.CourseCompleted),
	)
	return saved, nil
}

// applyTerminal sets CourseCompleted when the course's terminal condition
// holds: a passed final quiz when the course has one, full lesson progress
// otherwise. It never clears the flag. quizID names the quiz whose result is
// being recorded and is empty for lesson completions.
func (t *ProgressTracker) applyTerminal(p *domain.StudentProgress, course domain.Course, courseKnown bool, quizID string) {
	if p.CourseCompleted || !courseKnown {
		return
	}
	if course.FinalQuiz != nil {
		// results of other quizzes cannot complete the course
		if quizID == "" || course.IsFinalQuiz(quizID) {
			p.CourseCompleted = p.PassedQuiz(course.FinalQuiz.ID)
		}
		return
	}
	p.CourseCompleted = p.OverallProgress >= 100
}

func (t *ProgressTracker) write(ctx context.Context, p domain.StudentProgress) (domain.StudentProgress, error) {
	if err := t.store.WriteProgress(ctx, p); err != nil {
		t.logger.Warn("progress write failed",
			zap.String("student_id", p.StudentID),
			zap.String("course_id", p.CourseID),
			zap.Error(err),
		)
		return domain.StudentProgress{}, fmt.Errorf("%w: %w", domain.ErrProgressWrite, err)
	}
	t.notify(ctx, p)
	return p, nil
}

func (t *ProgressTracker) notify(ctx context.Context, p domain.StudentProgress) {
	t.mu.RLock()
	listeners := make([]ProgressListener, 0, len(t.listeners))
	for _, l := range t.listeners {
		listeners = append(listeners, l)
	}
	t.mu.RUnlock()

	for _, l := range listeners {
		l.ProgressChanged(ctx, p.Clone())
	}
}

func (t *ProgressTracker) course(ctx context.Context, courseID string) (domain.Course, bool) {
	course, err := t.courses.GetCourse(ctx, courseID)
	if err != nil {
		t.logger.Warn("course lookup failed", zap.String("course_id", courseID), zap.Error(err))
		return domain.Course{}, false
	}
	return course, true
}

// courseLessons resolves the lesson id set of a course; known is false when
// the total cannot be determined.
func (t *ProgressTracker) courseLessons(ctx context.Context, courseID string) (map[string]struct{}, bool) {
	course, ok := t.course(ctx, courseID)
	return t.lessonIDs(ctx, course, ok, courseID)
}

func (t *ProgressTracker) lessonIDs(ctx context.Context, course domain.Course, courseKnown bool, courseID string) (map[string]struct{}, bool) {
	if courseKnown {
		if ids := course.LessonIDs(); len(ids) > 0 {
			return ids, true
		}
	}
	lessons, err := t.courses.GetLessonsByCourse(ctx, courseID)
	if err != nil {
		t.logger.Warn("lesson lookup failed", zap.String("course_id", courseID), zap.Error(err))
		return nil, false
	}
	if len(lessons) == 0 {
		return nil, false
	}
	ids := make(map[string]struct{}, len(lessons))
	for _, l := range lessons {
		ids[l.ID] = struct{}{}
	}
	return ids, true
}

func (t *ProgressTracker) lock(studentID, courseID string) func() {
	v, _ := t.locks.LoadOrStore(studentID+"/"+courseID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func moduleOf(course domain.Course, lessonID string) string {
	for _, m := range course.Modules {
		for _, l := range m.Lessons {
			if l.ID == lessonID {
				return m.ID
			}
		}
	}
	return ""
}
