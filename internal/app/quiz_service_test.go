package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"course-quiz-engine/internal/app"
	"course-quiz-engine/internal/auth"
	"course-quiz-engine/internal/domain"
	"course-quiz-engine/internal/infra/memory"
	"course-quiz-engine/internal/timer"
	"go.uber.org/zap"
)

var (
	student = auth.Identity{UserID: "s1", Role: domain.RoleStudent}
	teacher = auth.Identity{UserID: "t1", Role: domain.RoleTeacher}
)

func TestTimeoutAutoCompletesWithPartialAnswers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.enroll(t, student)
	h.complete(t, student, "L1", "L2")

	snap, err := h.svc.Start(ctx, student, "c1", "mq")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// time limit 0 falls back to the default
	if snap.Remaining != int(domain.DefaultTimeLimit/time.Second) {
		t.Fatalf("expected %d seconds remaining, got %d", int(domain.DefaultTimeLimit/time.Second), snap.Remaining)
	}
	if snap.State != app.StateInProgress || snap.Unanswered != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, err := h.svc.SelectAnswer(student.UserID, 0, 0); err != nil {
		t.Fatalf("select: %v", err)
	}

	h.clock.Advance(domain.DefaultTimeLimit - time.Second)
	snap, err = h.svc.Snapshot(student.UserID)
	if err != nil || snap.State != app.StateInProgress || snap.Remaining != 1 {
		t.Fatalf("expected one second left, got %+v err=%v", snap, err)
	}

	h.clock.Advance(time.Second)
	h.svc.Wait()

	if h.clock.Pending() != 0 {
		t.Fatalf("expected countdown cancelled, %d tasks pending", h.clock.Pending())
	}
	if _, err := h.svc.Snapshot(student.UserID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session released after recording, got %v", err)
	}

	progress, err := h.tracker.GetProgress(ctx, student.UserID, "c1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	results := progress.QuizResults["mq"]
	if len(results) != 1 {
		t.Fatalf("expected one recorded attempt, got %d", len(results))
	}
	r := results[0]
	if r.Score != 33 || r.Passed || r.Reason != string(app.ReasonTimedOut) || r.CorrectAnswers != 1 {
		t.Fatalf("unexpected result %+v", r)
	}
	if r.AttemptNumber != 1 || r.TimeTaken != domain.DefaultTimeLimit {
		t.Fatalf("unexpected attempt bookkeeping %+v", r)
	}
}

func TestSubmitWithUnansweredRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.enroll(t, student)
	h.complete(t, student, "L1", "L2")

	if _, err := h.svc.Start(ctx, student, "c1", "mq"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _ = h.svc.SelectAnswer(student.UserID, 2, 0)

	_, err := h.svc.Submit(ctx, student.UserID, false)
	var unanswered *app.UnansweredError
	if !errors.As(err, &unanswered) || unanswered.Remaining != 2 {
		t.Fatalf("expected confirmation for 2 unanswered, got %v", err)
	}
	snap, _ := h.svc.Snapshot(student.UserID)
	if snap.State != app.StateInProgress {
		t.Fatalf("unconfirmed submit must not complete, state %s", snap.State)
	}

	result, err := h.svc.Submit(ctx, student.UserID, true)
	if err != nil {
		t.Fatalf("confirmed submit: %v", err)
	}
	if result.Score != 33 || result.Reason != string(app.ReasonSubmitted) || result.AttemptNumber != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("expected countdown cancelled")
	}

	// the scorer ran once; a second submit has no session to act on
	if _, err := h.svc.Submit(ctx, student.UserID, true); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAbandonRecordsNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.enroll(t, student)

	if _, err := h.svc.Start(ctx, student, "c1", "lq"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _ = h.svc.SelectAnswer(student.UserID, 0, 0)
	writes := h.store.Writes()

	if !h.svc.Abandon(student.UserID) {
		t.Fatalf("expected abandon to succeed")
	}
	if h.store.Writes() != writes {
		t.Fatalf("abandon must not touch progress")
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("expected countdown cancelled")
	}

	h.clock.Advance(time.Hour)
	progress, _ := h.tracker.GetProgress(ctx, student.UserID, "c1")
	if progress.Attempts("lq") != 0 {
		t.Fatalf("abandoned attempt must not count, got %d", progress.Attempts("lq"))
	}

	// a fresh start begins from an empty buffer
	snap, err := h.svc.Start(ctx, student, "c1", "lq")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if snap.Answers[0] != domain.Unanswered {
		t.Fatalf("expected fresh buffer, got %v", snap.Answers)
	}
}

func TestFailedSaveIsSurfacedAndQueued(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.enroll(t, student)

	if _, err := h.svc.Start(ctx, student, "c1", "lq"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _ = h.svc.SelectAnswer(student.UserID, 0, 0)

	h.store.FailWrites(-1)
	result, err := h.svc.Submit(ctx, student.UserID, false)
	if !errors.Is(err, domain.ErrResultNotRecorded) {
		t.Fatalf("expected ErrResultNotRecorded, got %v", err)
	}
	if result.Score != 100 || !result.Passed {
		t.Fatalf("graded result must still be returned, got %+v", result)
	}
	pending := h.queue.Pending()
	if len(pending) != 1 || pending[0].Result.ID != result.ID {
		t.Fatalf("expected result queued, got %+v", pending)
	}

	if n := h.queue.RetryPending(ctx); n != 0 {
		t.Fatalf("expected retry to fail while store is down, recorded %d", n)
	}
	if len(h.queue.Pending()) != 1 {
		t.Fatalf("failed retry must keep the result queued")
	}

	h.store.FailWrites(0)
	if n := h.queue.RetryPending(ctx); n != 1 {
		t.Fatalf("expected one reconciled result, got %d", n)
	}
	progress, _ := h.tracker.GetProgress(ctx, student.UserID, "c1")
	if progress.Attempts("lq") != 1 {
		t.Fatalf("expected reconciled attempt, got %d", progress.Attempts("lq"))
	}
	if n := h.queue.RetryPending(ctx); n != 0 {
		t.Fatalf("expected empty queue, recorded %d", n)
	}
}

func TestAttemptsExhausted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.enroll(t, student)
	h.complete(t, student, "L1", "L2", "L3", "L4")

	for i := 0; i < 2; i++ {
		if _, err := h.svc.Start(ctx, student, "c1", "final"); err != nil {
			t.Fatalf("start attempt %d: %v", i+1, err)
		}
		if _, err := h.svc.Submit(ctx, student.UserID, true); err != nil {
			t.Fatalf("submit attempt %d: %v", i+1, err)
		}
	}

	if _, err := h.svc.Start(ctx, student, "c1", "final"); !errors.Is(err, domain.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible after max attempts, got %v", err)
	}
	d, err := h.svc.Eligibility(ctx, student, "c1", "final")
	if err != nil {
		t.Fatalf("eligibility: %v", err)
	}
	if d.Eligible || d.Reason != app.ReasonAttemptsExhausted || d.AttemptsUsed != 2 {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestPassingFinalQuizCompletesCourse(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	enrollment := h.enroll(t, student)
	h.complete(t, student, "L1", "L2", "L3", "L4")

	progress, _ := h.tracker.GetProgress(ctx, student.UserID, "c1")
	if progress.OverallProgress != 100 || progress.CourseCompleted {
		t.Fatalf("course with a final quiz completes on passing it, got %+v", progress)
	}

	if _, err := h.svc.Start(ctx, student, "c1", "final"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _ = h.svc.SelectAnswer(student.UserID, 0, 0)
	_, _ = h.svc.SelectAnswer(student.UserID, 1, 0)
	result, err := h.svc.Submit(ctx, student.UserID, false)
	if err != nil || !result.Passed {
		t.Fatalf("expected passing result, got %+v err=%v", result, err)
	}

	progress, _ = h.tracker.GetProgress(ctx, student.UserID, "c1")
	if !progress.CourseCompleted {
		t.Fatalf("expected course completed")
	}
	list, _ := h.enrollments.ListEnrollments(ctx, student.UserID)
	if len(list) != 1 || list[0].ID != enrollment.ID || list[0].Status != domain.EnrollmentCompleted {
		t.Fatalf("expected enrollment completed, got %+v", list)
	}
}

func TestStartAbandonsPreviousSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.enroll(t, student)

	if _, err := h.svc.Start(ctx, student, "c1", "lq"); err != nil {
		t.Fatalf("start: %v", err)
	}
	events, cancel, err := h.svc.Subscribe(student.UserID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := h.svc.Start(ctx, student, "c1", "lq"); err != nil {
		t.Fatalf("second start: %v", err)
	}

	var last app.SessionEvent
	for ev := range events {
		last = ev
	}
	if last.Type != app.EventAbandoned {
		t.Fatalf("expected first session abandoned, last event %s", last.Type)
	}
	if h.clock.Pending() != 1 {
		t.Fatalf("expected only the new countdown, got %d", h.clock.Pending())
	}
}

func TestStartRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	if _, err := h.svc.Start(ctx, teacher, "c1", "lq"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for teacher, got %v", err)
	}
	if _, err := h.svc.Start(ctx, student, "c1", "lq"); !errors.Is(err, domain.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible before enrollment, got %v", err)
	}
	h.enroll(t, student)
	if _, err := h.svc.Start(ctx, student, "c1", "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
	if _, err := h.svc.Start(ctx, student, "missing", "lq"); !errors.Is(err, domain.ErrCourseNotFound) {
		t.Fatalf("expected ErrCourseNotFound, got %v", err)
	}
	if _, err := h.svc.Snapshot(student.UserID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("failed starts must not leave a session, got %v", err)
	}
}

func TestQueuedAttemptsCountAgainstLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.enroll(t, student)
	h.complete(t, student, "L1", "L2", "L3", "L4")

	if _, err := h.svc.Start(ctx, student, "c1", "final"); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.store.FailWrites(-1)
	queued, err := h.svc.Submit(ctx, student.UserID, true)
	if !errors.Is(err, domain.ErrResultNotRecorded) {
		t.Fatalf("expected ErrResultNotRecorded, got %v", err)
	}
	if queued.AttemptNumber != 1 {
		t.Fatalf("queued attempt must be numbered at completion, got %d", queued.AttemptNumber)
	}
	h.store.FailWrites(0)

	if _, err := h.svc.Start(ctx, student, "c1", "final"); err != nil {
		t.Fatalf("second start: %v", err)
	}
	second, err := h.svc.Submit(ctx, student.UserID, true)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.AttemptNumber != 2 {
		t.Fatalf("expected attempt 2, got %d", second.AttemptNumber)
	}

	if _, err := h.svc.Start(ctx, student, "c1", "final"); !errors.Is(err, domain.ErrNotEligible) {
		t.Fatalf("queued attempt must count against the limit, got %v", err)
	}
	d, _ := h.svc.Eligibility(ctx, student, "c1", "final")
	if d.Eligible || d.AttemptsUsed != 2 {
		t.Fatalf("unexpected decision %+v", d)
	}

	if n := h.queue.RetryPending(ctx); n != 1 {
		t.Fatalf("expected one reconciled result, got %d", n)
	}
	progress, _ := h.tracker.GetProgress(ctx, student.UserID, "c1")
	results := progress.QuizResults["final"]
	if len(results) != 2 {
		t.Fatalf("expected maxAttempts results, got %d", len(results))
	}
	numbers := map[int]string{}
	for _, r := range results {
		numbers[r.AttemptNumber] = r.ID
	}
	if numbers[1] != queued.ID || numbers[2] != second.ID {
		t.Fatalf("unexpected attempt numbering %+v", numbers)
	}
	if _, err := h.svc.Start(ctx, student, "c1", "final"); !errors.Is(err, domain.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible after reconciliation, got %v", err)
	}
}

func TestRejectedStartKeepsRunningSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.enroll(t, student)

	started, err := h.svc.Start(ctx, student, "c1", "lq")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _ = h.svc.SelectAnswer(student.UserID, 0, 0)

	if _, err := h.svc.Start(ctx, student, "c1", "final"); !errors.Is(err, domain.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible for the locked final, got %v", err)
	}
	if _, err := h.svc.Start(ctx, student, "c1", "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}

	snap, err := h.svc.Snapshot(student.UserID)
	if err != nil {
		t.Fatalf("running session lost: %v", err)
	}
	if snap.ID != started.ID || snap.State != app.StateInProgress || snap.Answers[0] != 0 {
		t.Fatalf("running session changed: %+v", snap)
	}
	if h.clock.Pending() != 1 {
		t.Fatalf("expected the running countdown only, got %d", h.clock.Pending())
	}
}

func TestSessionTakenOverElsewhereIsAbandoned(t *testing.T) {
	ctx := context.Background()
	sessions := newClaimStore()
	h := newHarnessWith(t, sessions)
	h.enroll(t, student)

	if _, err := h.svc.Start(ctx, student, "c1", "lq"); err != nil {
		t.Fatalf("start: %v", err)
	}
	events, cancel, err := h.svc.Subscribe(student.UserID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	sessions.takeOver(student.UserID, "elsewhere")
	if _, err := h.svc.SelectAnswer(student.UserID, 0, 0); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	var last app.SessionEvent
	for ev := range events {
		last = ev
	}
	if last.Type != app.EventAbandoned {
		t.Fatalf("expected superseded session abandoned, last event %s", last.Type)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("expected countdown cancelled, got %d", h.clock.Pending())
	}
}

func TestSupersededTimeoutIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	sessions := newClaimStore()
	h := newHarnessWith(t, sessions)
	h.enroll(t, student)

	if _, err := h.svc.Start(ctx, student, "c1", "lq"); err != nil {
		t.Fatalf("start: %v", err)
	}
	sessions.takeOver(student.UserID, "elsewhere")
	h.clock.Advance(5 * time.Minute)
	h.svc.Wait()

	progress, _ := h.tracker.GetProgress(ctx, student.UserID, "c1")
	if progress.Attempts("lq") != 0 || len(h.queue.Pending()) != 0 {
		t.Fatalf("superseded attempt must not be recorded, got %d attempts", progress.Attempts("lq"))
	}
}

// claimStore is a session repository shared with another instance that can
// claim a user's attempt.
type claimStore struct {
	*memory.SessionStore

	mu    sync.Mutex
	taken map[string]string
}

func newClaimStore() *claimStore {
	return &claimStore{SessionStore: memory.NewSessionStore(), taken: make(map[string]string)}
}

func (c *claimStore) takeOver(userID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taken[userID] = sessionID
}

func (c *claimStore) Claimed(_ context.Context, userID, sessionID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	other, ok := c.taken[userID]
	return !ok || other == sessionID, nil
}

type harness struct {
	svc         *app.QuizService
	tracker     *app.ProgressTracker
	enrollSvc   *app.EnrollmentService
	stats       *app.StatisticsService
	store       *memory.ProgressStore
	enrollments *memory.EnrollmentStore
	queue       *app.Reconciler
	clock       *timer.Manual
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, memory.NewSessionStore())
}

func newHarnessWith(t *testing.T, sessions app.SessionRepository) *harness {
	t.Helper()
	clock := timer.NewManual(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	courses := memory.NewCourseRepository(memory.NewStaticCourseLoader(map[string]domain.Course{
		"c1": sampleCourse(),
	}), time.Minute)
	store := memory.NewProgressStore()
	enrollments := memory.NewEnrollmentStore()
	logger := zap.NewNop()

	tracker := app.NewProgressTrackerWithClock(store, courses, logger, clock.Now)
	queue := app.NewReconciler(tracker, memory.NewPendingStore(), logger)
	svc := app.NewQuizService(app.QuizServiceDeps{
		Sessions:    sessions,
		Courses:     courses,
		Tracker:     tracker,
		Resolver:    app.NewEligibilityResolver(),
		Scheduler:   clock,
		Queue:       queue,
		Logger:      logger,
		SaveRetries: 2,
	})
	enrollSvc := app.NewEnrollmentService(enrollments, courses, tracker, logger)
	t.Cleanup(enrollSvc.Close)

	return &harness{
		svc:         svc,
		tracker:     tracker,
		enrollSvc:   enrollSvc,
		stats:       app.NewStatisticsService(courses, enrollments, tracker),
		store:       store,
		enrollments: enrollments,
		queue:       queue,
		clock:       clock,
	}
}

func (h *harness) enroll(t *testing.T, id auth.Identity) domain.Enrollment {
	t.Helper()
	e, err := h.enrollSvc.Enroll(context.Background(), id, "c1")
	if err != nil {
		t.Fatalf("enroll %s: %v", id.UserID, err)
	}
	return e
}

func (h *harness) complete(t *testing.T, id auth.Identity, lessons ...string) domain.StudentProgress {
	t.Helper()
	var p domain.StudentProgress
	for _, l := range lessons {
		var err error
		p, err = h.tracker.MarkLessonCompleted(context.Background(), id.UserID, "c1", l)
		if err != nil {
			t.Fatalf("complete %s: %v", l, err)
		}
	}
	return p
}

// sampleCourse has four lessons. Module m1 (L1, L2) owns quiz mq, lesson L3
// owns quiz lq and the course owns the final quiz.
func sampleCourse() domain.Course {
	mq := quiz("mq", 70, 0, 0, 1, 1, 1)
	lq := quiz("lq", 50, 5, 0, 1)
	final := quiz("final", 70, 10, 2, 10, 10)
	return domain.Course{
		ID:          "c1",
		Title:       "Go basics",
		TeacherID:   "t1",
		IsPublished: true,
		Modules: []domain.Module{
			{
				ID: "m1", Order: 1, Quiz: &mq,
				Lessons: []domain.Lesson{
					{ID: "L1", CourseID: "c1", Type: domain.LessonText, Order: 1},
					{ID: "L2", CourseID: "c1", Type: domain.LessonVideo, Order: 2},
				},
			},
			{
				ID: "m2", Order: 2,
				Lessons: []domain.Lesson{
					{ID: "L3", CourseID: "c1", Type: domain.LessonQuiz, Order: 1, Quiz: &lq},
					{ID: "L4", CourseID: "c1", Type: domain.LessonDocument, Order: 2},
				},
			},
		},
		FinalQuiz: &final,
	}
}

// quiz builds a quiz whose correct option is always index 0.
func quiz(id string, passing, timeLimit, maxAttempts int, points ...int) domain.Quiz {
	q := domain.Quiz{ID: id, Title: id, PassingScore: passing, TimeLimit: timeLimit, MaxAttempts: maxAttempts}
	for i, p := range points {
		q.Questions = append(q.Questions, domain.QuizQuestion{
			ID:            id + "-q" + string(rune('1'+i)),
			Question:      "question",
			Options:       []string{"right", "wrong"},
			CorrectAnswer: 0,
			Points:        p,
		})
	}
	return q
}
