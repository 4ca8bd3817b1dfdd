package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"course-quiz-engine/internal/domain"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// PendingResult is a graded attempt whose persistence has not succeeded yet.
type PendingResult struct {
	StudentID string            `json:"studentId"`
	CourseID  string            `json:"courseId"`
	Result    domain.QuizResult `json:"result"`
	Attempts  int               `json:"attempts"`
	QueuedAt  time.Time         `json:"queuedAt"`
}

// Reconciler retries queued quiz results on a cron schedule until the
// tracker accepts them. Recording is idempotent on the result id, so a result
// that was in fact written before the failure is not duplicated.
type Reconciler struct {
	tracker *ProgressTracker
	store   PendingStore
	logger  *zap.Logger
	now     func() time.Time

	// serializes retry passes
	mu sync.Mutex
}

func NewReconciler(tracker *ProgressTracker, store PendingStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{tracker: tracker, store: store, logger: logger, now: time.Now}
}

func (r *Reconciler) Enqueue(ctx context.Context, p PendingResult) {
	if p.QueuedAt.IsZero() {
		p.QueuedAt = r.now()
	}
	fields := []zap.Field{
		zap.String("student_id", p.StudentID),
		zap.String("course_id", p.CourseID),
		zap.String("quiz_id", p.Result.QuizID),
		zap.String("result_id", p.Result.ID),
	}
	if err := r.store.SavePending(context.WithoutCancel(ctx), p); err != nil {
		r.logger.Error("quiz result lost: pending queue unavailable", append(fields, zap.Error(err))...)
		return
	}
	r.logger.Warn("quiz result queued for reconciliation", fields...)
}

// Pending returns the queue in enqueue order.
func (r *Reconciler) Pending() []PendingResult {
	pending, err := r.store.ListPending(context.Background())
	if err != nil {
		r.logger.Warn("list pending quiz results failed", zap.Error(err))
		return nil
	}
	return pending
}

// PendingResults lists the queued attempts of quizID for the student.
func (r *Reconciler) PendingResults(studentID, courseID, quizID string) []domain.QuizResult {
	var out []domain.QuizResult
	for _, p := range r.Pending() {
		if p.StudentID == studentID && p.CourseID == courseID && p.Result.QuizID == quizID {
			out = append(out, p.Result)
		}
	}
	return out
}

// RetryPending attempts every queued result once and returns how many were
// recorded. Failures stay queued.
func (r *Reconciler) RetryPending(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch, err := r.store.ListPending(ctx)
	if err != nil {
		r.logger.Warn("list pending quiz results failed", zap.Error(err))
		return 0
	}

	recorded, remaining := 0, 0
	for _, p := range batch {
		if ctx.Err() != nil {
			remaining++
			continue
		}
		p.Attempts++
		if _, err := r.tracker.RecordQuizResult(ctx, p.StudentID, p.CourseID, p.Result); err != nil {
			r.logger.Warn("reconcile quiz result failed",
				zap.String("result_id", p.Result.ID),
				zap.Int("attempts", p.Attempts),
				zap.Error(err),
			)
			if err := r.store.SavePending(ctx, p); err != nil {
				r.logger.Warn("update pending quiz result failed", zap.String("result_id", p.Result.ID), zap.Error(err))
			}
			remaining++
			continue
		}
		recorded++
		if err := r.store.DeletePending(ctx, p.Result.ID); err != nil {
			// the next pass records it again as a no-op
			r.logger.Warn("dequeue quiz result failed", zap.String("result_id", p.Result.ID), zap.Error(err))
		}
	}

	if recorded > 0 {
		r.logger.Info("reconciled quiz results", zap.Int("recorded", recorded), zap.Int("remaining", remaining))
	}
	return recorded
}

// Start runs RetryPending on schedule (cron syntax or "@every 30s") until ctx
// is done.
func (r *Reconciler) Start(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(schedule, func() { r.RetryPending(ctx) }); err != nil {
		return fmt.Errorf("reconcile schedule %q: %w", schedule, err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
