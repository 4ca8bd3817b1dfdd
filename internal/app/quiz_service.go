package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"course-quiz-engine/internal/auth"
	"course-quiz-engine/internal/domain"
	"course-quiz-engine/internal/timer"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultSaveRetries = 3
	claimTimeout       = 2 * time.Second
)

// QuizServiceDeps wires the collaborators of QuizService.
type QuizServiceDeps struct {
	Sessions  SessionRepository
	Courses   CourseRepository
	Tracker   *ProgressTracker
	Resolver  EligibilityResolver
	Scheduler timer.Scheduler
	Queue     ResultQueue
	Logger    *zap.Logger

	// SaveRetries is the number of immediate write attempts before a result
	// is handed to Queue. Zero means defaultSaveRetries.
	SaveRetries int
	NewID       func() string
}

// QuizService runs quiz attempts: it gates them, owns the active session of
// each user and routes completed attempts into the progress tracker.
type QuizService struct {
	sessions  SessionRepository
	courses   CourseRepository
	tracker   *ProgressTracker
	resolver  EligibilityResolver
	scheduler timer.Scheduler
	queue     ResultQueue
	claims    SessionClaims
	logger    *zap.Logger
	retries   int
	newID     func() string

	inflight sync.WaitGroup
}

func NewQuizService(deps QuizServiceDeps) *QuizService {
	s := &QuizService{
		sessions:  deps.Sessions,
		courses:   deps.Courses,
		tracker:   deps.Tracker,
		resolver:  deps.Resolver,
		scheduler: deps.Scheduler,
		queue:     deps.Queue,
		logger:    deps.Logger,
		retries:   deps.SaveRetries,
		newID:     deps.NewID,
	}
	s.claims, _ = deps.Sessions.(SessionClaims)
	if s.scheduler == nil {
		s.scheduler = timer.NewReal()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.retries <= 0 {
		s.retries = defaultSaveRetries
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Start opens a new attempt of quizID for the student. Once the attempt is
// allowed and loaded, any session the student still had running is abandoned.
// A rejected start leaves the running session untouched.
func (s *QuizService) Start(ctx context.Context, id auth.Identity, courseID, quizID string) (SessionSnapshot, error) {
	if !id.IsStudent() {
		return SessionSnapshot{}, fmt.Errorf("start quiz as %s: %w", id.Role, domain.ErrForbidden)
	}

	session := NewSession(s.newID(), id.UserID, courseID, s.scheduler)
	quiz, err := s.gate(ctx, id.UserID, courseID, quizID)
	if err != nil {
		session.Fail()
		return SessionSnapshot{}, err
	}

	session.OnExpire(func(c Completion) {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			// the request context is gone by the time the countdown expires
			_, _ = s.record(context.Background(), session, c)
		}()
	})
	if err := session.Begin(quiz); err != nil {
		return SessionSnapshot{}, err
	}
	if prev := s.sessions.Put(id.UserID, session); prev != nil && prev.Abandon() {
		s.logger.Info("previous quiz session abandoned",
			zap.String("user_id", id.UserID),
			zap.String("session_id", prev.ID()),
		)
	}

	s.logger.Info("quiz session started",
		zap.String("user_id", id.UserID),
		zap.String("course_id", courseID),
		zap.String("quiz_id", quizID),
		zap.String("session_id", session.ID()),
		zap.Duration("time_limit", quiz.TimeLimitOrDefault()),
	)
	return session.Snapshot(), nil
}

// Eligibility reports whether the student may start quizID.
func (s *QuizService) Eligibility(ctx context.Context, id auth.Identity, courseID, quizID string) (Decision, error) {
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return Decision{}, err
	}
	progress, err := s.progressOf(ctx, id.UserID, courseID)
	if err != nil {
		return Decision{}, err
	}
	return s.resolver.Decide(course, progress, quizID, s.pendingAttempts(progress, id.UserID, courseID, quizID)), nil
}

func (s *QuizService) gate(ctx context.Context, userID, courseID, quizID string) (domain.Quiz, error) {
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, domain.ErrCourseNotFound) {
			return domain.Quiz{}, err
		}
		return domain.Quiz{}, fmt.Errorf("%w: %w", domain.ErrQuizLoad, err)
	}
	progress, err := s.progressOf(ctx, userID, courseID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %w", domain.ErrQuizLoad, err)
	}

	decision := s.resolver.Decide(course, progress, quizID, s.pendingAttempts(progress, userID, courseID, quizID))
	if !decision.Eligible {
		if decision.Reason == ReasonUnknownOwner {
			return domain.Quiz{}, fmt.Errorf("quiz %s in course %s: %w", quizID, courseID, domain.ErrQuizNotFound)
		}
		return domain.Quiz{}, fmt.Errorf("quiz %s: %s: %w", quizID, decision.Reason, domain.ErrNotEligible)
	}

	quiz, _, _ := course.LocateQuiz(quizID)
	return quiz, nil
}

// pendingAttempts counts queued results of quizID that progress does not hold
// yet.
func (s *QuizService) pendingAttempts(progress *domain.StudentProgress, userID, courseID, quizID string) int {
	if s.queue == nil {
		return 0
	}
	n := 0
	for _, r := range s.queue.PendingResults(userID, courseID, quizID) {
		if progress != nil && progress.HasResult(quizID, r.ID) {
			continue
		}
		n++
	}
	return n
}

func (s *QuizService) progressOf(ctx context.Context, userID, courseID string) (*domain.StudentProgress, error) {
	p, err := s.tracker.GetProgress(ctx, userID, courseID)
	if errors.Is(err, domain.ErrProgressNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SelectAnswer stores an answer in the user's active session. Out of range
// input is ignored.
func (s *QuizService) SelectAnswer(userID string, question, option int) (SessionSnapshot, error) {
	session, err := s.current(userID)
	if err != nil {
		return SessionSnapshot{}, err
	}
	session.SelectAnswer(question, option)
	return session.Snapshot(), nil
}

func (s *QuizService) Next(userID string) (SessionSnapshot, error) {
	session, err := s.current(userID)
	if err != nil {
		return SessionSnapshot{}, err
	}
	session.Next()
	return session.Snapshot(), nil
}

func (s *QuizService) Previous(userID string) (SessionSnapshot, error) {
	session, err := s.current(userID)
	if err != nil {
		return SessionSnapshot{}, err
	}
	session.Previous()
	return session.Snapshot(), nil
}

func (s *QuizService) Snapshot(userID string) (SessionSnapshot, error) {
	session, err := s.current(userID)
	if err != nil {
		return SessionSnapshot{}, err
	}
	return session.Snapshot(), nil
}

// Subscribe returns the event stream of the user's active session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(userID string) (<-chan SessionEvent, func(), error) {
	session, err := s.current(userID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// Submit completes the user's attempt and records the graded result. It
// returns *UnansweredError when questions remain and confirmed is false.
// When persistence fails the result is still returned, together with an
// error wrapping domain.ErrResultNotRecorded.
func (s *QuizService) Submit(ctx context.Context, userID string, confirmed bool) (domain.QuizResult, error) {
	session, err := s.current(userID)
	if err != nil {
		return domain.QuizResult{}, err
	}
	completion, err := session.Submit(confirmed)
	if err != nil {
		return domain.QuizResult{}, err
	}
	return s.record(ctx, session, completion)
}

// current returns the user's active session. A session superseded by an
// attempt the user started on another instance is abandoned here.
func (s *QuizService) current(userID string) (*Session, error) {
	session, ok := s.sessions.Get(userID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if !s.claimed(session) {
		s.AbandonSession(userID, session.ID())
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// claimed asks the shared session repository whether session still owns its
// user. An unreachable repository does not end the attempt.
func (s *QuizService) claimed(session *Session) bool {
	if s.claims == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), claimTimeout)
	defer cancel()
	held, err := s.claims.Claimed(ctx, session.UserID(), session.ID())
	if err != nil {
		s.logger.Warn("session claim check failed",
			zap.String("user_id", session.UserID()),
			zap.String("session_id", session.ID()),
			zap.Error(err),
		)
		return true
	}
	if !held {
		s.logger.Info("quiz session superseded on another instance",
			zap.String("user_id", session.UserID()),
			zap.String("session_id", session.ID()),
		)
	}
	return held
}

// Abandon discards the user's active attempt without recording anything.
func (s *QuizService) Abandon(userID string) bool {
	session, ok := s.sessions.Get(userID)
	if !ok {
		return false
	}
	return s.AbandonSession(userID, session.ID())
}

// AbandonSession abandons the user's attempt only while sessionID is still the
// active one, so a stale connection cannot discard a newer attempt.
func (s *QuizService) AbandonSession(userID, sessionID string) bool {
	session, ok := s.sessions.Get(userID)
	if !ok || session.ID() != sessionID {
		return false
	}
	if !session.Abandon() {
		return false
	}
	s.sessions.Remove(userID, sessionID)
	s.logger.Info("quiz session abandoned",
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
	)
	return true
}

// Wait blocks until results of timed out sessions have been persisted or
// queued.
func (s *QuizService) Wait() {
	s.inflight.Wait()
}

// record persists a completion, retrying a few times before deferring it to
// the queue. The session stays registered until this returns.
func (s *QuizService) record(ctx context.Context, session *Session, c Completion) (domain.QuizResult, error) {
	defer s.sessions.Remove(c.UserID, c.SessionID)

	result := domain.QuizResult{
		ID:             s.newID(),
		QuizID:         c.QuizID,
		Score:          c.Result.Score,
		Passed:         c.Result.Passed,
		TotalQuestions: c.Result.TotalQuestions,
		CorrectAnswers: c.Result.CorrectAnswers,
		EarnedPoints:   c.Result.EarnedPoints,
		TotalPoints:    c.Result.TotalPoints,
		CompletedAt:    c.CompletedAt,
		TimeTaken:      c.TimeTaken,
		Answers:        c.Answers,
		Reason:         string(c.Reason),
		AttemptNumber:  s.attemptNumber(ctx, c),
	}

	if !s.claimed(session) {
		err := fmt.Errorf("session %s superseded: %w", c.SessionID, domain.ErrSessionClosed)
		session.MarkRecorded(result, err)
		s.logger.Info("superseded quiz session not recorded",
			zap.String("user_id", c.UserID),
			zap.String("quiz_id", c.QuizID),
			zap.String("session_id", c.SessionID),
		)
		return result, err
	}

	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		var progress domain.StudentProgress
		progress, err = s.tracker.RecordQuizResult(ctx, c.UserID, c.CourseID, result)
		if err == nil {
			if stored, ok := findResult(progress, result); ok {
				result = stored
			}
			break
		}
		s.logger.Warn("record quiz result failed",
			zap.String("session_id", c.SessionID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}

	if err != nil {
		if s.queue != nil {
			s.queue.Enqueue(ctx, PendingResult{
				StudentID: c.UserID,
				CourseID:  c.CourseID,
				Result:    result,
				Attempts:  s.retries,
			})
		}
		err = fmt.Errorf("%w: %w", domain.ErrResultNotRecorded, err)
	}
	session.MarkRecorded(result, err)

	s.logger.Info("quiz session completed",
		zap.String("user_id", c.UserID),
		zap.String("quiz_id", c.QuizID),
		zap.String("reason", string(c.Reason)),
		zap.Int("score", result.Score),
		zap.Bool("passed", result.Passed),
		zap.Bool("recorded", err == nil),
		zap.Duration("time_taken", c.TimeTaken),
	)
	return result, err
}

// attemptNumber numbers the attempt as it completes, counting attempts still
// queued for reconciliation. Zero leaves numbering to the tracker.
func (s *QuizService) attemptNumber(ctx context.Context, c Completion) int {
	progress, err := s.progressOf(ctx, c.UserID, c.CourseID)
	if err != nil || progress == nil {
		return 0
	}
	return progress.Attempts(c.QuizID) + s.pendingAttempts(progress, c.UserID, c.CourseID, c.QuizID) + 1
}

func findResult(p domain.StudentProgress, r domain.QuizResult) (domain.QuizResult, bool) {
	for _, stored := range p.QuizResults[r.QuizID] {
		if stored.ID == r.ID {
			return stored, true
		}
	}
	return domain.QuizResult{}, false
}
