package app

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"course-quiz-engine/internal/domain"
	"course-quiz-engine/internal/timer"
)

// State is the lifecycle state of a quiz session.
type State string

const (
	StateLoading    State = "loading"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateAbandoned  State = "abandoned"
)

// CompletionReason tells how a session reached StateCompleted.
type CompletionReason string

const (
	ReasonSubmitted CompletionReason = "submitted"
	ReasonTimedOut  CompletionReason = "timed_out"
)

const tickInterval = time.Second

// EventType identifies a session notification.
type EventType string

const (
	EventStarted   EventType = "started"
	EventTick      EventType = "tick"
	EventAnswer    EventType = "answer"
	EventCursor    EventType = "cursor"
	EventCompleted EventType = "completed"
	EventRecorded  EventType = "recorded"
	EventAbandoned EventType = "abandoned"
)

// Completion is the frozen outcome of a completed session.
type Completion struct {
	SessionID   string
	UserID      string
	CourseID    string
	QuizID      string
	Result      domain.ScoreResult
	Answers     []int
	Reason      CompletionReason
	StartedAt   time.Time
	CompletedAt time.Time
	TimeTaken   time.Duration
}

// SessionSnapshot is a point-in-time copy of a session.
type SessionSnapshot struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	CourseID      string `json:"courseId"`
	QuizID        string `json:"quizId"`
	State         State  `json:"state"`
	Current       int    `json:"currentQuestion"`
	QuestionCount int    `json:"questionCount"`
	Answers       []int  `json:"answers"`
	Unanswered    int    `json:"unanswered"`
	Remaining     int    `json:"timeRemaining"` // seconds
}

// SessionEvent is delivered to session subscribers.
type SessionEvent struct {
	Type       EventType
	Snapshot   SessionSnapshot
	Completion *Completion
	Result     *domain.QuizResult
	RecordErr  error
}

// UnansweredError is returned by Submit when questions remain unanswered and
// the caller did not confirm.
type UnansweredError struct {
	Remaining int
}

func (e *UnansweredError) Error() string {
	return fmt.Sprintf("%d question(s) unanswered, confirmation required", e.Remaining)
}

// Session is one timed attempt at a quiz. It is safe for concurrent use; the
// countdown runs on the scheduler's goroutine.
type Session struct {
	id        string
	userID    string
	courseID  string
	scheduler timer.Scheduler

	mu          sync.Mutex
	state       State
	quiz        domain.Quiz
	current     int
	answers     []int
	remaining   int
	startedAt   time.Time
	cancelTick  timer.Cancel
	onExpire    func(Completion)
	completion  *Completion
	recorded    bool
	subscribers map[chan SessionEvent]struct{}
}

// NewSession returns a session in StateLoading.
func NewSession(id, userID, courseID string, scheduler timer.Scheduler) *Session {
	return &Session{
		id:          id,
		userID:      userID,
		courseID:    courseID,
		scheduler:   scheduler,
		state:       StateLoading,
		subscribers: make(map[chan SessionEvent]struct{}),
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// OnExpire registers the handler invoked when the countdown completes the
// session. It runs on the scheduler goroutine after the timer is stopped.
func (s *Session) OnExpire(fn func(Completion)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = fn
}

// Begin moves a loading session to StateInProgress and starts the countdown.
func (s *Session) Begin(quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoading {
		return fmt.Errorf("begin in state %s: %w", s.state, domain.ErrSessionClosed)
	}
	if err := quiz.Validate(); err != nil {
		s.closeLocked(StateAbandoned, EventAbandoned)
		return fmt.Errorf("%w: %w", domain.ErrQuizLoad, err)
	}

	s.quiz = quiz
	s.answers = make([]int, quiz.QuestionCount())
	for i := range s.answers {
		s.answers[i] = domain.Unanswered
	}
	s.current = 0
	s.remaining = int(quiz.TimeLimitOrDefault() / time.Second)
	s.startedAt = s.scheduler.Now()
	s.state = StateInProgress
	s.cancelTick = s.scheduler.Every(tickInterval, s.tick)
	s.broadcastLocked(SessionEvent{Type: EventStarted})
	return nil
}

// Fail abandons a session whose quiz could not be loaded.
func (s *Session) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateLoading {
		s.closeLocked(StateAbandoned, EventAbandoned)
	}
}

// SelectAnswer records option for question. Out of range input and calls
// outside StateInProgress are ignored and report false.
func (s *Session) SelectAnswer(question, option int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInProgress || question < 0 || question >= len(s.answers) {
		return false
	}
	if option < 0 || option >= len(s.quiz.Questions[question].Options) {
		return false
	}
	s.answers[question] = option
	s.broadcastLocked(SessionEvent{Type: EventAnswer})
	return true
}

// Next moves the cursor forward, stopping at the last question.
func (s *Session) Next() int {
	return s.moveCursor(1)
}

// Previous moves the cursor back, stopping at the first question.
func (s *Session) Previous() int {
	return s.moveCursor(-1)
}

func (s *Session) moveCursor(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInProgress {
		return s.current
	}
	next := min(max(s.current+delta, 0), len(s.answers)-1)
	if next != s.current {
		s.current = next
		s.broadcastLocked(SessionEvent{Type: EventCursor})
	}
	return s.current
}

// Submit completes the session on explicit user action. With unanswered
// questions and confirmed == false it returns *UnansweredError and leaves the
// session running.
func (s *Session) Submit(confirmed bool) (Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInProgress {
		return Completion{}, fmt.Errorf("submit in state %s: %w", s.state, domain.ErrSessionClosed)
	}
	if n := s.unansweredLocked(); n > 0 && !confirmed {
		return Completion{}, &UnansweredError{Remaining: n}
	}
	return s.completeLocked(ReasonSubmitted), nil
}

// Abandon discards the attempt without producing a result.
func (s *Session) Abandon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoading && s.state != StateInProgress {
		return false
	}
	s.closeLocked(StateAbandoned, EventAbandoned)
	return true
}

// MarkRecorded publishes the persistence outcome of a completed attempt and
// releases subscribers.
func (s *Session) MarkRecorded(result domain.QuizResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCompleted || s.recorded {
		return
	}
	s.recorded = true
	s.broadcastLocked(SessionEvent{Type: EventRecorded, Result: &result, RecordErr: err})
	s.closeSubscribersLocked()
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Completion returns the outcome once the session is completed.
func (s *Session) Completion() (Completion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completion == nil {
		return Completion{}, false
	}
	return copyCompletion(*s.completion), true
}

// Subscribe returns a channel of session events starting with the current
// snapshot. The channel is closed once the session is abandoned or its result
// recorded. The caller must invoke cancel to avoid leaks.
func (s *Session) Subscribe() (<-chan SessionEvent, func()) {
	ch := make(chan SessionEvent, 8)

	s.mu.Lock()
	ch <- SessionEvent{Type: s.eventForStateLocked(), Snapshot: s.snapshotLocked(), Completion: s.completionRefLocked()}
	if s.state == StateAbandoned || s.recorded {
		close(ch)
		s.mu.Unlock()
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) tick() {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return
	}
	s.remaining--
	if s.remaining > 0 {
		s.broadcastLocked(SessionEvent{Type: EventTick})
		s.mu.Unlock()
		return
	}
	completion := s.completeLocked(ReasonTimedOut)
	handler := s.onExpire
	s.mu.Unlock()

	if handler != nil {
		handler(completion)
	}
}

// completeLocked freezes the buffer and scores it. Only reachable once per
// session because every caller checks StateInProgress first.
func (s *Session) completeLocked(reason CompletionReason) Completion {
	s.stopTimerLocked()
	s.state = StateCompleted
	if reason == ReasonTimedOut {
		s.remaining = 0
	}

	now := s.scheduler.Now()
	c := Completion{
		SessionID:   s.id,
		UserID:      s.userID,
		CourseID:    s.courseID,
		QuizID:      s.quiz.ID,
		Result:      domain.Score(s.quiz, s.answers),
		Answers:     slices.Clone(s.answers),
		Reason:      reason,
		StartedAt:   s.startedAt,
		CompletedAt: now,
		TimeTaken:   now.Sub(s.startedAt),
	}
	s.completion = &c
	s.broadcastLocked(SessionEvent{Type: EventCompleted, Completion: s.completionRefLocked()})
	return copyCompletion(c)
}

func (s *Session) closeLocked(state State, ev EventType) {
	s.stopTimerLocked()
	s.state = state
	s.broadcastLocked(SessionEvent{Type: ev})
	s.closeSubscribersLocked()
}

func (s *Session) stopTimerLocked() {
	if s.cancelTick != nil {
		s.cancelTick()
		s.cancelTick = nil
	}
}

func (s *Session) unansweredLocked() int {
	n := 0
	for _, a := range s.answers {
		if a == domain.Unanswered {
			n++
		}
	}
	return n
}

func (s *Session) snapshotLocked() SessionSnapshot {
	return SessionSnapshot{
		ID:            s.id,
		UserID:        s.userID,
		CourseID:      s.courseID,
		QuizID:        s.quiz.ID,
		State:         s.state,
		Current:       s.current,
		QuestionCount: len(s.answers),
		Answers:       slices.Clone(s.answers),
		Unanswered:    s.unansweredLocked(),
		Remaining:     s.remaining,
	}
}

func (s *Session) eventForStateLocked() EventType {
	switch s.state {
	case StateCompleted:
		if s.recorded {
			return EventRecorded
		}
		return EventCompleted
	case StateAbandoned:
		return EventAbandoned
	default:
		return EventStarted
	}
}

func (s *Session) completionRefLocked() *Completion {
	if s.completion == nil {
		return nil
	}
	c := copyCompletion(*s.completion)
	return &c
}

func (s *Session) broadcastLocked(ev SessionEvent) {
	ev.Snapshot = s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// drop the oldest pending event so a slow reader sees the latest state
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func (s *Session) closeSubscribersLocked() {
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

func copyCompletion(c Completion) Completion {
	c.Answers = slices.Clone(c.Answers)
	return c
}
