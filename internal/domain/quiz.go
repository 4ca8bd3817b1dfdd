package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	// DefaultTimeLimit applies when a quiz has no positive time limit.
	DefaultTimeLimit = 30 * time.Minute
	// DefaultMaxAttempts applies when a quiz has no positive attempt allowance.
	DefaultMaxAttempts = 3
)

// QuizQuestion models a multiple choice question with one correct option.
type QuizQuestion struct {
	ID            string   `json:"id" yaml:"id"`
	Question      string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer int      `json:"correctAnswer" yaml:"correctAnswer"`
	Explanation   string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Points        int      `json:"points" yaml:"points"`
}

// Quiz is a scored set of questions. Values returned by NewQuiz must be
// treated as read-only; use the accessors instead of mutating the slices.
type Quiz struct {
	ID           string         `json:"id" yaml:"id"`
	Title        string         `json:"title" yaml:"title"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty"`
	Questions    []QuizQuestion `json:"questions" yaml:"questions"`
	PassingScore int            `json:"passingScore" yaml:"passingScore"` // percentage of total points
	TimeLimit    int            `json:"timeLimit,omitempty" yaml:"timeLimit,omitempty"`     // minutes
	MaxAttempts  int            `json:"maxAttempts,omitempty" yaml:"maxAttempts,omitempty"` // 0 means default
	CreatedAt    time.Time      `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
}

// NewQuiz validates q and returns an independent copy of it.
func NewQuiz(q Quiz) (Quiz, error) {
	if err := q.Validate(); err != nil {
		return Quiz{}, err
	}
	return q.clone(), nil
}

// Validate reports every structural problem of the quiz at once.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: quiz %q has no questions", ErrInvalidQuiz, q.ID)
	}

	var errs []error
	if q.PassingScore < 0 || q.PassingScore > 100 {
		errs = append(errs, fmt.Errorf("passing score %d outside 0..100", q.PassingScore))
	}
	for i, question := range q.Questions {
		if len(question.Options) < 2 {
			errs = append(errs, fmt.Errorf("question %d: needs at least 2 options, got %d", i+1, len(question.Options)))
		}
		if question.CorrectAnswer < 0 || question.CorrectAnswer >= len(question.Options) {
			errs = append(errs, fmt.Errorf("question %d: correct answer %d out of range", i+1, question.CorrectAnswer))
		}
		if question.Points <= 0 {
			errs = append(errs, fmt.Errorf("question %d: points must be positive, got %d", i+1, question.Points))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: quiz %q: %w", ErrInvalidQuiz, q.ID, errors.Join(errs...))
	}
	return nil
}

// QuestionCount returns the number of questions.
func (q Quiz) QuestionCount() int {
	return len(q.Questions)
}

// Question returns the i-th question.
func (q Quiz) Question(i int) (QuizQuestion, bool) {
	if i < 0 || i >= len(q.Questions) {
		return QuizQuestion{}, false
	}
	question := q.Questions[i]
	question.Options = slices.Clone(question.Options)
	return question, true
}

// TotalPoints sums the points of every question.
func (q Quiz) TotalPoints() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// TimeLimitOrDefault returns the configured time limit or DefaultTimeLimit.
func (q Quiz) TimeLimitOrDefault() time.Duration {
	if q.TimeLimit <= 0 {
		return DefaultTimeLimit
	}
	return time.Duration(q.TimeLimit) * time.Minute
}

// MaxAttemptsOrDefault returns the attempt allowance or DefaultMaxAttempts.
func (q Quiz) MaxAttemptsOrDefault() int {
	if q.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return q.MaxAttempts
}

func (q Quiz) clone() Quiz {
	out := q
	out.Questions = make([]QuizQuestion, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = slices.Clone(question.Options)
		out.Questions[i] = question
	}
	return out
}
