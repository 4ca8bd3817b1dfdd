package domain

import (
	"fmt"
	"strings"
	"time"
)

// Defaults applied to generated quizzes that omit a value.
const (
	GeneratedPassingScore = 70
	GeneratedTimeLimit    = 30 // minutes
)

// GeneratedQuestion is the loosely-typed question shape produced by a quiz generator.
type GeneratedQuestion struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	OptionA       string   `json:"optionA,omitempty"`
	OptionB       string   `json:"optionB,omitempty"`
	OptionC       string   `json:"optionC,omitempty"`
	OptionD       string   `json:"optionD,omitempty"`
	CorrectAnswer int      `json:"correctAnswer"`
	Explanation   string   `json:"explanation,omitempty"`
	Points        int      `json:"points"`
}

// GeneratedQuiz is the Quiz-shaped document returned by a quiz generator.
type GeneratedQuiz struct {
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	PassingScore int                 `json:"passingScore"`
	TimeLimit    int                 `json:"timeLimit"`
	Questions    []GeneratedQuestion `json:"questions"`
}

// NormalizeGenerated fills defaults and validates a generated quiz so it can
// be used exactly like an authored one.
func NormalizeGenerated(id, lessonTitle string, g GeneratedQuiz, now time.Time) (Quiz, error) {
	q := Quiz{
		ID:           id,
		Title:        strings.TrimSpace(g.Title),
		Description:  strings.TrimSpace(g.Description),
		PassingScore: g.PassingScore,
		TimeLimit:    g.TimeLimit,
		MaxAttempts:  DefaultMaxAttempts,
		CreatedAt:    now,
	}
	if q.Title == "" {
		q.Title = fmt.Sprintf("Quiz for %s", lessonTitle)
	}
	if q.Description == "" {
		q.Description = fmt.Sprintf("Test your knowledge of %s", lessonTitle)
	}
	if q.PassingScore <= 0 || q.PassingScore > 100 {
		q.PassingScore = GeneratedPassingScore
	}
	if q.TimeLimit <= 0 {
		q.TimeLimit = GeneratedTimeLimit
	}

	for i, gq := range g.Questions {
		options := gq.Options
		if len(options) == 0 {
			for _, opt := range []string{gq.OptionA, gq.OptionB, gq.OptionC, gq.OptionD} {
				if opt != "" {
					options = append(options, opt)
				}
			}
		}
		question := QuizQuestion{
			ID:            gq.ID,
			Question:      strings.TrimSpace(gq.Question),
			Options:       options,
			CorrectAnswer: gq.CorrectAnswer,
			Explanation:   gq.Explanation,
			Points:        gq.Points,
		}
		if question.ID == "" {
			question.ID = fmt.Sprintf("q%d", i+1)
		}
		if question.Points <= 0 {
			question.Points = 1
		}
		q.Questions = append(q.Questions, question)
	}

	return NewQuiz(q)
}
