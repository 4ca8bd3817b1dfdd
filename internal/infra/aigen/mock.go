package aigen

import (
	"context"
	"fmt"
	"time"

	"course-quiz-engine/internal/domain"
)

// Mock generates placeholder quizzes without calling any API. The correct
// option is always the first one.
type Mock struct {
	Now func() time.Time
}

func (m Mock) Generate(_ context.Context, req Request) (domain.Quiz, error) {
	if req.QuestionCount <= 0 {
		req.QuestionCount = 5
	}
	if req.Difficulty == "" {
		req.Difficulty = Medium
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}

	g := domain.GeneratedQuiz{
		PassingScore: domain.GeneratedPassingScore,
		TimeLimit:    max(10, req.QuestionCount*2),
	}
	for i := 1; i <= req.QuestionCount; i++ {
		g.Questions = append(g.Questions, domain.GeneratedQuestion{
			ID:       fmt.Sprintf("q%d", i),
			Question: fmt.Sprintf("Sample question %d for %s difficulty level?", i, req.Difficulty),
			Options: []string{
				"Option A - Correct answer",
				"Option B - Wrong answer",
				"Option C - Wrong answer",
				"Option D - Wrong answer",
			},
			CorrectAnswer: 0,
			Explanation:   fmt.Sprintf("Explanation for why option A is correct for question %d", i),
			Points:        req.Difficulty.Points(),
		})
	}
	return domain.NormalizeGenerated(fmt.Sprintf("quiz_%d", now().UnixMilli()), req.LessonTitle, g, now())
}
