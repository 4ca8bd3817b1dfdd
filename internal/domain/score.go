package domain

import "math"

// ScoreResult is the outcome of grading an answer buffer.
type ScoreResult struct {
	Score          int  `json:"score"` // 0..100
	Passed         bool `json:"passed"`
	EarnedPoints   int  `json:"earnedPoints"`
	TotalPoints    int  `json:"totalPoints"`
	CorrectAnswers int  `json:"correctAnswers"`
	TotalQuestions int  `json:"totalQuestions"`
}

// Score grades answers against quiz. Missing or Unanswered slots earn nothing.
func Score(quiz Quiz, answers []int) ScoreResult {
	res := ScoreResult{TotalQuestions: len(quiz.Questions)}
	for i, question := range quiz.Questions {
		res.TotalPoints += question.Points
		if i < len(answers) && answers[i] != Unanswered && answers[i] == question.CorrectAnswer {
			res.EarnedPoints += question.Points
			res.CorrectAnswers++
		}
	}
	if res.TotalPoints > 0 {
		res.Score = int(math.Round(float64(res.EarnedPoints) / float64(res.TotalPoints) * 100))
	}
	res.Passed = res.Score >= quiz.PassingScore
	return res
}
