// Package aigen generates quizzes from lesson content through an OpenAI-style
// chat completion API.
package aigen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"course-quiz-engine/internal/domain"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrGeneration wraps every failure to obtain a usable quiz from the API.
var ErrGeneration = errors.New("quiz generation failed")

// Difficulty drives the points per question.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Points returns the per-question points of d.
func (d Difficulty) Points() int {
	switch d {
	case Medium:
		return 2
	case Hard:
		return 3
	default:
		return 1
	}
}

// Request describes the quiz to generate.
type Request struct {
	LessonTitle   string
	LessonContent string
	Difficulty    Difficulty
	QuestionCount int
	QuestionType  string // multiple-choice, true-false or mixed
}

// Generator produces a validated quiz for a lesson.
type Generator interface {
	Generate(ctx context.Context, req Request) (domain.Quiz, error)
}

// Config configures Client. Endpoint is the API base URL the chat
// completions path is appended to.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Client calls the chat completion endpoint and normalizes its answer.
type Client struct {
	cfg    Config
	api    *openai.Client
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:    cfg,
		api:    openai.NewClientWithConfig(apiCfg),
		logger: logger,
		now:    time.Now,
		newID:  func() string { return "quiz_" + uuid.NewString() },
	}
}

const systemPrompt = "You are an educational assistant that creates high-quality quizzes based on lesson content. Always return valid JSON format."

var promptTemplate = template.Must(template.New("prompt").Parse(`Generate a quiz for the following lesson:

Title: {{.LessonTitle}}
Content: {{.LessonContent}}
Difficulty: {{.Difficulty}}
Number of questions: {{.QuestionCount}}
Question type: {{.QuestionType}}

Requirements:
1. Create {{.QuestionCount}} multiple-choice questions
2. Each question should have 4 options (A, B, C, D)
3. Include the correct answer (0, 1, 2, 3 corresponding to A, B, C, D)
4. Add a brief explanation for why the correct answer is right
5. Assign {{.Difficulty.Points}} point(s) per question
6. Questions should be relevant to the lesson content
7. Set the passing score as a percentage (70 unless the content calls for another)

Return the response in this exact JSON format:
{
  "title": "Quiz for {{.LessonTitle}}",
  "description": "Test your knowledge of {{.LessonTitle}}",
  "passingScore": 70,
  "timeLimit": 30,
  "questions": [
    {
      "id": "q1",
      "question": "Question text",
      "options": ["Option A", "Option B", "Option C", "Option D"],
      "correctAnswer": 0,
      "explanation": "Explanation",
      "points": {{.Difficulty.Points}}
    }
  ]
}`))

// Prompt renders the user prompt for req.
func Prompt(req Request) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, req); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (c *Client) Generate(ctx context.Context, req Request) (domain.Quiz, error) {
	if req.QuestionCount <= 0 {
		req.QuestionCount = 5
	}
	if req.Difficulty == "" {
		req.Difficulty = Medium
	}
	if req.QuestionType == "" {
		req.QuestionType = "multiple-choice"
	}
	prompt, err := Prompt(req)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: render prompt: %w", ErrGeneration, err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	if err != nil {
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		switch {
		case errors.As(err, &apiErr):
			c.logger.Warn("quiz generation rejected", zap.Int("status", apiErr.HTTPStatusCode), zap.String("message", apiErr.Message))
		case errors.As(err, &reqErr):
			c.logger.Warn("quiz generation rejected", zap.Int("status", reqErr.HTTPStatusCode), zap.Error(reqErr.Err))
		}
		return domain.Quiz{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return domain.Quiz{}, fmt.Errorf("%w: malformed completion", ErrGeneration)
	}

	generated, err := decodeQuiz(resp.Choices[0].Message.Content)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	quiz, err := domain.NormalizeGenerated(c.newID(), req.LessonTitle, generated, c.now())
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	c.logger.Info("quiz generated",
		zap.String("lesson", req.LessonTitle),
		zap.String("quiz_id", quiz.ID),
		zap.Int("questions", quiz.QuestionCount()),
	)
	return quiz, nil
}

// decodeQuiz parses the model output, tolerating a fenced code block.
func decodeQuiz(content string) (domain.GeneratedQuiz, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	var g domain.GeneratedQuiz
	if err := json.Unmarshal([]byte(content), &g); err != nil {
		return domain.GeneratedQuiz{}, fmt.Errorf("parse quiz json: %w", err)
	}
	return g, nil
}
