package cli

import (
	"fmt"
	"os"
	"time"

	"course-quiz-engine/internal/config"
	"course-quiz-engine/internal/infra/aigen"
	"course-quiz-engine/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// NewGenerateQuizCmd drafts a quiz for a lesson and prints it as catalog YAML.
func NewGenerateQuizCmd(configPath *string) *cobra.Command {
	var (
		req         aigen.Request
		difficulty  string
		contentFile string
		mock        bool
	)
	cmd := &cobra.Command{
		Use:   "generate-quiz",
		Short: "Generate a lesson quiz with the configured AI endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Env)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if contentFile != "" {
				data, err := os.ReadFile(contentFile)
				if err != nil {
					return err
				}
				req.LessonContent = string(data)
			}
			switch d := aigen.Difficulty(difficulty); d {
			case aigen.Easy, aigen.Medium, aigen.Hard:
				req.Difficulty = d
			default:
				return fmt.Errorf("unknown difficulty %q", difficulty)
			}

			var gen aigen.Generator = aigen.Mock{}
			if !mock && cfg.AI.APIKey != "" {
				gen = aigen.NewClient(aigen.Config{
					Endpoint: cfg.AI.Endpoint,
					APIKey:   cfg.AI.APIKey,
					Model:    cfg.AI.Model,
					Timeout:  config.TTLDuration(cfg.AI.Timeout, time.Minute),
				}, log)
			} else {
				log.Info("ai api key not configured, generating a placeholder quiz")
			}

			quiz, err := gen.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}
			log.Debug("quiz generated", zap.String("quiz_id", quiz.ID), zap.Int("questions", len(quiz.Questions)))

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(quiz); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&req.LessonTitle, "title", "", "lesson title")
	cmd.Flags().StringVar(&req.LessonContent, "content", "", "lesson content")
	cmd.Flags().StringVar(&contentFile, "content-file", "", "read lesson content from a file")
	cmd.Flags().StringVar(&difficulty, "difficulty", string(aigen.Medium), "easy, medium or hard")
	cmd.Flags().IntVar(&req.QuestionCount, "count", 5, "number of questions")
	cmd.Flags().StringVar(&req.QuestionType, "type", "multiple-choice", "multiple-choice, true-false or mixed")
	cmd.Flags().BoolVar(&mock, "mock", false, "skip the API and emit a placeholder quiz")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}
