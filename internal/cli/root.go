package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:           "course-quiz-engine",
		Short:         "Course quiz sessions and student progress tracking",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// empty port falls back to server.port from the config
	cmd.PersistentFlags().StringVar(&port, "port", os.Getenv("PORT"), "port to listen on")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewServeCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewTokenCmd(&configPath))
	cmd.AddCommand(NewGenerateQuizCmd(&configPath))
	return cmd
}
