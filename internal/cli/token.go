package cli

import (
	"fmt"
	"time"

	"course-quiz-engine/internal/auth"
	"course-quiz-engine/internal/config"
	"course-quiz-engine/internal/domain"
	"github.com/spf13/cobra"
)

// NewTokenCmd mints a bearer token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		role   string
		ttl    string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			secret, err := cfg.RequireSecret()
			if err != nil {
				return err
			}
			r := domain.Role(role)
			if r != domain.RoleStudent && r != domain.RoleTeacher {
				return fmt.Errorf("unknown role %q", role)
			}
			if ttl == "" {
				ttl = cfg.Auth.TokenTTL
			}

			tokens := auth.NewTokens(secret, cfg.Auth.Issuer)
			raw, err := tokens.Issue(auth.Identity{UserID: userID, Role: r}, config.TTLDuration(ttl, 24*time.Hour))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), raw)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStudent), "student or teacher")
	cmd.Flags().StringVar(&ttl, "ttl", "", "token lifetime, defaults to auth.token_ttl")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
