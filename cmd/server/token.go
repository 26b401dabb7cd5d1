package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "chatline/internal/jwt_token"
	"chatline/internal/platform/config"
	id "chatline/pkg/domain"
)

// newTokenCommand mints a bearer token for local testing. Production tokens
// come from the identity provider sharing CHATLINE_JWT_SIGNING_KEY.
func newTokenCommand() *cobra.Command {
	var (
		user string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := id.ParseUserID(user)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.Leeway)
			token, err := jwt.GenerateAccessToken(userID, ttl)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user ID placed in the subject claim (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
