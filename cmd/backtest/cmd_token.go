package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"crypto-pattern-bot/internal/auth"
)

func (c *cli) newTokenCmd() *cobra.Command {
	var subject, scope string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API access token signed with the configured JWT secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ac := c.cfg.AuthConfig
			if ac.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			token, err := auth.NewJWTManager(ac.JWTSecret, ac.AccessTokenDuration).
				GenerateAccessToken(auth.Claims{Subject: subject, Scope: scope})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "cli", "Token subject")
	cmd.Flags().StringVar(&scope, "scope", "", "Optional token scope")
	return cmd
}
