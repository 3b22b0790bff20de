package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"churchledger/internal/auth"
)

func (a *app) tokenCmd() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token for a directory user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			u, err := repo.GetUser(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("look up user: %w", err)
			}
			v, err := auth.NewVerifier(a.cfg.JWTSecret, a.cfg.JWTIssuer, repo, auth.WithLogger(a.logger))
			if err != nil {
				return err
			}
			tok, err := v.Issue(u.ID, u.Email, u.DisplayName, ttl)
			if err != nil {
				return err
			}
			a.logger.Info("Token issued", "user_id", u.ID, "role", string(u.Role), "ttl", ttl.String())
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
