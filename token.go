package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dyadchat/global/config"
	"dyadchat/module/chat/model"
	"dyadchat/service/auth"
)

func buildTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <userId>",
		Short: "Issue a JWT for a user (DYAD_AUTH_MODE=jwt)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.AuthMode != config.AuthJWT {
				return errors.New("token requires DYAD_AUTH_MODE=jwt")
			}
			u, err := model.ParseUserID(args[0])
			if err != nil {
				return err
			}
			tok, err := auth.NewJWTValidator([]byte(cfg.JWTSecret), cfg.JWTAlg).Issue(u, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
