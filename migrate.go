package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dyadchat/global/config"
	"dyadchat/logger"
	"dyadchat/service/storage"
)

func buildMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the chat tables in Postgres",
		Long: `Creates chat_room and chat_message, plus users and user_sessions when absent.
Statements are idempotent; running migrate twice is safe.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store != config.StorePostgres {
				return errors.New("migrate requires DYAD_STORE=postgres")
			}
			if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}
			defer logger.Sync()

			pg, err := storage.OpenPostgres(cmd.Context(), cfg.DatabaseURL, 1)
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("[migrate] done", zap.String("store", cfg.Store))
			return nil
		},
	}
}
