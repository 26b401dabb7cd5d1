package main

import (
	"github.com/spf13/cobra"

	"chatline/internal/platform/config"
	"chatline/internal/platform/logger"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations for the configured storage driver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Level, cfg.Log.Format)
			if cfg.Storage.Driver == config.DriverMemory {
				log.Info("in-memory storage has no schema; nothing to migrate")
				return nil
			}
			store, err := openBackend(cmd.Context(), cfg.Storage, log, true)
			if err != nil {
				return err
			}
			return store.Close()
		},
	}
}
