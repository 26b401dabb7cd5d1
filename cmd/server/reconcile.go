package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"chatline/internal/contacts/service"
	"chatline/internal/platform/config"
	"chatline/internal/platform/logger"
	id "chatline/pkg/domain"
)

func newReconcileCommand() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild a user's pending request references from the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := id.ParseUserID(user)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Level, cfg.Log.Format)

			store, err := openBackend(cmd.Context(), cfg.Storage, log, false)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := service.New(store.ledger, store.identity, service.WithLogger(log))
			result, err := svc.Reconcile(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", userID, err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user ID to reconcile (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
