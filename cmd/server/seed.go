package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"chatline/internal/contacts/models"
	"chatline/internal/platform/config"
	"chatline/internal/platform/logger"
	id "chatline/pkg/domain"
	"chatline/pkg/platform/sentinel"
)

// seedFile is the YAML document read by `chatline seed`.
type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	ID          string `yaml:"id"`
	Handle      string `yaml:"handle"`
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
	AvatarRef   string `yaml:"avatar_ref"`
}

type seedReport struct {
	Created int
	Skipped int
}

func newSeedCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load users from a YAML file",
		Long: `Load users into the identity store. Users whose handle or email already
exists are skipped, so the command can be rerun.

Example file:
  users:
    - handle: alice
      email: alice@example.com
      display_name: Alice`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Level, cfg.Log.Format)
			if file == "" {
				file = cfg.SeedFile
			}
			if file == "" {
				return errors.New("--file or CHATLINE_SEED_FILE is required")
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()
			users, err := parseSeed(f)
			if err != nil {
				return err
			}

			store, err := openBackend(cmd.Context(), cfg.Storage, log, true)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := seedUsers(cmd.Context(), store.identity, users, time.Now(), log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users (%d skipped)\n", report.Created, report.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the YAML seed file")
	return cmd
}

func parseSeed(r io.Reader) ([]seedUser, error) {
	var doc seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return doc.Users, nil
}

// seedUsers creates each user, skipping handle or email clashes. Any other
// failure stops the run.
func seedUsers(ctx context.Context, store identityStore, users []seedUser, now time.Time, log *slog.Logger) (seedReport, error) {
	var report seedReport
	for i, su := range users {
		userID := id.NewUserID()
		if su.ID != "" {
			parsed, err := id.ParseUserID(su.ID)
			if err != nil {
				return report, fmt.Errorf("user %d: %w", i, err)
			}
			userID = parsed
		}
		user, err := models.NewUser(userID, su.Handle, su.Email, su.DisplayName, su.AvatarRef, now)
		if err != nil {
			return report, fmt.Errorf("user %d (%s): %w", i, su.Handle, err)
		}
		if err := store.Create(ctx, user); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				log.Info("seed user already exists", "handle", user.Handle)
				report.Skipped++
				continue
			}
			return report, fmt.Errorf("create user %s: %w", user.Handle, err)
		}
		log.Debug("seeded user", "user_id", user.ID.String(), "handle", user.Handle)
		report.Created++
	}
	return report, nil
}
