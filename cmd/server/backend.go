package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"chatline/internal/contacts/models"
	"chatline/internal/contacts/service"
	"chatline/internal/contacts/store/identity"
	"chatline/internal/contacts/store/ledger"
	"chatline/internal/contacts/store/migrations"
	"chatline/internal/platform/config"
	"chatline/internal/platform/database"
)

// identityStore is what the commands need beyond the service: seeding.
type identityStore interface {
	service.IdentityStore
	Create(ctx context.Context, user *models.User) error
}

// backend holds the stores selected by CHATLINE_STORAGE_DRIVER.
type backend struct {
	ledger   service.LedgerStore
	identity identityStore
	db       *sql.DB
}

// openBackend connects the configured storage. SQL backends are migrated when
// migrate is true.
func openBackend(ctx context.Context, cfg config.Storage, logger *slog.Logger, migrate bool) (*backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage; data is lost on exit")
		return &backend{ledger: ledger.NewInMemory(), identity: identity.NewInMemory()}, nil
	case config.DriverPostgres:
		db, err := database.OpenPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b := &backend{ledger: ledger.NewPostgres(db), identity: identity.NewPostgres(db), db: db}
		if migrate {
			if err := applyMigrations(ctx, db, database.Postgres, logger); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return b, nil
	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b := &backend{ledger: ledger.NewSQLite(db), identity: identity.NewSQLite(db), db: db}
		if migrate {
			if err := applyMigrations(ctx, db, database.SQLite, logger); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func applyMigrations(ctx context.Context, db *sql.DB, dialect database.Dialect, logger *slog.Logger) error {
	root := migrations.PostgresRoot
	if dialect == database.SQLite {
		root = migrations.SQLiteRoot
	}
	applied, err := database.ApplyMigrations(ctx, db, dialect, migrations.FS, root)
	if err != nil {
		return fmt.Errorf("apply %s migrations: %w", dialect, err)
	}
	for _, name := range applied {
		logger.Info("applied migration", "dialect", string(dialect), "migration", name)
	}
	return nil
}

// Ping reports storage health. The in-memory backend is always healthy.
func (b *backend) Ping(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	return b.db.PingContext(ctx)
}

func (b *backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
