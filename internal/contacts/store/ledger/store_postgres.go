package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"chatline/internal/contacts/models"
	id "chatline/pkg/domain"
	"chatline/pkg/platform/sentinel"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

const requestColumns = `id, sender_id, recipient_id, status, message, created_at, updated_at`

// PostgresStore persists contact requests in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ledger.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, req *models.ContactRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contact_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6)
	`, uuid.UUID(req.ID), uuid.UUID(req.SenderID), uuid.UUID(req.RecipientID), req.Message, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return fmt.Errorf("create contact request: %w", sentinel.ErrAlreadyUsed)
			case pgCheckViolation:
				return fmt.Errorf("create contact request: %w", sentinel.ErrInvalidState)
			}
		}
		return fmt.Errorf("create contact request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.ContactRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM contact_requests WHERE id = $1
	`, uuid.UUID(requestID))
	req, err := scanPostgresRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find contact request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) FindPending(ctx context.Context, sender, recipient id.UserID) (*models.ContactRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM contact_requests
		WHERE sender_id = $1 AND recipient_id = $2 AND status = 'pending'
	`, uuid.UUID(sender), uuid.UUID(recipient))
	req, err := scanPostgresRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find pending contact request: %w", err)
	}
	return req, nil
}

// Transition is a single conditional UPDATE; concurrent callers serialize on
// the row lock and the loser's WHERE clause no longer matches.
func (s *PostgresStore) Transition(ctx context.Context, requestID id.RequestID, target models.RequestStatus, now time.Time) (*models.ContactRequest, error) {
	if !target.IsTerminal() {
		return nil, fmt.Errorf("target status %q: %w", target, sentinel.ErrInvalidState)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE contact_requests
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+requestColumns,
		uuid.UUID(requestID), string(target), now)
	req, err := scanPostgresRequest(row)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transition contact request: %w", err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM contact_requests WHERE id = $1)`, uuid.UUID(requestID),
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check contact request: %w", err)
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return nil, fmt.Errorf("request already processed: %w", sentinel.ErrInvalidState)
}

func (s *PostgresStore) ListActiveFor(ctx context.Context, userID id.UserID) ([]*models.ContactRequest, error) {
	return s.list(ctx, `
		SELECT `+requestColumns+` FROM contact_requests
		WHERE status = 'pending' AND (sender_id = $1 OR recipient_id = $1)
		ORDER BY created_at DESC, id ASC
	`, uuid.UUID(userID))
}

func (s *PostgresStore) ListPendingReceived(ctx context.Context, userID id.UserID) ([]*models.ContactRequest, error) {
	return s.list(ctx, `
		SELECT `+requestColumns+` FROM contact_requests
		WHERE status = 'pending' AND recipient_id = $1
		ORDER BY created_at DESC, id ASC
	`, uuid.UUID(userID))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.ContactRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contact requests: %w", err)
	}
	defer rows.Close()

	out := make([]*models.ContactRequest, 0)
	for rows.Next() {
		req, err := scanPostgresRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact requests: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPostgresRequest(row scanner) (*models.ContactRequest, error) {
	var (
		req    models.ContactRequest
		status string
	)
	if err := row.Scan(
		(*uuid.UUID)(&req.ID),
		(*uuid.UUID)(&req.SenderID),
		(*uuid.UUID)(&req.RecipientID),
		&status,
		&req.Message,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	req.Status = models.RequestStatus(status)
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	return &req, nil
}
