package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"chatline/internal/contacts/models"
	id "chatline/pkg/domain"
	"chatline/pkg/platform/sentinel"
)

// SQLiteStore persists contact requests in an embedded SQLite database.
// Timestamps are stored as Unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func (s *SQLiteStore) Create(ctx context.Context, req *models.ContactRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contact_requests (`+requestColumns+`)
		VALUES (?, ?, ?, 'pending', ?, ?, ?)
	`, req.ID.String(), req.SenderID.String(), req.RecipientID.String(), req.Message,
		toMillis(req.CreatedAt), toMillis(req.UpdatedAt))
	if err != nil {
		switch {
		case isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY):
			return fmt.Errorf("create contact request: %w", sentinel.ErrAlreadyUsed)
		case isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_CHECK):
			return fmt.Errorf("create contact request: %w", sentinel.ErrInvalidState)
		}
		return fmt.Errorf("create contact request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.ContactRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM contact_requests WHERE id = ?`, requestID.String())
	req, err := scanSQLiteRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find contact request: %w", err)
	}
	return req, nil
}

func (s *SQLiteStore) FindPending(ctx context.Context, sender, recipient id.UserID) (*models.ContactRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM contact_requests
		WHERE sender_id = ? AND recipient_id = ? AND status = 'pending'
	`, sender.String(), recipient.String())
	req, err := scanSQLiteRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find pending contact request: %w", err)
	}
	return req, nil
}

func (s *SQLiteStore) Transition(ctx context.Context, requestID id.RequestID, target models.RequestStatus, now time.Time) (*models.ContactRequest, error) {
	if !target.IsTerminal() {
		return nil, fmt.Errorf("target status %q: %w", target, sentinel.ErrInvalidState)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE contact_requests SET status = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, string(target), toMillis(now), requestID.String())
	if err != nil {
		return nil, fmt.Errorf("transition contact request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("transition contact request: %w", err)
	}

	req, err := s.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("request is %s: %w", req.Status, sentinel.ErrInvalidState)
	}
	return req, nil
}

func (s *SQLiteStore) ListActiveFor(ctx context.Context, userID id.UserID) ([]*models.ContactRequest, error) {
	return s.list(ctx, `
		SELECT `+requestColumns+` FROM contact_requests
		WHERE status = 'pending' AND (sender_id = ?1 OR recipient_id = ?1)
		ORDER BY created_at DESC, id ASC
	`, userID.String())
}

func (s *SQLiteStore) ListPendingReceived(ctx context.Context, userID id.UserID) ([]*models.ContactRequest, error) {
	return s.list(ctx, `
		SELECT `+requestColumns+` FROM contact_requests
		WHERE status = 'pending' AND recipient_id = ?
		ORDER BY created_at DESC, id ASC
	`, userID.String())
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]*models.ContactRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contact requests: %w", err)
	}
	defer rows.Close()

	out := make([]*models.ContactRequest, 0)
	for rows.Next() {
		req, err := scanSQLiteRequest(rows)
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

func scanSQLiteRequest(row scanner) (*models.ContactRequest, error) {
	var (
		rawID, rawSender, rawRecipient, status, message string
		createdAt, updatedAt                            int64
	)
	if err := row.Scan(&rawID, &rawSender, &rawRecipient, &status, &message, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	reqID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse request id: %w", err)
	}
	sender, err := uuid.Parse(rawSender)
	if err != nil {
		return nil, fmt.Errorf("parse sender id: %w", err)
	}
	recipient, err := uuid.Parse(rawRecipient)
	if err != nil {
		return nil, fmt.Errorf("parse recipient id: %w", err)
	}
	return &models.ContactRequest{
		ID:          id.RequestID(reqID),
		SenderID:    id.UserID(sender),
		RecipientID: id.UserID(recipient),
		Status:      models.RequestStatus(status),
		Message:     message,
		CreatedAt:   fromMillis(createdAt),
		UpdatedAt:   fromMillis(updatedAt),
	}, nil
}

func isConstraint(err error, codes ...int) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		for _, code := range codes {
			if sqliteErr.Code() == code {
				return true
			}
		}
	}
	message := strings.ToLower(err.Error())
	for _, code := range codes {
		switch code {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			if strings.Contains(message, "unique constraint failed") {
				return true
			}
		case sqlite3lib.SQLITE_CONSTRAINT_CHECK:
			if strings.Contains(message, "check constraint failed") {
				return true
			}
		}
	}
	return false
}
