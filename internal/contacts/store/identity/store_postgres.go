package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"chatline/internal/contacts/models"
	id "chatline/pkg/domain"
	"chatline/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

// Array columns are read back as their text literal and parsed with
// pq.StringArray so the scan does not depend on driver array support.
const userColumns = `id, handle, email, display_name, avatar_ref, contacts::text, pending_requests::text, created_at`

// PostgresStore keeps the relationship sets in uuid[] columns and mutates them
// with single-statement array updates.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, handle, email, display_name, avatar_ref, contacts, pending_requests, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::uuid[], $7::uuid[], $8)
	`, uuid.UUID(user.ID), user.Handle, user.Email, user.DisplayName, user.AvatarRef,
		pq.Array(userIDStrings(user.Contacts)), pq.Array(requestIDStrings(user.PendingRequests)), user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("create user (%s): %w", pgErr.ConstraintName, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID))
	u, err := scanPostgresUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) FindUsers(ctx context.Context, ids []id.UserID) ([]*models.User, error) {
	if len(ids) == 0 {
		return []*models.User{}, nil
	}
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[])`,
		pq.Array(userIDStrings(ids)))
}

func (s *PostgresStore) FindUsersMatching(ctx context.Context, query string, excluding id.UserID, limit int) ([]*models.User, error) {
	return s.queryUsers(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE id <> $1
		  AND (lower(handle) LIKE $2 ESCAPE '\' OR lower(email) LIKE $2 ESCAPE '\')
		ORDER BY lower(handle) COLLATE "C", id
		LIMIT $3
	`, uuid.UUID(excluding), likePattern(query), limit)
}

// AddContact appends otherID unless already present. The row lock taken by
// UPDATE makes a concurrent duplicate append re-check the guard.
func (s *PostgresStore) AddContact(ctx context.Context, userID, otherID id.UserID) error {
	return s.setUpdate(ctx, `
		UPDATE users SET contacts = array_append(contacts, $2::uuid)
		WHERE id = $1 AND NOT ($2::uuid = ANY(contacts))
	`, userID, uuid.UUID(otherID))
}

func (s *PostgresStore) AddPending(ctx context.Context, userID id.UserID, requestID id.RequestID) error {
	return s.setUpdate(ctx, `
		UPDATE users SET pending_requests = array_append(pending_requests, $2::uuid)
		WHERE id = $1 AND NOT ($2::uuid = ANY(pending_requests))
	`, userID, uuid.UUID(requestID))
}

func (s *PostgresStore) RemoveFromPending(ctx context.Context, userID id.UserID, requestID id.RequestID) error {
	return s.setUpdate(ctx, `
		UPDATE users SET pending_requests = array_remove(pending_requests, $2::uuid)
		WHERE id = $1 AND $2::uuid = ANY(pending_requests)
	`, userID, uuid.UUID(requestID))
}

func (s *PostgresStore) ReplacePending(ctx context.Context, userID id.UserID, requestIDs []id.RequestID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET pending_requests = $2::uuid[] WHERE id = $1`,
		uuid.UUID(userID), pq.Array(requestIDStrings(dedupeRequests(requestIDs))))
	if err != nil {
		return fmt.Errorf("replace pending requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace pending requests: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IsContact(ctx context.Context, userID, otherID id.UserID) (bool, error) {
	var isContact bool
	err := s.db.QueryRowContext(ctx, `SELECT $2::uuid = ANY(contacts) FROM users WHERE id = $1`,
		uuid.UUID(userID), uuid.UUID(otherID)).Scan(&isContact)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, sentinel.ErrNotFound
		}
		return false, fmt.Errorf("check contact: %w", err)
	}
	return isContact, nil
}

func (s *PostgresStore) ListContacts(ctx context.Context, userID id.UserID) ([]*models.User, error) {
	contacts, err := s.queryUsers(ctx, `
		SELECT u.id, u.handle, u.email, u.display_name, u.avatar_ref,
		       u.contacts::text, u.pending_requests::text, u.created_at
		FROM users owner
		JOIN users u ON u.id = ANY(owner.contacts)
		WHERE owner.id = $1
		ORDER BY lower(u.handle) COLLATE "C", u.id
	`, uuid.UUID(userID))
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		if err := s.ensureExists(ctx, userID); err != nil {
			return nil, err
		}
	}
	return contacts, nil
}

// setUpdate runs a guarded set mutation. Zero affected rows is either a no-op
// (already applied) or a missing user; only the latter is an error.
func (s *PostgresStore) setUpdate(ctx context.Context, query string, userID id.UserID, member uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(userID), member)
	if err != nil {
		return fmt.Errorf("update user sets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user sets: %w", err)
	}
	if n == 0 {
		return s.ensureExists(ctx, userID)
	}
	return nil
}

func (s *PostgresStore) ensureExists(ctx context.Context, userID id.UserID) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`,
		uuid.UUID(userID)).Scan(&exists); err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) queryUsers(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	out := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanPostgresUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPostgresUser(row scanner) (*models.User, error) {
	var (
		u                 models.User
		contacts, pending pq.StringArray
	)
	if err := row.Scan(
		(*uuid.UUID)(&u.ID),
		&u.Handle,
		&u.Email,
		&u.DisplayName,
		&u.AvatarRef,
		&contacts,
		&pending,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if u.Contacts, err = parseUserIDs(contacts); err != nil {
		return nil, err
	}
	if u.PendingRequests, err = parseRequestIDs(pending); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func userIDStrings(ids []id.UserID) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}

func requestIDStrings(ids []id.RequestID) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}

func parseUserIDs(raw []string) ([]id.UserID, error) {
	out := make([]id.UserID, 0, len(raw))
	for _, s := range raw {
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse user id %q: %w", s, err)
		}
		out = append(out, id.UserID(u))
	}
	return out, nil
}

func parseRequestIDs(raw []string) ([]id.RequestID, error) {
	out := make([]id.RequestID, 0, len(raw))
	for _, s := range raw {
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse request id %q: %w", s, err)
		}
		out = append(out, id.RequestID(u))
	}
	return out, nil
}
