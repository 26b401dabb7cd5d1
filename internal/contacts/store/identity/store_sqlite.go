package identity

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
	sqltx "chatline/pkg/platform/tx"
)

// SQLiteStore keeps relationship sets in join tables; set-add is INSERT OR
// IGNORE on the composite primary key.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const sqliteUserColumns = `id, handle, email, display_name, avatar_ref, created_at`

func (s *SQLiteStore) Create(ctx context.Context, user *models.User) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, handle, handle_norm, email, email_norm, display_name, avatar_ref, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, user.ID.String(), user.Handle, user.HandleKey(), user.Email, user.EmailKey(),
			user.DisplayName, user.AvatarRef, user.CreatedAt.UTC().UnixMilli())
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("create user: %w", sentinel.ErrAlreadyUsed)
			}
			return fmt.Errorf("create user: %w", err)
		}
		for _, c := range user.Contacts {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO user_contacts (user_id, contact_id) VALUES (?, ?)`,
				user.ID.String(), c.String()); err != nil {
				return fmt.Errorf("create user contacts: %w", err)
			}
		}
		for _, r := range user.PendingRequests {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO user_pending_requests (user_id, request_id) VALUES (?, ?)`,
				user.ID.String(), r.String()); err != nil {
				return fmt.Errorf("create user pending requests: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) FindUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id = ?`, userID.String())
	u, err := scanSQLiteUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if err := s.loadSets(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *SQLiteStore) FindUsers(ctx context.Context, ids []id.UserID) ([]*models.User, error) {
	if len(ids) == 0 {
		return []*models.User{}, nil
	}
	args := make([]any, len(ids))
	for i, v := range ids {
		args[i] = v.String()
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return s.queryUsers(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id IN (`+marks+`)`, args...)
}

func (s *SQLiteStore) FindUsersMatching(ctx context.Context, query string, excluding id.UserID, limit int) ([]*models.User, error) {
	return s.queryUsers(ctx, `
		SELECT `+sqliteUserColumns+` FROM users
		WHERE id <> ?1 AND (handle_norm LIKE ?2 ESCAPE '\' OR email_norm LIKE ?2 ESCAPE '\')
		ORDER BY handle_norm, id
		LIMIT ?3
	`, excluding.String(), likePattern(query), limit)
}

func (s *SQLiteStore) AddContact(ctx context.Context, userID, otherID id.UserID) error {
	return s.setUpdate(ctx, userID,
		`INSERT OR IGNORE INTO user_contacts (user_id, contact_id) VALUES (?, ?)`, otherID.String())
}

func (s *SQLiteStore) AddPending(ctx context.Context, userID id.UserID, requestID id.RequestID) error {
	return s.setUpdate(ctx, userID,
		`INSERT OR IGNORE INTO user_pending_requests (user_id, request_id) VALUES (?, ?)`, requestID.String())
}

func (s *SQLiteStore) RemoveFromPending(ctx context.Context, userID id.UserID, requestID id.RequestID) error {
	return s.setUpdate(ctx, userID,
		`DELETE FROM user_pending_requests WHERE user_id = ? AND request_id = ?`, requestID.String())
}

func (s *SQLiteStore) ReplacePending(ctx context.Context, userID id.UserID, requestIDs []id.RequestID) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureUserTx(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_pending_requests WHERE user_id = ?`, userID.String()); err != nil {
			return fmt.Errorf("clear pending requests: %w", err)
		}
		for _, r := range dedupeRequests(requestIDs) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO user_pending_requests (user_id, request_id) VALUES (?, ?)`,
				userID.String(), r.String()); err != nil {
				return fmt.Errorf("insert pending request: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) IsContact(ctx context.Context, userID, otherID id.UserID) (bool, error) {
	var userExists, isContact bool
	err := s.db.QueryRowContext(ctx, `
		SELECT
		  EXISTS (SELECT 1 FROM users WHERE id = ?1),
		  EXISTS (SELECT 1 FROM user_contacts WHERE user_id = ?1 AND contact_id = ?2)
	`, userID.String(), otherID.String()).Scan(&userExists, &isContact)
	if err != nil {
		return false, fmt.Errorf("check contact: %w", err)
	}
	if !userExists {
		return false, sentinel.ErrNotFound
	}
	return isContact, nil
}

func (s *SQLiteStore) ListContacts(ctx context.Context, userID id.UserID) ([]*models.User, error) {
	contacts, err := s.queryUsers(ctx, `
		SELECT u.id, u.handle, u.email, u.display_name, u.avatar_ref, u.created_at
		FROM user_contacts c
		JOIN users u ON u.id = c.contact_id
		WHERE c.user_id = ?
		ORDER BY u.handle_norm, u.id
	`, userID.String())
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`,
			userID.String()).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return nil, sentinel.ErrNotFound
		}
	}
	return contacts, nil
}

func (s *SQLiteStore) setUpdate(ctx context.Context, userID id.UserID, stmt string, member string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureUserTx(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt, userID.String(), member); err != nil {
			return fmt.Errorf("update user sets: %w", err)
		}
		return nil
	})
}

// queryUsers loads matching rows first and the relationship sets after the
// cursor is closed; the pool has a single connection.
func (s *SQLiteStore) queryUsers(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	out := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	_ = rows.Close()

	for _, u := range out {
		if err := s.loadSets(ctx, u); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) loadSets(ctx context.Context, u *models.User) error {
	contacts, err := s.loadIDs(ctx, `SELECT contact_id FROM user_contacts WHERE user_id = ? ORDER BY contact_id`, u.ID)
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}
	pending, err := s.loadIDs(ctx, `SELECT request_id FROM user_pending_requests WHERE user_id = ? ORDER BY request_id`, u.ID)
	if err != nil {
		return fmt.Errorf("load pending requests: %w", err)
	}
	if u.Contacts, err = parseUserIDs(contacts); err != nil {
		return err
	}
	if u.PendingRequests, err = parseRequestIDs(pending); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) loadIDs(ctx context.Context, query string, userID id.UserID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return sqltx.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(tx)
	})
}

func ensureUserTx(ctx context.Context, tx *sql.Tx, userID id.UserID) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`,
		userID.String()).Scan(&exists); err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanSQLiteUser(row scanner) (*models.User, error) {
	var (
		rawID     string
		u         models.User
		createdAt int64
	)
	if err := row.Scan(&rawID, &u.Handle, &u.Email, &u.DisplayName, &u.AvatarRef, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	u.ID = id.UserID(parsed)
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
