package models

import (
	"net/mail"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	id "chatline/pkg/domain"
	dErrors "chatline/pkg/domain-errors"
)

// User is the identity record the contact core reads and mutates.
//
// Contacts and PendingRequests have set semantics. Contacts must be symmetric
// across users and every pending reference must point at a pending request
// addressed to this user; both are maintained by the contact service, never
// by the store on its own.
type User struct {
	ID              id.UserID      `json:"id"`
	Handle          string         `json:"handle"`
	Email           string         `json:"email"`
	DisplayName     string         `json:"display_name"`
	AvatarRef       string         `json:"avatar_ref"`
	Contacts        []id.UserID    `json:"-"`
	PendingRequests []id.RequestID `json:"-"`
	CreatedAt       time.Time      `json:"created_at"`
}

// NewUser validates and builds a user with empty relationship sets.
func NewUser(userID id.UserID, handle, email, displayName, avatarRef string, now time.Time) (*User, error) {
	handle = strings.TrimSpace(handle)
	email = strings.TrimSpace(email)
	displayName = strings.TrimSpace(displayName)
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user id is required")
	}
	if handle == "" || utf8.RuneCountInString(handle) > 64 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "handle must be 1-64 characters")
	}
	if strings.ContainsAny(handle, " \t\n") {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "handle must not contain whitespace")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "email is invalid")
	}
	if displayName == "" {
		displayName = handle
	}
	return &User{
		ID:          userID,
		Handle:      handle,
		Email:       email,
		DisplayName: displayName,
		AvatarRef:   strings.TrimSpace(avatarRef),
		CreatedAt:   now,
	}, nil
}

// HandleKey and EmailKey are the case-insensitive uniqueness keys.
func (u *User) HandleKey() string { return strings.ToLower(u.Handle) }
func (u *User) EmailKey() string  { return strings.ToLower(u.Email) }

// Matches reports a case-insensitive substring match of a lowered query
// against handle or email.
func (u *User) Matches(loweredQuery string) bool {
	return strings.Contains(u.HandleKey(), loweredQuery) || strings.Contains(u.EmailKey(), loweredQuery)
}

func (u *User) HasContact(other id.UserID) bool {
	return slices.Contains(u.Contacts, other)
}

func (u *User) HasPending(requestID id.RequestID) bool {
	return slices.Contains(u.PendingRequests, requestID)
}

// Summary is the public projection of the user.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:          u.ID,
		Handle:      u.Handle,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarRef:   u.AvatarRef,
	}
}

// UserSummary is what other users may see. It never includes relationship sets.
type UserSummary struct {
	ID          id.UserID `json:"id"`
	Handle      string    `json:"handle"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	AvatarRef   string    `json:"avatar_ref,omitempty"`
}
