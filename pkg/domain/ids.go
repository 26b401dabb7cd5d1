// Package domain holds shared domain primitives.
//
// Identifiers are distinct named types over uuid.UUID so a UserID can never be
// passed where a RequestID is expected. Equality is plain value comparison; no
// string coercion is needed for authorization checks.
package domain

import (
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "chatline/pkg/domain-errors"
)

// UserID identifies a registered user.
type UserID uuid.UUID

// RequestID identifies a contact request in the ledger.
type RequestID uuid.UUID

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewRequestID returns a fresh random RequestID.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

// ParseUserID parses external input into a UserID.
//
// Errors: CodeInvalidInput when the value is empty, not a UUID, or the nil UUID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseRequestID parses external input into a RequestID.
//
// Errors: CodeInvalidInput when the value is empty, not a UUID, or the nil UUID.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request id")
	return RequestID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	if !utf8.ValidString(s) || len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return u, nil
}

func (id UserID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether id is the zero value.
func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id RequestID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether id is the zero value.
func (id RequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id RequestID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *RequestID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
