package models

import (
	"strings"
	"time"
	"unicode/utf8"

	id "chatline/pkg/domain"
)

// MaxMessageLength bounds the free-text note attached to a request, in characters.
const MaxMessageLength = 500

// ContactRequest is the ledger record for one request between two users.
//
// Invariants:
//   - SenderID != RecipientID
//   - Status only moves pending -> accepted or pending -> rejected
//   - Message is trimmed and at most MaxMessageLength characters
//   - Records are never deleted
type ContactRequest struct {
	ID          id.RequestID  `json:"id"`
	SenderID    id.UserID     `json:"sender_id"`
	RecipientID id.UserID     `json:"recipient_id"`
	Status      RequestStatus `json:"status"`
	Message     string        `json:"message"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewContactRequest builds a pending request.
func NewContactRequest(requestID id.RequestID, sender, recipient id.UserID, message string, now time.Time) (*ContactRequest, error) {
	if sender == recipient {
		return nil, ErrSelfRequest
	}
	msg, err := NormalizeMessage(message)
	if err != nil {
		return nil, err
	}
	return &ContactRequest{
		ID:          requestID,
		SenderID:    sender,
		RecipientID: recipient,
		Status:      StatusPending,
		Message:     msg,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// NormalizeMessage trims surrounding whitespace and enforces the length cap.
func NormalizeMessage(message string) (string, error) {
	msg := strings.TrimSpace(message)
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return msg, nil
}

func (r *ContactRequest) IsPending() bool {
	return r.Status == StatusPending
}

// Involves reports whether the user is the sender or the recipient.
func (r *ContactRequest) Involves(userID id.UserID) bool {
	return r.SenderID == userID || r.RecipientID == userID
}

// CounterpartOf returns the other party. The caller must be involved.
func (r *ContactRequest) CounterpartOf(userID id.UserID) id.UserID {
	if r.SenderID == userID {
		return r.RecipientID
	}
	return r.SenderID
}

// ApplyTransition moves a pending request to a terminal status.
// Stores call it under their own serialization; it returns false when the
// request is no longer pending.
func (r *ContactRequest) ApplyTransition(target RequestStatus, now time.Time) bool {
	if !r.Status.CanTransitionTo(target) {
		return false
	}
	r.Status = target
	r.UpdatedAt = now
	return true
}

// SortNewestFirst orders requests by CreatedAt descending, ties by ID ascending.
func SortNewestFirst(requests []*ContactRequest) {
	sortRequests(requests)
}
