package models

import (
	"cmp"
	"slices"
	"strings"
	"time"

	id "chatline/pkg/domain"
)

// Direction tells a viewer whether they sent or received a request.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// RequestView is a ledger entry annotated with both parties' summaries.
// Direction and Counterpart are set only when the view is built for one
// of the parties.
type RequestView struct {
	ID          id.RequestID  `json:"id"`
	Sender      UserSummary   `json:"sender"`
	Recipient   UserSummary   `json:"recipient"`
	Status      RequestStatus `json:"status"`
	Message     string        `json:"message"`
	Direction   Direction     `json:"type,omitempty"`
	Counterpart *UserSummary  `json:"user,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewRequestView joins a request with its party summaries.
func NewRequestView(r *ContactRequest, sender, recipient UserSummary) RequestView {
	return RequestView{
		ID:        r.ID,
		Sender:    sender,
		Recipient: recipient,
		Status:    r.Status,
		Message:   r.Message,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ForViewer returns a copy of v seen from viewer's side. A viewer who is
// neither party gets v unchanged.
func (v RequestView) ForViewer(viewer id.UserID) RequestView {
	switch viewer {
	case v.Sender.ID:
		counterpart := v.Recipient
		v.Direction, v.Counterpart = DirectionSent, &counterpart
	case v.Recipient.ID:
		counterpart := v.Sender
		v.Direction, v.Counterpart = DirectionReceived, &counterpart
	}
	return v
}

// RequestLists partitions a user's pending requests by role.
type RequestLists struct {
	Sent     []RequestView `json:"sent"`
	Received []RequestView `json:"received"`
}

// RespondResult is returned after a successful transition.
type RespondResult struct {
	Status  RequestStatus `json:"status"`
	Message string        `json:"message"`
}

// ReconcileResult describes how a user's pending references were repaired.
type ReconcileResult struct {
	UserID  id.UserID      `json:"user_id"`
	Pending []id.RequestID `json:"pending"`
	Added   []id.RequestID `json:"added"`
	Removed []id.RequestID `json:"removed"`
}

// Changed reports whether reconciliation modified anything.
func (r ReconcileResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// SortSummaries orders summaries by lowercased handle, then ID.
func SortSummaries(summaries []UserSummary) {
	slices.SortFunc(summaries, func(a, b UserSummary) int {
		if c := cmp.Compare(strings.ToLower(a.Handle), strings.ToLower(b.Handle)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
}

// SortUsers applies the SortSummaries ordering to full records.
func SortUsers(users []*User) {
	slices.SortFunc(users, func(a, b *User) int {
		if c := cmp.Compare(a.HandleKey(), b.HandleKey()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
}

func sortRequests(requests []*ContactRequest) {
	slices.SortFunc(requests, func(a, b *ContactRequest) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
}
