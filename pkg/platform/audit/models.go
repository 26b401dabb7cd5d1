package audit

import (
	"context"
	"time"

	id "chatline/pkg/domain"
)

// Action names a contact lifecycle fact worth keeping.
type Action string

const (
	ActionRequestSent       Action = "contact_request_sent"
	ActionRequestAccepted   Action = "contact_request_accepted"
	ActionRequestRejected   Action = "contact_request_rejected"
	ActionPendingReconciled Action = "pending_requests_reconciled"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Action    Action
	Timestamp time.Time
	// ActorID is the user who performed the action.
	ActorID id.UserID
	// CounterpartID is the other party of the contact request, if any.
	CounterpartID    id.UserID
	ContactRequestID id.RequestID
	// RequestID is the HTTP correlation ID.
	RequestID string
	Detail    string
}

// Sink accepts audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Store is a Sink that can also be queried per user.
type Store interface {
	Sink
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
