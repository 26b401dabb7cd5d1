// Package storetest holds behavior suites every contact store backend must pass.
//
// Backends run them from their own tests:
//
//	suite.Run(t, &storetest.LedgerSuite{NewStore: func(t *testing.T) storetest.Ledger {
//		return ledger.NewInMemory()
//	}})
package storetest

import (
	"context"
	"time"

	"chatline/internal/contacts/models"
	id "chatline/pkg/domain"
)

// Ledger is the request ledger contract.
type Ledger interface {
	Create(ctx context.Context, req *models.ContactRequest) error
	FindByID(ctx context.Context, requestID id.RequestID) (*models.ContactRequest, error)
	FindPending(ctx context.Context, sender, recipient id.UserID) (*models.ContactRequest, error)
	Transition(ctx context.Context, requestID id.RequestID, target models.RequestStatus, now time.Time) (*models.ContactRequest, error)
	ListActiveFor(ctx context.Context, userID id.UserID) ([]*models.ContactRequest, error)
	ListPendingReceived(ctx context.Context, userID id.UserID) ([]*models.ContactRequest, error)
}

// Identity is the identity store contract.
type Identity interface {
	Create(ctx context.Context, user *models.User) error
	FindUser(ctx context.Context, userID id.UserID) (*models.User, error)
	FindUsers(ctx context.Context, ids []id.UserID) ([]*models.User, error)
	FindUsersMatching(ctx context.Context, query string, excluding id.UserID, limit int) ([]*models.User, error)
	AddContact(ctx context.Context, userID, otherID id.UserID) error
	AddPending(ctx context.Context, userID id.UserID, requestID id.RequestID) error
	RemoveFromPending(ctx context.Context, userID id.UserID, requestID id.RequestID) error
	ReplacePending(ctx context.Context, userID id.UserID, requestIDs []id.RequestID) error
	IsContact(ctx context.Context, userID, otherID id.UserID) (bool, error)
	ListContacts(ctx context.Context, userID id.UserID) ([]*models.User, error)
}

// base is millisecond-aligned so every backend round-trips it exactly.
var base = time.Date(2025, 5, 4, 10, 30, 0, 0, time.UTC)
