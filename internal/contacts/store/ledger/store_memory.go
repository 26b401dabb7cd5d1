// Package ledger persists contact requests and owns their state machine.
//
// Every backend enforces the same two rules at its single authoritative write:
// at most one pending request per ordered (sender, recipient) pair, and a
// transition only succeeds while the stored status is still pending.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatline/internal/contacts/models"
	id "chatline/pkg/domain"
	"chatline/pkg/platform/sentinel"
)

type pairKey struct {
	sender    id.UserID
	recipient id.UserID
}

// InMemoryStore is a mutex-guarded ledger for tests and single-process use.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.ContactRequest
	pending  map[pairKey]id.RequestID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		requests: make(map[id.RequestID]*models.ContactRequest),
		pending:  make(map[pairKey]id.RequestID),
	}
}

// Create stores a new pending request.
// Returns sentinel.ErrInvalidState for a self request and
// sentinel.ErrAlreadyUsed when the pair already has a pending request.
func (s *InMemoryStore) Create(_ context.Context, req *models.ContactRequest) error {
	if req.SenderID == req.RecipientID {
		return fmt.Errorf("sender equals recipient: %w", sentinel.ErrInvalidState)
	}
	key := pairKey{req.SenderID, req.RecipientID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[key]; ok {
		return fmt.Errorf("pending request exists for pair: %w", sentinel.ErrAlreadyUsed)
	}
	if _, ok := s.requests[req.ID]; ok {
		return fmt.Errorf("request id exists: %w", sentinel.ErrAlreadyUsed)
	}
	cp := *req
	cp.Status = models.StatusPending
	s.requests[cp.ID] = &cp
	s.pending[key] = cp.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, requestID id.RequestID) (*models.ContactRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// FindPending returns the pending request for the ordered pair.
func (s *InMemoryStore) FindPending(_ context.Context, sender, recipient id.UserID) (*models.ContactRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reqID, ok := s.pending[pairKey{sender, recipient}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.requests[reqID]
	return &cp, nil
}

// Transition moves a pending request to target as one compare-and-set.
// Returns sentinel.ErrNotFound for an unknown id and sentinel.ErrInvalidState
// when the request is no longer pending.
func (s *InMemoryStore) Transition(_ context.Context, requestID id.RequestID, target models.RequestStatus, now time.Time) (*models.ContactRequest, error) {
	if !target.IsTerminal() {
		return nil, fmt.Errorf("target status %q: %w", target, sentinel.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !req.ApplyTransition(target, now) {
		return nil, fmt.Errorf("request is %s: %w", req.Status, sentinel.ErrInvalidState)
	}
	delete(s.pending, pairKey{req.SenderID, req.RecipientID})
	cp := *req
	return &cp, nil
}

// ListActiveFor returns pending requests the user sent or received, newest first.
func (s *InMemoryStore) ListActiveFor(_ context.Context, userID id.UserID) ([]*models.ContactRequest, error) {
	return s.collect(func(r *models.ContactRequest) bool { return r.Involves(userID) }), nil
}

// ListPendingReceived returns pending requests addressed to the user, newest first.
func (s *InMemoryStore) ListPendingReceived(_ context.Context, userID id.UserID) ([]*models.ContactRequest, error) {
	return s.collect(func(r *models.ContactRequest) bool { return r.RecipientID == userID }), nil
}

func (s *InMemoryStore) collect(keep func(*models.ContactRequest) bool) []*models.ContactRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ContactRequest, 0)
	for _, reqID := range s.pending {
		req := s.requests[reqID]
		if keep(req) {
			cp := *req
			out = append(out, &cp)
		}
	}
	models.SortNewestFirst(out)
	return out
}
