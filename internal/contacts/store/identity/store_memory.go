// Package identity stores user records with their contact and pending-request sets.
//
// Set mutations are idempotent and commutative so two per-user updates can run
// concurrently without coordination.
package identity

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"chatline/internal/contacts/models"
	id "chatline/pkg/domain"
	"chatline/pkg/platform/sentinel"
)

// InMemoryStore keeps users in maps guarded by a single RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	handles map[string]id.UserID
	emails  map[string]id.UserID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		users:   make(map[id.UserID]*models.User),
		handles: make(map[string]id.UserID),
		emails:  make(map[string]id.UserID),
	}
}

// Create inserts a user. Handle and email are unique case-insensitively.
func (s *InMemoryStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("user id: %w", sentinel.ErrAlreadyUsed)
	}
	if _, ok := s.handles[user.HandleKey()]; ok {
		return fmt.Errorf("handle %q: %w", user.Handle, sentinel.ErrAlreadyUsed)
	}
	if _, ok := s.emails[user.EmailKey()]; ok {
		return fmt.Errorf("email: %w", sentinel.ErrAlreadyUsed)
	}
	cp := cloneUser(user)
	s.users[cp.ID] = cp
	s.handles[cp.HandleKey()] = cp.ID
	s.emails[cp.EmailKey()] = cp.ID
	return nil
}

func (s *InMemoryStore) FindUser(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneUser(u), nil
}

// FindUsers returns the users that exist among ids, in no particular order.
func (s *InMemoryStore) FindUsers(_ context.Context, ids []id.UserID) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.User, 0, len(ids))
	for _, uid := range ids {
		if u, ok := s.users[uid]; ok {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

// FindUsersMatching returns users whose handle or email contains query,
// case-insensitively, excluding one user, ordered by handle then id.
func (s *InMemoryStore) FindUsersMatching(_ context.Context, query string, excluding id.UserID, limit int) ([]*models.User, error) {
	q := strings.ToLower(query)
	s.mu.RLock()
	out := make([]*models.User, 0)
	for _, u := range s.users {
		if u.ID != excluding && u.Matches(q) {
			out = append(out, cloneUser(u))
		}
	}
	s.mu.RUnlock()

	models.SortUsers(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) AddContact(_ context.Context, userID, otherID id.UserID) error {
	return s.mutate(userID, func(u *models.User) {
		if !u.HasContact(otherID) {
			u.Contacts = append(u.Contacts, otherID)
		}
	})
}

func (s *InMemoryStore) AddPending(_ context.Context, userID id.UserID, requestID id.RequestID) error {
	return s.mutate(userID, func(u *models.User) {
		if !u.HasPending(requestID) {
			u.PendingRequests = append(u.PendingRequests, requestID)
		}
	})
}

func (s *InMemoryStore) RemoveFromPending(_ context.Context, userID id.UserID, requestID id.RequestID) error {
	return s.mutate(userID, func(u *models.User) {
		u.PendingRequests = slices.DeleteFunc(u.PendingRequests, func(r id.RequestID) bool { return r == requestID })
	})
}

// ReplacePending overwrites the user's pending set.
func (s *InMemoryStore) ReplacePending(_ context.Context, userID id.UserID, requestIDs []id.RequestID) error {
	return s.mutate(userID, func(u *models.User) {
		u.PendingRequests = dedupeRequests(requestIDs)
	})
}

func (s *InMemoryStore) IsContact(_ context.Context, userID, otherID id.UserID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	return u.HasContact(otherID), nil
}

// ListContacts resolves the user's contact set, ordered by handle then id.
func (s *InMemoryStore) ListContacts(_ context.Context, userID id.UserID) ([]*models.User, error) {
	s.mu.RLock()
	u, ok := s.users[userID]
	if !ok {
		s.mu.RUnlock()
		return nil, sentinel.ErrNotFound
	}
	out := make([]*models.User, 0, len(u.Contacts))
	for _, cid := range u.Contacts {
		if c, ok := s.users[cid]; ok {
			out = append(out, cloneUser(c))
		}
	}
	s.mu.RUnlock()

	models.SortUsers(out)
	return out, nil
}

func (s *InMemoryStore) mutate(userID id.UserID, fn func(u *models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	fn(u)
	return nil
}

func cloneUser(u *models.User) *models.User {
	cp := *u
	cp.Contacts = slices.Clone(u.Contacts)
	cp.PendingRequests = slices.Clone(u.PendingRequests)
	return &cp
}

func dedupeRequests(ids []id.RequestID) []id.RequestID {
	seen := make(map[id.RequestID]struct{}, len(ids))
	out := make([]id.RequestID, 0, len(ids))
	for _, r := range ids {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// escapeLike escapes LIKE metacharacters so user input matches literally
// under ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func likePattern(query string) string {
	return "%" + escapeLike(strings.ToLower(query)) + "%"
}
