package memory

import (
	"context"
	"sync"

	id "chatline/pkg/domain"
	audit "chatline/pkg/platform/audit"
)

// InMemoryStore indexes events under both the actor and the counterpart so either
// party can list the history of a request.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.UserID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.UserID][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.UserID][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ActorID] = append(s.events[event.ActorID], event)
	if !event.CounterpartID.IsNil() && event.CounterpartID != event.ActorID {
		s.events[event.CounterpartID] = append(s.events[event.CounterpartID], event)
	}
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[userID]...), nil
}
