package summarycache

import (
	"context"
	"sync"
	"time"

	"chatline/internal/contacts/models"
	id "chatline/pkg/domain"
	"chatline/pkg/requestcontext"
)

type entry struct {
	summary   models.UserSummary
	expiresAt time.Time
}

// InMemoryCache is a process-local cache for single-node deployments and tests.
type InMemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[id.UserID]entry
}

func NewInMemory(ttl time.Duration) *InMemoryCache {
	return &InMemoryCache{
		ttl:     ttl,
		entries: make(map[id.UserID]entry),
	}
}

func (c *InMemoryCache) GetMany(ctx context.Context, ids []id.UserID) (map[id.UserID]models.UserSummary, error) {
	now := requestcontext.Now(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[id.UserID]models.UserSummary, len(ids))
	for _, userID := range ids {
		e, ok := c.entries[userID]
		if !ok || !now.Before(e.expiresAt) {
			continue
		}
		out[userID] = e.summary
	}
	return out, nil
}

func (c *InMemoryCache) SetMany(ctx context.Context, summaries []models.UserSummary) error {
	expiresAt := requestcontext.Now(ctx).Add(c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range summaries {
		c.entries[s.ID] = entry{summary: s, expiresAt: expiresAt}
	}
	return nil
}

func (c *InMemoryCache) Invalidate(_ context.Context, ids ...id.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, userID := range ids {
		delete(c.entries, userID)
	}
	return nil
}
