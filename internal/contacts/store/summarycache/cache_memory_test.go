package summarycache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/internal/contacts/models"
	id "chatline/pkg/domain"
	"chatline/pkg/requestcontext"
)

func TestInMemoryCache(t *testing.T) {
	now := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	alice := models.UserSummary{ID: id.NewUserID(), Handle: "alice", Email: "alice@chat.test"}
	bob := models.UserSummary{ID: id.NewUserID(), Handle: "bob", Email: "bob@chat.test"}

	t.Run("returns only cached entries", func(t *testing.T) {
		cache := NewInMemory(time.Minute)
		require.NoError(t, cache.SetMany(ctx, []models.UserSummary{alice}))

		got, err := cache.GetMany(ctx, []id.UserID{alice.ID, bob.ID})
		require.NoError(t, err)
		assert.Equal(t, map[id.UserID]models.UserSummary{alice.ID: alice}, got)
	})

	t.Run("entries expire after ttl", func(t *testing.T) {
		cache := NewInMemory(time.Minute)
		require.NoError(t, cache.SetMany(ctx, []models.UserSummary{alice}))

		later := requestcontext.WithTime(context.Background(), now.Add(time.Minute))
		got, err := cache.GetMany(later, []id.UserID{alice.ID})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("invalidate drops entries", func(t *testing.T) {
		cache := NewInMemory(time.Minute)
		require.NoError(t, cache.SetMany(ctx, []models.UserSummary{alice, bob}))
		require.NoError(t, cache.Invalidate(ctx, alice.ID))

		got, err := cache.GetMany(ctx, []id.UserID{alice.ID, bob.ID})
		require.NoError(t, err)
		assert.Equal(t, map[id.UserID]models.UserSummary{bob.ID: bob}, got)
	})
}
