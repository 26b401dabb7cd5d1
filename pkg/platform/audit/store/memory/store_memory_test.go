package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "chatline/pkg/domain"
	audit "chatline/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	alice, bob, carol := id.NewUserID(), id.NewUserID(), id.NewUserID()

	require.NoError(t, store.Append(ctx, audit.Event{Action: audit.ActionRequestSent, ActorID: alice, CounterpartID: bob}))
	require.NoError(t, store.Append(ctx, audit.Event{Action: audit.ActionPendingReconciled, ActorID: carol, CounterpartID: carol}))

	aliceEvents, err := store.ListByUser(ctx, alice)
	require.NoError(t, err)
	bobEvents, err := store.ListByUser(ctx, bob)
	require.NoError(t, err)
	carolEvents, err := store.ListByUser(ctx, carol)
	require.NoError(t, err)

	assert.Len(t, aliceEvents, 1)
	assert.Len(t, bobEvents, 1, "counterpart sees the event")
	assert.Len(t, carolEvents, 1, "self-referencing events are indexed once")

	aliceEvents[0].Detail = "mutated"
	again, _ := store.ListByUser(ctx, alice)
	assert.Empty(t, again[0].Detail)

	store.Clear()
	cleared, err := store.ListByUser(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, cleared)
}
