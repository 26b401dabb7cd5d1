package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/internal/contacts/store/identity"
	id "chatline/pkg/domain"
)

const sampleSeed = `
users:
  - id: 7d9f3c1e-2b8a-4f61-9c3d-5e7a1b2c4d6f
    handle: alice
    email: alice@chat.test
    display_name: Alice
  - handle: bob
    email: bob@chat.test
  - handle: Alice
    email: other@chat.test
`

func TestParseSeed(t *testing.T) {
	users, err := parseSeed(strings.NewReader(sampleSeed))
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "alice", users[0].Handle)
	assert.Equal(t, "Alice", users[0].DisplayName)

	_, err = parseSeed(strings.NewReader("users:\n  - handel: typo\n"))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestSeedUsers(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := identity.NewInMemory()
	now := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)

	users, err := parseSeed(strings.NewReader(sampleSeed))
	require.NoError(t, err)

	report, err := seedUsers(ctx, store, users, now, log)
	require.NoError(t, err)
	assert.Equal(t, seedReport{Created: 2, Skipped: 1}, report)

	aliceID, err := id.ParseUserID("7d9f3c1e-2b8a-4f61-9c3d-5e7a1b2c4d6f")
	require.NoError(t, err)
	alice, err := store.FindUser(ctx, aliceID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", alice.DisplayName)

	t.Run("rerun skips everything", func(t *testing.T) {
		report, err := seedUsers(ctx, store, users, now, log)
		require.NoError(t, err)
		assert.Equal(t, seedReport{Created: 0, Skipped: 3}, report)
	})

	t.Run("invalid user stops the run", func(t *testing.T) {
		_, err := seedUsers(ctx, store, []seedUser{{Handle: "carol", Email: "not-an-email"}}, now, log)
		assert.ErrorContains(t, err, "carol")
	})
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "seed", "reconcile", "token"}, names)
}
