package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"chatline/internal/contacts/models"
	id "chatline/pkg/domain"
	"chatline/pkg/platform/sentinel"
)

// IdentitySuite exercises an Identity implementation.
type IdentitySuite struct {
	suite.Suite
	NewStore func(t *testing.T) Identity
	store    Identity
}

func (s *IdentitySuite) SetupTest() {
	s.store = s.NewStore(s.T())
}

func (s *IdentitySuite) createUser(handle string) *models.User {
	u, err := models.NewUser(id.NewUserID(), handle, handle+"@chat.test", "", "", base)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), u))
	return u
}

func (s *IdentitySuite) TestCreateAndFind() {
	u := s.createUser("alice")

	found, err := s.store.FindUser(context.Background(), u.ID)
	s.Require().NoError(err)
	s.Equal(u.ID, found.ID)
	s.Equal("alice", found.Handle)
	s.Equal("alice@chat.test", found.Email)
	s.Equal("alice", found.DisplayName)
	s.True(base.Equal(found.CreatedAt))
	s.Empty(found.Contacts)
	s.Empty(found.PendingRequests)
}

func (s *IdentitySuite) TestFindMissing() {
	_, err := s.store.FindUser(context.Background(), id.NewUserID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *IdentitySuite) TestHandleAndEmailUniqueCaseInsensitive() {
	ctx := context.Background()
	s.createUser("alice")

	dupHandle, err := models.NewUser(id.NewUserID(), "ALICE", "other@chat.test", "", "", base)
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(ctx, dupHandle), sentinel.ErrAlreadyUsed)

	dupEmail, err := models.NewUser(id.NewUserID(), "alice2", "Alice@Chat.Test", "", "", base)
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(ctx, dupEmail), sentinel.ErrAlreadyUsed)
}

func (s *IdentitySuite) TestFindUsers() {
	a, b := s.createUser("alice"), s.createUser("bob")

	users, err := s.store.FindUsers(context.Background(), []id.UserID{a.ID, b.ID, id.NewUserID()})
	s.Require().NoError(err)
	s.Len(users, 2)

	empty, err := s.store.FindUsers(context.Background(), nil)
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *IdentitySuite) TestAddContactIsIdempotent() {
	ctx := context.Background()
	a, b := s.createUser("alice"), s.createUser("bob")

	s.Require().NoError(s.store.AddContact(ctx, a.ID, b.ID))
	s.Require().NoError(s.store.AddContact(ctx, a.ID, b.ID))

	found, err := s.store.FindUser(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal([]id.UserID{b.ID}, found.Contacts)

	ok, err := s.store.IsContact(ctx, a.ID, b.ID)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.IsContact(ctx, b.ID, a.ID)
	s.Require().NoError(err)
	s.False(ok, "the store does not mirror contacts on its own")
}

func (s *IdentitySuite) TestPendingSetOperations() {
	ctx := context.Background()
	u := s.createUser("alice")
	r1, r2 := id.NewRequestID(), id.NewRequestID()

	s.Require().NoError(s.store.AddPending(ctx, u.ID, r1))
	s.Require().NoError(s.store.AddPending(ctx, u.ID, r1))
	s.Require().NoError(s.store.AddPending(ctx, u.ID, r2))

	found, err := s.store.FindUser(ctx, u.ID)
	s.Require().NoError(err)
	s.ElementsMatch([]id.RequestID{r1, r2}, found.PendingRequests)

	s.Require().NoError(s.store.RemoveFromPending(ctx, u.ID, r1))
	s.Require().NoError(s.store.RemoveFromPending(ctx, u.ID, r1))

	found, err = s.store.FindUser(ctx, u.ID)
	s.Require().NoError(err)
	s.Equal([]id.RequestID{r2}, found.PendingRequests)
}

func (s *IdentitySuite) TestReplacePending() {
	ctx := context.Background()
	u := s.createUser("alice")
	stale, keep, fresh := id.NewRequestID(), id.NewRequestID(), id.NewRequestID()
	s.Require().NoError(s.store.AddPending(ctx, u.ID, stale))
	s.Require().NoError(s.store.AddPending(ctx, u.ID, keep))

	s.Require().NoError(s.store.ReplacePending(ctx, u.ID, []id.RequestID{keep, fresh, fresh}))

	found, err := s.store.FindUser(ctx, u.ID)
	s.Require().NoError(err)
	s.ElementsMatch([]id.RequestID{keep, fresh}, found.PendingRequests)

	s.Require().NoError(s.store.ReplacePending(ctx, u.ID, nil))
	found, err = s.store.FindUser(ctx, u.ID)
	s.Require().NoError(err)
	s.Empty(found.PendingRequests)
}

func (s *IdentitySuite) TestMutationsOnMissingUser() {
	ctx := context.Background()
	ghost := id.NewUserID()

	s.ErrorIs(s.store.AddContact(ctx, ghost, id.NewUserID()), sentinel.ErrNotFound)
	s.ErrorIs(s.store.AddPending(ctx, ghost, id.NewRequestID()), sentinel.ErrNotFound)
	s.ErrorIs(s.store.RemoveFromPending(ctx, ghost, id.NewRequestID()), sentinel.ErrNotFound)
	s.ErrorIs(s.store.ReplacePending(ctx, ghost, nil), sentinel.ErrNotFound)

	_, err := s.store.IsContact(ctx, ghost, id.NewUserID())
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.ListContacts(ctx, ghost)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *IdentitySuite) TestFindUsersMatching() {
	ctx := context.Background()
	alice := s.createUser("alice")
	bob := s.createUser("Bob")
	bobby := s.createUser("bobby")
	s.createUser("carol")
	robert, err := models.NewUser(id.NewUserID(), "robert", "BOB.r@chat.test", "", "", base)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(ctx, robert))

	found, err := s.store.FindUsersMatching(ctx, "bob", alice.ID, 50)
	s.Require().NoError(err)
	s.Equal([]id.UserID{bob.ID, bobby.ID, robert.ID}, userIDs(found), "matches handle or email, ordered by handle")

	found, err = s.store.FindUsersMatching(ctx, "BOB", bob.ID, 50)
	s.Require().NoError(err)
	s.Equal([]id.UserID{bobby.ID, robert.ID}, userIDs(found), "excludes the caller")

	found, err = s.store.FindUsersMatching(ctx, "bob", alice.ID, 1)
	s.Require().NoError(err)
	s.Equal([]id.UserID{bob.ID}, userIDs(found))

	found, err = s.store.FindUsersMatching(ctx, "b%", alice.ID, 50)
	s.Require().NoError(err)
	s.Empty(found, "LIKE metacharacters match literally")
}

func (s *IdentitySuite) TestListContacts() {
	ctx := context.Background()
	me := s.createUser("me")
	zed, amy := s.createUser("zed"), s.createUser("amy")

	empty, err := s.store.ListContacts(ctx, me.ID)
	s.Require().NoError(err)
	s.Empty(empty)

	s.Require().NoError(s.store.AddContact(ctx, me.ID, zed.ID))
	s.Require().NoError(s.store.AddContact(ctx, me.ID, amy.ID))

	contacts, err := s.store.ListContacts(ctx, me.ID)
	s.Require().NoError(err)
	s.Equal([]id.UserID{amy.ID, zed.ID}, userIDs(contacts))
}

func (s *IdentitySuite) TestConcurrentAddContact() {
	ctx := context.Background()
	a := s.createUser("alice")
	others := make([]*models.User, 5)
	for i := range others {
		others[i] = s.createUser(fmt.Sprintf("friend%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.NoError(s.store.AddContact(ctx, a.ID, others[i%len(others)].ID))
		}(i)
	}
	wg.Wait()

	found, err := s.store.FindUser(ctx, a.ID)
	s.Require().NoError(err)
	s.Len(found.Contacts, len(others), "each contact appears exactly once")
}

func userIDs(users []*models.User) []id.UserID {
	out := make([]id.UserID, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}
