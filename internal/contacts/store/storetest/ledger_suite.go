package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"chatline/internal/contacts/models"
	id "chatline/pkg/domain"
	"chatline/pkg/platform/sentinel"
)

// LedgerSuite exercises a Ledger implementation.
type LedgerSuite struct {
	suite.Suite
	NewStore func(t *testing.T) Ledger
	store    Ledger
}

func (s *LedgerSuite) SetupTest() {
	s.store = s.NewStore(s.T())
}

func (s *LedgerSuite) newRequest(sender, recipient id.UserID, at time.Time) *models.ContactRequest {
	req, err := models.NewContactRequest(id.NewRequestID(), sender, recipient, "hi", at)
	s.Require().NoError(err)
	return req
}

func (s *LedgerSuite) TestCreateAndFind() {
	ctx := context.Background()
	alice, bob := id.NewUserID(), id.NewUserID()
	req := s.newRequest(alice, bob, base)

	s.Require().NoError(s.store.Create(ctx, req))

	found, err := s.store.FindByID(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(req.ID, found.ID)
	s.Equal(alice, found.SenderID)
	s.Equal(bob, found.RecipientID)
	s.Equal(models.StatusPending, found.Status)
	s.Equal("hi", found.Message)
	s.True(base.Equal(found.CreatedAt))

	pending, err := s.store.FindPending(ctx, alice, bob)
	s.Require().NoError(err)
	s.Equal(req.ID, pending.ID)
}

func (s *LedgerSuite) TestFindMissing() {
	ctx := context.Background()
	_, err := s.store.FindByID(ctx, id.NewRequestID())
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindPending(ctx, id.NewUserID(), id.NewUserID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *LedgerSuite) TestOnePendingPerOrderedPair() {
	ctx := context.Background()
	alice, bob := id.NewUserID(), id.NewUserID()
	s.Require().NoError(s.store.Create(ctx, s.newRequest(alice, bob, base)))

	err := s.store.Create(ctx, s.newRequest(alice, bob, base.Add(time.Second)))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	s.NoError(s.store.Create(ctx, s.newRequest(bob, alice, base.Add(time.Second))),
		"the reverse direction is a different pair")
}

func (s *LedgerSuite) TestNewRequestAllowedAfterTerminal() {
	ctx := context.Background()
	alice, bob := id.NewUserID(), id.NewUserID()
	first := s.newRequest(alice, bob, base)
	s.Require().NoError(s.store.Create(ctx, first))
	_, err := s.store.Transition(ctx, first.ID, models.StatusRejected, base.Add(time.Minute))
	s.Require().NoError(err)

	s.NoError(s.store.Create(ctx, s.newRequest(alice, bob, base.Add(2*time.Minute))))
}

func (s *LedgerSuite) TestSelfRequestRejected() {
	alice := id.NewUserID()
	req := &models.ContactRequest{
		ID: id.NewRequestID(), SenderID: alice, RecipientID: alice,
		Status: models.StatusPending, CreatedAt: base, UpdatedAt: base,
	}
	err := s.store.Create(context.Background(), req)
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *LedgerSuite) TestTransition() {
	ctx := context.Background()
	req := s.newRequest(id.NewUserID(), id.NewUserID(), base)
	s.Require().NoError(s.store.Create(ctx, req))

	later := base.Add(time.Minute)
	updated, err := s.store.Transition(ctx, req.ID, models.StatusAccepted, later)
	s.Require().NoError(err)
	s.Equal(models.StatusAccepted, updated.Status)
	s.True(later.Equal(updated.UpdatedAt))
	s.True(base.Equal(updated.CreatedAt))

	_, err = s.store.Transition(ctx, req.ID, models.StatusRejected, later.Add(time.Minute))
	s.ErrorIs(err, sentinel.ErrInvalidState, "terminal states are final")

	_, err = s.store.Transition(ctx, req.ID, models.StatusAccepted, later.Add(time.Minute))
	s.ErrorIs(err, sentinel.ErrInvalidState)

	found, err := s.store.FindByID(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAccepted, found.Status)
	s.True(later.Equal(found.UpdatedAt))
}

func (s *LedgerSuite) TestTransitionUnknownRequest() {
	_, err := s.store.Transition(context.Background(), id.NewRequestID(), models.StatusAccepted, base)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *LedgerSuite) TestTransitionRejectsNonTerminalTarget() {
	ctx := context.Background()
	req := s.newRequest(id.NewUserID(), id.NewUserID(), base)
	s.Require().NoError(s.store.Create(ctx, req))

	_, err := s.store.Transition(ctx, req.ID, models.StatusPending, base)
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

// TestConcurrentTransition verifies exactly one of many racing transitions wins
// and the stored status is the winner's.
func (s *LedgerSuite) TestConcurrentTransition() {
	ctx := context.Background()
	req := s.newRequest(id.NewUserID(), id.NewUserID(), base)
	s.Require().NoError(s.store.Create(ctx, req))

	const goroutines = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		processed atomic.Int32
		winner    atomic.Value
	)
	for i := 0; i < goroutines; i++ {
		target := models.StatusAccepted
		if i%2 == 1 {
			target = models.StatusRejected
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Transition(ctx, req.ID, target, base.Add(time.Minute))
			switch {
			case err == nil:
				successes.Add(1)
				winner.Store(target)
			case errors.Is(err, sentinel.ErrInvalidState):
				processed.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load(), "exactly one transition should win")
	s.Equal(int32(goroutines-1), processed.Load())

	found, err := s.store.FindByID(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(winner.Load().(models.RequestStatus), found.Status)
}

func (s *LedgerSuite) TestConcurrentCreateSamePair() {
	ctx := context.Background()
	alice, bob := id.NewUserID(), id.NewUserID()

	const goroutines = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(ctx, s.newRequest(alice, bob, base))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *LedgerSuite) TestListActiveFor() {
	ctx := context.Background()
	alice, bob, carol, dave := id.NewUserID(), id.NewUserID(), id.NewUserID(), id.NewUserID()

	sent := s.newRequest(alice, bob, base)
	received := s.newRequest(carol, alice, base.Add(2*time.Second))
	closed := s.newRequest(dave, alice, base.Add(time.Second))
	unrelated := s.newRequest(bob, carol, base.Add(3*time.Second))
	for _, r := range []*models.ContactRequest{sent, received, closed, unrelated} {
		s.Require().NoError(s.store.Create(ctx, r))
	}
	_, err := s.store.Transition(ctx, closed.ID, models.StatusAccepted, base.Add(time.Minute))
	s.Require().NoError(err)

	active, err := s.store.ListActiveFor(ctx, alice)
	s.Require().NoError(err)
	s.Require().Len(active, 2)
	s.Equal(received.ID, active[0].ID, "newest first")
	s.Equal(sent.ID, active[1].ID)

	incoming, err := s.store.ListPendingReceived(ctx, alice)
	s.Require().NoError(err)
	s.Require().Len(incoming, 1)
	s.Equal(received.ID, incoming[0].ID)

	none, err := s.store.ListActiveFor(ctx, id.NewUserID())
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *LedgerSuite) TestListOrderingTiesBreakByID() {
	ctx := context.Background()
	alice := id.NewUserID()
	a := s.newRequest(id.NewUserID(), alice, base)
	b := s.newRequest(id.NewUserID(), alice, base)
	s.Require().NoError(s.store.Create(ctx, a))
	s.Require().NoError(s.store.Create(ctx, b))

	list, err := s.store.ListPendingReceived(ctx, alice)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Less(list[0].ID.String(), list[1].ID.String())
}
