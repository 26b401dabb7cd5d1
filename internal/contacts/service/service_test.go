package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"chatline/internal/contacts/metrics"
	"chatline/internal/contacts/models"
	"chatline/internal/contacts/service/mocks"
	id "chatline/pkg/domain"
	dErrors "chatline/pkg/domain-errors"
	"chatline/pkg/platform/audit"
	"chatline/pkg/platform/sentinel"
	"chatline/pkg/requestcontext"
)

// =============================================================================
// Contact Service Test Suite
// =============================================================================
// Unit tests pin error translation, call ordering and fail-open side channels.
// Lifecycle behavior against real stores lives in scenario_test.go.

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	ledger    *mocks.MockLedgerStore
	identity  *mocks.MockIdentityStore
	cache     *mocks.MockSummaryCache
	publisher *mocks.MockAuditPublisher
	metrics   *metrics.Metrics
	service   *Service

	now   time.Time
	ctx   context.Context
	alice *models.User
	bob   *models.User
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ledger = mocks.NewMockLedgerStore(s.ctrl)
	s.identity = mocks.NewMockIdentityStore(s.ctrl)
	s.cache = mocks.NewMockSummaryCache(s.ctrl)
	s.publisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.service = New(s.ledger, s.identity,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.publisher),
		WithSummaryCache(s.cache),
		WithMetrics(s.metrics),
	)

	s.now = time.Date(2025, 5, 4, 10, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), s.now), "req-1")
	s.alice = s.user("alice")
	s.bob = s.user("bob")
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) user(handle string) *models.User {
	u, err := models.NewUser(id.NewUserID(), handle, handle+"@chat.test", "", "", s.now)
	s.Require().NoError(err)
	return u
}

func (s *ServiceSuite) pendingRequest() *models.ContactRequest {
	req, err := models.NewContactRequest(id.NewRequestID(), s.alice.ID, s.bob.ID, "hi", s.now.Add(-time.Hour))
	s.Require().NoError(err)
	return req
}

func (s *ServiceSuite) assertReason(err error, reason string) {
	s.Require().Error(err)
	s.Equal(reason, dErrors.ReasonOf(err), "unexpected error: %v", err)
}

func (s *ServiceSuite) TestNew() {
	s.Run("applies defaults", func() {
		svc := New(s.ledger, s.identity)
		s.NotNil(svc.logger)
		s.NotNil(svc.tracer)
		s.Equal(DefaultSearchLimit, svc.searchLimit)
		s.Nil(svc.cache)
	})

	s.Run("ignores non-positive search limit", func() {
		s.Equal(DefaultSearchLimit, New(s.ledger, s.identity, WithSearchLimit(0)).searchLimit)
		s.Equal(10, New(s.ledger, s.identity, WithSearchLimit(10)).searchLimit)
	})
}

// =============================================================================
// SendRequest
// =============================================================================

func (s *ServiceSuite) TestSendRequest() {
	s.Run("self request is rejected before any read", func() {
		_, err := s.service.SendRequest(s.ctx, s.alice.ID, s.alice.ID, "hi")
		s.assertReason(err, models.ReasonSelfRequest)
	})

	s.Run("oversized message is rejected before any read", func() {
		long := make([]rune, models.MaxMessageLength+1)
		for i := range long {
			long[i] = 'x'
		}
		_, err := s.service.SendRequest(s.ctx, s.alice.ID, s.bob.ID, string(long))
		s.assertReason(err, models.ReasonInvalidMessage)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown recipient", func() {
		s.identity.EXPECT().FindUser(gomock.Any(), s.bob.ID).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.SendRequest(s.ctx, s.alice.ID, s.bob.ID, "hi")
		s.assertReason(err, models.ReasonUserNotFound)
	})

	s.Run("already contacts", func() {
		alice := *s.alice
		alice.Contacts = []id.UserID{s.bob.ID}
		s.identity.EXPECT().FindUser(gomock.Any(), s.bob.ID).Return(s.bob, nil)
		s.identity.EXPECT().FindUser(gomock.Any(), s.alice.ID).Return(&alice, nil)

		_, err := s.service.SendRequest(s.ctx, s.alice.ID, s.bob.ID, "hi")
		s.assertReason(err, models.ReasonAlreadyContacts)
	})

	s.Run("success records the reference and returns an annotated view", func() {
		var created *models.ContactRequest
		s.identity.EXPECT().FindUser(gomock.Any(), s.bob.ID).Return(s.bob, nil)
		s.identity.EXPECT().FindUser(gomock.Any(), s.alice.ID).Return(s.alice, nil)
		gomock.InOrder(
			s.ledger.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, req *models.ContactRequest) error {
					created = req
					return nil
				}),
			s.identity.EXPECT().AddPending(gomock.Any(), s.bob.ID, gomock.Any()).DoAndReturn(
				func(_ context.Context, _ id.UserID, requestID id.RequestID) error {
					s.Equal(created.ID, requestID)
					return nil
				}),
			s.ledger.EXPECT().FindByID(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, _ id.RequestID) (*models.ContactRequest, error) {
					return created, nil
				}),
		)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, event audit.Event) error {
				s.Equal(audit.ActionRequestSent, event.Action)
				s.Equal(s.alice.ID, event.ActorID)
				s.Equal(s.bob.ID, event.CounterpartID)
				s.Equal("req-1", event.RequestID)
				return nil
			})

		view, err := s.service.SendRequest(s.ctx, s.alice.ID, s.bob.ID, "  hi  ")
		s.Require().NoError(err)
		s.Equal(created.ID, view.ID)
		s.Equal("hi", view.Message)
		s.Equal(models.StatusPending, view.Status)
		s.Equal(s.alice.Summary(), view.Sender)
		s.Equal(s.bob.Summary(), view.Recipient)
		s.True(s.now.Equal(view.CreatedAt))
		s.InDelta(1, testutil.ToFloat64(s.metrics.RequestsSent), 0)
	})
}

func (s *ServiceSuite) TestSendRequestDuplicateHealsReference() {
	existing := s.pendingRequest()
	s.identity.EXPECT().FindUser(gomock.Any(), s.bob.ID).Return(s.bob, nil)
	s.identity.EXPECT().FindUser(gomock.Any(), s.alice.ID).Return(s.alice, nil)
	s.ledger.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyUsed)
	s.ledger.EXPECT().FindPending(gomock.Any(), s.alice.ID, s.bob.ID).Return(existing, nil)
	s.identity.EXPECT().AddPending(gomock.Any(), s.bob.ID, existing.ID).Return(nil)

	_, err := s.service.SendRequest(s.ctx, s.alice.ID, s.bob.ID, "hi")
	s.assertReason(err, models.ReasonDuplicateRequest)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.InDelta(1, testutil.ToFloat64(s.metrics.Rejections.WithLabelValues("send_request", models.ReasonDuplicateRequest)), 0)
}

func (s *ServiceSuite) TestSendRequestDuplicateHealFailureStillReportsDuplicate() {
	existing := s.pendingRequest()
	s.identity.EXPECT().FindUser(gomock.Any(), s.bob.ID).Return(s.bob, nil)
	s.identity.EXPECT().FindUser(gomock.Any(), s.alice.ID).Return(s.alice, nil)
	s.ledger.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyUsed)
	s.ledger.EXPECT().FindPending(gomock.Any(), s.alice.ID, s.bob.ID).Return(existing, nil)
	s.identity.EXPECT().AddPending(gomock.Any(), s.bob.ID, existing.ID).Return(errors.New("connection reset"))

	_, err := s.service.SendRequest(s.ctx, s.alice.ID, s.bob.ID, "hi")
	s.assertReason(err, models.ReasonDuplicateRequest)
}

func (s *ServiceSuite) TestSendRequestStorageFailures() {
	s.Run("ledger failure is opaque", func() {
		s.identity.EXPECT().FindUser(gomock.Any(), s.bob.ID).Return(s.bob, nil)
		s.identity.EXPECT().FindUser(gomock.Any(), s.alice.ID).Return(s.alice, nil)
		s.ledger.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

		_, err := s.service.SendRequest(s.ctx, s.alice.ID, s.bob.ID, "hi")
		s.assertReason(err, models.ReasonStorageFailure)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("reference failure is reported after the request exists", func() {
		s.identity.EXPECT().FindUser(gomock.Any(), s.bob.ID).Return(s.bob, nil)
		s.identity.EXPECT().FindUser(gomock.Any(), s.alice.ID).Return(s.alice, nil)
		s.ledger.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.identity.EXPECT().AddPending(gomock.Any(), s.bob.ID, gomock.Any()).Return(errors.New("connection reset"))

		_, err := s.service.SendRequest(s.ctx, s.alice.ID, s.bob.ID, "hi")
		s.assertReason(err, models.ReasonStorageFailure)
	})

	s.Run("deadline overrun maps to timeout", func() {
		s.identity.EXPECT().FindUser(gomock.Any(), s.bob.ID).Return(nil, context.DeadlineExceeded)

		_, err := s.service.SendRequest(s.ctx, s.alice.ID, s.bob.ID, "hi")
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

func (s *ServiceSuite) TestSendRequestResolvedBeforeReferenceIsRecorded() {
	var created *models.ContactRequest
	s.identity.EXPECT().FindUser(gomock.Any(), s.bob.ID).Return(s.bob, nil)
	s.identity.EXPECT().FindUser(gomock.Any(), s.alice.ID).Return(s.alice, nil)
	gomock.InOrder(
		s.ledger.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req *models.ContactRequest) error {
				created = req
				return nil
			}),
		s.identity.EXPECT().AddPending(gomock.Any(), s.bob.ID, gomock.Any()).Return(nil),
		s.ledger.EXPECT().FindByID(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, requestID id.RequestID) (*models.ContactRequest, error) {
				accepted := *created
				accepted.ApplyTransition(models.StatusAccepted, s.now)
				return &accepted, nil
			}),
		s.identity.EXPECT().RemoveFromPending(gomock.Any(), s.bob.ID, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ id.UserID, requestID id.RequestID) error {
				s.Equal(created.ID, requestID)
				return nil
			}),
	)
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	view, err := s.service.SendRequest(s.ctx, s.alice.ID, s.bob.ID, "hi")
	s.Require().NoError(err)
	s.Equal(created.ID, view.ID)
	s.Equal(models.StatusAccepted, view.Status)
}

func (s *ServiceSuite) TestSendRequestReReadFailureKeepsReference() {
	s.identity.EXPECT().FindUser(gomock.Any(), s.bob.ID).Return(s.bob, nil)
	s.identity.EXPECT().FindUser(gomock.Any(), s.alice.ID).Return(s.alice, nil)
	s.ledger.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.identity.EXPECT().AddPending(gomock.Any(), s.bob.ID, gomock.Any()).Return(nil)
	s.ledger.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	view, err := s.service.SendRequest(s.ctx, s.alice.ID, s.bob.ID, "hi")
	s.Require().NoError(err)
	s.Equal(models.StatusPending, view.Status)
}

func (s *ServiceSuite) TestAuditFailureIsFailOpen() {
	s.identity.EXPECT().FindUser(gomock.Any(), s.bob.ID).Return(s.bob, nil)
	s.identity.EXPECT().FindUser(gomock.Any(), s.alice.ID).Return(s.alice, nil)
	s.ledger.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.identity.EXPECT().AddPending(gomock.Any(), s.bob.ID, gomock.Any()).Return(nil)
	s.ledger.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(s.pendingRequest(), nil)
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(sentinel.ErrUnavailable)

	view, err := s.service.SendRequest(s.ctx, s.alice.ID, s.bob.ID, "hi")
	s.Require().NoError(err)
	s.NotNil(view)
}

// =============================================================================
// Respond
// =============================================================================

func (s *ServiceSuite) TestRespond() {
	s.Run("invalid action is rejected before any read", func() {
		_, err := s.service.Respond(s.ctx, s.bob.ID, id.NewRequestID(), "maybe")
		s.assertReason(err, models.ReasonInvalidAction)
	})

	s.Run("unknown request", func() {
		requestID := id.NewRequestID()
		s.ledger.EXPECT().FindByID(gomock.Any(), requestID).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.Respond(s.ctx, s.bob.ID, requestID, "accept")
		s.assertReason(err, models.ReasonRequestNotFound)
	})

	s.Run("only the recipient may respond", func() {
		req := s.pendingRequest()
		s.ledger.EXPECT().FindByID(gomock.Any(), req.ID).Return(req, nil)

		_, err := s.service.Respond(s.ctx, s.alice.ID, req.ID, "accept")
		s.assertReason(err, models.ReasonNotAuthorized)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("accept links both users and clears the reference", func() {
		req := s.pendingRequest()
		accepted := *req
		accepted.ApplyTransition(models.StatusAccepted, s.now)

		s.ledger.EXPECT().FindByID(gomock.Any(), req.ID).Return(req, nil)
		s.ledger.EXPECT().Transition(gomock.Any(), req.ID, models.StatusAccepted, s.now).Return(&accepted, nil)
		s.identity.EXPECT().AddContact(gomock.Any(), s.alice.ID, s.bob.ID).Return(nil)
		s.identity.EXPECT().AddContact(gomock.Any(), s.bob.ID, s.alice.ID).Return(nil)
		s.identity.EXPECT().RemoveFromPending(gomock.Any(), s.bob.ID, req.ID).Return(nil)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, event audit.Event) error {
				s.Equal(audit.ActionRequestAccepted, event.Action)
				s.Equal(s.bob.ID, event.ActorID)
				s.Equal(s.alice.ID, event.CounterpartID)
				return nil
			})

		result, err := s.service.Respond(s.ctx, s.bob.ID, req.ID, " ACCEPT ")
		s.Require().NoError(err)
		s.Equal(models.StatusAccepted, result.Status)
		s.Equal("contact request accepted", result.Message)
	})

	s.Run("reject only clears the reference", func() {
		req := s.pendingRequest()
		rejected := *req
		rejected.ApplyTransition(models.StatusRejected, s.now)

		s.ledger.EXPECT().FindByID(gomock.Any(), req.ID).Return(req, nil)
		s.ledger.EXPECT().Transition(gomock.Any(), req.ID, models.StatusRejected, s.now).Return(&rejected, nil)
		s.identity.EXPECT().RemoveFromPending(gomock.Any(), s.bob.ID, req.ID).Return(nil)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		result, err := s.service.Respond(s.ctx, s.bob.ID, req.ID, "reject")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, result.Status)
		s.Equal("contact request rejected", result.Message)
	})
}

func (s *ServiceSuite) TestRespondAlreadyProcessedReappliesOutcome() {
	req := s.pendingRequest()
	accepted := *req
	accepted.ApplyTransition(models.StatusAccepted, s.now)

	gomock.InOrder(
		s.ledger.EXPECT().FindByID(gomock.Any(), req.ID).Return(req, nil),
		s.ledger.EXPECT().Transition(gomock.Any(), req.ID, models.StatusRejected, s.now).Return(nil, sentinel.ErrInvalidState),
		s.ledger.EXPECT().FindByID(gomock.Any(), req.ID).Return(&accepted, nil),
	)
	s.identity.EXPECT().AddContact(gomock.Any(), s.alice.ID, s.bob.ID).Return(nil)
	s.identity.EXPECT().AddContact(gomock.Any(), s.bob.ID, s.alice.ID).Return(nil)
	s.identity.EXPECT().RemoveFromPending(gomock.Any(), s.bob.ID, req.ID).Return(nil)

	_, err := s.service.Respond(s.ctx, s.bob.ID, req.ID, "reject")
	s.assertReason(err, models.ReasonAlreadyProcessed)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestRespondSideEffectFailure() {
	req := s.pendingRequest()
	accepted := *req
	accepted.ApplyTransition(models.StatusAccepted, s.now)

	s.ledger.EXPECT().FindByID(gomock.Any(), req.ID).Return(req, nil)
	s.ledger.EXPECT().Transition(gomock.Any(), req.ID, models.StatusAccepted, s.now).Return(&accepted, nil)
	s.identity.EXPECT().AddContact(gomock.Any(), s.alice.ID, s.bob.ID).Return(errors.New("connection reset"))
	s.identity.EXPECT().AddContact(gomock.Any(), s.bob.ID, s.alice.ID).Return(nil).AnyTimes()
	s.identity.EXPECT().RemoveFromPending(gomock.Any(), s.bob.ID, req.ID).Return(nil).AnyTimes()

	_, err := s.service.Respond(s.ctx, s.bob.ID, req.ID, "accept")
	s.assertReason(err, models.ReasonStorageFailure)
}

// =============================================================================
// Reconcile
// =============================================================================

func (s *ServiceSuite) TestReconcile() {
	s.Run("rewrites drifted references", func() {
		live := s.pendingRequest()
		stale := id.NewRequestID()
		bob := *s.bob
		bob.PendingRequests = []id.RequestID{stale}

		s.identity.EXPECT().FindUser(gomock.Any(), s.bob.ID).Return(&bob, nil)
		s.ledger.EXPECT().ListPendingReceived(gomock.Any(), s.bob.ID).Return([]*models.ContactRequest{live}, nil)
		s.identity.EXPECT().ReplacePending(gomock.Any(), s.bob.ID, []id.RequestID{live.ID}).Return(nil)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		result, err := s.service.Reconcile(s.ctx, s.bob.ID)
		s.Require().NoError(err)
		s.Equal([]id.RequestID{live.ID}, result.Added)
		s.Equal([]id.RequestID{stale}, result.Removed)
		s.True(result.Changed())
		s.InDelta(2, testutil.ToFloat64(s.metrics.ReferencesHealed), 0)
	})

	s.Run("consistent user is left alone", func() {
		live := s.pendingRequest()
		bob := *s.bob
		bob.PendingRequests = []id.RequestID{live.ID}

		s.identity.EXPECT().FindUser(gomock.Any(), s.bob.ID).Return(&bob, nil)
		s.ledger.EXPECT().ListPendingReceived(gomock.Any(), s.bob.ID).Return([]*models.ContactRequest{live}, nil)

		result, err := s.service.Reconcile(s.ctx, s.bob.ID)
		s.Require().NoError(err)
		s.False(result.Changed())
	})

	s.Run("unknown user", func() {
		s.identity.EXPECT().FindUser(gomock.Any(), s.bob.ID).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.Reconcile(s.ctx, s.bob.ID)
		s.assertReason(err, models.ReasonUserNotFound)
	})
}

// =============================================================================
// Queries
// =============================================================================

func (s *ServiceSuite) TestSearchUsers() {
	s.Run("query length bounds", func() {
		for _, q := range []string{"", "b", "  b  ", string(make([]byte, MaxQueryLength+1))} {
			_, err := s.service.SearchUsers(s.ctx, s.alice.ID, q)
			s.assertReason(err, models.ReasonInvalidQuery)
		}
	})

	s.Run("trims the query and never returns the caller", func() {
		bobby := s.user("bobby")
		s.identity.EXPECT().FindUsersMatching(gomock.Any(), "bob", s.alice.ID, DefaultSearchLimit).
			Return([]*models.User{bobby, s.alice, s.bob}, nil)

		results, err := s.service.SearchUsers(s.ctx, s.alice.ID, "  bob ")
		s.Require().NoError(err)
		s.Equal([]models.UserSummary{s.bob.Summary(), bobby.Summary()}, results)
	})

	s.Run("storage failure", func() {
		s.identity.EXPECT().FindUsersMatching(gomock.Any(), "bob", s.alice.ID, DefaultSearchLimit).
			Return(nil, errors.New("timeout"))

		_, err := s.service.SearchUsers(s.ctx, s.alice.ID, "bob")
		s.assertReason(err, models.ReasonStorageFailure)
	})
}

func (s *ServiceSuite) TestListRequestsUsesCache() {
	carol := s.user("carol")
	sent := s.pendingRequest()
	received, err := models.NewContactRequest(id.NewRequestID(), carol.ID, s.alice.ID, "", s.now)
	s.Require().NoError(err)

	s.ledger.EXPECT().ListActiveFor(gomock.Any(), s.alice.ID).
		Return([]*models.ContactRequest{received, sent}, nil)
	s.cache.EXPECT().GetMany(gomock.Any(), []id.UserID{s.alice.ID, carol.ID, s.bob.ID}).
		Return(map[id.UserID]models.UserSummary{s.alice.ID: s.alice.Summary()}, nil)
	s.identity.EXPECT().FindUsers(gomock.Any(), []id.UserID{carol.ID, s.bob.ID}).
		Return([]*models.User{carol, s.bob}, nil)
	s.cache.EXPECT().SetMany(gomock.Any(), []models.UserSummary{carol.Summary(), s.bob.Summary()}).
		Return(nil)

	lists, err := s.service.ListRequests(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Require().Len(lists.Sent, 1)
	s.Require().Len(lists.Received, 1)
	s.Equal(sent.ID, lists.Sent[0].ID)
	s.Equal(s.bob.Summary(), lists.Sent[0].Recipient)
	s.Equal(s.alice.Summary(), lists.Sent[0].Sender)
	s.Equal(carol.Summary(), lists.Received[0].Sender)
}

func (s *ServiceSuite) TestListRequestsCacheFailureFallsBack() {
	sent := s.pendingRequest()
	s.ledger.EXPECT().ListActiveFor(gomock.Any(), s.alice.ID).Return([]*models.ContactRequest{sent}, nil)
	s.cache.EXPECT().GetMany(gomock.Any(), gomock.Any()).Return(nil, errors.New("redis down"))
	s.identity.EXPECT().FindUsers(gomock.Any(), []id.UserID{s.alice.ID, s.bob.ID}).
		Return([]*models.User{s.alice, s.bob}, nil)
	s.cache.EXPECT().SetMany(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	lists, err := s.service.ListRequests(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Require().Len(lists.Sent, 1)
	s.Equal(s.bob.Summary(), lists.Sent[0].Recipient)
	s.Empty(lists.Received)
	s.NotNil(lists.Received)
}

func (s *ServiceSuite) TestListContacts() {
	s.Run("sorted summaries", func() {
		zed := s.user("zed")
		s.identity.EXPECT().ListContacts(gomock.Any(), s.alice.ID).Return([]*models.User{zed, s.bob}, nil)

		contacts, err := s.service.ListContacts(s.ctx, s.alice.ID)
		s.Require().NoError(err)
		s.Equal([]models.UserSummary{s.bob.Summary(), zed.Summary()}, contacts)
	})

	s.Run("unknown user", func() {
		s.identity.EXPECT().ListContacts(gomock.Any(), s.alice.ID).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.ListContacts(s.ctx, s.alice.ID)
		s.assertReason(err, models.ReasonUserNotFound)
	})
}
