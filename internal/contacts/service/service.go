// Package service implements the contact-request lifecycle and its read side.
//
// The ledger's conditional status transition is the only serialization
// point. Every identity-store write the service performs is an idempotent set
// operation, so a caller that retries after a partial failure converges on the
// same state instead of corrupting it.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chatline/internal/contacts/metrics"
	"chatline/internal/contacts/models"
	id "chatline/pkg/domain"
	dErrors "chatline/pkg/domain-errors"
	"chatline/pkg/platform/audit"
	"chatline/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

const (
	MinQueryLength     = 2
	MaxQueryLength     = 100
	DefaultSearchLimit = 50
)

type LedgerStore interface {
	Create(ctx context.Context, req *models.ContactRequest) error
	FindByID(ctx context.Context, requestID id.RequestID) (*models.ContactRequest, error)
	FindPending(ctx context.Context, sender, recipient id.UserID) (*models.ContactRequest, error)
	Transition(ctx context.Context, requestID id.RequestID, target models.RequestStatus, now time.Time) (*models.ContactRequest, error)
	ListActiveFor(ctx context.Context, userID id.UserID) ([]*models.ContactRequest, error)
	ListPendingReceived(ctx context.Context, userID id.UserID) ([]*models.ContactRequest, error)
}

type IdentityStore interface {
	FindUser(ctx context.Context, userID id.UserID) (*models.User, error)
	FindUsers(ctx context.Context, ids []id.UserID) ([]*models.User, error)
	FindUsersMatching(ctx context.Context, query string, excluding id.UserID, limit int) ([]*models.User, error)
	AddContact(ctx context.Context, userID, otherID id.UserID) error
	AddPending(ctx context.Context, userID id.UserID, requestID id.RequestID) error
	RemoveFromPending(ctx context.Context, userID id.UserID, requestID id.RequestID) error
	ReplacePending(ctx context.Context, userID id.UserID, requestIDs []id.RequestID) error
	IsContact(ctx context.Context, userID, otherID id.UserID) (bool, error)
	ListContacts(ctx context.Context, userID id.UserID) ([]*models.User, error)
}

// SummaryCache holds public user summaries for request listings.
type SummaryCache interface {
	GetMany(ctx context.Context, ids []id.UserID) (map[id.UserID]models.UserSummary, error)
	SetMany(ctx context.Context, summaries []models.UserSummary) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service coordinates the request ledger and the identity store.
type Service struct {
	ledger         LedgerStore
	identity       IdentityStore
	cache          SummaryCache
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	searchLimit    int
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithSummaryCache(cache SummaryCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithSearchLimit caps the number of search results. Non-positive values are ignored.
func WithSearchLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.searchLimit = n
		}
	}
}

// New constructs a Service.
func New(ledger LedgerStore, identity IdentityStore, opts ...Option) *Service {
	s := &Service{
		ledger:      ledger,
		identity:    identity,
		logger:      slog.New(slog.DiscardHandler),
		tracer:      otel.Tracer("chatline/contacts"),
		searchLimit: DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// startOp opens a span and returns a finisher that records the outcome.
func (s *Service) startOp(ctx context.Context, operation string, attrs ...trace.SpanStartOption) (context.Context, func(err error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "contacts."+operation, attrs...)
	return ctx, func(err error) {
		defer span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(operation, start)
		}
		if err == nil {
			return
		}
		reason := dErrors.ReasonOf(err)
		if reason == "" {
			reason = string(dErrors.CodeOf(err))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		if s.metrics != nil {
			s.metrics.IncrementRejection(operation, reason)
		}
	}
}

// emitAudit is fail-open: the ledger is the authoritative record, so a lost
// audit event is logged and the operation still succeeds.
func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	s.logger.InfoContext(ctx, string(event.Action),
		"request_id", event.RequestID,
		"user_id", event.ActorID.String(),
		"contact_request_id", event.ContactRequestID.String(),
		"log_type", "audit",
	)
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", event.RequestID,
			"action", string(event.Action),
			"error", err,
		)
	}
}

// storageError wraps an unexpected store failure. Deadline overruns keep
// their own code so the transport can answer 504.
func storageError(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return models.StorageFailure(err, msg)
}
