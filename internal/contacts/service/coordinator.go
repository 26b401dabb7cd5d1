package service

import (
	"context"
	"errors"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"chatline/internal/contacts/models"
	id "chatline/pkg/domain"
	"chatline/pkg/platform/audit"
	"chatline/pkg/platform/sentinel"
	"chatline/pkg/requestcontext"
)

// SendRequest creates a pending request from sender to recipient and records
// the back-reference on the recipient.
//
// Errors: ErrSelfRequest, ErrMessageTooLong, ErrUserNotFound,
// ErrAlreadyContacts, ErrDuplicateRequest, storage failures.
func (s *Service) SendRequest(ctx context.Context, senderID, recipientID id.UserID, message string) (view *models.RequestView, err error) {
	ctx, finish := s.startOp(ctx, "send_request", trace.WithAttributes(
		attribute.String("sender_id", senderID.String()),
		attribute.String("recipient_id", recipientID.String()),
	))
	defer func() { finish(err) }()

	if senderID == recipientID {
		return nil, models.ErrSelfRequest
	}
	message, err = models.NormalizeMessage(message)
	if err != nil {
		return nil, err
	}

	recipient, err := s.identity.FindUser(ctx, recipientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, storageError(err, "failed to load recipient")
	}
	sender, err := s.identity.FindUser(ctx, senderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, storageError(err, "failed to load sender")
	}
	if sender.HasContact(recipientID) {
		return nil, models.ErrAlreadyContacts
	}

	req, err := models.NewContactRequest(id.NewRequestID(), senderID, recipientID, message, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Create(ctx, req); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			s.healPendingReference(ctx, senderID, recipientID)
			return nil, models.ErrDuplicateRequest
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, models.ErrSelfRequest
		}
		return nil, storageError(err, "failed to create contact request")
	}

	if err := s.identity.AddPending(ctx, recipientID, req.ID); err != nil {
		// The request exists; a retried send reports DuplicateRequest and heals
		// the reference through healPendingReference.
		s.logger.ErrorContext(ctx, "failed to record pending reference",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", recipientID.String(),
			"contact_request_id", req.ID.String(),
			"error", err,
		)
		return nil, storageError(err, "failed to record pending request")
	}
	if current := s.dropStaleReference(ctx, recipientID, req.ID); current != nil {
		req = current
	}

	if s.metrics != nil {
		s.metrics.IncrementRequestsSent()
	}
	s.emitAudit(ctx, audit.Event{
		Action:           audit.ActionRequestSent,
		ActorID:          senderID,
		CounterpartID:    recipientID,
		ContactRequestID: req.ID,
		Timestamp:        req.CreatedAt,
	})

	v := models.NewRequestView(req, sender.Summary(), recipient.Summary())
	return &v, nil
}

// dropStaleReference re-reads a just-created request after its reference was
// recorded. A recipient who responded between Create and AddPending has
// already removed the reference, so the one AddPending wrote is taken back.
// It returns the resolved request, or nil when the request is still pending
// or could not be read.
func (s *Service) dropStaleReference(ctx context.Context, recipientID id.UserID, requestID id.RequestID) *models.ContactRequest {
	current, err := s.ledger.FindByID(ctx, requestID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to re-read contact request",
			"request_id", requestcontext.RequestID(ctx),
			"contact_request_id", requestID.String(),
			"error", err,
		)
		return nil
	}
	if current.IsPending() {
		return nil
	}
	if err := s.identity.RemoveFromPending(ctx, recipientID, requestID); err != nil {
		// Reconcile removes references to resolved requests.
		s.logger.WarnContext(ctx, "failed to drop reference to resolved request",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", recipientID.String(),
			"contact_request_id", requestID.String(),
			"error", err,
		)
	}
	return current
}

// healPendingReference re-applies the recipient's back-reference for an
// existing pending request. Failures are logged; the caller still gets
// DuplicateRequest.
func (s *Service) healPendingReference(ctx context.Context, senderID, recipientID id.UserID) {
	existing, err := s.ledger.FindPending(ctx, senderID, recipientID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to load existing pending request",
				"request_id", requestcontext.RequestID(ctx),
				"user_id", senderID.String(),
				"error", err,
			)
		}
		return
	}
	if err := s.identity.AddPending(ctx, recipientID, existing.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to heal pending reference",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", recipientID.String(),
			"contact_request_id", existing.ID.String(),
			"error", err,
		)
	}
}

// Respond applies the recipient's accept or reject to a pending request.
//
// Errors: ErrInvalidAction, ErrRequestNotFound, ErrNotAuthorized,
// ErrAlreadyProcessed, storage failures.
func (s *Service) Respond(ctx context.Context, requesterID id.UserID, requestID id.RequestID, rawAction string) (result *models.RespondResult, err error) {
	ctx, finish := s.startOp(ctx, "respond", trace.WithAttributes(
		attribute.String("user_id", requesterID.String()),
		attribute.String("contact_request_id", requestID.String()),
	))
	defer func() { finish(err) }()

	action, err := models.ParseAction(rawAction)
	if err != nil {
		return nil, err
	}

	req, err := s.ledger.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, models.ErrRequestNotFound
		}
		return nil, storageError(err, "failed to load contact request")
	}
	if req.RecipientID != requesterID {
		s.logger.WarnContext(ctx, "respond denied",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", requesterID.String(),
			"contact_request_id", requestID.String(),
		)
		return nil, models.ErrNotAuthorized
	}

	updated, err := s.ledger.Transition(ctx, requestID, action.ResultingStatus(), requestcontext.Now(ctx))
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrInvalidState):
			s.reapplyOutcome(ctx, requestID)
			return nil, models.ErrAlreadyProcessed
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, models.ErrRequestNotFound
		}
		return nil, storageError(err, "failed to update contact request")
	}

	if err := s.applyOutcome(ctx, updated); err != nil {
		s.logger.ErrorContext(ctx, "failed to apply contact request outcome",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", requesterID.String(),
			"contact_request_id", requestID.String(),
			"status", updated.Status.String(),
			"error", err,
		)
		return nil, storageError(err, "failed to update contact lists")
	}

	if s.metrics != nil {
		s.metrics.IncrementResolved(updated.Status.String())
	}
	auditAction := audit.ActionRequestRejected
	if updated.Status == models.StatusAccepted {
		auditAction = audit.ActionRequestAccepted
	}
	s.emitAudit(ctx, audit.Event{
		Action:           auditAction,
		ActorID:          requesterID,
		CounterpartID:    updated.SenderID,
		ContactRequestID: updated.ID,
		Timestamp:        updated.UpdatedAt,
	})

	return &models.RespondResult{Status: updated.Status, Message: action.Outcome()}, nil
}

// applyOutcome performs the identity-side effects of a terminal request.
// Accept adds both parties to each other's contacts and clears the
// recipient's reference concurrently; reject only clears the reference.
func (s *Service) applyOutcome(ctx context.Context, req *models.ContactRequest) error {
	if req.Status != models.StatusAccepted {
		return s.identity.RemoveFromPending(ctx, req.RecipientID, req.ID)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.identity.AddContact(gctx, req.SenderID, req.RecipientID)
	})
	g.Go(func() error {
		return s.identity.AddContact(gctx, req.RecipientID, req.SenderID)
	})
	g.Go(func() error {
		return s.identity.RemoveFromPending(gctx, req.RecipientID, req.ID)
	})
	return g.Wait()
}

// reapplyOutcome re-drives the idempotent side effects of an already
// processed request so a retried respond after a partial failure converges.
func (s *Service) reapplyOutcome(ctx context.Context, requestID id.RequestID) {
	req, err := s.ledger.FindByID(ctx, requestID)
	if err != nil || req.IsPending() {
		return
	}
	if err := s.applyOutcome(ctx, req); err != nil {
		s.logger.WarnContext(ctx, "failed to re-apply contact request outcome",
			"request_id", requestcontext.RequestID(ctx),
			"contact_request_id", requestID.String(),
			"error", err,
		)
	}
}

// Reconcile rebuilds a user's pending-request references from the ledger,
// which is authoritative. A request created between the ledger scan and the
// rewrite loses its reference until the next reconcile or a retried send.
func (s *Service) Reconcile(ctx context.Context, userID id.UserID) (result *models.ReconcileResult, err error) {
	ctx, finish := s.startOp(ctx, "reconcile", trace.WithAttributes(
		attribute.String("user_id", userID.String()),
	))
	defer func() { finish(err) }()

	user, err := s.identity.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, storageError(err, "failed to load user")
	}
	pending, err := s.ledger.ListPendingReceived(ctx, userID)
	if err != nil {
		return nil, storageError(err, "failed to list pending requests")
	}

	want := make([]id.RequestID, 0, len(pending))
	for _, r := range pending {
		want = append(want, r.ID)
	}
	result = &models.ReconcileResult{UserID: userID, Pending: want}
	for _, ref := range want {
		if !user.HasPending(ref) {
			result.Added = append(result.Added, ref)
		}
	}
	for _, ref := range user.PendingRequests {
		if !slices.Contains(want, ref) {
			result.Removed = append(result.Removed, ref)
		}
	}
	if !result.Changed() {
		return result, nil
	}

	if err := s.identity.ReplacePending(ctx, userID, want); err != nil {
		return nil, storageError(err, "failed to rewrite pending requests")
	}
	if s.metrics != nil {
		s.metrics.AddReferencesHealed(len(result.Added) + len(result.Removed))
	}
	s.emitAudit(ctx, audit.Event{
		Action:  audit.ActionPendingReconciled,
		ActorID: userID,
	})
	return result, nil
}
