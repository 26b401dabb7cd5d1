package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chatline/internal/contacts/models"
	id "chatline/pkg/domain"
	"chatline/pkg/platform/sentinel"
	"chatline/pkg/requestcontext"
)

// SearchUsers finds users whose handle or email contains query,
// case-insensitively. The caller is never included.
func (s *Service) SearchUsers(ctx context.Context, callerID id.UserID, query string) (results []models.UserSummary, err error) {
	ctx, finish := s.startOp(ctx, "search_users", trace.WithAttributes(
		attribute.String("user_id", callerID.String()),
	))
	defer func() { finish(err) }()

	query = strings.TrimSpace(query)
	if n := utf8.RuneCountInString(query); n < MinQueryLength || n > MaxQueryLength {
		return nil, models.ErrInvalidQuery
	}

	users, err := s.identity.FindUsersMatching(ctx, query, callerID, s.searchLimit)
	if err != nil {
		return nil, storageError(err, "failed to search users")
	}
	results = make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		if u.ID == callerID {
			continue
		}
		results = append(results, u.Summary())
	}
	models.SortSummaries(results)
	return results, nil
}

// ListRequests returns the caller's pending requests split into sent and
// received, each annotated with both parties' summaries and the caller's
// counterpart.
func (s *Service) ListRequests(ctx context.Context, userID id.UserID) (lists *models.RequestLists, err error) {
	ctx, finish := s.startOp(ctx, "list_requests", trace.WithAttributes(
		attribute.String("user_id", userID.String()),
	))
	defer func() { finish(err) }()

	active, err := s.ledger.ListActiveFor(ctx, userID)
	if err != nil {
		return nil, storageError(err, "failed to list contact requests")
	}

	ids := make([]id.UserID, 0, len(active)+1)
	ids = append(ids, userID)
	for _, r := range active {
		ids = append(ids, r.CounterpartOf(userID))
	}
	summaries, err := s.summaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	lists = &models.RequestLists{
		Sent:     []models.RequestView{},
		Received: []models.RequestView{},
	}
	for _, r := range active {
		view := models.NewRequestView(r, summaryOrID(summaries, r.SenderID), summaryOrID(summaries, r.RecipientID)).
			ForViewer(userID)
		if view.Direction == models.DirectionSent {
			lists.Sent = append(lists.Sent, view)
		} else {
			lists.Received = append(lists.Received, view)
		}
	}
	return lists, nil
}

// ListContacts returns the caller's contacts ordered by handle.
func (s *Service) ListContacts(ctx context.Context, userID id.UserID) (results []models.UserSummary, err error) {
	ctx, finish := s.startOp(ctx, "list_contacts", trace.WithAttributes(
		attribute.String("user_id", userID.String()),
	))
	defer func() { finish(err) }()

	users, err := s.identity.ListContacts(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, storageError(err, "failed to list contacts")
	}
	results = make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		results = append(results, u.Summary())
	}
	models.SortSummaries(results)
	return results, nil
}

// summaries resolves public summaries through the cache, falling back to the
// identity store for misses. Cache failures are logged and treated as misses.
func (s *Service) summaries(ctx context.Context, ids []id.UserID) (map[id.UserID]models.UserSummary, error) {
	ids = uniqueUserIDs(ids)
	out := make(map[id.UserID]models.UserSummary, len(ids))
	if s.cache != nil {
		cached, err := s.cache.GetMany(ctx, ids)
		if err != nil {
			s.logger.WarnContext(ctx, "summary cache read failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		for k, v := range cached {
			out[k] = v
		}
	}

	missing := make([]id.UserID, 0, len(ids))
	for _, userID := range ids {
		if _, ok := out[userID]; !ok {
			missing = append(missing, userID)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	users, err := s.identity.FindUsers(ctx, missing)
	if err != nil {
		return nil, storageError(err, "failed to load user summaries")
	}
	fresh := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		summary := u.Summary()
		out[u.ID] = summary
		fresh = append(fresh, summary)
	}
	if s.cache != nil && len(fresh) > 0 {
		if err := s.cache.SetMany(ctx, fresh); err != nil {
			s.logger.WarnContext(ctx, "summary cache write failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
	return out, nil
}

// summaryOrID falls back to an id-only summary when a party's record is gone.
func summaryOrID(summaries map[id.UserID]models.UserSummary, userID id.UserID) models.UserSummary {
	if summary, ok := summaries[userID]; ok {
		return summary
	}
	return models.UserSummary{ID: userID}
}

func uniqueUserIDs(ids []id.UserID) []id.UserID {
	seen := make(map[id.UserID]struct{}, len(ids))
	out := make([]id.UserID, 0, len(ids))
	for _, userID := range ids {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		out = append(out, userID)
	}
	return out
}
