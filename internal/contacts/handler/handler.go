// Package handler exposes the contact operations over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatline/internal/contacts/models"
	id "chatline/pkg/domain"
	dErrors "chatline/pkg/domain-errors"
	"chatline/pkg/platform/httputil"
	"chatline/pkg/platform/middleware/admin"
	"chatline/pkg/platform/middleware/auth"
	"chatline/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

// Service is the contact core consumed by the handler.
type Service interface {
	SearchUsers(ctx context.Context, callerID id.UserID, query string) ([]models.UserSummary, error)
	SendRequest(ctx context.Context, senderID, recipientID id.UserID, message string) (*models.RequestView, error)
	Respond(ctx context.Context, requesterID id.UserID, requestID id.RequestID, action string) (*models.RespondResult, error)
	ListRequests(ctx context.Context, userID id.UserID) (*models.RequestLists, error)
	ListContacts(ctx context.Context, userID id.UserID) ([]models.UserSummary, error)
	Reconcile(ctx context.Context, userID id.UserID) (*models.ReconcileResult, error)
}

// RateLimiter wraps a route with a per-user limit.
type RateLimiter interface {
	PerUser(route string) func(http.Handler) http.Handler
}

// Handler serves the /contacts routes.
type Handler struct {
	service    Service
	logger     *slog.Logger
	limiter    RateLimiter
	adminToken string
}

type Option func(*Handler)

func WithRateLimiter(limiter RateLimiter) Option {
	return func(h *Handler) {
		h.limiter = limiter
	}
}

// WithAdminToken enables the operator routes registered by RegisterAdmin.
func WithAdminToken(token string) Option {
	return func(h *Handler) {
		h.adminToken = token
	}
}

// New creates a contacts Handler.
func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the caller-facing routes. The router must already carry
// authentication so the caller's user ID is in the request context.
func (h *Handler) Register(r chi.Router) {
	r.Route("/contacts", func(r chi.Router) {
		r.Get("/", h.handleListContacts)
		r.With(h.limit("contacts.search")).Get("/search", h.handleSearch)
		r.Get("/requests", h.handleListRequests)
		r.With(h.limit("contacts.send")).Post("/requests", h.handleSendRequest)
		r.Post("/requests/{requestID}/respond", h.handleRespond)
	})
}

// RegisterAdmin mounts operator routes guarded by the admin token. Nothing is
// mounted when no token is configured.
func (h *Handler) RegisterAdmin(r chi.Router) {
	if h.adminToken == "" {
		return
	}
	r.Route("/admin/contacts", func(r chi.Router) {
		r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
		r.Post("/users/{userID}/reconcile", h.handleReconcile)
	})
}

func (h *Handler) limit(route string) func(http.Handler) http.Handler {
	if h.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.limiter.PerUser(route)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	results, err := h.service.SearchUsers(ctx, userID, r.URL.Query().Get("query"))
	if err != nil {
		h.writeServiceError(ctx, w, err, "search users")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, results)
}

func (h *Handler) handleSendRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[SendRequestRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	recipientID, err := id.ParseUserID(req.RecipientID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	view, err := h.service.SendRequest(ctx, userID, recipientID, req.Message)
	if err != nil {
		h.writeServiceError(ctx, w, err, "send contact request")
		return
	}
	h.logger.InfoContext(ctx, "contact request sent",
		"request_id", requestID,
		"user_id", userID.String(),
		"contact_request_id", view.ID.String(),
	)
	httputil.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	contactRequestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RespondRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Respond(ctx, userID, contactRequestID, req.Action)
	if err != nil {
		h.writeServiceError(ctx, w, err, "respond to contact request")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	lists, err := h.service.ListRequests(ctx, userID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "list contact requests")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lists)
}

func (h *Handler) handleListContacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	contacts, err := h.service.ListContacts(ctx, userID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "list contacts")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, contacts)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Reconcile(ctx, userID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "reconcile pending requests")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// callerID reads the authenticated user. A missing ID means the auth
// middleware was not mounted.
func (h *Handler) callerID(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID := auth.GetUserID(r.Context())
	if userID.IsNil() {
		h.logger.ErrorContext(r.Context(), "userID missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return id.UserID{}, false
	}
	return userID, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, op string) {
	args := []any{
		"request_id", requestcontext.RequestID(ctx),
		"user_id", auth.GetUserID(ctx).String(),
		"error", err,
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "failed to "+op, args...)
	} else {
		h.logger.WarnContext(ctx, op+" rejected", append(args, "reason", dErrors.ReasonOf(err))...)
	}
	httputil.WriteError(w, err)
}
