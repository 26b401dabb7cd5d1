// Package httptransport assembles the HTTP surface: the middleware chain, the
// authenticated contact routes, operator routes and the health and metrics
// endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"chatline/internal/contacts/handler"
	"chatline/internal/platform/metrics"
	"chatline/pkg/platform/httputil"
	"chatline/pkg/platform/middleware/auth"
	"chatline/pkg/platform/middleware/metadata"
	"chatline/pkg/platform/middleware/request"
	"chatline/pkg/platform/middleware/requesttime"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators NewRouter mounts.
type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Validator      auth.JWTValidator
	Contacts       *handler.Handler
	RequestTimeout time.Duration
	// MetricsHandler serves /metrics; nil leaves the route unmounted.
	MetricsHandler http.Handler
	HealthChecks   map[string]HealthCheck
}

// NewRouter wires all public endpoints. Handlers only see requests that have
// passed request ID, client metadata, recovery, access logging and timeout
// middleware; /contacts additionally requires a bearer token.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Recovery(deps.Logger))
	r.Use(request.Logger(deps.Logger))
	if deps.RequestTimeout > 0 {
		r.Use(request.Timeout(deps.RequestTimeout))
	}
	r.Use(requesttime.Middleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Latency)
	}

	r.Get("/healthz", handleHealth(deps.HealthChecks, deps.Logger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	deps.Contacts.RegisterAdmin(r)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.Validator, deps.Logger))
		deps.Contacts.Register(r)
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func handleHealth(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				logger.WarnContext(r.Context(), "health check failed",
					"request_id", request.GetRequestID(r.Context()),
					"check", name,
					"error", err,
				)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
