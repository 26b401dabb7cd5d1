package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	dErrors "chatline/pkg/domain-errors"
	"chatline/pkg/platform/httputil"
	auth "chatline/pkg/platform/middleware/auth"
	request "chatline/pkg/platform/middleware/request"
	"chatline/pkg/requestcontext"
)

// Recorder counts rejected requests. *metrics.Metrics satisfies it.
type Recorder interface {
	IncrementRateLimited(route string)
}

type Middleware struct {
	limiter  *Limiter
	logger   *slog.Logger
	recorder Recorder
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithRecorder(r Recorder) Option {
	return func(m *Middleware) {
		m.recorder = r
	}
}

func New(limiter *Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{limiter: limiter, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled || m.limiter == nil {
		logger.Info("rate limiting disabled")
	}
	return m
}

// PerUser limits requests by the authenticated user. It must run after
// auth.RequireAuth; unauthenticated requests pass through.
func (m *Middleware) PerUser(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			userID := auth.GetUserID(ctx)
			if userID.IsNil() {
				next.ServeHTTP(w, r)
				return
			}

			decision := m.limiter.Allow(route+":"+userID.String(), requestcontext.Now(ctx))
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			m.logger.WarnContext(ctx, "rate limit exceeded",
				"request_id", request.GetRequestID(ctx),
				"user_id", userID.String(),
				"route", route,
			)
			if m.recorder != nil {
				m.recorder.IncrementRateLimited(route)
			}
			retry := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, slow down").WithReason("rate_limited"))
		})
	}
}
