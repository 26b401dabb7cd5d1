package ratelimit

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "chatline/pkg/domain"
	"chatline/pkg/requestcontext"
)

type countingRecorder struct {
	routes []string
}

func (c *countingRecorder) IncrementRateLimited(route string) {
	c.routes = append(c.routes, route)
}

func TestMiddleware_PerUser(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	call := func(h http.Handler, userID id.UserID) *httptest.ResponseRecorder {
		ctx := requestcontext.WithTime(requestcontext.WithUserID(t.Context(), userID), now)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/contacts/search", nil).WithContext(ctx))
		return rr
	}

	t.Run("rejects once the burst is spent", func(t *testing.T) {
		recorder := &countingRecorder{}
		m := New(NewLimiter(1, 2, time.Minute), logger, WithRecorder(recorder))
		h := m.PerUser("contacts.search")(ok)
		alice, bob := id.NewUserID(), id.NewUserID()

		assert.Equal(t, http.StatusNoContent, call(h, alice).Code)
		assert.Equal(t, http.StatusNoContent, call(h, alice).Code)
		rr := call(h, alice)
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.Equal(t, "1", rr.Header().Get("Retry-After"))
		assert.Contains(t, rr.Body.String(), "rate_limited")
		assert.Equal(t, []string{"contacts.search"}, recorder.routes)

		assert.Equal(t, http.StatusNoContent, call(h, bob).Code, "buckets are per user")
	})

	t.Run("routes have separate buckets", func(t *testing.T) {
		m := New(NewLimiter(1, 1, time.Minute), logger)
		alice := id.NewUserID()
		assert.Equal(t, http.StatusNoContent, call(m.PerUser("contacts.search")(ok), alice).Code)
		assert.Equal(t, http.StatusNoContent, call(m.PerUser("contacts.send")(ok), alice).Code)
	})

	t.Run("anonymous requests pass through", func(t *testing.T) {
		m := New(NewLimiter(1, 1, time.Minute), logger)
		h := m.PerUser("contacts.search")(ok)
		for range 3 {
			assert.Equal(t, http.StatusNoContent, call(h, id.UserID{}).Code)
		}
	})

	t.Run("disabled allows everything", func(t *testing.T) {
		m := New(NewLimiter(1, 1, time.Minute), logger, WithDisabled(true))
		h := m.PerUser("contacts.search")(ok)
		alice := id.NewUserID()
		for range 3 {
			assert.Equal(t, http.StatusNoContent, call(h, alice).Code)
		}
	})
}
