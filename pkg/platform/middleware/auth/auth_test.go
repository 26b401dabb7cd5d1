package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	id "chatline/pkg/domain"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return s.claims, s.err
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	userID := id.NewUserID()

	tests := []struct {
		name       string
		header     string
		validator  JWTValidator
		wantStatus int
	}{
		{"missing header", "", stubValidator{}, http.StatusUnauthorized},
		{"not a bearer token", "Basic abc", stubValidator{}, http.StatusUnauthorized},
		{"invalid token", "Bearer bad", stubValidator{err: errors.New("expired")}, http.StatusUnauthorized},
		{"malformed subject", "Bearer ok", stubValidator{claims: &JWTClaims{UserID: "nope"}}, http.StatusUnauthorized},
		{"valid token", "Bearer ok", stubValidator{claims: &JWTClaims{UserID: userID.String()}}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen id.UserID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetUserID(r.Context())
				w.WriteHeader(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/contacts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			RequireAuth(tt.validator, logger)(next).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusNoContent {
				assert.Equal(t, userID, seen)
			} else {
				assert.True(t, seen.IsNil())
				assert.Contains(t, rr.Body.String(), `"error":"unauthorized"`)
			}
		})
	}
}
