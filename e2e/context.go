// Package e2e drives the HTTP API through Gherkin scenarios. Each scenario
// gets a fresh in-process server backed by in-memory storage.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"chatline/internal/contacts/handler"
	"chatline/internal/contacts/models"
	"chatline/internal/contacts/service"
	"chatline/internal/contacts/store/identity"
	"chatline/internal/contacts/store/ledger"
	"chatline/internal/contacts/store/summarycache"
	jwttoken "chatline/internal/jwt_token"
	"chatline/internal/platform/metrics"
	httptransport "chatline/internal/transport/http"
	id "chatline/pkg/domain"
)

const adminToken = "e2e-admin-token"

// TestContext holds per-scenario state: the server, known users and the last
// response.
type TestContext struct {
	server   *httptest.Server
	client   *http.Client
	jwt      *jwttoken.JWTService
	identity *identity.InMemoryStore

	users  map[string]id.UserID
	tokens map[string]string

	lastStatus int
	lastBody   []byte
}

// NewTestContext starts a server for one scenario.
func NewTestContext() *TestContext {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := identity.NewInMemory()
	svc := service.New(ledger.NewInMemory(), users,
		service.WithLogger(logger),
		service.WithSummaryCache(summarycache.NewInMemory(time.Minute)),
	)
	jwt := jwttoken.NewJWTService("e2e-signing-key", "chatline", time.Minute)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         logger,
		Metrics:        metrics.NewWithRegisterer(prometheus.NewRegistry()),
		Validator:      jwttoken.NewJWTServiceAdapter(jwt),
		Contacts:       handler.New(svc, logger, handler.WithAdminToken(adminToken)),
		RequestTimeout: 5 * time.Second,
	})
	server := httptest.NewServer(router)

	return &TestContext{
		server:   server,
		client:   server.Client(),
		jwt:      jwt,
		identity: users,
		users:    make(map[string]id.UserID),
		tokens:   make(map[string]string),
	}
}

func (tc *TestContext) Close() {
	tc.server.Close()
}

// CreateUser registers a user directly in the identity store and mints a
// bearer token for them.
func (tc *TestContext) CreateUser(handle, email string) error {
	user, err := models.NewUser(id.NewUserID(), handle, email, "", "", time.Now())
	if err != nil {
		return err
	}
	if err := tc.identity.Create(context.Background(), user); err != nil {
		return fmt.Errorf("create %s: %w", handle, err)
	}
	token, err := tc.jwt.GenerateAccessToken(user.ID, time.Hour)
	if err != nil {
		return err
	}
	tc.users[handle] = user.ID
	tc.tokens[handle] = token
	return nil
}

func (tc *TestContext) UserID(handle string) (string, error) {
	userID, ok := tc.users[handle]
	if !ok {
		return "", fmt.Errorf("unknown user %q", handle)
	}
	return userID.String(), nil
}

// Do sends a request as handle. An empty handle sends no credentials.
func (tc *TestContext) Do(method, path, handle string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.server.URL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if handle != "" {
		token, ok := tc.tokens[handle]
		if !ok {
			return fmt.Errorf("unknown user %q", handle)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return tc.send(req)
}

// DoAdmin calls an operator route with the admin token.
func (tc *TestContext) DoAdmin(method, path string) error {
	req, err := http.NewRequest(method, tc.server.URL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Admin-Token", adminToken)
	return tc.send(req)
}

func (tc *TestContext) send(req *http.Request) error {
	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) LastStatus() int { return tc.lastStatus }
func (tc *TestContext) LastBody() []byte { return tc.lastBody }
