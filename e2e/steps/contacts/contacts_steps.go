package contacts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	CreateUser(handle, email string) error
	UserID(handle string) (string, error)
	Do(method, path, handle string, body any) error
	DoAdmin(method, path string) error
	LastStatus() int
	LastBody() []byte
}

// RegisterSteps registers contact step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &contactSteps{tc: tc}

	ctx.Step(`^the following users exist:$`, steps.usersExist)

	ctx.Step(`^"([^"]*)" sends a contact request to "([^"]*)"$`, steps.sendRequest)
	ctx.Step(`^"([^"]*)" sends a contact request to "([^"]*)" with message "([^"]*)"$`, steps.sendRequestWithMessage)
	ctx.Step(`^"([^"]*)" sent a contact request to "([^"]*)"$`, steps.sentRequest)
	ctx.Step(`^"([^"]*)" (accepts|rejects) the last request$`, steps.respond)
	ctx.Step(`^"([^"]*)" accepted the last request$`, steps.acceptedRequest)
	ctx.Step(`^"([^"]*)" searches for "([^"]*)"$`, steps.search)
	ctx.Step(`^"([^"]*)" lists their contact requests$`, steps.listRequests)
	ctx.Step(`^"([^"]*)" lists their contacts$`, steps.listContacts)
	ctx.Step(`^an anonymous client lists contacts$`, steps.anonymousListContacts)
	ctx.Step(`^an operator reconciles "([^"]*)"$`, steps.reconcile)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the error reason should be "([^"]*)"$`, steps.reasonShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.fieldShouldBe)
	ctx.Step(`^the results should include "([^"]*)"$`, steps.resultsInclude)
	ctx.Step(`^the results should not include "([^"]*)"$`, steps.resultsExclude)
	ctx.Step(`^there should be (\d+) sent and (\d+) received requests?$`, steps.requestCounts)
	ctx.Step(`^the received request should be from "([^"]*)"$`, steps.receivedFrom)
	ctx.Step(`^"([^"]*)" and "([^"]*)" should be contacts$`, steps.shouldBeContacts)
}

type contactSteps struct {
	tc            TestContext
	lastRequestID string
}

type userSummary struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
}

type requestView struct {
	ID     string      `json:"id"`
	Sender userSummary `json:"sender"`
	Status string      `json:"status"`
}

type requestLists struct {
	Sent     []requestView `json:"sent"`
	Received []requestView `json:"received"`
}

func (s *contactSteps) usersExist(ctx context.Context, table *godog.Table) error {
	for i, row := range table.Rows {
		if i == 0 {
			continue
		}
		if len(row.Cells) < 2 {
			return fmt.Errorf("row %d: expected handle and email", i)
		}
		if err := s.tc.CreateUser(row.Cells[0].Value, row.Cells[1].Value); err != nil {
			return err
		}
	}
	return nil
}

func (s *contactSteps) sendRequest(ctx context.Context, sender, recipient string) error {
	return s.sendRequestWithMessage(ctx, sender, recipient, "")
}

func (s *contactSteps) sendRequestWithMessage(ctx context.Context, sender, recipient, message string) error {
	recipientID, err := s.tc.UserID(recipient)
	if err != nil {
		return err
	}
	body := map[string]string{"recipient_id": recipientID, "message": message}
	if err := s.tc.Do(http.MethodPost, "/contacts/requests", sender, body); err != nil {
		return err
	}
	if s.tc.LastStatus() == http.StatusCreated {
		var view requestView
		if err := json.Unmarshal(s.tc.LastBody(), &view); err != nil {
			return fmt.Errorf("decode request view: %w", err)
		}
		s.lastRequestID = view.ID
	}
	return nil
}

func (s *contactSteps) sentRequest(ctx context.Context, sender, recipient string) error {
	if err := s.sendRequest(ctx, sender, recipient); err != nil {
		return err
	}
	return s.expectStatus(http.StatusCreated)
}

func (s *contactSteps) respond(ctx context.Context, handle, verb string) error {
	if s.lastRequestID == "" {
		return fmt.Errorf("no contact request has been sent")
	}
	action := "accept"
	if verb == "rejects" {
		action = "reject"
	}
	path := "/contacts/requests/" + s.lastRequestID + "/respond"
	return s.tc.Do(http.MethodPost, path, handle, map[string]string{"action": action})
}

func (s *contactSteps) acceptedRequest(ctx context.Context, handle string) error {
	if err := s.respond(ctx, handle, "accepts"); err != nil {
		return err
	}
	return s.expectStatus(http.StatusOK)
}

func (s *contactSteps) search(ctx context.Context, handle, query string) error {
	return s.tc.Do(http.MethodGet, "/contacts/search?query="+url.QueryEscape(query), handle, nil)
}

func (s *contactSteps) listRequests(ctx context.Context, handle string) error {
	return s.tc.Do(http.MethodGet, "/contacts/requests", handle, nil)
}

func (s *contactSteps) listContacts(ctx context.Context, handle string) error {
	return s.tc.Do(http.MethodGet, "/contacts", handle, nil)
}

func (s *contactSteps) anonymousListContacts(ctx context.Context) error {
	return s.tc.Do(http.MethodGet, "/contacts", "", nil)
}

func (s *contactSteps) reconcile(ctx context.Context, handle string) error {
	userID, err := s.tc.UserID(handle)
	if err != nil {
		return err
	}
	return s.tc.DoAdmin(http.MethodPost, "/admin/contacts/users/"+userID+"/reconcile")
}

func (s *contactSteps) statusShouldBe(ctx context.Context, status int) error {
	return s.expectStatus(status)
}

func (s *contactSteps) expectStatus(status int) error {
	if got := s.tc.LastStatus(); got != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, got, s.tc.LastBody())
	}
	return nil
}

func (s *contactSteps) reasonShouldBe(ctx context.Context, reason string) error {
	return s.fieldShouldBe(ctx, "reason", reason)
}

func (s *contactSteps) fieldShouldBe(ctx context.Context, field, expected string) error {
	var body map[string]any
	if err := json.Unmarshal(s.tc.LastBody(), &body); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if got := fmt.Sprint(body[field]); got != expected {
		return fmt.Errorf("expected %s %q, got %q", field, expected, got)
	}
	return nil
}

func (s *contactSteps) handles() ([]string, error) {
	var summaries []userSummary
	if err := json.Unmarshal(s.tc.LastBody(), &summaries); err != nil {
		return nil, fmt.Errorf("decode summaries: %w", err)
	}
	out := make([]string, 0, len(summaries))
	for _, u := range summaries {
		out = append(out, u.Handle)
	}
	return out, nil
}

func (s *contactSteps) resultsInclude(ctx context.Context, handle string) error {
	handles, err := s.handles()
	if err != nil {
		return err
	}
	if !slices.Contains(handles, handle) {
		return fmt.Errorf("expected %q in %v", handle, handles)
	}
	return nil
}

func (s *contactSteps) resultsExclude(ctx context.Context, handle string) error {
	handles, err := s.handles()
	if err != nil {
		return err
	}
	if slices.Contains(handles, handle) {
		return fmt.Errorf("did not expect %q in %v", handle, handles)
	}
	return nil
}

func (s *contactSteps) lists() (*requestLists, error) {
	var lists requestLists
	if err := json.Unmarshal(s.tc.LastBody(), &lists); err != nil {
		return nil, fmt.Errorf("decode request lists: %w", err)
	}
	return &lists, nil
}

func (s *contactSteps) requestCounts(ctx context.Context, sent, received int) error {
	lists, err := s.lists()
	if err != nil {
		return err
	}
	if len(lists.Sent) != sent || len(lists.Received) != received {
		return fmt.Errorf("expected %d sent and %d received, got %d and %d",
			sent, received, len(lists.Sent), len(lists.Received))
	}
	return nil
}

func (s *contactSteps) receivedFrom(ctx context.Context, handle string) error {
	lists, err := s.lists()
	if err != nil {
		return err
	}
	if len(lists.Received) != 1 {
		return fmt.Errorf("expected one received request, got %d", len(lists.Received))
	}
	if got := lists.Received[0].Sender.Handle; got != handle {
		return fmt.Errorf("expected request from %q, got %q", handle, got)
	}
	return nil
}

func (s *contactSteps) shouldBeContacts(ctx context.Context, a, b string) error {
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		if err := s.listContacts(ctx, pair[0]); err != nil {
			return err
		}
		if err := s.expectStatus(http.StatusOK); err != nil {
			return err
		}
		if err := s.resultsInclude(ctx, pair[1]); err != nil {
			return fmt.Errorf("%s's contacts: %w", pair[0], err)
		}
	}
	return nil
}
