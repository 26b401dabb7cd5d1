package models

import "strings"

// RequestStatus is the lifecycle state of a contact request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
)

func (s RequestStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// CanTransitionTo allows exactly pending -> accepted and pending -> rejected.
func (s RequestStatus) CanTransitionTo(target RequestStatus) bool {
	return s == StatusPending && target.IsTerminal()
}

func (s RequestStatus) String() string { return string(s) }

// Action is the recipient's answer to a pending request.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// ParseAction accepts "accept" or "reject", case-insensitively.
func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionAccept:
		return ActionAccept, nil
	case ActionReject:
		return ActionReject, nil
	}
	return "", ErrInvalidAction
}

// ResultingStatus maps the action to the terminal status it produces.
func (a Action) ResultingStatus() RequestStatus {
	if a == ActionAccept {
		return StatusAccepted
	}
	return StatusRejected
}

// Outcome is the user-facing message returned with the resulting status.
func (a Action) Outcome() string {
	if a == ActionAccept {
		return "contact request accepted"
	}
	return "contact request rejected"
}

