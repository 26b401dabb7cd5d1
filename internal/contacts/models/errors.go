package models

import (
	dErrors "chatline/pkg/domain-errors"
)

// Error reasons. Each travels with a transport code so handlers can map a
// failure to a status while clients branch on the reason.
const (
	ReasonInvalidQuery     = "invalid_query"
	ReasonSelfRequest      = "self_request"
	ReasonInvalidAction    = "invalid_action"
	ReasonInvalidMessage   = "invalid_message"
	ReasonUserNotFound     = "user_not_found"
	ReasonRequestNotFound  = "request_not_found"
	ReasonAlreadyContacts  = "already_contacts"
	ReasonDuplicateRequest = "duplicate_request"
	ReasonAlreadyProcessed = "already_processed"
	ReasonNotAuthorized    = "not_authorized"
	ReasonStorageFailure   = "storage_failure"
)

var (
	ErrInvalidQuery = dErrors.New(dErrors.CodeBadRequest,
		"search query must be between 2 and 100 characters").WithReason(ReasonInvalidQuery)
	ErrSelfRequest = dErrors.New(dErrors.CodeBadRequest,
		"cannot send a contact request to yourself").WithReason(ReasonSelfRequest)
	ErrInvalidAction = dErrors.New(dErrors.CodeBadRequest,
		"action must be accept or reject").WithReason(ReasonInvalidAction)
	ErrMessageTooLong = dErrors.New(dErrors.CodeValidation,
		"message must be at most 500 characters").WithReason(ReasonInvalidMessage)
	ErrUserNotFound = dErrors.New(dErrors.CodeNotFound,
		"user not found").WithReason(ReasonUserNotFound)
	ErrRequestNotFound = dErrors.New(dErrors.CodeNotFound,
		"contact request not found").WithReason(ReasonRequestNotFound)
	ErrAlreadyContacts = dErrors.New(dErrors.CodeConflict,
		"you are already contacts").WithReason(ReasonAlreadyContacts)
	ErrDuplicateRequest = dErrors.New(dErrors.CodeConflict,
		"a contact request to this user is already pending").WithReason(ReasonDuplicateRequest)
	ErrAlreadyProcessed = dErrors.New(dErrors.CodeConflict,
		"contact request has already been processed").WithReason(ReasonAlreadyProcessed)
	ErrNotAuthorized = dErrors.New(dErrors.CodeForbidden,
		"not allowed to respond to this request").WithReason(ReasonNotAuthorized)
)

// StorageFailure wraps an unexpected persistence error. The operation is
// considered not applied.
func StorageFailure(err error, msg string) error {
	return dErrors.Wrap(err, dErrors.CodeInternal, msg).WithReason(ReasonStorageFailure)
}
