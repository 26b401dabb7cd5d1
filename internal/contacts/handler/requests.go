package handler

import (
	"strings"
)

// SendRequestRequest is the body of POST /contacts/requests.
type SendRequestRequest struct {
	RecipientID string `json:"recipient_id" validate:"required,uuid"`
	Message     string `json:"message"`
}

func (r *SendRequestRequest) Normalize() {
	r.RecipientID = strings.TrimSpace(r.RecipientID)
	r.Message = strings.TrimSpace(r.Message)
}

// RespondRequest is the body of POST /contacts/requests/{requestID}/respond.
// The action itself is validated by the service so an unknown value reports
// invalid_action.
type RespondRequest struct {
	Action string `json:"action"`
}

func (r *RespondRequest) Normalize() {
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
}
