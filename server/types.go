package server

import "github.com/worameth/clinicdesk/records"

type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type ChatResponse struct {
	SessionID string `json:"session_id"`
	Stage     string `json:"stage"`
	Reply     string `json:"reply"`
}

type FailedTicketsResponse struct {
	Tickets []records.ReminderTicket `json:"tickets"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
