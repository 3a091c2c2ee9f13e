package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/worameth/clinicdesk/agent/flow"
	"github.com/worameth/clinicdesk/notify"
	"github.com/worameth/clinicdesk/records"
)

// ChatService is the conversation surface the chat endpoint drives.
type ChatService interface {
	HandleMessage(ctx context.Context, sessionID, text string) (flow.GraphOutput, error)
}

// Releaser frees a reservation when a patient cancels via email link.
type Releaser interface {
	Release(ctx context.Context, appointmentID, reason string) error
}

type RouterConfig struct {
	Chat      ChatService
	Repo      records.Repository
	Engine    Releaser
	Scheduler *notify.Scheduler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	health := NewHealthHandler(cfg.Repo)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/chat", chatHandler(cfg.Chat))

	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Repo))
	// The confirm and cancel links land here straight from reminder
	// emails, so both verbs are accepted.
	r.Get("/appointments/{id}/confirm", confirmAppointmentHandler(cfg))
	r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg))
	r.Get("/appointments/{id}/cancel", cancelAppointmentHandler(cfg))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg))

	r.Get("/admin/reminders/failed", failedTicketsHandler(cfg.Repo))

	return r
}
