package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/worameth/clinicdesk/agent/flow"
	"github.com/worameth/clinicdesk/records"
)

func chatHandler(chat ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		sessionID := strings.TrimSpace(req.SessionID)
		if sessionID == "" {
			sessionID = uuid.New().String()
		}

		out, err := chat.HandleMessage(r.Context(), sessionID, req.Message)
		if err != nil {
			if errors.Is(err, flow.ErrInvalidMessage) {
				writeError(w, http.StatusBadRequest, "empty_message", "message must not be empty")
				return
			}
			log.Error().Err(err).Str("session_id", sessionID).Msg("chat turn failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "could not process the message")
			return
		}

		writeJSON(w, http.StatusOK, ChatResponse{
			SessionID: out.SessionID,
			Stage:     string(out.Stage),
			Reply:     out.Reply,
		})
	}
}

func getAppointmentHandler(repo records.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := repo.GetAppointment(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

// confirmAppointmentHandler marks the appointment confirmed and stops
// reminder escalation. Clicking the link twice is harmless.
func confirmAppointmentHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		appt, err := cfg.Repo.GetAppointment(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		if appt.Status == records.StatusCancelled {
			writeError(w, http.StatusConflict, "appointment_cancelled",
				"this appointment was cancelled; call the office to rebook")
			return
		}

		appt.Status = records.StatusConfirmed
		if err := cfg.Repo.UpdateAppointment(ctx, appt); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if err := cfg.Scheduler.Acknowledge(ctx, appt.ID); err != nil {
			// The confirmation itself stuck; a missing ticket only means
			// reminders never started.
			log.Warn().Err(err).Str("appointment_id", appt.ID).Msg("acknowledge ticket")
		}

		writeText(w, http.StatusOK, fmt.Sprintf(
			"Thank you! Your appointment with %s on %s at %s is confirmed. "+
				"Please arrive 15 minutes before your scheduled time.",
			appt.Doctor, appt.Date, appt.Start))
	}
}

func cancelAppointmentHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		appt, err := cfg.Repo.GetAppointment(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		if appt.Status != records.StatusCancelled {
			if err := cfg.Engine.Release(ctx, appt.ID, "cancelled via email link"); err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
				return
			}
		}
		if err := cfg.Scheduler.Close(ctx, appt.ID); err != nil {
			log.Warn().Err(err).Str("appointment_id", appt.ID).Msg("close ticket")
		}

		writeText(w, http.StatusOK, fmt.Sprintf(
			"Your appointment with %s on %s at %s has been cancelled. "+
				"Reach out whenever you'd like to reschedule.",
			appt.Doctor, appt.Date, appt.Start))
	}
}

func failedTicketsHandler(repo records.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tickets, err := repo.ListFailedTickets(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, FailedTicketsResponse{Tickets: tickets})
	}
}

func handleAppointmentError(w http.ResponseWriter, err error) {
	if errors.Is(err, records.ErrAppointmentNotFound) {
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg + "\n"))
}
