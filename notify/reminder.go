package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/worameth/clinicdesk/records"
)

type SchedulerConfig struct {
	// OffsetDays are days before the appointment a reminder goes out,
	// farthest first. 0 is the same-day reminder.
	OffsetDays []int `envconfig:"OFFSET_DAYS" split_words:"true" default:"7,1,0"`
	// MaxAttempts caps delivery retries per emission before the ticket
	// is marked failed.
	MaxAttempts int `envconfig:"MAX_ATTEMPTS" split_words:"true" default:"3"`
	// ConfirmBaseURL hosts the one-click confirm/cancel links.
	ConfirmBaseURL string `envconfig:"CONFIRM_BASE_URL" split_words:"true" default:"http://localhost:8080"`
	// AdminEmail receives failed-ticket alerts.
	AdminEmail string `envconfig:"ADMIN_EMAIL" split_words:"true"`
}

// Scheduler walks open reminder tickets and emits at most one
// notification per ticket per scan. Escalation and retry state live on
// the ticket; the scheduler itself is stateless between scans.
type Scheduler struct {
	repo   records.Repository
	sender EmailSender
	cfg    SchedulerConfig
}

func NewScheduler(repo records.Repository, sender EmailSender, cfg SchedulerConfig) *Scheduler {
	if len(cfg.OffsetDays) == 0 {
		cfg.OffsetDays = []int{7, 1, 0}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Scheduler{repo: repo, sender: sender, cfg: cfg}
}

// Open creates the reminder ticket for a confirmed appointment.
func (s *Scheduler) Open(ctx context.Context, appointmentID string, now time.Time) error {
	err := s.repo.CreateTicket(ctx, &records.ReminderTicket{
		AppointmentID: appointmentID,
		CreatedAt:     now.UTC(),
	})
	if err != nil && !errors.Is(err, records.ErrDuplicateID) {
		return fmt.Errorf("open reminder ticket: %w", err)
	}
	return nil
}

// Acknowledge records that the patient responded to a reminder. Later
// emissions stay at the basic tone.
func (s *Scheduler) Acknowledge(ctx context.Context, appointmentID string) error {
	ticket, err := s.repo.GetTicket(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("acknowledge: %w", err)
	}
	ticket.Acknowledged = true
	if err := s.repo.UpdateTicket(ctx, ticket); err != nil {
		return fmt.Errorf("acknowledge: %w", err)
	}
	return nil
}

// Close finalizes the ticket, used when the appointment is cancelled or
// completed outside a scan.
func (s *Scheduler) Close(ctx context.Context, appointmentID string) error {
	ticket, err := s.repo.GetTicket(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, records.ErrTicketNotFound) {
			return nil
		}
		return fmt.Errorf("close ticket: %w", err)
	}
	ticket.Closed = true
	if err := s.repo.UpdateTicket(ctx, ticket); err != nil {
		return fmt.Errorf("close ticket: %w", err)
	}
	return nil
}

// Scan visits every open ticket once. Per ticket: finalize if the
// appointment left the active states, otherwise emit the due reminder,
// or retry a previously failed emission up to the attempt cap.
func (s *Scheduler) Scan(ctx context.Context, now time.Time) error {
	tickets, err := s.repo.ListOpenTickets(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	for i := range tickets {
		ticket := tickets[i]
		if err := s.scanOne(ctx, &ticket, now); err != nil {
			log.Error().Err(err).Str("appointment_id", ticket.AppointmentID).Msg("reminder scan: ticket skipped")
		}
	}
	return nil
}

func (s *Scheduler) scanOne(ctx context.Context, ticket *records.ReminderTicket, now time.Time) error {
	appt, err := s.repo.GetAppointment(ctx, ticket.AppointmentID)
	if err != nil {
		return err
	}

	if appt.Status == records.StatusCancelled || appt.Status == records.StatusCompleted {
		ticket.Closed = true
		return s.repo.UpdateTicket(ctx, ticket)
	}

	apptAt, err := appointmentTime(appt)
	if err != nil {
		return err
	}

	due := s.dueIndex(now, apptAt)
	if due < 0 || ticket.Cursor > due {
		return nil
	}

	// Tone escalates with each unacknowledged emission; an acknowledged
	// patient keeps getting the basic tone.
	tone := ticket.Level
	if ticket.Acknowledged {
		tone = 0
	}

	patient, err := s.repo.GetPatient(ctx, appt.PatientID)
	if err != nil {
		return err
	}

	subject, body := ReminderEmail(tone, appt, s.cfg.ConfirmBaseURL)
	sendErr := s.sender.Send(ctx, Email{
		To:      patient.Email,
		ToName:  patient.Name,
		Subject: subject,
		Body:    body,
	})
	if sendErr != nil {
		ticket.Attempts++
		if ticket.Attempts >= s.cfg.MaxAttempts {
			ticket.Failed = true
			s.alertAdmin(ctx, appt, sendErr)
		}
		if err := s.repo.UpdateTicket(ctx, ticket); err != nil {
			return err
		}
		return fmt.Errorf("send reminder: %w", sendErr)
	}

	// One emission covers the furthest due offset; a same-day booking
	// enters at the compressed cadence instead of replaying all three.
	// Severity only moves while the patient stays silent.
	ticket.Cursor = due + 1
	if !ticket.Acknowledged {
		ticket.Level = due + 1
	}
	ticket.Attempts = 0
	ticket.LastSentAt = now.UTC()
	if err := s.repo.UpdateTicket(ctx, ticket); err != nil {
		return err
	}

	appt.RemindersSent++
	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		return err
	}

	log.Info().
		Str("appointment_id", appt.ID).
		Int("tone", tone).
		Int("level", ticket.Level).
		Msg("reminder sent")
	return nil
}

// dueIndex returns the index of the latest offset already reached, or
// -1 when the first reminder window has not opened yet. Each window
// opens at midnight of its target day; the same-day window stays open
// until the appointment itself.
func (s *Scheduler) dueIndex(now, apptAt time.Time) int {
	if now.After(apptAt) {
		return -1
	}
	apptDay := time.Date(apptAt.Year(), apptAt.Month(), apptAt.Day(), 0, 0, 0, 0, apptAt.Location())
	due := -1
	for i, days := range s.cfg.OffsetDays {
		if !now.Before(apptDay.AddDate(0, 0, -days)) {
			due = i
		}
	}
	return due
}

func (s *Scheduler) alertAdmin(ctx context.Context, appt *records.Appointment, cause error) {
	if s.cfg.AdminEmail == "" {
		return
	}
	subject, body := AdminAlertEmail(
		"reminder delivery failed",
		fmt.Sprintf("appointment %s (%s on %s at %s): %v", appt.ID, appt.PatientName, appt.Date, appt.Start, cause),
	)
	if err := s.sender.Send(ctx, Email{To: s.cfg.AdminEmail, ToName: "Office Admin", Subject: subject, Body: body}); err != nil {
		log.Error().Err(err).Msg("admin alert failed")
	}
}

func appointmentTime(appt *records.Appointment) (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04", appt.Date+" "+appt.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse appointment time: %w", err)
	}
	return t.UTC(), nil
}
