package notify_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worameth/clinicdesk/notify"
	"github.com/worameth/clinicdesk/records"
)

type captureSender struct {
	sent []notify.Email
	fail error
}

func (c *captureSender) Send(_ context.Context, msg notify.Email) error {
	if c.fail != nil {
		return c.fail
	}
	c.sent = append(c.sent, msg)
	return nil
}

func seedAppointment(t *testing.T, repo records.Repository, date, start string) *records.Appointment {
	t.Helper()
	ctx := context.Background()

	patient := &records.Patient{Name: "Maria Lopez", DOB: "1988-04-12", Email: "maria@example.com", Type: records.PatientNew}
	require.NoError(t, repo.CreatePatient(ctx, patient))

	appt := &records.Appointment{
		PatientID:   patient.ID,
		PatientName: patient.Name,
		Doctor:      "Dr. Smith",
		Date:        date,
		Start:       start,
		End:         "09:30",
		SlotID:      "s1",
		Status:      records.StatusConfirmed,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, repo.CreateAppointment(ctx, appt))
	return appt
}

func TestScanEmitsOnePerDueWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := records.NewMemoryRepository()
	sender := &captureSender{}
	sched := notify.NewScheduler(repo, sender, notify.SchedulerConfig{})

	appt := seedAppointment(t, repo, "2026-09-10", "09:00")
	require.NoError(t, sched.Open(ctx, appt.ID, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)))

	// Before the 7-day window nothing goes out.
	require.NoError(t, sched.Scan(ctx, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)))
	assert.Empty(t, sender.sent)

	// Inside the 7-day window: exactly one emission, repeated scans stay quiet.
	sevenDaysOut := time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, sched.Scan(ctx, sevenDaysOut))
	require.NoError(t, sched.Scan(ctx, sevenDaysOut.Add(time.Hour)))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Subject, "Reminder: Upcoming Appointment")

	ticket, err := repo.GetTicket(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ticket.Level)
	assert.Equal(t, 1, ticket.Cursor)
	assert.Equal(t, sevenDaysOut, ticket.LastSentAt)

	got, err := repo.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RemindersSent)
}

func TestScanEscalatesToneAcrossWindows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := records.NewMemoryRepository()
	sender := &captureSender{}
	sched := notify.NewScheduler(repo, sender, notify.SchedulerConfig{})

	appt := seedAppointment(t, repo, "2026-09-10", "09:00")
	require.NoError(t, sched.Open(ctx, appt.ID, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, sched.Scan(ctx, time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, sched.Scan(ctx, time.Date(2026, 9, 9, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, sched.Scan(ctx, time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC)))

	require.Len(t, sender.sent, 3)
	assert.Contains(t, sender.sent[0].Subject, "Reminder: Upcoming Appointment")
	assert.Contains(t, sender.sent[1].Subject, "Action Required")
	assert.Contains(t, sender.sent[2].Subject, "Final Reminder")
	assert.True(t, strings.Contains(sender.sent[2].Body, "/appointments/"+appt.ID+"/confirm"))
}

func TestScanAcknowledgedStaysBasicTone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := records.NewMemoryRepository()
	sender := &captureSender{}
	sched := notify.NewScheduler(repo, sender, notify.SchedulerConfig{})

	appt := seedAppointment(t, repo, "2026-09-10", "09:00")
	require.NoError(t, sched.Open(ctx, appt.ID, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, sched.Scan(ctx, time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, sched.Acknowledge(ctx, appt.ID))
	require.NoError(t, sched.Scan(ctx, time.Date(2026, 9, 9, 10, 0, 0, 0, time.UTC)))

	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[1].Subject, "Reminder: Upcoming Appointment",
		"acknowledged tickets never escalate tone")

	// The window cursor keeps moving but severity is frozen.
	ticket, err := repo.GetTicket(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ticket.Level, "level stops advancing after acknowledgement")
	assert.Equal(t, 2, ticket.Cursor)
}

func TestScanSameDayBookingEntersCompressedCadence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := records.NewMemoryRepository()
	sender := &captureSender{}
	sched := notify.NewScheduler(repo, sender, notify.SchedulerConfig{})

	now := time.Date(2026, 9, 10, 7, 0, 0, 0, time.UTC)
	appt := seedAppointment(t, repo, "2026-09-10", "09:00")
	require.NoError(t, sched.Open(ctx, appt.ID, now))

	require.NoError(t, sched.Scan(ctx, now))
	require.Len(t, sender.sent, 1, "one emission per scan even when all windows are due")

	ticket, err := repo.GetTicket(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, ticket.Cursor, "ticket caught up past all three windows")

	require.NoError(t, sched.Scan(ctx, now.Add(time.Hour)))
	assert.Len(t, sender.sent, 1, "no replay of earlier windows")
}

func TestScanSameDayWindowSpansAppointmentMorning(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := records.NewMemoryRepository()
	sender := &captureSender{}
	sched := notify.NewScheduler(repo, sender, notify.SchedulerConfig{})

	appt := seedAppointment(t, repo, "2026-09-10", "09:00")
	require.NoError(t, sched.Open(ctx, appt.ID, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, sched.Scan(ctx, time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, sched.Scan(ctx, time.Date(2026, 9, 9, 10, 0, 0, 0, time.UTC)))

	// The same-day window opens at midnight, well before the start time.
	require.NoError(t, sched.Scan(ctx, time.Date(2026, 9, 10, 0, 30, 0, 0, time.UTC)))
	require.Len(t, sender.sent, 3)
	assert.Contains(t, sender.sent[2].Subject, "Final Reminder")

	// Once the appointment has started nothing more goes out.
	require.NoError(t, sched.Scan(ctx, time.Date(2026, 9, 10, 9, 0, 1, 0, time.UTC)))
	assert.Len(t, sender.sent, 3)
}

func TestScanRetriesThenFailsTicket(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := records.NewMemoryRepository()
	sender := &captureSender{fail: errors.New("smtp down")}
	sched := notify.NewScheduler(repo, sender, notify.SchedulerConfig{
		MaxAttempts: 2,
		AdminEmail:  "admin@example.com",
	})

	appt := seedAppointment(t, repo, "2026-09-10", "09:00")
	require.NoError(t, sched.Open(ctx, appt.ID, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)))

	scanAt := time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, sched.Scan(ctx, scanAt))

	ticket, err := repo.GetTicket(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ticket.Attempts)
	assert.False(t, ticket.Failed)

	require.NoError(t, sched.Scan(ctx, scanAt.Add(time.Minute)))

	ticket, err = repo.GetTicket(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, ticket.Attempts)
	assert.True(t, ticket.Failed)

	failed, err := repo.ListFailedTickets(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, appt.ID, failed[0].AppointmentID)

	// Failed tickets drop out of the open scan set.
	require.NoError(t, sched.Scan(ctx, scanAt.Add(time.Hour)))
	ticket, err = repo.GetTicket(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, ticket.Attempts)
}

func TestScanClosesTicketForCancelledAppointment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := records.NewMemoryRepository()
	sender := &captureSender{}
	sched := notify.NewScheduler(repo, sender, notify.SchedulerConfig{})

	appt := seedAppointment(t, repo, "2026-09-10", "09:00")
	require.NoError(t, sched.Open(ctx, appt.ID, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)))

	appt.Status = records.StatusCancelled
	require.NoError(t, repo.UpdateAppointment(ctx, appt))

	require.NoError(t, sched.Scan(ctx, time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC)))
	assert.Empty(t, sender.sent)

	ticket, err := repo.GetTicket(ctx, appt.ID)
	require.NoError(t, err)
	assert.True(t, ticket.Closed)
}
