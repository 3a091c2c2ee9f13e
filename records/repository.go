package records

import (
	"context"
	"errors"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrTicketNotFound      = errors.New("reminder ticket not found")
	ErrDuplicateID         = errors.New("duplicate id")
)

// DateRange bounds queries on the date column, inclusive on both ends.
// Dates are YYYY-MM-DD strings, so lexicographic order is date order.
type DateRange struct {
	From string
	To   string
}

func (r DateRange) Contains(date string) bool {
	if r.From != "" && date < r.From {
		return false
	}
	if r.To != "" && date > r.To {
		return false
	}
	return true
}

// Repository is the single writer of truth over the four tables. All
// callers operate on copies; read-after-write consistency is guaranteed.
type Repository interface {
	GetPatient(ctx context.Context, id string) (*Patient, error)
	// FindPatient looks a patient up by name and date of birth, the
	// identity pair collected during the Identify stage.
	FindPatient(ctx context.Context, name, dob string) (*Patient, error)
	// CreatePatient assigns the next sequential ID when p.ID is empty.
	CreatePatient(ctx context.Context, p *Patient) error
	UpdatePatient(ctx context.Context, p *Patient) error

	ListDoctors(ctx context.Context) ([]string, error)
	GetSlot(ctx context.Context, id string) (*AvailabilitySlot, error)
	// ListSlots returns every slot for the doctor in the range, occupied
	// or free, ordered by date then start time. Empty doctor means all.
	ListSlots(ctx context.Context, doctor string, r DateRange) ([]AvailabilitySlot, error)
	CreateSlots(ctx context.Context, slots []AvailabilitySlot) error
	UpdateSlot(ctx context.Context, s *AvailabilitySlot) error

	GetAppointment(ctx context.Context, id string) (*Appointment, error)
	// CreateAppointment assigns the next sequential ID when a.ID is empty.
	CreateAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointment(ctx context.Context, a *Appointment) error
	ListAppointmentsBySlot(ctx context.Context, slotID string) ([]Appointment, error)
	ListAppointments(ctx context.Context, r DateRange) ([]Appointment, error)

	GetTicket(ctx context.Context, appointmentID string) (*ReminderTicket, error)
	CreateTicket(ctx context.Context, t *ReminderTicket) error
	UpdateTicket(ctx context.Context, t *ReminderTicket) error
	// ListOpenTickets returns tickets that are neither closed nor failed.
	ListOpenTickets(ctx context.Context) ([]ReminderTicket, error)
	ListFailedTickets(ctx context.Context) ([]ReminderTicket, error)
}
