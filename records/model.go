package records

import (
	"time"

	"github.com/uptrace/bun"
)

type PatientType string

const (
	PatientNew       PatientType = "new"
	PatientReturning PatientType = "returning"
)

// Patient rows are created on first contact and mutated by later visits;
// they are never deleted.
type Patient struct {
	bun.BaseModel `bun:"table:patients"`

	ID               string      `bun:"id,pk" json:"id"`
	Name             string      `bun:"name" json:"name"`
	DOB              string      `bun:"dob" json:"dob"` // YYYY-MM-DD, stored as text like the CSV layout
	Email            string      `bun:"email" json:"email"`
	Phone            string      `bun:"phone" json:"phone"`
	DoctorPreference string      `bun:"doctor_preference" json:"doctor_preference"`
	Type             PatientType `bun:"patient_type" json:"patient_type"`
	InsuranceCarrier string      `bun:"insurance_carrier" json:"insurance_carrier"`
	MemberID         string      `bun:"member_id" json:"member_id"`
	GroupNumber      string      `bun:"group_number" json:"group_number"`
}

// AvailabilitySlot is one 30-minute interval for one doctor on one date.
// Mutated exclusively through the booking engine.
type AvailabilitySlot struct {
	bun.BaseModel `bun:"table:availability"`

	ID        string `bun:"id,pk" json:"id"`
	Doctor    string `bun:"doctor" json:"doctor"`
	Date      string `bun:"date" json:"date"`   // YYYY-MM-DD
	Start     string `bun:"start" json:"start"` // HH:MM
	Available bool   `bun:"available" json:"available"`
}

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                string            `bun:"id,pk" json:"id"`
	PatientID         string            `bun:"patient_id" json:"patient_id"`
	PatientName       string            `bun:"patient_name" json:"patient_name"`
	Doctor            string            `bun:"doctor" json:"doctor"`
	Date              string            `bun:"date" json:"date"`
	Start             string            `bun:"start" json:"start"`
	End               string            `bun:"end_time" json:"end"`
	DurationMinutes   int               `bun:"duration_minutes" json:"duration_minutes"`
	SlotID            string            `bun:"slot_id" json:"slot_id"`
	Status            AppointmentStatus `bun:"status" json:"status"`
	InsuranceVerified bool              `bun:"insurance_verified" json:"insurance_verified"`
	FormSent          bool              `bun:"form_sent" json:"form_sent"`
	RemindersSent     int               `bun:"reminders_sent" json:"reminders_sent"`
	CancelReason      string            `bun:"cancel_reason" json:"cancel_reason"`
	CreatedAt         time.Time         `bun:"created_at" json:"created_at"`
}

// ReminderTicket tracks reminder escalation for one appointment. Created
// when the appointment is confirmed, closed when it occurs or is
// cancelled. Level is the escalation severity and stops moving once the
// patient acknowledges; Cursor is the next reminder window to emit and
// always advances.
type ReminderTicket struct {
	bun.BaseModel `bun:"table:reminder_tickets"`

	AppointmentID string    `bun:"appointment_id,pk" json:"appointment_id"`
	Level         int       `bun:"level" json:"level"`
	Cursor        int       `bun:"cursor" json:"cursor"`
	LastSentAt    time.Time `bun:"last_sent_at,nullzero" json:"last_sent_at"`
	Acknowledged  bool      `bun:"acknowledged" json:"acknowledged"`
	Attempts      int       `bun:"attempts" json:"attempts"`
	Failed        bool      `bun:"failed" json:"failed"`
	Closed        bool      `bun:"closed" json:"closed"`
	CreatedAt     time.Time `bun:"created_at" json:"created_at"`
}

// Open reports whether the ticket still wants scanning.
func (t *ReminderTicket) Open() bool {
	return t != nil && !t.Closed && !t.Failed
}
