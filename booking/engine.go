package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/worameth/clinicdesk/pkg/redisx"
	"github.com/worameth/clinicdesk/records"
)

// ErrSlotUnavailable means the slot was taken between offer and reserve.
var ErrSlotUnavailable = errors.New("slot is no longer available")

// Request carries the patient identity a reservation is made for.
type Request struct {
	PatientID       string
	PatientName     string
	Reason          string
	DurationMinutes int
}

// Engine owns every availability mutation. Offers read freely; writes
// re-verify freedom inside the critical section so an offered slot that
// was taken in the meantime is rejected, never double-booked.
type Engine struct {
	repo   records.Repository
	locker redisx.Locker
	mu     sync.Mutex
	now    func() time.Time
}

type Option func(*Engine)

// WithLocker serializes reservations across processes through a shared
// Redis lock. Without it the in-process mutex is the only guard.
func WithLocker(l redisx.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(repo records.Repository, opts ...Option) *Engine {
	e := &Engine{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FindAvailable returns the free slots for the doctor in the range,
// ordered by date, then start time, then doctor. Empty doctor means any.
func (e *Engine) FindAvailable(ctx context.Context, doctor string, r records.DateRange) ([]records.AvailabilitySlot, error) {
	slots, err := e.repo.ListSlots(ctx, doctor, r)
	if err != nil {
		return nil, fmt.Errorf("find available: %w", err)
	}
	free := slots[:0]
	for _, s := range slots {
		if s.Available {
			free = append(free, s)
		}
	}
	return free, nil
}

// SuggestAlternatives collects up to k free slots across the given
// doctors, merged under the same ordering rule as FindAvailable.
func (e *Engine) SuggestAlternatives(ctx context.Context, doctors []string, r records.DateRange, k int) ([]records.AvailabilitySlot, error) {
	if k <= 0 {
		return nil, nil
	}
	var merged []records.AvailabilitySlot
	if len(doctors) == 0 {
		free, err := e.FindAvailable(ctx, "", r)
		if err != nil {
			return nil, err
		}
		merged = free
	} else {
		for _, d := range doctors {
			free, err := e.FindAvailable(ctx, d, r)
			if err != nil {
				return nil, err
			}
			merged = append(merged, free...)
		}
		sortBySlotOrder(merged)
	}
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// Reserve marks the slot occupied and creates the appointment row. The
// slot is re-read inside the critical section; a stale offer comes back
// as ErrSlotUnavailable. The slot flips before the appointment row is
// written, so a partial failure can strand a free slot but never attach
// two live appointments to one.
func (e *Engine) Reserve(ctx context.Context, doctor, slotID string, req Request) (*records.Appointment, error) {
	var appt *records.Appointment
	err := e.locked(ctx, "booking:slot:"+slotID, func() error {
		slot, err := e.repo.GetSlot(ctx, slotID)
		if err != nil {
			return fmt.Errorf("reserve: %w", err)
		}
		if doctor != "" && slot.Doctor != doctor {
			return fmt.Errorf("reserve: %w: slot %s belongs to %s", records.ErrSlotNotFound, slotID, slot.Doctor)
		}
		if !slot.Available {
			return fmt.Errorf("reserve slot %s: %w", slotID, ErrSlotUnavailable)
		}

		duration := req.DurationMinutes
		if duration <= 0 {
			duration = 30
		}
		a := &records.Appointment{
			PatientID:       req.PatientID,
			PatientName:     req.PatientName,
			Doctor:          slot.Doctor,
			Date:            slot.Date,
			Start:           slot.Start,
			End:             addMinutes(slot.Start, duration),
			DurationMinutes: duration,
			SlotID:          slot.ID,
			Status:          records.StatusScheduled,
			CreatedAt:       e.now().UTC(),
		}
		slot.Available = false
		if err := e.repo.UpdateSlot(ctx, slot); err != nil {
			return fmt.Errorf("reserve: mark slot occupied: %w", err)
		}
		if err := e.repo.CreateAppointment(ctx, a); err != nil {
			slot.Available = true
			if rbErr := e.repo.UpdateSlot(ctx, slot); rbErr != nil {
				log.Error().Err(rbErr).Str("slot_id", slot.ID).Msg("reserve: slot not restored after failed insert")
			}
			return fmt.Errorf("reserve: %w", err)
		}
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("appointment_id", appt.ID).
		Str("slot_id", appt.SlotID).
		Str("doctor", appt.Doctor).
		Msg("slot reserved")
	return appt, nil
}

// Release cancels the appointment and frees its slot. Cancelling an
// already cancelled appointment is an error, not a no-op.
func (e *Engine) Release(ctx context.Context, appointmentID, reason string) error {
	err := e.locked(ctx, "booking:appointment:"+appointmentID, func() error {
		appt, err := e.repo.GetAppointment(ctx, appointmentID)
		if err != nil {
			return fmt.Errorf("release: %w", err)
		}
		if appt.Status == records.StatusCancelled {
			return fmt.Errorf("release: %w: appointment %s already cancelled", records.ErrAppointmentNotFound, appointmentID)
		}

		appt.Status = records.StatusCancelled
		appt.CancelReason = reason
		if err := e.repo.UpdateAppointment(ctx, appt); err != nil {
			return fmt.Errorf("release: %w", err)
		}

		slot, err := e.repo.GetSlot(ctx, appt.SlotID)
		if err != nil {
			// Slot rows can be trimmed after the day passes; the
			// cancellation itself still stands.
			log.Warn().Err(err).Str("slot_id", appt.SlotID).Msg("release: slot row missing")
			return nil
		}
		slot.Available = true
		return e.repo.UpdateSlot(ctx, slot)
	})
	if err != nil {
		return err
	}
	log.Info().Str("appointment_id", appointmentID).Str("reason", reason).Msg("appointment released")
	return nil
}

func (e *Engine) locked(ctx context.Context, name string, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locker == nil {
		return fn()
	}
	return e.locker.WithLock(ctx, name, func(context.Context) error { return fn() })
}

func sortBySlotOrder(slots []records.AvailabilitySlot) {
	// Same rule the repository orders by; needed again after merging
	// per-doctor result sets.
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Doctor < b.Doctor
	})
}

// addMinutes shifts an HH:MM wall-clock string. Input outside that shape
// comes back unchanged rather than panicking mid-reservation.
func addMinutes(start string, minutes int) string {
	t, err := time.Parse("15:04", start)
	if err != nil {
		return start
	}
	return t.Add(time.Duration(minutes) * time.Minute).Format("15:04")
}
