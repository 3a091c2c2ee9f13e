package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// BunRepository is the Postgres-backed Repository for deployments that
// outgrow the CSV files. Same single-writer contract.
type BunRepository struct {
	db *bun.DB
}

var _ Repository = (*BunRepository)(nil)

func NewBunRepository(dsn string) *BunRepository {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &BunRepository{db: bun.NewDB(sqldb, pgdialect.New())}
}

// EnsureSchema creates the four tables when they do not exist yet.
func (r *BunRepository) EnsureSchema(ctx context.Context) error {
	models := []any{
		(*Patient)(nil),
		(*AvailabilitySlot)(nil),
		(*Appointment)(nil),
		(*ReminderTicket)(nil),
	}
	for _, m := range models {
		if _, err := r.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	return nil
}

func (r *BunRepository) Close() error {
	return r.db.Close()
}

/* ------------------------------ patients ------------------------------ */

func (r *BunRepository) GetPatient(ctx context.Context, id string) (*Patient, error) {
	p := new(Patient)
	err := r.db.NewSelect().Model(p).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id=%s", ErrPatientNotFound, id)
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *BunRepository) FindPatient(ctx context.Context, name, dob string) (*Patient, error) {
	p := new(Patient)
	err := r.db.NewSelect().Model(p).
		Where("lower(name) = lower(?)", name).
		Where("dob = ?", dob).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: name=%s dob=%s", ErrPatientNotFound, name, dob)
		}
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return p, nil
}

func (r *BunRepository) CreatePatient(ctx context.Context, p *Patient) error {
	if p.ID == "" {
		ids, err := r.columnValues(ctx, (*Patient)(nil), "id")
		if err != nil {
			return fmt.Errorf("next patient id: %w", err)
		}
		p.ID = nextSequentialID(ids)
	}
	if _, err := r.db.NewInsert().Model(p).Exec(ctx); err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: patient id=%s", ErrDuplicateID, p.ID)
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *BunRepository) UpdatePatient(ctx context.Context, p *Patient) error {
	res, err := r.db.NewUpdate().Model(p).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return requireAffected(res, ErrPatientNotFound, p.ID)
}

/* ------------------------------- slots -------------------------------- */

func (r *BunRepository) ListDoctors(ctx context.Context) ([]string, error) {
	var doctors []string
	err := r.db.NewSelect().Model((*AvailabilitySlot)(nil)).
		ColumnExpr("DISTINCT doctor").
		OrderExpr("doctor").
		Scan(ctx, &doctors)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

func (r *BunRepository) GetSlot(ctx context.Context, id string) (*AvailabilitySlot, error) {
	s := new(AvailabilitySlot)
	err := r.db.NewSelect().Model(s).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id=%s", ErrSlotNotFound, id)
		}
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return s, nil
}

func (r *BunRepository) ListSlots(ctx context.Context, doctor string, dr DateRange) ([]AvailabilitySlot, error) {
	var slots []AvailabilitySlot
	q := r.db.NewSelect().Model(&slots)
	if doctor != "" {
		q = q.Where("lower(doctor) = lower(?)", doctor)
	}
	if dr.From != "" {
		q = q.Where("date >= ?", dr.From)
	}
	if dr.To != "" {
		q = q.Where("date <= ?", dr.To)
	}
	if err := q.OrderExpr("date, start, doctor").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

func (r *BunRepository) CreateSlots(ctx context.Context, slots []AvailabilitySlot) error {
	if len(slots) == 0 {
		return nil
	}
	if _, err := r.db.NewInsert().Model(&slots).Exec(ctx); err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: slot insert", ErrDuplicateID)
		}
		return fmt.Errorf("insert slots: %w", err)
	}
	return nil
}

func (r *BunRepository) UpdateSlot(ctx context.Context, s *AvailabilitySlot) error {
	res, err := r.db.NewUpdate().Model(s).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	return requireAffected(res, ErrSlotNotFound, s.ID)
}

/* ---------------------------- appointments ---------------------------- */

func (r *BunRepository) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	a := new(Appointment)
	err := r.db.NewSelect().Model(a).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id=%s", ErrAppointmentNotFound, id)
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *BunRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.ID == "" {
		ids, err := r.columnValues(ctx, (*Appointment)(nil), "id")
		if err != nil {
			return fmt.Errorf("next appointment id: %w", err)
		}
		a.ID = nextSequentialID(ids)
	}
	if _, err := r.db.NewInsert().Model(a).Exec(ctx); err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: appointment id=%s", ErrDuplicateID, a.ID)
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *BunRepository) UpdateAppointment(ctx context.Context, a *Appointment) error {
	res, err := r.db.NewUpdate().Model(a).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return requireAffected(res, ErrAppointmentNotFound, a.ID)
}

func (r *BunRepository) ListAppointmentsBySlot(ctx context.Context, slotID string) ([]Appointment, error) {
	var appts []Appointment
	err := r.db.NewSelect().Model(&appts).
		Where("slot_id = ?", slotID).
		OrderExpr("date, start, id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list appointments by slot: %w", err)
	}
	return appts, nil
}

func (r *BunRepository) ListAppointments(ctx context.Context, dr DateRange) ([]Appointment, error) {
	var appts []Appointment
	q := r.db.NewSelect().Model(&appts)
	if dr.From != "" {
		q = q.Where("date >= ?", dr.From)
	}
	if dr.To != "" {
		q = q.Where("date <= ?", dr.To)
	}
	if err := q.OrderExpr("date, start, id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

/* ------------------------------- tickets ------------------------------ */

func (r *BunRepository) GetTicket(ctx context.Context, appointmentID string) (*ReminderTicket, error) {
	t := new(ReminderTicket)
	err := r.db.NewSelect().Model(t).Where("appointment_id = ?", appointmentID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: appointment_id=%s", ErrTicketNotFound, appointmentID)
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

func (r *BunRepository) CreateTicket(ctx context.Context, t *ReminderTicket) error {
	if _, err := r.db.NewInsert().Model(t).Exec(ctx); err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: ticket appointment_id=%s", ErrDuplicateID, t.AppointmentID)
		}
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (r *BunRepository) UpdateTicket(ctx context.Context, t *ReminderTicket) error {
	res, err := r.db.NewUpdate().Model(t).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	return requireAffected(res, ErrTicketNotFound, t.AppointmentID)
}

func (r *BunRepository) ListOpenTickets(ctx context.Context) ([]ReminderTicket, error) {
	var tickets []ReminderTicket
	err := r.db.NewSelect().Model(&tickets).
		Where("closed = FALSE").
		Where("failed = FALSE").
		OrderExpr("appointment_id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open tickets: %w", err)
	}
	return tickets, nil
}

func (r *BunRepository) ListFailedTickets(ctx context.Context) ([]ReminderTicket, error) {
	var tickets []ReminderTicket
	err := r.db.NewSelect().Model(&tickets).
		Where("failed = TRUE").
		OrderExpr("appointment_id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list failed tickets: %w", err)
	}
	return tickets, nil
}

/* ------------------------------ helpers ------------------------------- */

func (r *BunRepository) columnValues(ctx context.Context, model any, column string) ([]string, error) {
	var values []string
	err := r.db.NewSelect().Model(model).Column(column).Scan(ctx, &values)
	if err != nil {
		return nil, err
	}
	return values, nil
}

// uniqueViolation is the SQLSTATE Postgres reports for duplicate keys.
const uniqueViolation = "23505"

// sqlState matches pgdriver's server error, which carries the SQLSTATE
// in field 'C'.
type sqlState interface{ Field(byte) string }

func isDuplicate(err error) bool {
	var st sqlState
	return errors.As(err, &st) && st.Field('C') == uniqueViolation
}

func requireAffected(res sql.Result, sentinel error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: id=%s", sentinel, id)
	}
	return nil
}
