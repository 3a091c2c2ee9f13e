package records

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	patientsFile     = "patients.csv"
	availabilityFile = "availability.csv"
	appointmentsFile = "doctor_appointments.csv"
	remindersFile    = "reminders.csv"
)

// CSVRepository persists the four tables as one CSV file per table under
// a data directory, preserving the legacy file layout. Rows live in
// memory; every mutation rewrites the affected file. Single writer.
type CSVRepository struct {
	mu  sync.Mutex
	dir string
	mem *MemoryRepository
}

var _ Repository = (*CSVRepository)(nil)

// NewCSVRepository opens (or initializes) the data directory and loads
// every table into memory.
func NewCSVRepository(dir string) (*CSVRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	r := &CSVRepository{dir: dir, mem: NewMemoryRepository()}
	if err := r.loadAll(); err != nil {
		return nil, err
	}
	return r, nil
}

/* ------------------------------ patients ------------------------------ */

func (r *CSVRepository) GetPatient(ctx context.Context, id string) (*Patient, error) {
	return r.mem.GetPatient(ctx, id)
}

func (r *CSVRepository) FindPatient(ctx context.Context, name, dob string) (*Patient, error) {
	return r.mem.FindPatient(ctx, name, dob)
}

func (r *CSVRepository) CreatePatient(ctx context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mem.CreatePatient(ctx, p); err != nil {
		return err
	}
	return r.flushPatients()
}

func (r *CSVRepository) UpdatePatient(ctx context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mem.UpdatePatient(ctx, p); err != nil {
		return err
	}
	return r.flushPatients()
}

/* ------------------------------- slots -------------------------------- */

func (r *CSVRepository) ListDoctors(ctx context.Context) ([]string, error) {
	return r.mem.ListDoctors(ctx)
}

func (r *CSVRepository) GetSlot(ctx context.Context, id string) (*AvailabilitySlot, error) {
	return r.mem.GetSlot(ctx, id)
}

func (r *CSVRepository) ListSlots(ctx context.Context, doctor string, dr DateRange) ([]AvailabilitySlot, error) {
	return r.mem.ListSlots(ctx, doctor, dr)
}

func (r *CSVRepository) CreateSlots(ctx context.Context, slots []AvailabilitySlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mem.CreateSlots(ctx, slots); err != nil {
		return err
	}
	return r.flushSlots()
}

func (r *CSVRepository) UpdateSlot(ctx context.Context, s *AvailabilitySlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mem.UpdateSlot(ctx, s); err != nil {
		return err
	}
	return r.flushSlots()
}

/* ---------------------------- appointments ---------------------------- */

func (r *CSVRepository) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	return r.mem.GetAppointment(ctx, id)
}

func (r *CSVRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mem.CreateAppointment(ctx, a); err != nil {
		return err
	}
	return r.flushAppointments()
}

func (r *CSVRepository) UpdateAppointment(ctx context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mem.UpdateAppointment(ctx, a); err != nil {
		return err
	}
	return r.flushAppointments()
}

func (r *CSVRepository) ListAppointmentsBySlot(ctx context.Context, slotID string) ([]Appointment, error) {
	return r.mem.ListAppointmentsBySlot(ctx, slotID)
}

func (r *CSVRepository) ListAppointments(ctx context.Context, dr DateRange) ([]Appointment, error) {
	return r.mem.ListAppointments(ctx, dr)
}

/* ------------------------------- tickets ------------------------------ */

func (r *CSVRepository) GetTicket(ctx context.Context, appointmentID string) (*ReminderTicket, error) {
	return r.mem.GetTicket(ctx, appointmentID)
}

func (r *CSVRepository) CreateTicket(ctx context.Context, t *ReminderTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mem.CreateTicket(ctx, t); err != nil {
		return err
	}
	return r.flushTickets()
}

func (r *CSVRepository) UpdateTicket(ctx context.Context, t *ReminderTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mem.UpdateTicket(ctx, t); err != nil {
		return err
	}
	return r.flushTickets()
}

func (r *CSVRepository) ListOpenTickets(ctx context.Context) ([]ReminderTicket, error) {
	return r.mem.ListOpenTickets(ctx)
}

func (r *CSVRepository) ListFailedTickets(ctx context.Context) ([]ReminderTicket, error) {
	return r.mem.ListFailedTickets(ctx)
}

/* ------------------------------ load/save ----------------------------- */

func (r *CSVRepository) loadAll() error {
	if err := r.loadFile(patientsFile, r.loadPatientRow); err != nil {
		return err
	}
	if err := r.loadFile(availabilityFile, r.loadSlotRow); err != nil {
		return err
	}
	if err := r.loadFile(appointmentsFile, r.loadAppointmentRow); err != nil {
		return err
	}
	return r.loadFile(remindersFile, r.loadTicketRow)
}

func (r *CSVRepository) loadFile(name string, loadRow func([]string) error) error {
	f, err := os.Open(filepath.Join(r.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		if err := loadRow(row); err != nil {
			return fmt.Errorf("%s row %d: %w", name, i, err)
		}
	}
	log.Debug().Str("file", name).Int("rows", len(rows)-1).Msg("loaded table")
	return nil
}

func (r *CSVRepository) loadPatientRow(row []string) error {
	if len(row) < 10 {
		return fmt.Errorf("expected 10 columns, got %d", len(row))
	}
	p := Patient{
		ID: row[0], Name: row[1], DOB: row[2], Email: row[3], Phone: row[4],
		DoctorPreference: row[5], Type: PatientType(row[6]),
		InsuranceCarrier: row[7], MemberID: row[8], GroupNumber: row[9],
	}
	r.mem.patients[p.ID] = p
	return nil
}

func (r *CSVRepository) loadSlotRow(row []string) error {
	if len(row) < 5 {
		return fmt.Errorf("expected 5 columns, got %d", len(row))
	}
	available, err := strconv.ParseBool(row[4])
	if err != nil {
		return fmt.Errorf("parse available: %w", err)
	}
	s := AvailabilitySlot{ID: row[0], Doctor: row[1], Date: row[2], Start: row[3], Available: available}
	r.mem.slots[s.ID] = s
	return nil
}

func (r *CSVRepository) loadAppointmentRow(row []string) error {
	if len(row) < 15 {
		return fmt.Errorf("expected 15 columns, got %d", len(row))
	}
	duration, err := strconv.Atoi(row[7])
	if err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	verified, _ := strconv.ParseBool(row[10])
	formSent, _ := strconv.ParseBool(row[11])
	reminders, _ := strconv.Atoi(row[12])
	createdAt, _ := time.Parse(time.RFC3339, row[14])

	a := Appointment{
		ID: row[0], PatientID: row[1], PatientName: row[2], Doctor: row[3],
		Date: row[4], Start: row[5], End: row[6], DurationMinutes: duration,
		SlotID: row[8], Status: AppointmentStatus(row[9]),
		InsuranceVerified: verified, FormSent: formSent, RemindersSent: reminders,
		CancelReason: row[13], CreatedAt: createdAt,
	}
	r.mem.appointments[a.ID] = a
	return nil
}

func (r *CSVRepository) loadTicketRow(row []string) error {
	if len(row) < 9 {
		return fmt.Errorf("expected 9 columns, got %d", len(row))
	}
	level, _ := strconv.Atoi(row[1])
	cursor, _ := strconv.Atoi(row[2])
	lastSent, _ := time.Parse(time.RFC3339, row[3])
	acked, _ := strconv.ParseBool(row[4])
	attempts, _ := strconv.Atoi(row[5])
	failed, _ := strconv.ParseBool(row[6])
	closed, _ := strconv.ParseBool(row[7])
	createdAt, _ := time.Parse(time.RFC3339, row[8])

	t := ReminderTicket{
		AppointmentID: row[0], Level: level, Cursor: cursor, LastSentAt: lastSent,
		Acknowledged: acked, Attempts: attempts, Failed: failed, Closed: closed,
		CreatedAt: createdAt,
	}
	r.mem.tickets[t.AppointmentID] = t
	return nil
}

func (r *CSVRepository) flushPatients() error {
	rows := [][]string{{
		"PatientID", "Name", "DOB", "Email", "Phone",
		"DoctorPreference", "PatientType", "InsuranceCarrier", "MemberID", "GroupNumber",
	}}
	patients := make([]Patient, 0, len(r.mem.patients))
	for _, p := range r.mem.patients {
		patients = append(patients, p)
	}
	sortByID(patients, func(p Patient) string { return p.ID })
	for _, p := range patients {
		rows = append(rows, []string{
			p.ID, p.Name, p.DOB, p.Email, p.Phone,
			p.DoctorPreference, string(p.Type), p.InsuranceCarrier, p.MemberID, p.GroupNumber,
		})
	}
	return r.writeFile(patientsFile, rows)
}

func (r *CSVRepository) flushSlots() error {
	rows := [][]string{{"SlotID", "Doctor", "Date", "Start", "Available"}}
	slots := make([]AvailabilitySlot, 0, len(r.mem.slots))
	for _, s := range r.mem.slots {
		slots = append(slots, s)
	}
	sortSlots(slots)
	for _, s := range slots {
		rows = append(rows, []string{s.ID, s.Doctor, s.Date, s.Start, strconv.FormatBool(s.Available)})
	}
	return r.writeFile(availabilityFile, rows)
}

func (r *CSVRepository) flushAppointments() error {
	rows := [][]string{{
		"AppointmentID", "PatientID", "PatientName", "Doctor", "Date",
		"StartTime", "EndTime", "Duration", "SlotID", "Status",
		"InsuranceVerified", "FormSent", "RemindersSent", "CancelReason", "CreatedAt",
	}}
	appts := make([]Appointment, 0, len(r.mem.appointments))
	for _, a := range r.mem.appointments {
		appts = append(appts, a)
	}
	sortAppointments(appts)
	for _, a := range appts {
		rows = append(rows, []string{
			a.ID, a.PatientID, a.PatientName, a.Doctor, a.Date,
			a.Start, a.End, strconv.Itoa(a.DurationMinutes), a.SlotID, string(a.Status),
			strconv.FormatBool(a.InsuranceVerified), strconv.FormatBool(a.FormSent),
			strconv.Itoa(a.RemindersSent), a.CancelReason, a.CreatedAt.Format(time.RFC3339),
		})
	}
	return r.writeFile(appointmentsFile, rows)
}

func (r *CSVRepository) flushTickets() error {
	rows := [][]string{{
		"AppointmentID", "Level", "Cursor", "LastSentAt", "Acknowledged",
		"Attempts", "Failed", "Closed", "CreatedAt",
	}}
	tickets := make([]ReminderTicket, 0, len(r.mem.tickets))
	for _, t := range r.mem.tickets {
		tickets = append(tickets, t)
	}
	sortByID(tickets, func(t ReminderTicket) string { return t.AppointmentID })
	for _, t := range tickets {
		lastSent := ""
		if !t.LastSentAt.IsZero() {
			lastSent = t.LastSentAt.Format(time.RFC3339)
		}
		rows = append(rows, []string{
			t.AppointmentID, strconv.Itoa(t.Level), strconv.Itoa(t.Cursor), lastSent,
			strconv.FormatBool(t.Acknowledged), strconv.Itoa(t.Attempts),
			strconv.FormatBool(t.Failed), strconv.FormatBool(t.Closed),
			t.CreatedAt.Format(time.RFC3339),
		})
	}
	return r.writeFile(remindersFile, rows)
}

// writeFile rewrites via a temp file + rename so a crash mid-write never
// truncates a table.
func (r *CSVRepository) writeFile(name string, rows [][]string) error {
	path := filepath.Join(r.dir, name)
	tmp, err := os.CreateTemp(r.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func sortByID[T any](items []T, id func(T) string) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}
