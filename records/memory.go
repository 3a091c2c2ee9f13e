package records

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MemoryRepository is a deterministic in-memory Repository. It backs the
// demo mode and every test that needs a record store.
type MemoryRepository struct {
	mu           sync.Mutex
	patients     map[string]Patient
	slots        map[string]AvailabilitySlot
	appointments map[string]Appointment
	tickets      map[string]ReminderTicket
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[string]Patient),
		slots:        make(map[string]AvailabilitySlot),
		appointments: make(map[string]Appointment),
		tickets:      make(map[string]ReminderTicket),
	}
}

func (m *MemoryRepository) GetPatient(_ context.Context, id string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, fmt.Errorf("%w: id=%s", ErrPatientNotFound, id)
	}
	return &p, nil
}

func (m *MemoryRepository) FindPatient(_ context.Context, name, dob string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if strings.EqualFold(strings.TrimSpace(p.Name), strings.TrimSpace(name)) && p.DOB == dob {
			found := p
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: name=%s dob=%s", ErrPatientNotFound, name, dob)
}

func (m *MemoryRepository) CreatePatient(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = nextSequentialID(patientIDs(m.patients))
	}
	if _, exists := m.patients[p.ID]; exists {
		return fmt.Errorf("%w: patient id=%s", ErrDuplicateID, p.ID)
	}
	m.patients[p.ID] = *p
	return nil
}

func (m *MemoryRepository) UpdatePatient(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[p.ID]; !ok {
		return fmt.Errorf("%w: id=%s", ErrPatientNotFound, p.ID)
	}
	m.patients[p.ID] = *p
	return nil
}

func (m *MemoryRepository) ListDoctors(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	for _, s := range m.slots {
		seen[s.Doctor] = struct{}{}
	}
	doctors := make([]string, 0, len(seen))
	for d := range seen {
		doctors = append(doctors, d)
	}
	sort.Strings(doctors)
	return doctors, nil
}

func (m *MemoryRepository) GetSlot(_ context.Context, id string) (*AvailabilitySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, fmt.Errorf("%w: id=%s", ErrSlotNotFound, id)
	}
	return &s, nil
}

func (m *MemoryRepository) ListSlots(_ context.Context, doctor string, r DateRange) ([]AvailabilitySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AvailabilitySlot
	for _, s := range m.slots {
		if doctor != "" && !strings.EqualFold(s.Doctor, doctor) {
			continue
		}
		if !r.Contains(s.Date) {
			continue
		}
		out = append(out, s)
	}
	sortSlots(out)
	return out, nil
}

func (m *MemoryRepository) CreateSlots(_ context.Context, slots []AvailabilitySlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range slots {
		if s.ID == "" {
			return fmt.Errorf("%w: slot id is empty", ErrDuplicateID)
		}
		if _, exists := m.slots[s.ID]; exists {
			return fmt.Errorf("%w: slot id=%s", ErrDuplicateID, s.ID)
		}
	}
	for _, s := range slots {
		m.slots[s.ID] = s
	}
	return nil
}

func (m *MemoryRepository) UpdateSlot(_ context.Context, s *AvailabilitySlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[s.ID]; !ok {
		return fmt.Errorf("%w: id=%s", ErrSlotNotFound, s.ID)
	}
	m.slots[s.ID] = *s
	return nil
}

func (m *MemoryRepository) GetAppointment(_ context.Context, id string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, fmt.Errorf("%w: id=%s", ErrAppointmentNotFound, id)
	}
	return &a, nil
}

func (m *MemoryRepository) CreateAppointment(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = nextSequentialID(appointmentIDs(m.appointments))
	}
	if _, exists := m.appointments[a.ID]; exists {
		return fmt.Errorf("%w: appointment id=%s", ErrDuplicateID, a.ID)
	}
	m.appointments[a.ID] = *a
	return nil
}

func (m *MemoryRepository) UpdateAppointment(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appointments[a.ID]; !ok {
		return fmt.Errorf("%w: id=%s", ErrAppointmentNotFound, a.ID)
	}
	m.appointments[a.ID] = *a
	return nil
}

func (m *MemoryRepository) ListAppointmentsBySlot(_ context.Context, slotID string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.SlotID == slotID {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (m *MemoryRepository) ListAppointments(_ context.Context, r DateRange) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if r.Contains(a.Date) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (m *MemoryRepository) GetTicket(_ context.Context, appointmentID string) (*ReminderTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[appointmentID]
	if !ok {
		return nil, fmt.Errorf("%w: appointment_id=%s", ErrTicketNotFound, appointmentID)
	}
	return &t, nil
}

func (m *MemoryRepository) CreateTicket(_ context.Context, t *ReminderTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.AppointmentID == "" {
		return fmt.Errorf("%w: ticket appointment id is empty", ErrDuplicateID)
	}
	if _, exists := m.tickets[t.AppointmentID]; exists {
		return fmt.Errorf("%w: ticket appointment_id=%s", ErrDuplicateID, t.AppointmentID)
	}
	m.tickets[t.AppointmentID] = *t
	return nil
}

func (m *MemoryRepository) UpdateTicket(_ context.Context, t *ReminderTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[t.AppointmentID]; !ok {
		return fmt.Errorf("%w: appointment_id=%s", ErrTicketNotFound, t.AppointmentID)
	}
	m.tickets[t.AppointmentID] = *t
	return nil
}

func (m *MemoryRepository) ListOpenTickets(_ context.Context) ([]ReminderTicket, error) {
	return m.listTickets(func(t ReminderTicket) bool { return !t.Closed && !t.Failed })
}

func (m *MemoryRepository) ListFailedTickets(_ context.Context) ([]ReminderTicket, error) {
	return m.listTickets(func(t ReminderTicket) bool { return t.Failed })
}

func (m *MemoryRepository) listTickets(keep func(ReminderTicket) bool) ([]ReminderTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ReminderTicket
	for _, t := range m.tickets {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentID < out[j].AppointmentID })
	return out, nil
}

/* ------------------------------ helpers ------------------------------ */

func sortSlots(slots []AvailabilitySlot) {
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

func sortAppointments(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		a, b := appts[i], appts[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.ID < b.ID
	})
}

func patientIDs(m map[string]Patient) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}

func appointmentIDs(m map[string]Appointment) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}

// nextSequentialID continues the highest numeric ID in use, matching the
// legacy CSV convention of plain incrementing identifiers.
func nextSequentialID(existing []string) string {
	max := 0
	for _, id := range existing {
		n, err := strconv.Atoi(id)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1)
}
