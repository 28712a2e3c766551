package clinic

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository. It backs tests, the offline
// snapshot and the "memory" store backend.
type MemoryRepository struct {
	mu           sync.RWMutex
	specialties  map[uuid.UUID]*Specialty
	insurances   map[uuid.UUID]*Insurance
	doctors      map[uuid.UUID]*Doctor
	patients     map[uuid.UUID]*Patient
	appointments map[uuid.UUID]*Appointment
	slotBookings map[string]uuid.UUID // doctor|date|time -> scheduled appointment
	offline      bool
	backend      string
	now          func() time.Time
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		specialties:  make(map[uuid.UUID]*Specialty),
		insurances:   make(map[uuid.UUID]*Insurance),
		doctors:      make(map[uuid.UUID]*Doctor),
		patients:     make(map[uuid.UUID]*Patient),
		appointments: make(map[uuid.UUID]*Appointment),
		slotBookings: make(map[string]uuid.UUID),
		now:          time.Now,
	}
}

// SetOffline makes every call fail with ErrPersistenceUnavailable, simulating
// an unreachable store.
func (m *MemoryRepository) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// NewUnavailableRepository returns a repository for a backend that could not
// be reached at startup. Every call fails with ErrPersistenceUnavailable.
func NewUnavailableRepository(backend string) *MemoryRepository {
	m := NewMemoryRepository()
	m.backend = backend
	m.offline = true
	return m
}

func (m *MemoryRepository) check(op string) error {
	if m.offline {
		return fmt.Errorf("%s: %w", op, ErrPersistenceUnavailable)
	}
	return nil
}

func slotKey(doctorID uuid.UUID, date, clock string) string {
	return doctorID.String() + "|" + date + "|" + clock
}

func (m *MemoryRepository) Backend() string {
	if m.backend != "" {
		return m.backend
	}
	return "memory"
}

func (m *MemoryRepository) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check("ping")
}

// =========== Specialties ===========

func (m *MemoryRepository) ListSpecialties(_ context.Context) ([]*Specialty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("list specialties"); err != nil {
		return nil, err
	}
	out := make([]*Specialty, 0, len(m.specialties))
	for _, s := range m.specialties {
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryRepository) GetSpecialty(_ context.Context, id uuid.UUID) (*Specialty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("get specialty"); err != nil {
		return nil, err
	}
	s, ok := m.specialties[id]
	if !ok {
		return nil, fmt.Errorf("specialty %s: %w", id, ErrNotFound)
	}
	c := *s
	return &c, nil
}

func (m *MemoryRepository) CreateSpecialty(_ context.Context, s *Specialty) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("create specialty"); err != nil {
		return err
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}
	c := *s
	m.specialties[s.ID] = &c
	return nil
}

func (m *MemoryRepository) UpdateSpecialty(_ context.Context, s *Specialty) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("update specialty"); err != nil {
		return err
	}
	cur, ok := m.specialties[s.ID]
	if !ok {
		return fmt.Errorf("specialty %s: %w", s.ID, ErrNotFound)
	}
	s.CreatedAt = cur.CreatedAt
	c := *s
	m.specialties[s.ID] = &c
	return nil
}

func (m *MemoryRepository) DeleteSpecialty(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("delete specialty"); err != nil {
		return err
	}
	if _, ok := m.specialties[id]; !ok {
		return fmt.Errorf("specialty %s: %w", id, ErrNotFound)
	}
	for _, d := range m.doctors {
		if d.SpecialtyID == id {
			return fmt.Errorf("specialty %s has doctors: %w", id, ErrInUse)
		}
	}
	delete(m.specialties, id)
	return nil
}

// =========== Insurances ===========

func (m *MemoryRepository) ListInsurances(_ context.Context) ([]*Insurance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("list insurances"); err != nil {
		return nil, err
	}
	out := make([]*Insurance, 0, len(m.insurances))
	for _, i := range m.insurances {
		c := *i
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryRepository) GetInsurance(_ context.Context, id uuid.UUID) (*Insurance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("get insurance"); err != nil {
		return nil, err
	}
	i, ok := m.insurances[id]
	if !ok {
		return nil, fmt.Errorf("insurance %s: %w", id, ErrNotFound)
	}
	c := *i
	return &c, nil
}

func (m *MemoryRepository) CreateInsurance(_ context.Context, i *Insurance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("create insurance"); err != nil {
		return err
	}
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = m.now()
	}
	c := *i
	m.insurances[i.ID] = &c
	return nil
}

func (m *MemoryRepository) UpdateInsurance(_ context.Context, i *Insurance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("update insurance"); err != nil {
		return err
	}
	cur, ok := m.insurances[i.ID]
	if !ok {
		return fmt.Errorf("insurance %s: %w", i.ID, ErrNotFound)
	}
	i.CreatedAt = cur.CreatedAt
	c := *i
	m.insurances[i.ID] = &c
	return nil
}

// DeleteInsurance drops the plan from every doctor and clears it from
// appointments, which become self-pay.
func (m *MemoryRepository) DeleteInsurance(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("delete insurance"); err != nil {
		return err
	}
	if _, ok := m.insurances[id]; !ok {
		return fmt.Errorf("insurance %s: %w", id, ErrNotFound)
	}
	delete(m.insurances, id)
	for _, d := range m.doctors {
		d.InsuranceIDs = slices.DeleteFunc(d.InsuranceIDs, func(x uuid.UUID) bool { return x == id })
	}
	for _, a := range m.appointments {
		if a.InsuranceID != nil && *a.InsuranceID == id {
			a.InsuranceID = nil
		}
	}
	return nil
}

// =========== Doctors ===========

func cloneDoctor(d *Doctor) *Doctor {
	c := *d
	c.InsuranceIDs = slices.Clone(d.InsuranceIDs)
	c.WorkingHours = slices.Clone(d.WorkingHours)
	return &c
}

func (m *MemoryRepository) ListDoctors(_ context.Context) ([]*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("list doctors"); err != nil {
		return nil, err
	}
	out := make([]*Doctor, 0, len(m.doctors))
	for _, d := range m.doctors {
		out = append(out, cloneDoctor(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (m *MemoryRepository) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("get doctor"); err != nil {
		return nil, err
	}
	d, ok := m.doctors[id]
	if !ok {
		return nil, fmt.Errorf("doctor %s: %w", id, ErrNotFound)
	}
	return cloneDoctor(d), nil
}

func (m *MemoryRepository) checkDoctorRefs(d *Doctor) error {
	if _, ok := m.specialties[d.SpecialtyID]; !ok {
		return fmt.Errorf("specialty %s: %w", d.SpecialtyID, ErrNotFound)
	}
	for _, id := range d.InsuranceIDs {
		if _, ok := m.insurances[id]; !ok {
			return fmt.Errorf("insurance %s: %w", id, ErrNotFound)
		}
	}
	return nil
}

func (m *MemoryRepository) CreateDoctor(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("create doctor"); err != nil {
		return err
	}
	if err := m.checkDoctorRefs(d); err != nil {
		return err
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = m.now()
	}
	m.doctors[d.ID] = cloneDoctor(d)
	return nil
}

func (m *MemoryRepository) UpdateDoctor(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("update doctor"); err != nil {
		return err
	}
	cur, ok := m.doctors[d.ID]
	if !ok {
		return fmt.Errorf("doctor %s: %w", d.ID, ErrNotFound)
	}
	if err := m.checkDoctorRefs(d); err != nil {
		return err
	}
	d.CreatedAt = cur.CreatedAt
	m.doctors[d.ID] = cloneDoctor(d)
	return nil
}

func (m *MemoryRepository) DeleteDoctor(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("delete doctor"); err != nil {
		return err
	}
	if _, ok := m.doctors[id]; !ok {
		return fmt.Errorf("doctor %s: %w", id, ErrNotFound)
	}
	for _, a := range m.appointments {
		if a.DoctorID == id {
			return fmt.Errorf("doctor %s has appointments: %w", id, ErrInUse)
		}
	}
	delete(m.doctors, id)
	return nil
}

// =========== Patients & Appointments ===========

func (m *MemoryRepository) CreatePatient(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("create patient"); err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = m.now()
	c := *p
	m.patients[p.ID] = &c
	return nil
}

// Patients returns how many patient records exist.
func (m *MemoryRepository) Patients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.patients)
}

func (m *MemoryRepository) CreateAppointment(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("create appointment"); err != nil {
		return err
	}
	if _, ok := m.doctors[a.DoctorID]; !ok {
		return fmt.Errorf("doctor %s: %w", a.DoctorID, ErrNotFound)
	}
	if _, ok := m.patients[a.PatientID]; !ok {
		return fmt.Errorf("patient %s: %w", a.PatientID, ErrNotFound)
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	key := slotKey(a.DoctorID, a.Date, a.Time)
	if a.Status == StatusScheduled {
		if _, taken := m.slotBookings[key]; taken {
			return fmt.Errorf("%s %s: %w", a.Date, a.Time, ErrSlotUnavailable)
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = m.now()
	c := *a
	m.appointments[a.ID] = &c
	if a.Status == StatusScheduled {
		m.slotBookings[key] = a.ID
	}
	return nil
}

func (m *MemoryRepository) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("get appointment"); err != nil {
		return nil, err
	}
	a, ok := m.appointments[id]
	if !ok {
		return nil, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	c := *a
	return &c, nil
}

func (m *MemoryRepository) ListAppointments(_ context.Context, f AppointmentFilter) ([]*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("list appointments"); err != nil {
		return nil, err
	}
	var out []*Appointment
	for _, a := range m.appointments {
		if f.Matches(a) {
			c := *a
			out = append(out, &c)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (m *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, status AppointmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("update appointment"); err != nil {
		return err
	}
	a, ok := m.appointments[id]
	if !ok {
		return fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	if !a.Status.CanTransition(status) {
		return fmt.Errorf("%s -> %s: %w", a.Status, status, ErrInvalidTransition)
	}
	a.Status = status
	delete(m.slotBookings, slotKey(a.DoctorID, a.Date, a.Time))
	return nil
}

func sortAppointments(out []*Appointment) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}
