package clinic

import (
	"context"

	"github.com/google/uuid"
)

// SpecialtyRepository persists specialties.
type SpecialtyRepository interface {
	ListSpecialties(ctx context.Context) ([]*Specialty, error)
	GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error)
	CreateSpecialty(ctx context.Context, s *Specialty) error
	UpdateSpecialty(ctx context.Context, s *Specialty) error
	DeleteSpecialty(ctx context.Context, id uuid.UUID) error
}

// InsuranceRepository persists insurance plans.
type InsuranceRepository interface {
	ListInsurances(ctx context.Context) ([]*Insurance, error)
	GetInsurance(ctx context.Context, id uuid.UUID) (*Insurance, error)
	CreateInsurance(ctx context.Context, i *Insurance) error
	UpdateInsurance(ctx context.Context, i *Insurance) error
	DeleteInsurance(ctx context.Context, id uuid.UUID) error
}

// DoctorRepository persists doctors together with their working hours and
// insurance associations. UpdateDoctor replaces both collections.
type DoctorRepository interface {
	ListDoctors(ctx context.Context) ([]*Doctor, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	CreateDoctor(ctx context.Context, d *Doctor) error
	UpdateDoctor(ctx context.Context, d *Doctor) error
	DeleteDoctor(ctx context.Context, id uuid.UUID) error
}

// AppointmentRepository persists patients and appointments.
//
// CreateAppointment must return ErrSlotUnavailable when a scheduled
// appointment already exists for the same doctor, date and time, and a
// successful create must be visible to the next ListAppointments call.
type AppointmentRepository interface {
	CreatePatient(ctx context.Context, p *Patient) error
	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error
}

// Repository is the persistence collaborator the scheduling core depends on.
// Implementations classify their own errors into ErrNotFound,
// ErrSlotUnavailable, ErrPersistenceUnavailable and ErrInUse.
type Repository interface {
	SpecialtyRepository
	InsuranceRepository
	DoctorRepository
	AppointmentRepository
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
	// Backend names the implementation for status reporting.
	Backend() string
}
