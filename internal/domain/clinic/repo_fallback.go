package clinic

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FallbackRepository serves reads from an offline snapshot when the primary
// store is unavailable. Writes always go to the primary, so a booking or an
// admin change made while offline fails instead of vanishing.
type FallbackRepository struct {
	Repository
	offline  Repository
	logger   zerolog.Logger
	degraded atomic.Bool
}

// NewFallbackRepository wraps primary with reads from offline.
func NewFallbackRepository(primary, offline Repository, logger zerolog.Logger) *FallbackRepository {
	return &FallbackRepository{Repository: primary, offline: offline, logger: logger}
}

// Degraded reports whether the last read was served from the snapshot.
func (f *FallbackRepository) Degraded() bool { return f.degraded.Load() }

func read[T any](f *FallbackRepository, op string, primary, offline func() (T, error)) (T, error) {
	v, err := primary()
	if err == nil {
		if f.degraded.Swap(false) {
			f.logger.Info().Str("op", op).Msg("store reachable again, leaving offline mode")
		}
		return v, nil
	}
	if !errors.Is(err, ErrPersistenceUnavailable) {
		return v, err
	}
	if !f.degraded.Swap(true) {
		f.logger.Warn().Err(err).Str("op", op).Msg("store unavailable, serving offline snapshot")
	}
	return offline()
}

func (f *FallbackRepository) ListSpecialties(ctx context.Context) ([]*Specialty, error) {
	return read(f, "list specialties",
		func() ([]*Specialty, error) { return f.Repository.ListSpecialties(ctx) },
		func() ([]*Specialty, error) { return f.offline.ListSpecialties(ctx) })
}

func (f *FallbackRepository) GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	return read(f, "get specialty",
		func() (*Specialty, error) { return f.Repository.GetSpecialty(ctx, id) },
		func() (*Specialty, error) { return f.offline.GetSpecialty(ctx, id) })
}

func (f *FallbackRepository) ListInsurances(ctx context.Context) ([]*Insurance, error) {
	return read(f, "list insurances",
		func() ([]*Insurance, error) { return f.Repository.ListInsurances(ctx) },
		func() ([]*Insurance, error) { return f.offline.ListInsurances(ctx) })
}

func (f *FallbackRepository) GetInsurance(ctx context.Context, id uuid.UUID) (*Insurance, error) {
	return read(f, "get insurance",
		func() (*Insurance, error) { return f.Repository.GetInsurance(ctx, id) },
		func() (*Insurance, error) { return f.offline.GetInsurance(ctx, id) })
}

func (f *FallbackRepository) ListDoctors(ctx context.Context) ([]*Doctor, error) {
	return read(f, "list doctors",
		func() ([]*Doctor, error) { return f.Repository.ListDoctors(ctx) },
		func() ([]*Doctor, error) { return f.offline.ListDoctors(ctx) })
}

func (f *FallbackRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return read(f, "get doctor",
		func() (*Doctor, error) { return f.Repository.GetDoctor(ctx, id) },
		func() (*Doctor, error) { return f.offline.GetDoctor(ctx, id) })
}

func (f *FallbackRepository) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]*Appointment, error) {
	return read(f, "list appointments",
		func() ([]*Appointment, error) { return f.Repository.ListAppointments(ctx, filter) },
		func() ([]*Appointment, error) { return f.offline.ListAppointments(ctx, filter) })
}

func (f *FallbackRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return read(f, "get appointment",
		func() (*Appointment, error) { return f.Repository.GetAppointment(ctx, id) },
		func() (*Appointment, error) { return f.offline.GetAppointment(ctx, id) })
}

// Backend reports the primary backend.
func (f *FallbackRepository) Backend() string { return f.Repository.Backend() }
