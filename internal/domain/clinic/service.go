package clinic

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chat-incom/agendamento/internal/platform/availability"
)

// SpecialtyInput is the admin payload for creating or editing a specialty.
type SpecialtyInput struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description *string `json:"description,omitempty"`
}

// InsuranceInput is the admin payload for creating or editing an insurance plan.
type InsuranceInput struct {
	Name string        `json:"name" validate:"required,max=255"`
	Type InsuranceType `json:"type,omitempty" validate:"omitempty,oneof=public private"`
}

// WorkingHoursInput is one weekday of the admin doctor form. A missing
// interval takes the configured default; an explicit one is kept as given.
type WorkingHoursInput struct {
	Day             availability.Weekday `json:"day" validate:"required"`
	StartTime       string               `json:"start_time" validate:"required"`
	EndTime         string               `json:"end_time" validate:"required"`
	IntervalMinutes *int                 `json:"interval_minutes,omitempty"`
}

// DoctorInput is the admin payload for creating or editing a doctor. The
// insurance and working-hours collections replace the stored ones.
type DoctorInput struct {
	Name          string              `json:"name" validate:"required,max=255"`
	LicenseNumber string              `json:"license_number" validate:"required,max=64"`
	SpecialtyID   uuid.UUID           `json:"specialty_id"`
	InsuranceIDs  []uuid.UUID         `json:"insurance_ids"`
	WorkingHours  []WorkingHoursInput `json:"working_hours" validate:"dive"`
}

// DoctorQuery filters the doctor directory.
type DoctorQuery struct {
	// Q matches name or license number, case-insensitively.
	Q           string
	SpecialtyID *uuid.UUID
}

// Service implements clinic administration on top of a Repository.
type Service struct {
	repo            Repository
	defaultInterval int
	logger          zerolog.Logger
}

// NewService creates a Service. defaultInterval applies to working-hours
// entries submitted without an interval.
func NewService(repo Repository, defaultInterval int, logger zerolog.Logger) *Service {
	if defaultInterval <= 0 {
		defaultInterval = 15
	}
	return &Service{repo: repo, defaultInterval: defaultInterval, logger: logger}
}

// Repository exposes the underlying store to sibling services.
func (s *Service) Repository() Repository { return s.repo }

// -- Specialty --

func (s *Service) ListSpecialties(ctx context.Context) ([]*Specialty, error) {
	return s.repo.ListSpecialties(ctx)
}

func (s *Service) GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	return s.repo.GetSpecialty(ctx, id)
}

func (s *Service) CreateSpecialty(ctx context.Context, in SpecialtyInput) (*Specialty, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := Validate(in); err != nil {
		return nil, err
	}
	sp := &Specialty{Name: in.Name, Description: in.Description}
	if err := s.repo.CreateSpecialty(ctx, sp); err != nil {
		return nil, err
	}
	s.logger.Info().Str("specialty_id", sp.ID.String()).Msg("specialty created")
	return sp, nil
}

func (s *Service) UpdateSpecialty(ctx context.Context, id uuid.UUID, in SpecialtyInput) (*Specialty, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := Validate(in); err != nil {
		return nil, err
	}
	sp := &Specialty{ID: id, Name: in.Name, Description: in.Description}
	if err := s.repo.UpdateSpecialty(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *Service) DeleteSpecialty(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteSpecialty(ctx, id)
}

// -- Insurance --

func (s *Service) ListInsurances(ctx context.Context) ([]*Insurance, error) {
	return s.repo.ListInsurances(ctx)
}

func (s *Service) GetInsurance(ctx context.Context, id uuid.UUID) (*Insurance, error) {
	return s.repo.GetInsurance(ctx, id)
}

func (s *Service) CreateInsurance(ctx context.Context, in InsuranceInput) (*Insurance, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := Validate(in); err != nil {
		return nil, err
	}
	ins := &Insurance{Name: in.Name, Type: in.Type}
	if err := s.repo.CreateInsurance(ctx, ins); err != nil {
		return nil, err
	}
	s.logger.Info().Str("insurance_id", ins.ID.String()).Msg("insurance created")
	return ins, nil
}

func (s *Service) UpdateInsurance(ctx context.Context, id uuid.UUID, in InsuranceInput) (*Insurance, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := Validate(in); err != nil {
		return nil, err
	}
	ins := &Insurance{ID: id, Name: in.Name, Type: in.Type}
	if err := s.repo.UpdateInsurance(ctx, ins); err != nil {
		return nil, err
	}
	return ins, nil
}

func (s *Service) DeleteInsurance(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteInsurance(ctx, id)
}

// -- Doctor --

// ListDoctors returns the directory, optionally narrowed by q.
func (s *Service) ListDoctors(ctx context.Context, q DoctorQuery) ([]*Doctor, error) {
	doctors, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(q.Q))
	out := doctors[:0]
	for _, d := range doctors {
		if q.SpecialtyID != nil && d.SpecialtyID != *q.SpecialtyID {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(d.Name), needle) &&
			!strings.Contains(strings.ToLower(d.LicenseNumber), needle) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetDoctor(ctx, id)
}

// AcceptedInsurances lists the plans a doctor takes, in directory order.
func (s *Service) AcceptedInsurances(ctx context.Context, doctorID uuid.UUID) ([]*Insurance, error) {
	d, err := s.repo.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.ListInsurances(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Insurance, 0, len(d.InsuranceIDs))
	for _, ins := range all {
		if d.Accepts(ins.ID) {
			out = append(out, ins)
		}
	}
	return out, nil
}

// CreateDoctor validates the input, including the working-hours template,
// before anything is written. A malformed template fails with
// availability.ErrInvalidSchedule.
func (s *Service) CreateDoctor(ctx context.Context, in DoctorInput) (*Doctor, error) {
	d, err := s.buildDoctor(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateDoctor(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info().Str("doctor_id", d.ID.String()).Int("working_days", len(d.WorkingHours)).Msg("doctor created")
	return d, nil
}

// UpdateDoctor replaces the doctor's fields, insurance set and template.
func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, in DoctorInput) (*Doctor, error) {
	d, err := s.buildDoctor(ctx, in)
	if err != nil {
		return nil, err
	}
	d.ID = id
	if err := s.repo.UpdateDoctor(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info().Str("doctor_id", d.ID.String()).Int("working_days", len(d.WorkingHours)).Msg("doctor updated")
	return d, nil
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteDoctor(ctx, id)
}

func (s *Service) buildDoctor(ctx context.Context, in DoctorInput) (*Doctor, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.LicenseNumber = strings.TrimSpace(in.LicenseNumber)

	verr := &ValidationError{}
	if err := Validate(in); err != nil {
		if !errors.As(err, &verr) {
			return nil, err
		}
	}
	if in.SpecialtyID == uuid.Nil {
		verr.Add("specialty_id", "is required")
	}
	if !verr.Empty() {
		return nil, verr
	}

	hours := make([]availability.WorkingHours, len(in.WorkingHours))
	for i, wh := range in.WorkingHours {
		interval := s.defaultInterval
		if wh.IntervalMinutes != nil {
			interval = *wh.IntervalMinutes
		}
		hours[i] = availability.WorkingHours{
			Day:             wh.Day,
			StartTime:       strings.TrimSpace(wh.StartTime),
			EndTime:         strings.TrimSpace(wh.EndTime),
			IntervalMinutes: interval,
		}
	}
	if err := availability.ValidateTemplate(hours); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetSpecialty(ctx, in.SpecialtyID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewValidationError("specialty_id", "unknown specialty")
		}
		return nil, err
	}
	insuranceIDs := slices.Clone(in.InsuranceIDs)
	slices.SortFunc(insuranceIDs, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	insuranceIDs = slices.Compact(insuranceIDs)
	for _, id := range insuranceIDs {
		if _, err := s.repo.GetInsurance(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, NewValidationError("insurance_ids", fmt.Sprintf("unknown insurance %s", id))
			}
			return nil, err
		}
	}
	if insuranceIDs == nil {
		insuranceIDs = []uuid.UUID{}
	}

	d := &Doctor{
		Name:          in.Name,
		LicenseNumber: in.LicenseNumber,
		SpecialtyID:   in.SpecialtyID,
		InsuranceIDs:  insuranceIDs,
		WorkingHours:  hours,
	}
	d.SortWorkingHours()
	return d, nil
}
