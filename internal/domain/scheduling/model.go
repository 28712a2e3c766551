package scheduling

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/chat-incom/agendamento/internal/domain/clinic"
	"github.com/chat-incom/agendamento/internal/platform/availability"
)

// SelfPayLabel names an appointment without insurance in booking summaries.
const SelfPayLabel = "Particular"

var (
	// ErrCommitInProgress is returned when a flow is confirmed while a previous
	// confirmation of the same flow is still being written.
	ErrCommitInProgress = errors.New("booking confirmation already in progress")
	// ErrFlowCommitted is returned for any change to a flow that already booked.
	ErrFlowCommitted = errors.New("booking already confirmed")
	// ErrFlowNotFound is returned for an unknown or expired flow id.
	ErrFlowNotFound = fmt.Errorf("booking session: %w", clinic.ErrNotFound)
)

// Scope selects the doctors a booking looks at: one doctor, or every doctor
// of a specialty. Exactly one field is set.
type Scope struct {
	DoctorID    uuid.UUID `json:"doctor_id,omitempty"`
	SpecialtyID uuid.UUID `json:"specialty_id,omitempty"`
}

// ForDoctor scopes a booking to one doctor.
func ForDoctor(id uuid.UUID) Scope { return Scope{DoctorID: id} }

// ForSpecialty scopes a booking to every doctor of a specialty.
func ForSpecialty(id uuid.UUID) Scope { return Scope{SpecialtyID: id} }

// Validate checks that exactly one of doctor and specialty is given.
func (s Scope) Validate() error {
	switch {
	case s.DoctorID == uuid.Nil && s.SpecialtyID == uuid.Nil:
		return clinic.NewValidationError("doctor_id", "doctor_id or specialty_id is required")
	case s.DoctorID != uuid.Nil && s.SpecialtyID != uuid.Nil:
		return clinic.NewValidationError("doctor_id", "give either doctor_id or specialty_id, not both")
	}
	return nil
}

// BySpecialty reports whether the scope aggregates a specialty.
func (s Scope) BySpecialty() bool { return s.SpecialtyID != uuid.Nil }

func (s Scope) String() string {
	if s.BySpecialty() {
		return "specialty " + s.SpecialtyID.String()
	}
	return "doctor " + s.DoctorID.String()
}

// BookingRequest is everything needed to commit an appointment.
type BookingRequest struct {
	Scope
	Date        string             `json:"date"`
	Time        string             `json:"time"`
	Patient     clinic.PatientInfo `json:"patient"`
	InsuranceID *uuid.UUID         `json:"insurance_id,omitempty"`
}

// Summary is the confirmation shown after a booking commits.
type Summary struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorName    string    `json:"doctor_name"`
	SpecialtyName string    `json:"specialty_name,omitempty"`
	InsuranceName string    `json:"insurance_name"`
	PatientName   string    `json:"patient_name"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
}

// Booking is the result of a successful commit.
type Booking struct {
	Appointment *clinic.Appointment `json:"appointment"`
	Summary     Summary             `json:"summary"`
}

// SlotConflict is returned in place of ErrSlotUnavailable when the refreshed
// slots for the requested date are known, so the caller can offer them.
type SlotConflict struct {
	Date  string
	Slots []availability.TimeSlot
	Err   error
}

func (e *SlotConflict) Error() string { return e.Err.Error() }
func (e *SlotConflict) Unwrap() error { return e.Err }
