package clinic

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/chat-incom/agendamento/internal/platform/availability"
)

// Specialty maps to the specialty table.
type Specialty struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// InsuranceType optionally classifies an insurance plan.
type InsuranceType string

const (
	InsurancePublic  InsuranceType = "public"
	InsurancePrivate InsuranceType = "private"
)

// Insurance maps to the insurance table.
type Insurance struct {
	ID        uuid.UUID     `db:"id" json:"id"`
	Name      string        `db:"name" json:"name"`
	Type      InsuranceType `db:"type" json:"type,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// Doctor owns its working-hours template and its insurance associations; both
// are replaced wholesale on update.
type Doctor struct {
	ID            uuid.UUID                   `db:"id" json:"id"`
	Name          string                      `db:"name" json:"name"`
	LicenseNumber string                      `db:"license_number" json:"license_number"`
	SpecialtyID   uuid.UUID                   `db:"specialty_id" json:"specialty_id"`
	InsuranceIDs  []uuid.UUID                 `json:"insurance_ids"`
	WorkingHours  []availability.WorkingHours `json:"working_hours"`
	CreatedAt     time.Time                   `db:"created_at" json:"created_at"`
}

// Provider adapts the doctor for slot computation.
func (d *Doctor) Provider() availability.Provider {
	return availability.Provider{ID: d.ID, Name: d.Name, Hours: d.WorkingHours}
}

// Accepts reports whether the doctor takes the given insurance.
func (d *Doctor) Accepts(insuranceID uuid.UUID) bool {
	return slices.Contains(d.InsuranceIDs, insuranceID)
}

// SortWorkingHours orders the template Monday first.
func (d *Doctor) SortWorkingHours() {
	slices.SortStableFunc(d.WorkingHours, func(a, b availability.WorkingHours) int {
		return a.Day.Index() - b.Day.Index()
	})
}

// PatientInfo is the patient data collected during booking. It is copied into
// the appointment as a historical snapshot.
type PatientInfo struct {
	Name      string `json:"name" validate:"required,max=255"`
	BirthDate string `json:"birth_date" validate:"required,datetime=2006-01-02"`
	City      string `json:"city" validate:"required,max=255"`
	Phone     string `json:"phone" validate:"required,max=64"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
}

// Patient maps to the patient table; it becomes a standing record only when an
// appointment commits.
type Patient struct {
	ID uuid.UUID `db:"id" json:"id"`
	PatientInfo
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether s may move to next. Only scheduled
// appointments move, and completed and cancelled are terminal.
func (s AppointmentStatus) CanTransition(next AppointmentStatus) bool {
	return s == StatusScheduled && (next == StatusCompleted || next == StatusCancelled)
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	DoctorID    uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	PatientID   uuid.UUID         `db:"patient_id" json:"patient_id"`
	Date        string            `db:"date" json:"date"`
	Time        string            `db:"time" json:"time"`
	Patient     PatientInfo       `json:"patient"`
	InsuranceID *uuid.UUID        `db:"insurance_id" json:"insurance_id,omitempty"`
	Status      AppointmentStatus `db:"status" json:"status"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
}

// SelfPay reports whether the appointment has no insurance.
func (a *Appointment) SelfPay() bool { return a.InsuranceID == nil }

// AppointmentFilter narrows ListAppointments. Zero fields match everything;
// From and To are inclusive ISO dates.
type AppointmentFilter struct {
	DoctorID  *uuid.UUID
	DoctorIDs []uuid.UUID
	From      string
	To        string
	Status    AppointmentStatus
}

// Matches applies the filter to a single appointment.
func (f AppointmentFilter) Matches(a *Appointment) bool {
	if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
		return false
	}
	if len(f.DoctorIDs) > 0 && !slices.Contains(f.DoctorIDs, a.DoctorID) {
		return false
	}
	if f.From != "" && a.Date < f.From {
		return false
	}
	if f.To != "" && a.Date > f.To {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}
