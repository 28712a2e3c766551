package scheduling

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chat-incom/agendamento/internal/domain/clinic"
	"github.com/chat-incom/agendamento/internal/platform/availability"
)

// Step is a state of the booking flow.
type Step string

const (
	StepChoosingDateTime      Step = "choosing_date_time"
	StepEnteringPatientInfo   Step = "entering_patient_info"
	StepReviewingConfirmation Step = "reviewing_confirmation"
	StepCommitted             Step = "committed"
)

var stepOrder = []Step{StepChoosingDateTime, StepEnteringPatientInfo, StepReviewingConfirmation, StepCommitted}

func (s Step) index() int { return slices.Index(stepOrder, s) }

// CommitFunc writes a booking. Service.SubmitBooking satisfies it.
type CommitFunc func(ctx context.Context, req BookingRequest) (*Booking, error)

// DatesFunc recomputes the available dates of a scope.
type DatesFunc func(ctx context.Context, scope Scope) ([]string, error)

// Flow is one patient's booking in progress. It moves forward one step per
// Continue and back one step per Back, keeping every field already entered.
// Confirm commits exactly once; a committed flow is never reused.
type Flow struct {
	mu         sync.Mutex
	id         uuid.UUID
	scope      Scope
	step       Step
	date       string
	time       string
	patient    clinic.PatientInfo
	insurance  *uuid.UUID
	dates      []string
	booking    *Booking
	committing bool
	touched    time.Time
}

// NewFlow starts a flow for scope with the dates computed for it.
func NewFlow(scope Scope, dates []string, now time.Time) *Flow {
	return &Flow{
		id:      uuid.New(),
		scope:   scope,
		step:    StepChoosingDateTime,
		dates:   slices.Clone(dates),
		touched: now,
	}
}

// FlowView is a read-only copy of a flow's state.
type FlowView struct {
	ID             uuid.UUID          `json:"id"`
	Scope          Scope              `json:"scope"`
	Step           Step               `json:"step"`
	Date           string             `json:"date,omitempty"`
	Time           string             `json:"time,omitempty"`
	Patient        clinic.PatientInfo `json:"patient"`
	InsuranceID    *uuid.UUID         `json:"insurance_id,omitempty"`
	AvailableDates []string           `json:"available_dates"`
	Booking        *Booking           `json:"booking,omitempty"`
}

func (f *Flow) ID() uuid.UUID { return f.id }

// View returns a snapshot of the flow.
func (f *Flow) View() FlowView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

func (f *Flow) viewLocked() FlowView {
	dates := slices.Clone(f.dates)
	if dates == nil {
		dates = []string{}
	}
	return FlowView{
		ID:             f.id,
		Scope:          f.scope,
		Step:           f.step,
		Date:           f.date,
		Time:           f.time,
		Patient:        f.patient,
		InsuranceID:    f.insurance,
		AvailableDates: dates,
		Booking:        f.booking,
	}
}

func (f *Flow) lastTouched() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touched
}

func (f *Flow) touch(now time.Time) {
	f.mu.Lock()
	f.touched = now
	f.mu.Unlock()
}

func (f *Flow) expect(step Step) error {
	if f.step == StepCommitted {
		return ErrFlowCommitted
	}
	if f.step != step {
		return fmt.Errorf("booking is at %s, not %s: %w", f.step, step, clinic.ErrInvalidTransition)
	}
	return nil
}

// Select records the chosen date and time. Only allowed while choosing.
func (f *Flow) Select(date, clock string) (FlowView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.expect(StepChoosingDateTime); err != nil {
		return FlowView{}, err
	}
	f.date, f.time = date, clock
	return f.viewLocked(), nil
}

// SetPatient records patient data and the optional insurance. Only allowed
// while entering patient info.
func (f *Flow) SetPatient(p clinic.PatientInfo, insuranceID *uuid.UUID) (FlowView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.expect(StepEnteringPatientInfo); err != nil {
		return FlowView{}, err
	}
	f.patient = normalizePatient(p)
	f.insurance = insuranceID
	return f.viewLocked(), nil
}

// Continue advances one step if the guard of the next step holds.
func (f *Flow) Continue() (FlowView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.step {
	case StepCommitted:
		return FlowView{}, ErrFlowCommitted
	case StepChoosingDateTime:
		if err := f.selectionGuard(); err != nil {
			return FlowView{}, err
		}
		f.step = StepEnteringPatientInfo
	case StepEnteringPatientInfo:
		if err := clinic.ValidatePatient(f.patient); err != nil {
			return FlowView{}, err
		}
		f.step = StepReviewingConfirmation
	case StepReviewingConfirmation:
		return FlowView{}, fmt.Errorf("confirm the booking to continue: %w", clinic.ErrInvalidTransition)
	}
	return f.viewLocked(), nil
}

func (f *Flow) selectionGuard() error {
	verr := &clinic.ValidationError{}
	if f.date == "" {
		verr.Add("date", "is required")
	} else if !slices.Contains(f.dates, f.date) {
		verr.Add("date", "is no longer available")
	}
	if f.time == "" {
		verr.Add("time", "is required")
	} else if _, err := availability.ParseClock(f.time); err != nil {
		verr.Add("time", "must be a time in HH:MM form")
	}
	if !verr.Empty() {
		return verr
	}
	return nil
}

// Back returns to the previous step, keeping entered data.
func (f *Flow) Back() (FlowView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.step {
	case StepCommitted:
		return FlowView{}, ErrFlowCommitted
	case StepChoosingDateTime:
		return FlowView{}, fmt.Errorf("already at the first step: %w", clinic.ErrInvalidTransition)
	}
	if f.committing {
		return FlowView{}, ErrCommitInProgress
	}
	f.step = stepOrder[f.step.index()-1]
	return f.viewLocked(), nil
}

// Confirm commits the booking. A failed commit leaves the flow reviewing the
// confirmation; when the slot was lost the cached dates are recomputed with
// refresh so the next selection is checked against current availability.
func (f *Flow) Confirm(ctx context.Context, commit CommitFunc, refresh DatesFunc) (FlowView, error) {
	f.mu.Lock()
	if err := f.expect(StepReviewingConfirmation); err != nil {
		f.mu.Unlock()
		return FlowView{}, err
	}
	if f.committing {
		f.mu.Unlock()
		return FlowView{}, ErrCommitInProgress
	}
	f.committing = true
	req := BookingRequest{
		Scope:       f.scope,
		Date:        f.date,
		Time:        f.time,
		Patient:     f.patient,
		InsuranceID: f.insurance,
	}
	f.mu.Unlock()

	booking, err := commit(ctx, req)

	var fresh []string
	if errors.Is(err, clinic.ErrSlotUnavailable) && refresh != nil {
		if dates, rerr := refresh(ctx, req.Scope); rerr == nil {
			fresh = dates
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.committing = false
	if err != nil {
		if fresh != nil {
			f.dates = fresh
		}
		return f.viewLocked(), err
	}
	f.booking = booking
	f.step = StepCommitted
	return f.viewLocked(), nil
}
