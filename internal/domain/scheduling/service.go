package scheduling

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chat-incom/agendamento/internal/domain/clinic"
	"github.com/chat-incom/agendamento/internal/platform/availability"
	"github.com/chat-incom/agendamento/internal/platform/websocket"
)

// MaxLookahead bounds the business-day window a caller may ask for.
const MaxLookahead = 60

// Options configures a Service.
type Options struct {
	// Location decides which calendar day "today" is. Defaults to UTC.
	Location *time.Location
	// Lookahead is the default number of business days offered.
	Lookahead int
}

// Service computes availability and commits bookings against the clinic
// repository.
type Service struct {
	repo      clinic.Repository
	events    websocket.EventPublisher
	loc       *time.Location
	lookahead int
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo clinic.Repository, events websocket.EventPublisher, opts Options, logger zerolog.Logger) *Service {
	if events == nil {
		events = websocket.NopPublisher{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = 14
	}
	return &Service{
		repo:      repo,
		events:    events,
		loc:       opts.Location,
		lookahead: opts.Lookahead,
		logger:    logger,
		now:       time.Now,
	}
}

// Lookahead returns the default business-day window.
func (s *Service) Lookahead() int { return s.lookahead }

// Today returns the clinic's current calendar date.
func (s *Service) Today() time.Time {
	return availability.Today(s.now(), s.loc)
}

// doctors resolves the scope to the doctors whose slots it covers.
func (s *Service) doctors(ctx context.Context, scope Scope) ([]*clinic.Doctor, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if !scope.BySpecialty() {
		d, err := s.repo.GetDoctor(ctx, scope.DoctorID)
		if err != nil {
			return nil, err
		}
		return []*clinic.Doctor{d}, nil
	}
	if _, err := s.repo.GetSpecialty(ctx, scope.SpecialtyID); err != nil {
		return nil, err
	}
	all, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return nil, err
	}
	var out []*clinic.Doctor
	for _, d := range all {
		if d.SpecialtyID == scope.SpecialtyID {
			out = append(out, d)
		}
	}
	return out, nil
}

func providers(doctors []*clinic.Doctor) []availability.Provider {
	out := make([]availability.Provider, len(doctors))
	for i, d := range doctors {
		out[i] = d.Provider()
	}
	return out
}

// bookings loads the scheduled appointments of doctors between from and to.
func (s *Service) bookings(ctx context.Context, doctors []*clinic.Doctor, from, to string) (availability.Bookings, error) {
	b := make(availability.Bookings)
	if len(doctors) == 0 {
		return b, nil
	}
	ids := make([]uuid.UUID, len(doctors))
	for i, d := range doctors {
		ids[i] = d.ID
	}
	appts, err := s.repo.ListAppointments(ctx, clinic.AppointmentFilter{
		DoctorIDs: ids,
		From:      from,
		To:        to,
		Status:    clinic.StatusScheduled,
	})
	if err != nil {
		return nil, err
	}
	for _, a := range appts {
		b.Add(a.DoctorID, a.Date, a.Time)
	}
	return b, nil
}

// GetAvailableDates returns the next lookahead business days on which the
// scope has at least one open slot. A lookahead of zero uses the default.
func (s *Service) GetAvailableDates(ctx context.Context, scope Scope, lookahead int) ([]string, error) {
	if lookahead == 0 {
		lookahead = s.lookahead
	}
	if lookahead < 1 || lookahead > MaxLookahead {
		return nil, clinic.NewValidationError("lookahead", fmt.Sprintf("must be between 1 and %d", MaxLookahead))
	}
	doctors, err := s.doctors(ctx, scope)
	if err != nil {
		return nil, err
	}
	candidates := availability.CandidateDates(s.Today(), lookahead)
	booked, err := s.bookings(ctx, doctors,
		availability.FormatDate(candidates[0]), availability.FormatDate(candidates[len(candidates)-1]))
	if err != nil {
		return nil, err
	}
	dates, err := availability.FilterDatesWithAvailability(candidates, providers(doctors), booked)
	if err != nil {
		return nil, err
	}
	return availability.FormatDates(dates), nil
}

// GetAvailableSlots returns every slot of the scope on date, taken ones
// included and marked unavailable, ordered by time.
func (s *Service) GetAvailableSlots(ctx context.Context, scope Scope, date string) ([]availability.TimeSlot, error) {
	day, err := availability.ParseDate(date)
	if err != nil {
		return nil, clinic.NewValidationError("date", "must be a date in YYYY-MM-DD form")
	}
	doctors, err := s.doctors(ctx, scope)
	if err != nil {
		return nil, err
	}
	return s.slotsOn(ctx, doctors, day)
}

func (s *Service) slotsOn(ctx context.Context, doctors []*clinic.Doctor, day time.Time) ([]availability.TimeSlot, error) {
	date := availability.FormatDate(day)
	booked, err := s.bookings(ctx, doctors, date, date)
	if err != nil {
		return nil, err
	}
	slots, err := availability.Aggregate(providers(doctors), day, booked)
	if err != nil {
		return nil, err
	}
	if slots == nil {
		slots = []availability.TimeSlot{}
	}
	return slots, nil
}

func normalizePatient(p clinic.PatientInfo) clinic.PatientInfo {
	p.Name = strings.TrimSpace(p.Name)
	p.BirthDate = strings.TrimSpace(p.BirthDate)
	p.City = strings.TrimSpace(p.City)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Email = strings.TrimSpace(p.Email)
	return p
}

// validateRequest checks everything that can be checked without the store.
func (s *Service) validateRequest(req *BookingRequest) (time.Time, error) {
	verr := &clinic.ValidationError{}
	if err := req.Scope.Validate(); err != nil {
		var sv *clinic.ValidationError
		if errors.As(err, &sv) {
			for k, v := range sv.Fields {
				verr.Add(k, v)
			}
		}
	}
	req.Patient = normalizePatient(req.Patient)
	if err := clinic.ValidatePatient(req.Patient); err != nil {
		var pv *clinic.ValidationError
		if !errors.As(err, &pv) {
			return time.Time{}, err
		}
		for k, v := range pv.Fields {
			verr.Add("patient."+k, v)
		}
	}
	day, err := availability.ParseDate(req.Date)
	switch {
	case err != nil:
		verr.Add("date", "must be a date in YYYY-MM-DD form")
	case !day.After(s.Today()):
		verr.Add("date", "must be after today")
	case !slices.ContainsFunc(availability.CandidateDates(s.Today(), MaxLookahead), day.Equal):
		verr.Add("date", fmt.Sprintf("must be a weekday within the next %d business days", MaxLookahead))
	}
	if _, err := availability.ParseClock(req.Time); err != nil {
		verr.Add("time", "must be a time in HH:MM form")
	}
	if !verr.Empty() {
		return time.Time{}, verr
	}
	return day, nil
}

// SubmitBooking commits an appointment for the requested slot.
//
// Input is validated before anything is read or written. The slot is then
// re-checked against current appointments and resolved to the doctor that
// owns it; for a specialty this is the first doctor, in time order, still
// free at that time. The patient record is written first and the appointment
// second. If the second write loses a race for the slot the patient row is
// left behind and the caller gets a *SlotConflict carrying the refreshed
// slots for that date.
func (s *Service) SubmitBooking(ctx context.Context, req BookingRequest) (*Booking, error) {
	day, err := s.validateRequest(&req)
	if err != nil {
		return nil, err
	}

	doctors, err := s.doctors(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	slots, err := s.slotsOn(ctx, doctors, day)
	if err != nil {
		return nil, err
	}
	slot, ok := availability.Find(slots, req.Time)
	if !ok {
		return nil, clinic.NewValidationError("time", fmt.Sprintf("%s is not offered on %s", req.Time, req.Date))
	}
	if !slot.Available {
		return nil, &SlotConflict{Date: req.Date, Slots: slots, Err: fmt.Errorf("%s %s: %w", req.Date, req.Time, clinic.ErrSlotUnavailable)}
	}

	var doctor *clinic.Doctor
	for _, d := range doctors {
		if d.ID == slot.DoctorID {
			doctor = d
			break
		}
	}

	insuranceName := SelfPayLabel
	if req.InsuranceID != nil {
		if !doctor.Accepts(*req.InsuranceID) {
			return nil, clinic.NewValidationError("insurance_id", fmt.Sprintf("not accepted by %s", doctor.Name))
		}
		ins, err := s.repo.GetInsurance(ctx, *req.InsuranceID)
		if err != nil {
			if errors.Is(err, clinic.ErrNotFound) {
				return nil, clinic.NewValidationError("insurance_id", "unknown insurance")
			}
			return nil, err
		}
		insuranceName = ins.Name
	}

	log := s.logger.With().
		Str("doctor_id", doctor.ID.String()).
		Str("date", req.Date).
		Str("time", req.Time).
		Logger()

	patient := &clinic.Patient{PatientInfo: req.Patient}
	if err := s.repo.CreatePatient(ctx, patient); err != nil {
		log.Error().Err(err).Msg("booking: create patient failed")
		return nil, err
	}

	appt := &clinic.Appointment{
		DoctorID:    doctor.ID,
		PatientID:   patient.ID,
		Date:        req.Date,
		Time:        req.Time,
		Patient:     req.Patient,
		InsuranceID: req.InsuranceID,
		Status:      clinic.StatusScheduled,
	}
	if err := s.repo.CreateAppointment(ctx, appt); err != nil {
		log.Warn().Err(err).Str("patient_id", patient.ID.String()).Msg("booking: create appointment failed, patient record left orphaned")
		if errors.Is(err, clinic.ErrSlotUnavailable) {
			if fresh, ferr := s.slotsOn(ctx, doctors, day); ferr == nil {
				return nil, &SlotConflict{Date: req.Date, Slots: fresh, Err: err}
			}
		}
		return nil, err
	}

	log.Info().Str("appointment_id", appt.ID.String()).Bool("self_pay", appt.SelfPay()).Msg("booking committed")
	s.publish(ctx, websocket.EventSlotBooked, doctor, appt)

	summary := Summary{
		AppointmentID: appt.ID,
		DoctorName:    doctor.Name,
		InsuranceName: insuranceName,
		PatientName:   appt.Patient.Name,
		Date:          appt.Date,
		Time:          appt.Time,
	}
	if sp, err := s.repo.GetSpecialty(ctx, doctor.SpecialtyID); err == nil {
		summary.SpecialtyName = sp.Name
	}
	return &Booking{Appointment: appt, Summary: summary}, nil
}

func (s *Service) publish(ctx context.Context, kind string, doctor *clinic.Doctor, appt *clinic.Appointment) {
	now := s.now().UTC()
	for _, topic := range []string{websocket.DoctorTopic(doctor.ID), websocket.SpecialtyTopic(doctor.SpecialtyID)} {
		err := s.events.Publish(ctx, websocket.Event{
			Type:      kind,
			Topic:     topic,
			DoctorID:  doctor.ID,
			Date:      appt.Date,
			Time:      appt.Time,
			Timestamp: now,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("topic", topic).Msg("publish availability event")
		}
	}
}

// -- Appointment administration --

func (s *Service) ListAppointments(ctx context.Context, f clinic.AppointmentFilter) ([]*clinic.Appointment, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, clinic.NewValidationError("status", "must be one of: scheduled completed cancelled")
	}
	return s.repo.ListAppointments(ctx, f)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*clinic.Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

// CompleteAppointment marks a scheduled appointment as attended.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*clinic.Appointment, error) {
	return s.transition(ctx, id, clinic.StatusCompleted)
}

// CancelAppointment cancels a scheduled appointment and releases its slot.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*clinic.Appointment, error) {
	appt, err := s.transition(ctx, id, clinic.StatusCancelled)
	if err != nil {
		return nil, err
	}
	if d, err := s.repo.GetDoctor(ctx, appt.DoctorID); err == nil {
		s.publish(ctx, websocket.EventSlotReleased, d, appt)
	}
	return appt, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, status clinic.AppointmentStatus) (*clinic.Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanTransition(status) {
		return nil, fmt.Errorf("appointment is %s: %w", appt.Status, clinic.ErrInvalidTransition)
	}
	if err := s.repo.UpdateAppointmentStatus(ctx, id, status); err != nil {
		return nil, err
	}
	appt.Status = status
	s.logger.Info().Str("appointment_id", id.String()).Str("status", string(status)).Msg("appointment status changed")
	return appt, nil
}

// CompletePastAppointments marks every scheduled appointment dated before
// today as completed and returns how many changed.
func (s *Service) CompletePastAppointments(ctx context.Context) (int, error) {
	yesterday := availability.FormatDate(s.Today().AddDate(0, 0, -1))
	past, err := s.repo.ListAppointments(ctx, clinic.AppointmentFilter{To: yesterday, Status: clinic.StatusScheduled})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range past {
		err := s.repo.UpdateAppointmentStatus(ctx, a.ID, clinic.StatusCompleted)
		switch {
		case err == nil:
			n++
		case errors.Is(err, clinic.ErrInvalidTransition), errors.Is(err, clinic.ErrNotFound):
			// changed concurrently
		default:
			return n, err
		}
	}
	return n, nil
}

// -- Booking flows --

// StartFlow begins a booking flow for scope, caching the dates available now.
func (s *Service) StartFlow(ctx context.Context, scope Scope) (*Flow, error) {
	dates, err := s.GetAvailableDates(ctx, scope, 0)
	if err != nil {
		return nil, err
	}
	return NewFlow(scope, dates, s.now()), nil
}

// ConfirmFlow commits f through SubmitBooking.
func (s *Service) ConfirmFlow(ctx context.Context, f *Flow) (FlowView, error) {
	return f.Confirm(ctx, s.SubmitBooking, func(ctx context.Context, scope Scope) ([]string, error) {
		return s.GetAvailableDates(ctx, scope, 0)
	})
}
