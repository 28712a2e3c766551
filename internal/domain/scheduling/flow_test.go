package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chat-incom/agendamento/internal/domain/clinic"
)

func flowAtReview(t *testing.T) *Flow {
	t.Helper()
	f := NewFlow(ForDoctor(uuid.New()), []string{nextMonday, "2024-06-17"}, friday)
	_, err := f.Select(nextMonday, "08:00")
	require.NoError(t, err)
	_, err = f.Continue()
	require.NoError(t, err)
	_, err = f.SetPatient(patientX(), nil)
	require.NoError(t, err)
	v, err := f.Continue()
	require.NoError(t, err)
	require.Equal(t, StepReviewingConfirmation, v.Step)
	return f
}

func TestFlow_ForwardGuards(t *testing.T) {
	f := NewFlow(ForDoctor(uuid.New()), []string{nextMonday}, friday)
	assert.Equal(t, StepChoosingDateTime, f.View().Step)

	_, err := f.Continue()
	var verr *clinic.ValidationError
	require.True(t, errors.As(err, &verr), "nothing selected")
	assert.Contains(t, verr.Fields, "date")
	assert.Contains(t, verr.Fields, "time")

	_, err = f.Select("2024-06-11", "08:00")
	require.NoError(t, err)
	_, err = f.Continue()
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "is no longer available", verr.Fields["date"])

	_, err = f.Select(nextMonday, "08:00")
	require.NoError(t, err)
	v, err := f.Continue()
	require.NoError(t, err)
	assert.Equal(t, StepEnteringPatientInfo, v.Step)

	_, err = f.Select(nextMonday, "09:00")
	assert.ErrorIs(t, err, clinic.ErrInvalidTransition, "selection is fixed outside the first step")

	_, err = f.SetPatient(clinic.PatientInfo{Name: "X"}, nil)
	require.NoError(t, err)
	_, err = f.Continue()
	require.True(t, errors.As(err, &verr), "required patient fields")
	assert.Contains(t, verr.Fields, "phone")
	assert.NotContains(t, verr.Fields, "email", "email is optional")
	assert.Equal(t, StepEnteringPatientInfo, f.View().Step)
}

func TestFlow_BackKeepsData(t *testing.T) {
	f := flowAtReview(t)

	v, err := f.Back()
	require.NoError(t, err)
	assert.Equal(t, StepEnteringPatientInfo, v.Step)
	assert.Equal(t, "Patient X", v.Patient.Name)

	v, err = f.Back()
	require.NoError(t, err)
	assert.Equal(t, StepChoosingDateTime, v.Step)
	assert.Equal(t, nextMonday, v.Date)
	assert.Equal(t, "08:00", v.Time)
	assert.Equal(t, "Patient X", v.Patient.Name)

	_, err = f.Back()
	assert.ErrorIs(t, err, clinic.ErrInvalidTransition)

	v, err = f.Continue()
	require.NoError(t, err)
	v, err = f.Continue()
	require.NoError(t, err)
	assert.Equal(t, StepReviewingConfirmation, v.Step, "retained data passes the guards again")
}

func TestFlow_ConfirmOnlyFromReview(t *testing.T) {
	f := NewFlow(ForDoctor(uuid.New()), []string{nextMonday}, friday)
	_, err := f.Confirm(context.Background(), func(context.Context, BookingRequest) (*Booking, error) {
		t.Fatal("commit must not run")
		return nil, nil
	}, nil)
	assert.ErrorIs(t, err, clinic.ErrInvalidTransition)
}

func TestFlow_ConfirmCommitsOnce(t *testing.T) {
	f := flowAtReview(t)
	calls := 0
	commit := func(_ context.Context, req BookingRequest) (*Booking, error) {
		calls++
		assert.Equal(t, nextMonday, req.Date)
		assert.Equal(t, "Patient X", req.Patient.Name)
		return &Booking{Appointment: &clinic.Appointment{ID: uuid.New()}}, nil
	}

	v, err := f.Confirm(context.Background(), commit, nil)
	require.NoError(t, err)
	assert.Equal(t, StepCommitted, v.Step)
	require.NotNil(t, v.Booking)

	_, err = f.Confirm(context.Background(), commit, nil)
	assert.ErrorIs(t, err, ErrFlowCommitted)
	_, err = f.Back()
	assert.ErrorIs(t, err, ErrFlowCommitted)
	_, err = f.Continue()
	assert.ErrorIs(t, err, ErrFlowCommitted)
	_, err = f.Select(nextMonday, "09:00")
	assert.ErrorIs(t, err, ErrFlowCommitted)
	assert.Equal(t, 1, calls)
}

func TestFlow_FailedCommitStaysInReview(t *testing.T) {
	f := flowAtReview(t)
	refreshed := false
	_, err := f.Confirm(context.Background(),
		func(context.Context, BookingRequest) (*Booking, error) {
			return nil, &SlotConflict{Err: clinic.ErrSlotUnavailable}
		},
		func(context.Context, Scope) ([]string, error) {
			refreshed = true
			return []string{"2024-06-17"}, nil
		})
	require.ErrorIs(t, err, clinic.ErrSlotUnavailable)
	assert.True(t, refreshed)

	v := f.View()
	assert.Equal(t, StepReviewingConfirmation, v.Step)
	assert.Equal(t, []string{"2024-06-17"}, v.AvailableDates)
	assert.Nil(t, v.Booking)

	// Going back to choose again is checked against the refreshed dates.
	_, _ = f.Back()
	_, _ = f.Back()
	_, err = f.Continue()
	assert.True(t, clinic.IsValidation(err))

	_, err = f.Confirm(context.Background(), func(context.Context, BookingRequest) (*Booking, error) {
		return nil, clinic.ErrPersistenceUnavailable
	}, nil)
	assert.ErrorIs(t, err, clinic.ErrInvalidTransition, "no longer reviewing")
}

func TestFlow_ConcurrentConfirm(t *testing.T) {
	f := flowAtReview(t)
	release := make(chan struct{})
	entered := make(chan struct{})
	commit := func(context.Context, BookingRequest) (*Booking, error) {
		close(entered)
		<-release
		return &Booking{}, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.Confirm(context.Background(), commit, nil)
		assert.NoError(t, err)
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first confirm never started")
	}
	_, err := f.Confirm(context.Background(), commit, nil)
	assert.ErrorIs(t, err, ErrCommitInProgress)
	_, err = f.Back()
	assert.ErrorIs(t, err, ErrCommitInProgress)

	close(release)
	wg.Wait()
	assert.Equal(t, StepCommitted, f.View().Step)
}

func TestFlowStore(t *testing.T) {
	store := NewFlowStore(30 * time.Minute)
	now := friday
	store.now = func() time.Time { return now }

	f := NewFlow(ForDoctor(uuid.New()), nil, now)
	store.Put(f)

	got, err := store.Get(f.ID())
	require.NoError(t, err)
	assert.Same(t, f, got)

	_, err = store.Get(uuid.New())
	assert.ErrorIs(t, err, ErrFlowNotFound)
	assert.ErrorIs(t, err, clinic.ErrNotFound)

	now = now.Add(20 * time.Minute)
	_, err = store.Get(f.ID())
	require.NoError(t, err, "access refreshes the idle timer")

	now = now.Add(20 * time.Minute)
	assert.Zero(t, store.Purge())
	assert.Equal(t, 1, store.Len())

	now = now.Add(31 * time.Minute)
	_, err = store.Get(f.ID())
	assert.ErrorIs(t, err, ErrFlowNotFound, "expired flows are not served")
	assert.Equal(t, 1, store.Purge())
	assert.Zero(t, store.Len())
}

func TestService_FlowEndToEnd(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	f, err := fx.svc.StartFlow(ctx, ForSpecialty(fx.specialty.ID))
	require.NoError(t, err)
	assert.Contains(t, f.View().AvailableDates, nextMonday)

	_, err = f.Select(nextMonday, "09:00")
	require.NoError(t, err)
	_, err = f.Continue()
	require.NoError(t, err)
	_, err = f.SetPatient(patientX(), &fx.unimed.ID)
	require.NoError(t, err)
	_, err = f.Continue()
	require.NoError(t, err)

	v, err := fx.svc.ConfirmFlow(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, StepCommitted, v.Step)
	assert.Equal(t, "Unimed", v.Booking.Summary.InsuranceName)
	assert.Equal(t, "Cardiology", v.Booking.Summary.SpecialtyName)

	_, err = fx.svc.StartFlow(ctx, Scope{})
	assert.True(t, clinic.IsValidation(err))
}
