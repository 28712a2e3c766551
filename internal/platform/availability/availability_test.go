package availability

import (
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func times(slots []TimeSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Time
	}
	return out
}

// 2024-06-10 is a Monday.
const monday = "2024-06-10"

func TestGenerateSlots_StopsBeforeEnd(t *testing.T) {
	entry := WorkingHours{Day: Monday, StartTime: "08:00", EndTime: "09:00", IntervalMinutes: 30}

	seq, err := GenerateSlots(entry, mustDate(t, monday), nil)
	require.NoError(t, err)

	slots := slices.Collect(seq)
	require.Len(t, slots, 2)
	assert.Equal(t, []string{"08:00", "08:30"}, times(slots))
	for _, s := range slots {
		assert.True(t, s.Available, "slot %s", s.Time)
		assert.Equal(t, monday, s.Date)
	}
}

func TestGenerateSlots_MarksBookedTimes(t *testing.T) {
	entry := WorkingHours{Day: Monday, StartTime: "08:00", EndTime: "09:00", IntervalMinutes: 30}

	seq, err := GenerateSlots(entry, mustDate(t, monday), NewTimeSet("08:30"))
	require.NoError(t, err)

	slots := slices.Collect(seq)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].Available)
	assert.False(t, slots[1].Available)
}

func TestGenerateSlots_LastSlotNeedNotFit(t *testing.T) {
	entry := WorkingHours{Day: Monday, StartTime: "08:00", EndTime: "09:00", IntervalMinutes: 45}

	seq, err := GenerateSlots(entry, mustDate(t, monday), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "08:45"}, times(slices.Collect(seq)))
}

func TestGenerateSlots_Restartable(t *testing.T) {
	entry := WorkingHours{Day: Monday, StartTime: "08:00", EndTime: "17:00", IntervalMinutes: 30}
	seq, err := GenerateSlots(entry, mustDate(t, monday), NewTimeSet("10:00"))
	require.NoError(t, err)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Len(t, first, 18)
	assert.Equal(t, first, second)

	// Early exit must not leak state into the next iteration.
	for s := range seq {
		if s.Time == "09:00" {
			break
		}
	}
	assert.Equal(t, first, slices.Collect(seq))
}

func TestGenerateSlots_InvalidTemplates(t *testing.T) {
	tests := []struct {
		name  string
		entry WorkingHours
	}{
		{"start after end", WorkingHours{Day: Monday, StartTime: "17:00", EndTime: "08:00", IntervalMinutes: 30}},
		{"start equals end", WorkingHours{Day: Monday, StartTime: "08:00", EndTime: "08:00", IntervalMinutes: 30}},
		{"zero interval", WorkingHours{Day: Monday, StartTime: "08:00", EndTime: "09:00", IntervalMinutes: 0}},
		{"negative interval", WorkingHours{Day: Monday, StartTime: "08:00", EndTime: "09:00", IntervalMinutes: -15}},
		{"interval longer than window", WorkingHours{Day: Monday, StartTime: "08:00", EndTime: "09:00", IntervalMinutes: 61}},
		{"interval near max int", WorkingHours{Day: Monday, StartTime: "23:00", EndTime: "23:59", IntervalMinutes: math.MaxInt - 100}},
		{"hour out of range", WorkingHours{Day: Monday, StartTime: "24:00", EndTime: "25:00", IntervalMinutes: 30}},
		{"minute out of range", WorkingHours{Day: Monday, StartTime: "08:60", EndTime: "09:00", IntervalMinutes: 30}},
		{"not padded", WorkingHours{Day: Monday, StartTime: "8:00", EndTime: "09:00", IntervalMinutes: 30}},
		{"garbage", WorkingHours{Day: Monday, StartTime: "ab:cd", EndTime: "09:00", IntervalMinutes: 30}},
		{"signed hour", WorkingHours{Day: Monday, StartTime: "+8:00", EndTime: "09:00", IntervalMinutes: 30}},
		{"unknown day", WorkingHours{Day: "funday", StartTime: "08:00", EndTime: "09:00", IntervalMinutes: 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, err := GenerateSlots(tt.entry, mustDate(t, monday), nil)
			assert.Nil(t, seq)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSchedule), "got %v", err)

			var se *ScheduleError
			assert.True(t, errors.As(err, &se))
		})
	}
}

func TestValidateTemplate_DuplicateDay(t *testing.T) {
	err := ValidateTemplate([]WorkingHours{
		{Day: Monday, StartTime: "08:00", EndTime: "12:00", IntervalMinutes: 30},
		{Day: Monday, StartTime: "13:00", EndTime: "17:00", IntervalMinutes: 30},
	})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	err = ValidateTemplate([]WorkingHours{
		{Day: Monday, StartTime: "08:00", EndTime: "12:00", IntervalMinutes: 30},
		{Day: Tuesday, StartTime: "08:00", EndTime: "12:00", IntervalMinutes: 30},
	})
	assert.NoError(t, err)
}

func TestAggregate_OrdersByTimeAndTagsDoctor(t *testing.T) {
	a := Provider{ID: uuid.New(), Name: "Dr. A", Hours: []WorkingHours{{Day: Monday, StartTime: "09:00", EndTime: "10:00", IntervalMinutes: 30}}}
	b := Provider{ID: uuid.New(), Name: "Dr. B", Hours: []WorkingHours{{Day: Monday, StartTime: "09:15", EndTime: "10:00", IntervalMinutes: 30}}}

	slots, err := Aggregate([]Provider{a, b}, mustDate(t, monday), Bookings{})
	require.NoError(t, err)

	require.Equal(t, []string{"09:00", "09:15", "09:30", "09:45"}, times(slots))
	assert.Equal(t, a.ID, slots[0].DoctorID)
	assert.Equal(t, b.ID, slots[1].DoctorID)
	assert.Equal(t, a.ID, slots[2].DoctorID)
	assert.Equal(t, "Dr. B", slots[1].DoctorName)
}

func TestAggregate_TiesKeepProviderOrder(t *testing.T) {
	hours := []WorkingHours{{Day: Monday, StartTime: "09:00", EndTime: "10:00", IntervalMinutes: 30}}
	a := Provider{ID: uuid.New(), Name: "Dr. A", Hours: hours}
	b := Provider{ID: uuid.New(), Name: "Dr. B", Hours: hours}

	bookings := Bookings{}
	bookings.Add(a.ID, monday, "09:00")

	slots, err := Aggregate([]Provider{a, b}, mustDate(t, monday), bookings)
	require.NoError(t, err)
	require.Len(t, slots, 4)
	assert.Equal(t, a.ID, slots[0].DoctorID)
	assert.False(t, slots[0].Available)
	assert.Equal(t, b.ID, slots[1].DoctorID)
	assert.True(t, slots[1].Available)

	got, ok := Find(slots, "09:00")
	require.True(t, ok)
	assert.Equal(t, b.ID, got.DoctorID)
}

func TestAggregate_NoEntryForWeekday(t *testing.T) {
	p := Provider{ID: uuid.New(), Hours: []WorkingHours{{Day: Tuesday, StartTime: "09:00", EndTime: "10:00", IntervalMinutes: 30}}}
	slots, err := Aggregate([]Provider{p}, mustDate(t, monday), nil)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAggregate_PropagatesInvalidSchedule(t *testing.T) {
	p := Provider{ID: uuid.New(), Hours: []WorkingHours{{Day: Monday, StartTime: "10:00", EndTime: "09:00", IntervalMinutes: 30}}}
	_, err := Aggregate([]Provider{p}, mustDate(t, monday), nil)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestCandidateDates_SkipsWeekends(t *testing.T) {
	// Friday.
	today := mustDate(t, "2024-06-07")
	dates := CandidateDates(today, 14)

	require.Len(t, dates, 14)
	assert.Equal(t, "2024-06-10", FormatDate(dates[0]))
	assert.Equal(t, "2024-06-27", FormatDate(dates[13]))
	for _, d := range dates {
		assert.True(t, d.After(today))
		assert.False(t, WeekdayOf(d).IsWeekend(), "%s is a weekend", FormatDate(d))
	}
	// 14 business days starting Monday span 18 calendar days, 4 of them weekend days.
	span := int(dates[13].Sub(dates[0]).Hours()/24) + 1
	assert.Equal(t, 18, span)
}

func TestCandidateDates_StartsTomorrow(t *testing.T) {
	// Tuesday.
	dates := CandidateDates(mustDate(t, "2024-06-11"), 1)
	require.Len(t, dates, 1)
	assert.Equal(t, "2024-06-12", FormatDate(dates[0]))

	assert.Empty(t, CandidateDates(mustDate(t, "2024-06-11"), 0))
}

func TestFilterDatesWithAvailability(t *testing.T) {
	p := Provider{ID: uuid.New(), Name: "Dr. A", Hours: []WorkingHours{
		{Day: Monday, StartTime: "08:00", EndTime: "09:00", IntervalMinutes: 30},
		{Day: Wednesday, StartTime: "08:00", EndTime: "08:30", IntervalMinutes: 30},
	}}
	bookings := Bookings{}
	bookings.Add(p.ID, "2024-06-12", "08:00")

	dates := CandidateDates(mustDate(t, "2024-06-07"), 5)
	got, err := FilterDatesWithAvailability(dates, []Provider{p}, bookings)
	require.NoError(t, err)

	// Wednesday is fully booked, the other days have no template.
	assert.Equal(t, []string{"2024-06-10"}, FormatDates(got))
}

func TestToday_UsesZoneForCalendarDay(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	// 01:30 UTC is still the previous evening in Sao Paulo.
	now := time.Date(2024, 6, 11, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-06-10", FormatDate(Today(now, loc)))
	assert.Equal(t, "2024-06-11", FormatDate(Today(now, nil)))
}

func TestWeekday_Parse(t *testing.T) {
	d, err := ParseWeekday(" Friday ")
	require.NoError(t, err)
	assert.Equal(t, Friday, d)

	_, err = ParseWeekday("sexta")
	assert.Error(t, err)

	var w Weekday
	assert.Error(t, w.UnmarshalText([]byte("domingo")))
	assert.NoError(t, w.UnmarshalText([]byte("sunday")))
	assert.Equal(t, Sunday, w)
	assert.Equal(t, 6, w.Index())
}
