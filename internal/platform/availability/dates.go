package availability

import (
	"time"
)

// DateLayout is the ISO calendar date format used on every boundary.
const DateLayout = time.DateOnly

// ParseDate parses an ISO date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate renders the calendar date of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Today returns the current calendar date in loc, as midnight UTC. The zone is
// only used to decide which day it is; all slot arithmetic stays wall-clock.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CandidateDates returns the next count weekdays after today, in order.
// Saturday and Sunday are skipped and today itself is never included.
func CandidateDates(today time.Time, count int) []time.Time {
	if count <= 0 {
		return nil
	}
	y, m, d := today.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	dates := make([]time.Time, 0, count)
	for len(dates) < count {
		day = day.AddDate(0, 0, 1)
		if WeekdayOf(day).IsWeekend() {
			continue
		}
		dates = append(dates, day)
	}
	return dates
}

// FilterDatesWithAvailability keeps the dates on which at least one of the
// providers has an open slot.
func FilterDatesWithAvailability(dates []time.Time, providers []Provider, bookings Bookings) ([]time.Time, error) {
	var out []time.Time
	for _, date := range dates {
		slots, err := Aggregate(providers, date, bookings)
		if err != nil {
			return nil, err
		}
		if AnyAvailable(slots) {
			out = append(out, date)
		}
	}
	return out, nil
}

// FormatDates renders a list of dates as ISO strings.
func FormatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = FormatDate(d)
	}
	return out
}
