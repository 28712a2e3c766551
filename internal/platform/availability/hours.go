package availability

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidSchedule is the root of every malformed working-hours error.
var ErrInvalidSchedule = errors.New("invalid schedule")

// ScheduleError describes why a working-hours entry was rejected.
type ScheduleError struct {
	Day    Weekday
	Reason string
}

func (e *ScheduleError) Error() string {
	if e.Day == "" {
		return fmt.Sprintf("invalid schedule: %s", e.Reason)
	}
	return fmt.Sprintf("invalid schedule for %s: %s", e.Day, e.Reason)
}

func (e *ScheduleError) Unwrap() error { return ErrInvalidSchedule }

// WorkingHours is one weekday of a doctor's recurring availability template.
// Times are clinic-local wall-clock strings in HH:MM form.
type WorkingHours struct {
	Day             Weekday `json:"day"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	IntervalMinutes int     `json:"interval_minutes"`
}

// Validate checks the time format, ordering and interval of a single entry.
func (w WorkingHours) Validate() error {
	if !w.Day.Valid() {
		return &ScheduleError{Day: w.Day, Reason: fmt.Sprintf("unknown weekday %q", w.Day)}
	}
	start, err := ParseClock(w.StartTime)
	if err != nil {
		return &ScheduleError{Day: w.Day, Reason: "start_time: " + err.Error()}
	}
	end, err := ParseClock(w.EndTime)
	if err != nil {
		return &ScheduleError{Day: w.Day, Reason: "end_time: " + err.Error()}
	}
	if start >= end {
		return &ScheduleError{Day: w.Day, Reason: fmt.Sprintf("start_time %s must be before end_time %s", w.StartTime, w.EndTime)}
	}
	if w.IntervalMinutes <= 0 {
		return &ScheduleError{Day: w.Day, Reason: fmt.Sprintf("interval_minutes must be positive, got %d", w.IntervalMinutes)}
	}
	if w.IntervalMinutes > int(end-start) {
		return &ScheduleError{Day: w.Day, Reason: fmt.Sprintf("interval_minutes %d exceeds the %s-%s window", w.IntervalMinutes, w.StartTime, w.EndTime)}
	}
	return nil
}

// ValidateTemplate validates every entry and enforces at most one entry per day.
func ValidateTemplate(entries []WorkingHours) error {
	seen := make(map[Weekday]bool, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		if seen[e.Day] {
			return &ScheduleError{Day: e.Day, Reason: "more than one entry for the same day"}
		}
		seen[e.Day] = true
	}
	return nil
}

// EntryFor returns the entry for day, if the template has one.
func EntryFor(entries []WorkingHours, day Weekday) (WorkingHours, bool) {
	for _, e := range entries {
		if e.Day == day {
			return e, true
		}
	}
	return WorkingHours{}, false
}

// Clock is a time of day in minutes after midnight.
type Clock int

// ParseClock parses a zero-padded 24h "HH:MM" string in [00:00, 23:59].
func ParseClock(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%q is not in HH:MM form", s)
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil || s[0] == '+' || s[0] == '-' {
		return 0, fmt.Errorf("%q has a bad hour", s)
	}
	m, err := strconv.Atoi(s[3:])
	if err != nil || s[3] == '+' || s[3] == '-' {
		return 0, fmt.Errorf("%q has a bad minute", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%q is out of range", s)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}
