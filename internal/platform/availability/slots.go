package availability

import (
	"iter"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
)

// TimeSlot is a single bookable time point on a calendar date. It is computed
// on demand and never persisted.
type TimeSlot struct {
	DoctorID   uuid.UUID `json:"doctor_id"`
	DoctorName string    `json:"doctor_name,omitempty"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Available  bool      `json:"available"`
}

// TimeSet is a set of HH:MM strings.
type TimeSet map[string]struct{}

// NewTimeSet builds a set from the given times.
func NewTimeSet(times ...string) TimeSet {
	s := make(TimeSet, len(times))
	for _, t := range times {
		s[t] = struct{}{}
	}
	return s
}

// Has reports whether t is in the set. A nil set contains nothing.
func (s TimeSet) Has(t string) bool {
	_, ok := s[t]
	return ok
}

// GenerateSlots validates entry and returns the slots it yields on date.
//
// A slot is emitted every IntervalMinutes starting at StartTime, stopping
// strictly before EndTime; the slot's own length is not required to fit.
// Slots whose time is in booked are marked unavailable. The returned sequence
// holds no state and can be ranged over any number of times.
func GenerateSlots(entry WorkingHours, date time.Time, booked TimeSet) (iter.Seq[TimeSlot], error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	start, _ := ParseClock(entry.StartTime)
	end, _ := ParseClock(entry.EndTime)
	step := Clock(entry.IntervalMinutes)
	day := FormatDate(date)

	return func(yield func(TimeSlot) bool) {
		for c := start; c < end; c += step {
			t := c.String()
			if !yield(TimeSlot{Date: day, Time: t, Available: !booked.Has(t)}) {
				return
			}
		}
	}, nil
}

// Provider is a doctor as seen by the slot computation: identity plus template.
type Provider struct {
	ID    uuid.UUID
	Name  string
	Hours []WorkingHours
}

// Slots returns the provider's slots on date, tagged with its id and name. A
// provider with no entry for the weekday yields an empty slice, not an error.
func (p Provider) Slots(date time.Time, booked TimeSet) ([]TimeSlot, error) {
	entry, ok := EntryFor(p.Hours, WeekdayOf(date))
	if !ok {
		return nil, nil
	}
	seq, err := GenerateSlots(entry, date, booked)
	if err != nil {
		return nil, err
	}
	slots := slices.Collect(seq)
	for i := range slots {
		slots[i].DoctorID = p.ID
		slots[i].DoctorName = p.Name
	}
	return slots, nil
}

// Bookings indexes scheduled appointments by doctor and ISO date.
type Bookings map[uuid.UUID]map[string]TimeSet

// Add records a scheduled appointment.
func (b Bookings) Add(doctorID uuid.UUID, date, clock string) {
	byDate, ok := b[doctorID]
	if !ok {
		byDate = make(map[string]TimeSet)
		b[doctorID] = byDate
	}
	set, ok := byDate[date]
	if !ok {
		set = make(TimeSet)
		byDate[date] = set
	}
	set[clock] = struct{}{}
}

// Times returns the booked times of a doctor on date. The result may be nil.
func (b Bookings) Times(doctorID uuid.UUID, date string) TimeSet {
	return b[doctorID][date]
}

// Aggregate merges the slots of every provider on date into one list ordered
// by time. Slots at the same time keep the order of providers.
func Aggregate(providers []Provider, date time.Time, bookings Bookings) ([]TimeSlot, error) {
	day := FormatDate(date)
	var all []TimeSlot
	for _, p := range providers {
		slots, err := p.Slots(date, bookings.Times(p.ID, day))
		if err != nil {
			return nil, err
		}
		all = append(all, slots...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Time < all[j].Time })
	return all, nil
}

// AnyAvailable reports whether at least one slot is still open.
func AnyAvailable(slots []TimeSlot) bool {
	for _, s := range slots {
		if s.Available {
			return true
		}
	}
	return false
}

// Find returns the slot at clock, preferring an available one so that a
// specialty-wide view resolves to a doctor who can still take the booking.
func Find(slots []TimeSlot, clock string) (TimeSlot, bool) {
	var taken *TimeSlot
	for i := range slots {
		if slots[i].Time != clock {
			continue
		}
		if slots[i].Available {
			return slots[i], true
		}
		if taken == nil {
			taken = &slots[i]
		}
	}
	if taken != nil {
		return *taken, true
	}
	return TimeSlot{}, false
}
