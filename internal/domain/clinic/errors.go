package clinic

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSlotUnavailable is returned when a scheduled appointment already
	// holds the doctor, date and time being booked.
	ErrSlotUnavailable = errors.New("slot is no longer available")
	// ErrPersistenceUnavailable is returned when the backing store cannot be
	// reached or is not configured.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	// ErrInvalidTransition is returned for a status change out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInUse is returned when deleting a record that others still reference.
	ErrInUse = errors.New("record is still referenced")
)

// ValidationError carries per-field messages for rejected input. It is raised
// before anything reaches the store.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError from field/message pairs.
func NewValidationError(pairs ...string) *ValidationError {
	v := &ValidationError{Fields: make(map[string]string, len(pairs)/2)}
	for i := 0; i+1 < len(pairs); i += 2 {
		v.Fields[pairs[i]] = pairs[i+1]
	}
	return v
}

// Add records a field message.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrPersistenceUnavailable, err)
}
