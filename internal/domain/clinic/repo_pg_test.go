package clinic

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyPG(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		onDelete bool
		want     error
	}{
		{"no rows", pgx.ErrNoRows, false, ErrNotFound},
		{"unique", &pgconn.PgError{Code: "23505"}, false, ErrSlotUnavailable},
		{"fk on delete", &pgconn.PgError{Code: "23503"}, true, ErrInUse},
		{"fk on insert", &pgconn.PgError{Code: "23503", ConstraintName: "doctor_specialty_id_fkey"}, false, ErrNotFound},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, false, ErrPersistenceUnavailable},
		{"too many connections", &pgconn.PgError{Code: "53300"}, false, ErrPersistenceUnavailable},
		{"deadline", context.DeadlineExceeded, false, ErrPersistenceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyPG("op", tt.err, tt.onDelete); !errors.Is(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	other := classifyPG("op", &pgconn.PgError{Code: "22001"}, false)
	for _, kind := range []error{ErrNotFound, ErrSlotUnavailable, ErrPersistenceUnavailable, ErrInUse} {
		if errors.Is(other, kind) {
			t.Errorf("unexpected classification %v for 22001", kind)
		}
	}
	if classifyPG("op", nil, false) != nil {
		t.Error("nil error must stay nil")
	}
}

func TestAppointmentQuery(t *testing.T) {
	q, args := appointmentQuery(AppointmentFilter{})
	if len(args) != 0 || strings.Contains(q, "$1") {
		t.Errorf("empty filter should have no params: %s %v", q, args)
	}

	id := uuid.New()
	q, args = appointmentQuery(AppointmentFilter{DoctorID: &id, From: "2024-06-10", To: "2024-06-20", Status: StatusScheduled})
	for _, want := range []string{"doctor_id = $1", "date >= $2::date", "date <= $3::date", "status = $4", "ORDER BY date, time"} {
		if !strings.Contains(q, want) {
			t.Errorf("query missing %q: %s", want, q)
		}
	}
	if len(args) != 4 {
		t.Errorf("expected 4 args, got %d", len(args))
	}

	q, args = appointmentQuery(AppointmentFilter{DoctorIDs: []uuid.UUID{id}})
	if !strings.Contains(q, "doctor_id = ANY($1)") || len(args) != 1 {
		t.Errorf("unexpected query for doctor set: %s %v", q, args)
	}
}
