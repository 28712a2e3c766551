package clinic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/chat-incom/agendamento/internal/platform/availability"
)

func TestHostedDay(t *testing.T) {
	tests := []struct {
		label string
		want  availability.Weekday
	}{
		{"Segunda", availability.Monday},
		{"segunda-feira", availability.Monday},
		{"Terça", availability.Tuesday},
		{"terca-feira", availability.Tuesday},
		{"Quarta-feira", availability.Wednesday},
		{"Quinta", availability.Thursday},
		{"Sexta", availability.Friday},
		{"Sábado", availability.Saturday},
		{"domingo", availability.Sunday},
		{"friday", availability.Friday},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := hostedDay(tt.label)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("hostedDay(%q) = %s, want %s", tt.label, got, tt.want)
			}
		})
	}
	if _, err := hostedDay("Feriado"); err == nil {
		t.Error("expected error for unknown label")
	}
}

func TestHostedDay_RoundTrip(t *testing.T) {
	for _, d := range availability.Weekdays {
		label, ok := toHostedDay[d]
		if !ok {
			t.Fatalf("no label for %s", d)
		}
		got, err := hostedDay(label)
		if err != nil || got != d {
			t.Errorf("round trip %s -> %q -> %s (%v)", d, label, got, err)
		}
	}
}

func TestAgendaToHours(t *testing.T) {
	id := uuid.New()
	twenty := 20
	rows := []agendaRow{
		{MedicoID: id, DiaSemana: "Segunda", HorarioInicio: "08:00:00", HorarioFim: "12:00:00", TempoIntervalo: &twenty},
		{MedicoID: id, DiaSemana: "Quarta", HorarioInicio: "13:00", HorarioFim: "17:00"},
	}
	hours, err := agendaToHours(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []availability.WorkingHours{
		{Day: availability.Monday, StartTime: "08:00", EndTime: "12:00", IntervalMinutes: 20},
		{Day: availability.Wednesday, StartTime: "13:00", EndTime: "17:00", IntervalMinutes: defaultHostedInterval},
	}
	for i := range want {
		if hours[i] != want[i] {
			t.Errorf("entry %d: got %+v, want %+v", i, hours[i], want[i])
		}
	}

	back := hoursToAgenda(id, hours)
	if back[0].DiaSemana != "Segunda" || back[1].DiaSemana != "Quarta" {
		t.Errorf("expected Portuguese labels, got %q %q", back[0].DiaSemana, back[1].DiaSemana)
	}

	if _, err := agendaToHours([]agendaRow{{DiaSemana: "??"}}); err == nil {
		t.Error("expected error for unknown weekday")
	}
}

func TestRowToAppointment(t *testing.T) {
	email := "maria@example.com"
	row := agendamentoRow{
		ID: uuid.New(), UsuarioID: uuid.New(), MedicoID: uuid.New(),
		Data: "2024-06-10", Horario: "09:30:00",
		Usuario: &usuarioRow{Nome: "Maria", DataNascimento: "1990-01-01", Cidade: "SP", Contato: "11", Email: &email},
	}
	a := rowToAppointment(row)
	if a.Time != "09:30" {
		t.Errorf("expected 09:30, got %s", a.Time)
	}
	if a.Status != StatusScheduled {
		t.Errorf("missing status should read as scheduled, got %s", a.Status)
	}
	if !a.SelfPay() {
		t.Error("expected self-pay without convenio")
	}
	if a.Patient.Email != email || a.Patient.Phone != "11" {
		t.Errorf("patient snapshot not mapped: %+v", a.Patient)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifySupabase(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		onDelete bool
		want     error
	}{
		{"duplicate", errors.New(`(23505) duplicate key value violates unique constraint`), false, ErrSlotUnavailable},
		{"fk on delete", errors.New(`(23503) update or delete violates foreign key`), true, ErrInUse},
		{"fk on insert", errors.New(`(23503) insert violates foreign key`), false, ErrNotFound},
		{"no rows", errors.New(`(PGRST116) JSON object requested, multiple (or no) rows returned`), false, ErrNotFound},
		{"refused", errors.New(`dial tcp 127.0.0.1:54321: connect: connection refused`), false, ErrPersistenceUnavailable},
		{"gateway", errors.New(`unexpected status 503`), false, ErrPersistenceUnavailable},
		{"net timeout", fmt.Errorf("request: %w", timeoutErr{}), false, ErrPersistenceUnavailable},
		{"deadline", context.DeadlineExceeded, false, ErrPersistenceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifySupabase("op", tt.err, tt.onDelete)
			if !errors.Is(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
	if classifySupabase("op", nil, false) != nil {
		t.Error("nil error must stay nil")
	}
}

func TestSupabaseMutation_ResponseBody(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		notFound bool
	}{
		{"empty representation", `[]`, true},
		{"undecodable body", `<html>bad gateway</html>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			repo, err := NewSupabaseRepository(srv.URL, "test-key")
			if err != nil {
				t.Fatalf("NewSupabaseRepository: %v", err)
			}
			err = repo.DeleteSpecialty(context.Background(), uuid.New())
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errors.Is(err, ErrNotFound); got != tt.notFound {
				t.Errorf("errors.Is(ErrNotFound) = %v, want %v (err %v)", got, tt.notFound, err)
			}
		})
	}
}
