package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/chat-incom/agendamento/internal/platform/availability"
)

// Hosted table names. The hosted project predates this service and keeps its
// Portuguese schema.
const (
	tblSpecialties      = "especialidades"
	tblInsurances       = "convenios"
	tblDoctors          = "medicos"
	tblDoctorInsurances = "medico_convenios"
	tblSchedule         = "agenda"
	tblPatients         = "usuarios"
	tblAppointments     = "agendamentos"
)

// defaultHostedInterval applies to agenda rows with a null tempo_intervalo.
const defaultHostedInterval = 30

var (
	toHostedDay = map[availability.Weekday]string{
		availability.Monday:    "Segunda",
		availability.Tuesday:   "Terça",
		availability.Wednesday: "Quarta",
		availability.Thursday:  "Quinta",
		availability.Friday:    "Sexta",
		availability.Saturday:  "Sábado",
		availability.Sunday:    "Domingo",
	}
	fromHostedDay = map[string]availability.Weekday{
		"segunda": availability.Monday,
		"terça":   availability.Tuesday,
		"terca":   availability.Tuesday,
		"quarta":  availability.Wednesday,
		"quinta":  availability.Thursday,
		"sexta":   availability.Friday,
		"sábado":  availability.Saturday,
		"sabado":  availability.Saturday,
		"domingo": availability.Sunday,
	}
)

// hostedDay translates a stored dia_semana label. Rows written by older
// clients sometimes hold the English key, so both are accepted.
func hostedDay(label string) (availability.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.TrimSuffix(key, "-feira")
	if d, ok := fromHostedDay[key]; ok {
		return d, nil
	}
	return availability.ParseWeekday(key)
}

type especialidadeRow struct {
	ID        uuid.UUID  `json:"id"`
	Nome      string     `json:"nome"`
	Descricao *string    `json:"descricao,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type convenioRow struct {
	ID        uuid.UUID  `json:"id"`
	Nome      string     `json:"nome"`
	Tipo      *string    `json:"tipo,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type medicoRow struct {
	ID              uuid.UUID  `json:"id"`
	Nome            string     `json:"nome"`
	CRM             string     `json:"crm"`
	EspecialidadeID *uuid.UUID `json:"especialidade_id"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}

type medicoConvenioRow struct {
	MedicoID   uuid.UUID `json:"medico_id"`
	ConvenioID uuid.UUID `json:"convenio_id"`
}

type agendaRow struct {
	MedicoID       uuid.UUID `json:"medico_id"`
	DiaSemana      string    `json:"dia_semana"`
	HorarioInicio  string    `json:"horario_inicio"`
	HorarioFim     string    `json:"horario_fim"`
	TempoIntervalo *int      `json:"tempo_intervalo"`
}

type usuarioRow struct {
	ID             uuid.UUID `json:"id"`
	Nome           string    `json:"nome"`
	DataNascimento string    `json:"data_nascimento"`
	Cidade         string    `json:"cidade"`
	Contato        string    `json:"contato"`
	Email          *string   `json:"email,omitempty"`
}

type agendamentoRow struct {
	ID         uuid.UUID   `json:"id"`
	UsuarioID  uuid.UUID   `json:"usuario_id"`
	MedicoID   uuid.UUID   `json:"medico_id"`
	Data       string      `json:"data"`
	Horario    string      `json:"horario"`
	ConvenioID *uuid.UUID  `json:"convenio_id"`
	Status     string      `json:"status,omitempty"`
	CriadoEm   *time.Time  `json:"criado_em,omitempty"`
	Usuario    *usuarioRow `json:"usuarios,omitempty"`
}

// clock trims a database time ("08:00:00") to HH:MM.
func clock(s string) string {
	if len(s) > 5 {
		return s[:5]
	}
	return s
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func agendaToHours(rows []agendaRow) ([]availability.WorkingHours, error) {
	out := make([]availability.WorkingHours, 0, len(rows))
	for _, r := range rows {
		day, err := hostedDay(r.DiaSemana)
		if err != nil {
			return nil, fmt.Errorf("agenda for %s: %w", r.MedicoID, err)
		}
		interval := defaultHostedInterval
		if r.TempoIntervalo != nil {
			interval = *r.TempoIntervalo
		}
		out = append(out, availability.WorkingHours{
			Day:             day,
			StartTime:       clock(r.HorarioInicio),
			EndTime:         clock(r.HorarioFim),
			IntervalMinutes: interval,
		})
	}
	return out, nil
}

func hoursToAgenda(doctorID uuid.UUID, hours []availability.WorkingHours) []agendaRow {
	out := make([]agendaRow, len(hours))
	for i, wh := range hours {
		interval := wh.IntervalMinutes
		out[i] = agendaRow{
			MedicoID:       doctorID,
			DiaSemana:      toHostedDay[wh.Day],
			HorarioInicio:  wh.StartTime,
			HorarioFim:     wh.EndTime,
			TempoIntervalo: &interval,
		}
	}
	return out
}

func assembleDoctors(medicos []medicoRow, agenda []agendaRow, links []medicoConvenioRow) ([]*Doctor, error) {
	hoursBy := make(map[uuid.UUID][]agendaRow)
	for _, a := range agenda {
		hoursBy[a.MedicoID] = append(hoursBy[a.MedicoID], a)
	}
	insBy := make(map[uuid.UUID][]uuid.UUID)
	for _, l := range links {
		insBy[l.MedicoID] = append(insBy[l.MedicoID], l.ConvenioID)
	}
	out := make([]*Doctor, 0, len(medicos))
	for _, m := range medicos {
		hours, err := agendaToHours(hoursBy[m.ID])
		if err != nil {
			return nil, err
		}
		d := &Doctor{
			ID:            m.ID,
			Name:          m.Nome,
			LicenseNumber: m.CRM,
			SpecialtyID:   deref(m.EspecialidadeID),
			InsuranceIDs:  insBy[m.ID],
			WorkingHours:  hours,
			CreatedAt:     deref(m.CreatedAt),
		}
		if d.InsuranceIDs == nil {
			d.InsuranceIDs = []uuid.UUID{}
		}
		d.SortWorkingHours()
		out = append(out, d)
	}
	return out, nil
}

func rowToAppointment(r agendamentoRow) *Appointment {
	a := &Appointment{
		ID:          r.ID,
		DoctorID:    r.MedicoID,
		PatientID:   r.UsuarioID,
		Date:        r.Data,
		Time:        clock(r.Horario),
		InsuranceID: r.ConvenioID,
		Status:      AppointmentStatus(r.Status),
		CreatedAt:   deref(r.CriadoEm),
	}
	if !a.Status.Valid() {
		a.Status = StatusScheduled
	}
	if u := r.Usuario; u != nil {
		a.Patient = PatientInfo{
			Name:      u.Nome,
			BirthDate: u.DataNascimento,
			City:      u.Cidade,
			Phone:     u.Contato,
			Email:     deref(u.Email),
		}
	}
	return a
}

// classifySupabase maps PostgREST and transport failures onto the repository
// error kinds. PostgREST reports the SQLSTATE in the error text.
func classifySupabase(op string, err error, onDelete bool) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return unavailable(op, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key"):
		return fmt.Errorf("%s: %w", op, ErrSlotUnavailable)
	case strings.Contains(msg, "23503"):
		if onDelete {
			return fmt.Errorf("%s: %w", op, ErrInUse)
		}
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case strings.Contains(msg, "PGRST116"):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "503"), strings.Contains(msg, "502"), strings.Contains(msg, "504"):
		return unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type supabaseRepo struct {
	client *supa.Client
}

// NewSupabaseRepository connects to a hosted Supabase project.
func NewSupabaseRepository(url, key string) (Repository, error) {
	if url == "" || key == "" {
		return nil, fmt.Errorf("supabase: url and key are required: %w", ErrPersistenceUnavailable)
	}
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, unavailable("supabase client", err)
	}
	return &supabaseRepo{client: client}, nil
}

func (r *supabaseRepo) Backend() string { return "supabase" }

// fetch runs a select and decodes the JSON array into out.
func fetch[T any](op string, fb *postgrest.FilterBuilder) ([]T, error) {
	data, _, err := fb.Execute()
	if err != nil {
		return nil, classifySupabase(op, err, false)
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	return out, nil
}

func first[T any](op string, rows []T, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return &rows[0], nil
}

func (r *supabaseRepo) exec(op string, fb *postgrest.FilterBuilder, onDelete bool) (int, error) {
	data, _, err := fb.Execute()
	if err != nil {
		return 0, classifySupabase(op, err, onDelete)
	}
	var rows []json.RawMessage
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rows); err != nil {
			return 0, fmt.Errorf("%s: decode: %w", op, err)
		}
	}
	return len(rows), nil
}

func (r *supabaseRepo) mutateOne(op string, fb *postgrest.FilterBuilder, onDelete bool) error {
	n, err := r.exec(op, fb, onDelete)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func (r *supabaseRepo) Ping(_ context.Context) error {
	_, err := fetch[especialidadeRow]("ping", r.client.From(tblSpecialties).Select("id", "", false).Limit(1, ""))
	return err
}

// =========== Specialties ===========

func specialtyFromRow(row especialidadeRow) *Specialty {
	return &Specialty{ID: row.ID, Name: row.Nome, Description: row.Descricao, CreatedAt: deref(row.CreatedAt)}
}

func (r *supabaseRepo) ListSpecialties(_ context.Context) ([]*Specialty, error) {
	rows, err := fetch[especialidadeRow]("list specialties",
		r.client.From(tblSpecialties).Select("*", "", false).Order("nome", &postgrest.OrderOpts{Ascending: true}))
	if err != nil {
		return nil, err
	}
	out := make([]*Specialty, len(rows))
	for i, row := range rows {
		out[i] = specialtyFromRow(row)
	}
	return out, nil
}

func (r *supabaseRepo) GetSpecialty(_ context.Context, id uuid.UUID) (*Specialty, error) {
	rows, err := fetch[especialidadeRow]("get specialty",
		r.client.From(tblSpecialties).Select("*", "", false).Eq("id", id.String()))
	row, err := first("get specialty", rows, err)
	if err != nil {
		return nil, err
	}
	return specialtyFromRow(*row), nil
}

func (r *supabaseRepo) CreateSpecialty(_ context.Context, s *Specialty) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	row := especialidadeRow{ID: s.ID, Nome: s.Name, Descricao: s.Description}
	_, err := r.exec("create specialty", r.client.From(tblSpecialties).Insert(row, false, "", "representation", ""), false)
	return err
}

func (r *supabaseRepo) UpdateSpecialty(_ context.Context, s *Specialty) error {
	row := map[string]any{"nome": s.Name, "descricao": s.Description}
	return r.mutateOne("update specialty",
		r.client.From(tblSpecialties).Update(row, "representation", "").Eq("id", s.ID.String()), false)
}

func (r *supabaseRepo) DeleteSpecialty(_ context.Context, id uuid.UUID) error {
	return r.mutateOne("delete specialty",
		r.client.From(tblSpecialties).Delete("representation", "").Eq("id", id.String()), true)
}

// =========== Insurances ===========

func insuranceFromRow(row convenioRow) *Insurance {
	return &Insurance{ID: row.ID, Name: row.Nome, Type: InsuranceType(deref(row.Tipo)), CreatedAt: deref(row.CreatedAt)}
}

func (r *supabaseRepo) ListInsurances(_ context.Context) ([]*Insurance, error) {
	rows, err := fetch[convenioRow]("list insurances",
		r.client.From(tblInsurances).Select("*", "", false).Order("nome", &postgrest.OrderOpts{Ascending: true}))
	if err != nil {
		return nil, err
	}
	out := make([]*Insurance, len(rows))
	for i, row := range rows {
		out[i] = insuranceFromRow(row)
	}
	return out, nil
}

func (r *supabaseRepo) GetInsurance(_ context.Context, id uuid.UUID) (*Insurance, error) {
	rows, err := fetch[convenioRow]("get insurance",
		r.client.From(tblInsurances).Select("*", "", false).Eq("id", id.String()))
	row, err := first("get insurance", rows, err)
	if err != nil {
		return nil, err
	}
	return insuranceFromRow(*row), nil
}

func (r *supabaseRepo) CreateInsurance(_ context.Context, i *Insurance) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	i.CreatedAt = time.Now()
	row := convenioRow{ID: i.ID, Nome: i.Name, Tipo: nullableType(i.Type)}
	_, err := r.exec("create insurance", r.client.From(tblInsurances).Insert(row, false, "", "representation", ""), false)
	return err
}

func (r *supabaseRepo) UpdateInsurance(_ context.Context, i *Insurance) error {
	row := map[string]any{"nome": i.Name, "tipo": nullableType(i.Type)}
	return r.mutateOne("update insurance",
		r.client.From(tblInsurances).Update(row, "representation", "").Eq("id", i.ID.String()), false)
}

func (r *supabaseRepo) DeleteInsurance(_ context.Context, id uuid.UUID) error {
	if _, err := r.exec("unlink insurance",
		r.client.From(tblDoctorInsurances).Delete("", "").Eq("convenio_id", id.String()), true); err != nil {
		return err
	}
	return r.mutateOne("delete insurance",
		r.client.From(tblInsurances).Delete("representation", "").Eq("id", id.String()), true)
}

// =========== Doctors ===========

func (r *supabaseRepo) loadDoctors(medicos []medicoRow) ([]*Doctor, error) {
	if len(medicos) == 0 {
		return []*Doctor{}, nil
	}
	ids := make([]string, len(medicos))
	for i, m := range medicos {
		ids[i] = m.ID.String()
	}
	agenda, err := fetch[agendaRow]("load agenda",
		r.client.From(tblSchedule).Select("*", "", false).In("medico_id", ids))
	if err != nil {
		return nil, err
	}
	links, err := fetch[medicoConvenioRow]("load doctor insurances",
		r.client.From(tblDoctorInsurances).Select("medico_id,convenio_id", "", false).In("medico_id", ids))
	if err != nil {
		return nil, err
	}
	return assembleDoctors(medicos, agenda, links)
}

func (r *supabaseRepo) ListDoctors(_ context.Context) ([]*Doctor, error) {
	medicos, err := fetch[medicoRow]("list doctors",
		r.client.From(tblDoctors).Select("*", "", false).Order("nome", &postgrest.OrderOpts{Ascending: true}))
	if err != nil {
		return nil, err
	}
	return r.loadDoctors(medicos)
}

func (r *supabaseRepo) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	medicos, err := fetch[medicoRow]("get doctor",
		r.client.From(tblDoctors).Select("*", "", false).Eq("id", id.String()))
	if _, err := first("get doctor", medicos, err); err != nil {
		return nil, err
	}
	doctors, err := r.loadDoctors(medicos)
	if err != nil {
		return nil, err
	}
	return doctors[0], nil
}

// replaceAssociations deletes and reinserts the doctor's agenda and insurance
// links. PostgREST offers no multi-statement transaction, so a failure midway
// leaves the doctor with a partial set that the next save overwrites.
func (r *supabaseRepo) replaceAssociations(d *Doctor) error {
	id := d.ID.String()
	if _, err := r.exec("clear agenda", r.client.From(tblSchedule).Delete("", "").Eq("medico_id", id), false); err != nil {
		return err
	}
	if _, err := r.exec("clear doctor insurances", r.client.From(tblDoctorInsurances).Delete("", "").Eq("medico_id", id), false); err != nil {
		return err
	}
	if len(d.WorkingHours) > 0 {
		if _, err := r.exec("insert agenda",
			r.client.From(tblSchedule).Insert(hoursToAgenda(d.ID, d.WorkingHours), false, "", "minimal", ""), false); err != nil {
			return err
		}
	}
	if len(d.InsuranceIDs) > 0 {
		links := make([]medicoConvenioRow, len(d.InsuranceIDs))
		for i, insID := range d.InsuranceIDs {
			links[i] = medicoConvenioRow{MedicoID: d.ID, ConvenioID: insID}
		}
		if _, err := r.exec("insert doctor insurances",
			r.client.From(tblDoctorInsurances).Insert(links, false, "", "minimal", ""), false); err != nil {
			return err
		}
	}
	return nil
}

func (r *supabaseRepo) CreateDoctor(_ context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now()
	spec := d.SpecialtyID
	row := medicoRow{ID: d.ID, Nome: d.Name, CRM: d.LicenseNumber, EspecialidadeID: &spec}
	if _, err := r.exec("create doctor", r.client.From(tblDoctors).Insert(row, false, "", "representation", ""), false); err != nil {
		return err
	}
	return r.replaceAssociations(d)
}

func (r *supabaseRepo) UpdateDoctor(_ context.Context, d *Doctor) error {
	row := map[string]any{"nome": d.Name, "crm": d.LicenseNumber, "especialidade_id": d.SpecialtyID}
	if err := r.mutateOne("update doctor",
		r.client.From(tblDoctors).Update(row, "representation", "").Eq("id", d.ID.String()), false); err != nil {
		return err
	}
	return r.replaceAssociations(d)
}

func (r *supabaseRepo) DeleteDoctor(_ context.Context, id uuid.UUID) error {
	return r.mutateOne("delete doctor",
		r.client.From(tblDoctors).Delete("representation", "").Eq("id", id.String()), true)
}

// =========== Patients & Appointments ===========

func (r *supabaseRepo) CreatePatient(_ context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	row := usuarioRow{ID: p.ID, Nome: p.Name, DataNascimento: p.BirthDate, Cidade: p.City, Contato: p.Phone}
	if p.Email != "" {
		row.Email = &p.Email
	}
	_, err := r.exec("create patient", r.client.From(tblPatients).Insert(row, false, "", "minimal", ""), false)
	return err
}

// CreateAppointment checks for a scheduled appointment in the same slot before
// inserting. A unique index on the hosted table, when present, closes the
// window between the check and the insert.
func (r *supabaseRepo) CreateAppointment(_ context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if a.Status == StatusScheduled {
		taken, err := fetch[agendamentoRow]("check slot",
			r.client.From(tblAppointments).Select("id,status", "", false).
				Eq("medico_id", a.DoctorID.String()).Eq("data", a.Date).Eq("horario", a.Time))
		if err != nil {
			return err
		}
		for _, t := range taken {
			if t.Status == "" || AppointmentStatus(t.Status) == StatusScheduled {
				return fmt.Errorf("%s %s: %w", a.Date, a.Time, ErrSlotUnavailable)
			}
		}
	}
	a.CreatedAt = time.Now()
	row := agendamentoRow{
		ID: a.ID, UsuarioID: a.PatientID, MedicoID: a.DoctorID,
		Data: a.Date, Horario: a.Time, ConvenioID: a.InsuranceID, Status: string(a.Status),
	}
	_, err := r.exec("create appointment", r.client.From(tblAppointments).Insert(row, false, "", "minimal", ""), false)
	return err
}

const appointmentSelect = "*,usuarios(*)"

func (r *supabaseRepo) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	rows, err := fetch[agendamentoRow]("get appointment",
		r.client.From(tblAppointments).Select(appointmentSelect, "", false).Eq("id", id.String()))
	row, err := first("get appointment", rows, err)
	if err != nil {
		return nil, err
	}
	return rowToAppointment(*row), nil
}

func (r *supabaseRepo) ListAppointments(_ context.Context, f AppointmentFilter) ([]*Appointment, error) {
	q := r.client.From(tblAppointments).Select(appointmentSelect, "", false)
	if f.DoctorID != nil {
		q = q.Eq("medico_id", f.DoctorID.String())
	}
	if len(f.DoctorIDs) > 0 {
		ids := make([]string, len(f.DoctorIDs))
		for i, id := range f.DoctorIDs {
			ids[i] = id.String()
		}
		q = q.In("medico_id", ids)
	}
	if f.From != "" {
		q = q.Gte("data", f.From)
	}
	if f.To != "" {
		q = q.Lte("data", f.To)
	}
	rows, err := fetch[agendamentoRow]("list appointments", q)
	if err != nil {
		return nil, err
	}
	out := make([]*Appointment, 0, len(rows))
	for _, row := range rows {
		a := rowToAppointment(row)
		// Rows without a status column value count as scheduled, so the status
		// filter runs here rather than in the query.
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	sortAppointments(out)
	return out, nil
}

func (r *supabaseRepo) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error {
	cur, err := r.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	if !cur.Status.CanTransition(status) {
		return fmt.Errorf("%s -> %s: %w", cur.Status, status, ErrInvalidTransition)
	}
	return r.mutateOne("update appointment",
		r.client.From(tblAppointments).Update(map[string]any{"status": string(status)}, "representation", "").
			Eq("id", id.String()), false)
}
