package clinic

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chat-incom/agendamento/internal/platform/availability"
	"github.com/chat-incom/agendamento/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type postgresRepo struct{ pool *pgxpool.Pool }

// NewPostgresRepository returns a Repository backed by the clinic schema in
// migrations/.
func NewPostgresRepository(pool *pgxpool.Pool) Repository { return &postgresRepo{pool: pool} }

func (r *postgresRepo) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *postgresRepo) Backend() string { return "postgres" }

func (r *postgresRepo) Ping(ctx context.Context) error {
	return classifyPG("ping", r.pool.Ping(ctx), false)
}

// classifyPG maps driver errors onto the repository error kinds. onDelete
// selects how a foreign-key violation reads: a delete that is still
// referenced, or an insert pointing at a missing row.
func classifyPG(op string, err error, onDelete bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", op, ErrSlotUnavailable)
		case "23503":
			if onDelete {
				return fmt.Errorf("%s: %w", op, ErrInUse)
			}
			return fmt.Errorf("%s: %w: %s", op, ErrNotFound, pgErr.ConstraintName)
		case "57P01", "57P02", "57P03", "53300":
			return unavailable(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if isConnectionError(err) {
		return unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnectionError(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

func requireRow(op string, tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// =========== Specialties ===========

const specialtyCols = `id, name, description, created_at`

func scanSpecialty(row pgx.Row) (*Specialty, error) {
	var s Specialty
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt)
	return &s, err
}

func (r *postgresRepo) ListSpecialties(ctx context.Context) ([]*Specialty, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+specialtyCols+` FROM specialty ORDER BY name`)
	if err != nil {
		return nil, classifyPG("list specialties", err, false)
	}
	defer rows.Close()
	var items []*Specialty
	for rows.Next() {
		s, err := scanSpecialty(rows)
		if err != nil {
			return nil, classifyPG("scan specialty", err, false)
		}
		items = append(items, s)
	}
	return items, classifyPG("list specialties", rows.Err(), false)
}

func (r *postgresRepo) GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	s, err := scanSpecialty(r.conn(ctx).QueryRow(ctx, `SELECT `+specialtyCols+` FROM specialty WHERE id = $1`, id))
	if err != nil {
		return nil, classifyPG("get specialty", err, false)
	}
	return s, nil
}

func (r *postgresRepo) CreateSpecialty(ctx context.Context, s *Specialty) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO specialty (id, name, description) VALUES ($1, $2, $3)
		RETURNING created_at`, s.ID, s.Name, s.Description).Scan(&s.CreatedAt)
	return classifyPG("create specialty", err, false)
}

func (r *postgresRepo) UpdateSpecialty(ctx context.Context, s *Specialty) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE specialty SET name = $2, description = $3 WHERE id = $1
		RETURNING created_at`, s.ID, s.Name, s.Description).Scan(&s.CreatedAt)
	return classifyPG("update specialty", err, false)
}

func (r *postgresRepo) DeleteSpecialty(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM specialty WHERE id = $1`, id)
	if err != nil {
		return classifyPG("delete specialty", err, true)
	}
	return requireRow("delete specialty", tag)
}

// =========== Insurances ===========

const insuranceCols = `id, name, COALESCE(type, ''), created_at`

func scanInsurance(row pgx.Row) (*Insurance, error) {
	var i Insurance
	err := row.Scan(&i.ID, &i.Name, &i.Type, &i.CreatedAt)
	return &i, err
}

func nullableType(t InsuranceType) *string {
	if t == "" {
		return nil
	}
	s := string(t)
	return &s
}

func (r *postgresRepo) ListInsurances(ctx context.Context) ([]*Insurance, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+insuranceCols+` FROM insurance ORDER BY name`)
	if err != nil {
		return nil, classifyPG("list insurances", err, false)
	}
	defer rows.Close()
	var items []*Insurance
	for rows.Next() {
		i, err := scanInsurance(rows)
		if err != nil {
			return nil, classifyPG("scan insurance", err, false)
		}
		items = append(items, i)
	}
	return items, classifyPG("list insurances", rows.Err(), false)
}

func (r *postgresRepo) GetInsurance(ctx context.Context, id uuid.UUID) (*Insurance, error) {
	i, err := scanInsurance(r.conn(ctx).QueryRow(ctx, `SELECT `+insuranceCols+` FROM insurance WHERE id = $1`, id))
	if err != nil {
		return nil, classifyPG("get insurance", err, false)
	}
	return i, nil
}

func (r *postgresRepo) CreateInsurance(ctx context.Context, i *Insurance) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO insurance (id, name, type) VALUES ($1, $2, $3)
		RETURNING created_at`, i.ID, i.Name, nullableType(i.Type)).Scan(&i.CreatedAt)
	return classifyPG("create insurance", err, false)
}

func (r *postgresRepo) UpdateInsurance(ctx context.Context, i *Insurance) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE insurance SET name = $2, type = $3 WHERE id = $1
		RETURNING created_at`, i.ID, i.Name, nullableType(i.Type)).Scan(&i.CreatedAt)
	return classifyPG("update insurance", err, false)
}

func (r *postgresRepo) DeleteInsurance(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM insurance WHERE id = $1`, id)
	if err != nil {
		return classifyPG("delete insurance", err, true)
	}
	return requireRow("delete insurance", tag)
}

// =========== Doctors ===========

const doctorCols = `id, name, license_number, specialty_id, created_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.LicenseNumber, &d.SpecialtyID, &d.CreatedAt)
	return &d, err
}

// loadAssociations fills working hours and insurance ids for the given doctors.
func (r *postgresRepo) loadAssociations(ctx context.Context, doctors []*Doctor) error {
	if len(doctors) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Doctor, len(doctors))
	ids := make([]uuid.UUID, len(doctors))
	for i, d := range doctors {
		byID[d.ID] = d
		ids[i] = d.ID
		d.InsuranceIDs = []uuid.UUID{}
		d.WorkingHours = []availability.WorkingHours{}
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT doctor_id, day, start_time, end_time, interval_minutes
		FROM working_hours WHERE doctor_id = ANY($1)`, ids)
	if err != nil {
		return classifyPG("load working hours", err, false)
	}
	for rows.Next() {
		var id uuid.UUID
		var wh availability.WorkingHours
		var day string
		if err := rows.Scan(&id, &day, &wh.StartTime, &wh.EndTime, &wh.IntervalMinutes); err != nil {
			rows.Close()
			return classifyPG("scan working hours", err, false)
		}
		wh.Day = availability.Weekday(day)
		byID[id].WorkingHours = append(byID[id].WorkingHours, wh)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return classifyPG("load working hours", err, false)
	}

	rows, err = r.conn(ctx).Query(ctx, `
		SELECT doctor_id, insurance_id FROM doctor_insurance
		WHERE doctor_id = ANY($1) ORDER BY insurance_id`, ids)
	if err != nil {
		return classifyPG("load doctor insurances", err, false)
	}
	defer rows.Close()
	for rows.Next() {
		var id, insID uuid.UUID
		if err := rows.Scan(&id, &insID); err != nil {
			return classifyPG("scan doctor insurance", err, false)
		}
		byID[id].InsuranceIDs = append(byID[id].InsuranceIDs, insID)
	}
	if err := rows.Err(); err != nil {
		return classifyPG("load doctor insurances", err, false)
	}
	for _, d := range doctors {
		d.SortWorkingHours()
	}
	return nil
}

func (r *postgresRepo) ListDoctors(ctx context.Context) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctor ORDER BY name, id`)
	if err != nil {
		return nil, classifyPG("list doctors", err, false)
	}
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			rows.Close()
			return nil, classifyPG("scan doctor", err, false)
		}
		items = append(items, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classifyPG("list doctors", err, false)
	}
	if err := r.loadAssociations(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *postgresRepo) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
	if err != nil {
		return nil, classifyPG("get doctor", err, false)
	}
	if err := r.loadAssociations(ctx, []*Doctor{d}); err != nil {
		return nil, err
	}
	return d, nil
}

// replaceAssociations deletes and reinserts the doctor's working hours and
// insurance rows. Callers run it inside a transaction.
func (r *postgresRepo) replaceAssociations(ctx context.Context, d *Doctor) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM working_hours WHERE doctor_id = $1`, d.ID); err != nil {
		return classifyPG("clear working hours", err, false)
	}
	if _, err := q.Exec(ctx, `DELETE FROM doctor_insurance WHERE doctor_id = $1`, d.ID); err != nil {
		return classifyPG("clear doctor insurances", err, false)
	}
	for _, wh := range d.WorkingHours {
		if _, err := q.Exec(ctx, `
			INSERT INTO working_hours (doctor_id, day, start_time, end_time, interval_minutes)
			VALUES ($1, $2, $3, $4, $5)`,
			d.ID, string(wh.Day), wh.StartTime, wh.EndTime, wh.IntervalMinutes); err != nil {
			return classifyPG("insert working hours", err, false)
		}
	}
	for _, insID := range d.InsuranceIDs {
		if _, err := q.Exec(ctx, `
			INSERT INTO doctor_insurance (doctor_id, insurance_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, d.ID, insID); err != nil {
			return classifyPG("insert doctor insurance", err, false)
		}
	}
	return nil
}

func (r *postgresRepo) CreateDoctor(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return r.inTx(ctx, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO doctor (id, name, license_number, specialty_id) VALUES ($1, $2, $3, $4)
			RETURNING created_at`, d.ID, d.Name, d.LicenseNumber, d.SpecialtyID).Scan(&d.CreatedAt)
		if err != nil {
			return classifyPG("create doctor", err, false)
		}
		return r.replaceAssociations(ctx, d)
	})
}

func (r *postgresRepo) UpdateDoctor(ctx context.Context, d *Doctor) error {
	return r.inTx(ctx, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			UPDATE doctor SET name = $2, license_number = $3, specialty_id = $4 WHERE id = $1
			RETURNING created_at`, d.ID, d.Name, d.LicenseNumber, d.SpecialtyID).Scan(&d.CreatedAt)
		if err != nil {
			return classifyPG("update doctor", err, false)
		}
		return r.replaceAssociations(ctx, d)
	})
}

func (r *postgresRepo) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor WHERE id = $1`, id)
	if err != nil {
		return classifyPG("delete doctor", err, true)
	}
	return requireRow("delete doctor", tag)
}

func (r *postgresRepo) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	err := db.RunInTx(ctx, r.pool, fn)
	if err != nil && !isClassified(err) {
		return classifyPG("transaction", err, false)
	}
	return err
}

func isClassified(err error) bool {
	for _, kind := range []error{ErrNotFound, ErrSlotUnavailable, ErrPersistenceUnavailable, ErrInUse} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// =========== Patients & Appointments ===========

func (r *postgresRepo) CreatePatient(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, name, birth_date, city, phone, email)
		VALUES ($1, $2, $3::date, $4, $5, NULLIF($6, ''))
		RETURNING created_at`,
		p.ID, p.Name, p.BirthDate, p.City, p.Phone, p.Email).Scan(&p.CreatedAt)
	return classifyPG("create patient", err, false)
}

const appointmentCols = `id, doctor_id, patient_id, to_char(date, 'YYYY-MM-DD'), time,
	patient_name, to_char(patient_birth_date, 'YYYY-MM-DD'), patient_city, patient_phone,
	COALESCE(patient_email, ''), insurance_id, status, created_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.Date, &a.Time,
		&a.Patient.Name, &a.Patient.BirthDate, &a.Patient.City, &a.Patient.Phone,
		&a.Patient.Email, &a.InsuranceID, &status, &a.CreatedAt)
	a.Status = AppointmentStatus(status)
	return &a, err
}

func (r *postgresRepo) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, doctor_id, patient_id, date, time,
			patient_name, patient_birth_date, patient_city, patient_phone, patient_email,
			insurance_id, status)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7::date, $8, $9, NULLIF($10, ''), $11, $12)
		RETURNING created_at`,
		a.ID, a.DoctorID, a.PatientID, a.Date, a.Time,
		a.Patient.Name, a.Patient.BirthDate, a.Patient.City, a.Patient.Phone, a.Patient.Email,
		a.InsuranceID, string(a.Status)).Scan(&a.CreatedAt)
	return classifyPG("create appointment", err, false)
}

func (r *postgresRepo) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointment WHERE id = $1`, id))
	if err != nil {
		return nil, classifyPG("get appointment", err, false)
	}
	return a, nil
}

// appointmentQuery builds the WHERE clause for f.
func appointmentQuery(f AppointmentFilter) (string, []interface{}) {
	query := `SELECT ` + appointmentCols + ` FROM appointment WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.DoctorID != nil {
		query += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if len(f.DoctorIDs) > 0 {
		query += fmt.Sprintf(` AND doctor_id = ANY($%d)`, idx)
		args = append(args, f.DoctorIDs)
		idx++
	}
	if f.From != "" {
		query += fmt.Sprintf(` AND date >= $%d::date`, idx)
		args = append(args, f.From)
		idx++
	}
	if f.To != "" {
		query += fmt.Sprintf(` AND date <= $%d::date`, idx)
		args = append(args, f.To)
		idx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY date, time, created_at`
	return query, args
}

func (r *postgresRepo) ListAppointments(ctx context.Context, f AppointmentFilter) ([]*Appointment, error) {
	query, args := appointmentQuery(f)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, classifyPG("list appointments", err, false)
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, classifyPG("scan appointment", err, false)
		}
		items = append(items, a)
	}
	return items, classifyPG("list appointments", rows.Err(), false)
}

// UpdateAppointmentStatus only moves rows that are still scheduled, so the
// transition check and the write are one statement.
func (r *postgresRepo) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error {
	if !StatusScheduled.CanTransition(status) {
		return fmt.Errorf("-> %s: %w", status, ErrInvalidTransition)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET status = $2 WHERE id = $1 AND status = 'scheduled'`, id, string(status))
	if err != nil {
		return classifyPG("update appointment", err, false)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	cur, err := r.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%s -> %s: %w", cur.Status, status, ErrInvalidTransition)
}
