package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

const (
	activeSlotConstraint = "appointments_active_slot_key"
	numberConstraint     = "appointments_appointment_number_key"
	patientFKConstraint  = "appointments_patient_id_fkey"
	doctorFKConstraint   = "appointments_doctor_id_fkey"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const apptCols = `a.id, a.appointment_number, a.patient_id, a.doctor_id, a.appointment_date,
	a.appointment_time, a.type, a.status, a.reason, a.diagnosis, a.treatment, a.prescription,
	a.notes, a.cancellation_reason, a.created_by, a.created_at, a.updated_at,
	COALESCE(p.first_name || ' ' || p.last_name, ''), COALESCE(s.first_name || ' ' || s.last_name, '')`

const apptFrom = ` FROM appointments a
	LEFT JOIN patients p ON p.id = a.patient_id
	LEFT JOIN staff s ON s.id = a.doctor_id`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date time.Time
	var tod string
	err := row.Scan(&a.ID, &a.AppointmentNumber, &a.PatientID, &a.DoctorID, &date,
		&tod, &a.Type, &a.Status, &a.Reason, &a.Diagnosis, &a.Treatment, &a.Prescription,
		&a.Notes, &a.CancellationReason, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
		&a.PatientName, &a.DoctorName)
	if err != nil {
		return nil, err
	}
	a.Date = NewDate(date)
	if a.Time, err = ParseTimeOfDay(tod); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, appointment_number, patient_id, doctor_id, appointment_date,
			appointment_time, type, status, reason, notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		a.ID, a.AppointmentNumber, a.PatientID, a.DoctorID, a.Date.Time(),
		a.Time.String(), a.Type, a.Status, a.Reason, a.Notes, a.CreatedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return translateWriteError(err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+apptFrom+` WHERE a.id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	return a, err
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+apptFrom+` WHERE a.id = $1 FOR UPDATE OF a`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	return a, err
}

// Update writes the given columns. Column names come from the fixed field
// table, never from the request.
func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment, set []Assignment) error {
	if len(set) == 0 {
		return nil
	}
	sets := make([]string, 0, len(set)+1)
	args := []interface{}{a.ID}
	for i, s := range set {
		sets = append(sets, fmt.Sprintf("%s = $%d", s.Column, i+2))
		args = append(args, s.Value)
	}
	sets = append(sets, "updated_at = NOW()")

	err := r.conn(ctx).QueryRow(ctx,
		`UPDATE appointments SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING updated_at`,
		args...).Scan(&a.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("appointment %s not found", a.ID)
	}
	return translateWriteError(err)
}

func (r *appointmentRepoPG) BookedTimes(ctx context.Context, doctorID uuid.UUID, date Date) (map[TimeOfDay]bool, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT appointment_time FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2 AND status <> $3`,
		doctorID, date.Time(), StatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	booked := make(map[TimeOfDay]bool)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		t, err := ParseTimeOfDay(s)
		if err != nil {
			return nil, err
		}
		booked[t] = true
	}
	return booked, rows.Err()
}

func (r *appointmentRepoPG) CountOccupying(ctx context.Context, doctorID uuid.UUID, date Date, t TimeOfDay, exclude *uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2 AND appointment_time = $3 AND status <> $4`
	args := []interface{}{doctorID, date.Time(), t.String(), StatusCancelled}
	if exclude != nil {
		query += ` AND id <> $5`
		args = append(args, *exclude)
	}
	var n int
	err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&n)
	return n, err
}

func (r *appointmentRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(` AND a.status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.DoctorID != uuid.Nil {
		where += fmt.Sprintf(` AND a.doctor_id = $%d`, idx)
		args = append(args, f.DoctorID)
		idx++
	}
	if f.PatientID != uuid.Nil {
		where += fmt.Sprintf(` AND a.patient_id = $%d`, idx)
		args = append(args, f.PatientID)
		idx++
	}
	if !f.Date.IsZero() {
		where += fmt.Sprintf(` AND a.appointment_date = $%d`, idx)
		args = append(args, f.Date.Time())
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + apptFrom + where +
		fmt.Sprintf(` ORDER BY a.appointment_date DESC, a.appointment_time DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) ListByDay(ctx context.Context, date Date, doctorID *uuid.UUID) ([]*Appointment, error) {
	query := `SELECT ` + apptCols + apptFrom + ` WHERE a.appointment_date = $1 AND a.status <> $2`
	args := []interface{}{date.Time(), StatusCancelled}
	if doctorID != nil {
		query += ` AND a.doctor_id = $3`
		args = append(args, *doctorID)
	}
	query += ` ORDER BY a.appointment_time, s.last_name`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Appointment{}
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// translateWriteError maps constraint violations onto the domain taxonomy.
// A collision on the appointment number means a concurrent allocation won and
// the transaction is worth running again.
func translateWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, activeSlotConstraint):
		return apperr.Conflict("the doctor already has an appointment at this time")
	case db.IsUniqueViolation(err, numberConstraint):
		return db.Retryable(err)
	case db.IsForeignKeyViolation(err, patientFKConstraint):
		return apperr.NotFound("patient not found")
	case db.IsForeignKeyViolation(err, doctorFKConstraint):
		return apperr.NotFound("doctor not found")
	}
	return err
}
