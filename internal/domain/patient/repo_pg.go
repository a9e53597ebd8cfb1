package patient

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
	codeConstraint  = "patients_patient_code_key"
	phoneConstraint = "patients_phone_key"
	emailConstraint = "patients_email_key"
)

const duplicateContact = "Patient with this phone number or email already exists"

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) Repository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const patientCols = `id, patient_code, first_name, last_name, date_of_birth, gender, phone, email,
	address, emergency_contact, emergency_phone, blood_group, allergies, medical_history,
	is_active, created_by, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var dob *time.Time
	err := row.Scan(&p.ID, &p.PatientCode, &p.FirstName, &p.LastName, &dob, &p.Gender, &p.Phone, &p.Email,
		&p.Address, &p.EmergencyContact, &p.EmergencyPhone, &p.BloodGroup, &p.Allergies, &p.MedicalHistory,
		&p.IsActive, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if dob != nil {
		s := dob.Format(dateLayout)
		p.DateOfBirth = &s
	}
	return &p, err
}

func translateWriteError(err error) error {
	switch {
	case db.IsUniqueViolation(err, phoneConstraint), db.IsUniqueViolation(err, emailConstraint):
		return apperr.Conflict(duplicateContact)
	case db.IsUniqueViolation(err, codeConstraint):
		return db.Retryable(err)
	}
	return err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	dob, err := parseDate(p.DateOfBirth)
	if err != nil {
		return apperr.Invalid("date_of_birth must be YYYY-MM-DD")
	}
	p.ID = uuid.New()
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, patient_code, first_name, last_name, date_of_birth, gender, phone,
			email, address, emergency_contact, emergency_phone, blood_group, allergies,
			medical_history, is_active, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientCode, p.FirstName, p.LastName, dob, p.Gender, p.Phone,
		p.Email, p.Address, p.EmergencyContact, p.EmergencyPhone, p.BloodGroup, p.Allergies,
		p.MedicalHistory, p.IsActive, p.CreatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return translateWriteError(err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("Patient not found")
	}
	return p, err
}

func (r *patientRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1 FOR UPDATE`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("Patient not found")
	}
	return p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient, set []Assignment) error {
	if len(set) == 0 {
		return nil
	}
	sets := make([]string, 0, len(set)+1)
	args := []interface{}{p.ID}
	for i, a := range set {
		sets = append(sets, fmt.Sprintf("%s = $%d", a.Column, i+2))
		args = append(args, a.Value)
	}
	sets = append(sets, "updated_at = NOW()")

	err := r.conn(ctx).QueryRow(ctx,
		`UPDATE patients SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING updated_at`,
		args...).Scan(&p.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("Patient not found")
	}
	return translateWriteError(err)
}

func (r *patientRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE is_active`
	var args []interface{}
	idx := 1
	if search != "" {
		where += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d
			OR phone ILIKE $%d OR patient_code ILIKE $%d)`, idx, idx, idx, idx, idx)
		args = append(args, "%"+search+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + patientCols + ` FROM patients` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) ContactTaken(ctx context.Context, phone string, email *string, exclude *uuid.UUID) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM patients
			WHERE (phone = $1 OR ($2::text IS NOT NULL AND lower(email) = lower($2::text)))
			  AND ($3::uuid IS NULL OR id <> $3::uuid)
		)`, phone, email, exclude).Scan(&taken)
	return taken, err
}
