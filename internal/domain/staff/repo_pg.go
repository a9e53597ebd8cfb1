package staff

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

const userIDConstraint = "staff_user_id_key"

type staffRepoPG struct{ pool *pgxpool.Pool }

func NewStaffRepoPG(pool *pgxpool.Pool) Repository { return &staffRepoPG{pool: pool} }

func (r *staffRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const staffCols = `id, user_id, first_name, last_name, email, phone, role, specialization,
	license_number, qualification, schedule, is_active, created_at, updated_at`

func (r *staffRepoPG) scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	var schedule []byte
	err := row.Scan(&s.ID, &s.UserID, &s.FirstName, &s.LastName, &s.Email, &s.Phone, &s.Role,
		&s.Specialization, &s.LicenseNumber, &s.Qualification, &schedule, &s.IsActive,
		&s.CreatedAt, &s.UpdatedAt)
	s.Schedule = schedule
	return &s, err
}

func (r *staffRepoPG) Create(ctx context.Context, s *Staff) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO staff (id, user_id, first_name, last_name, email, phone, role,
			specialization, license_number, qualification, schedule, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		s.ID, s.UserID, s.FirstName, s.LastName, s.Email, s.Phone, s.Role,
		s.Specialization, s.LicenseNumber, s.Qualification, []byte(s.Schedule), s.IsActive,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if db.IsUniqueViolation(err, userIDConstraint) {
		return apperr.Conflict("a staff profile already exists for user %s", s.UserID)
	}
	return err
}

func (r *staffRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	s, err := r.scanStaff(r.conn(ctx).QueryRow(ctx, `SELECT `+staffCols+` FROM staff WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("staff member %s not found", id)
	}
	return s, err
}

func (r *staffRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Staff, error) {
	s, err := r.scanStaff(r.conn(ctx).QueryRow(ctx, `SELECT `+staffCols+` FROM staff WHERE id = $1 FOR UPDATE`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("staff member %s not found", id)
	}
	return s, err
}

func (r *staffRepoPG) Update(ctx context.Context, s *Staff, set []Assignment) error {
	if len(set) == 0 {
		return nil
	}
	sets := make([]string, 0, len(set)+1)
	args := []interface{}{s.ID}
	for i, a := range set {
		sets = append(sets, fmt.Sprintf("%s = $%d", a.Column, i+2))
		args = append(args, a.Value)
	}
	sets = append(sets, "updated_at = NOW()")

	err := r.conn(ctx).QueryRow(ctx,
		`UPDATE staff SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING updated_at`,
		args...).Scan(&s.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("staff member %s not found", s.ID)
	}
	return err
}

func (r *staffRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Staff, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Role != "" {
		where += fmt.Sprintf(` AND role = $%d`, idx)
		args = append(args, f.Role)
		idx++
	}
	if f.Specialization != "" {
		where += fmt.Sprintf(` AND specialization ILIKE $%d`, idx)
		args = append(args, "%"+f.Specialization+"%")
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d)`, idx, idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}
	if f.ActiveOnly {
		where += ` AND is_active`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM staff`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + staffCols + ` FROM staff` + where +
		fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Staff
	for rows.Next() {
		s, err := r.scanStaff(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *staffRepoPG) DoctorSchedule(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var raw []byte
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT schedule FROM staff WHERE id = $1 AND role = $2 AND is_active`,
		id, auth.RoleDoctor).Scan(&raw)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	return raw, err
}
