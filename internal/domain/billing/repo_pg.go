package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

const (
	numberConstraint      = "bills_bill_number_key"
	patientFKConstraint   = "bills_patient_id_fkey"
	appointmentConstraint = "bills_appointment_id_fkey"
)

type billRepoPG struct{ pool *pgxpool.Pool }

func NewBillRepoPG(pool *pgxpool.Pool) BillRepository { return &billRepoPG{pool: pool} }

func (r *billRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const billCols = `b.id, b.bill_number, b.patient_id, b.appointment_id, b.subtotal, b.discount_amount,
	b.tax_amount, b.total_amount, b.payment_status, b.notes, b.created_by, b.created_at, b.updated_at,
	p.first_name || ' ' || p.last_name`

const billFrom = ` FROM bills b JOIN patients p ON p.id = b.patient_id`

func (r *billRepoPG) scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.BillNumber, &b.PatientID, &b.AppointmentID, &b.Subtotal, &b.DiscountAmount,
		&b.TaxAmount, &b.TotalAmount, &b.PaymentStatus, &b.Notes, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
		&b.PatientName)
	return &b, err
}

func translateWriteError(err error) error {
	switch {
	case db.IsUniqueViolation(err, numberConstraint):
		return db.Retryable(err)
	case db.IsForeignKeyViolation(err, patientFKConstraint):
		return apperr.NotFound("Patient not found")
	case db.IsForeignKeyViolation(err, appointmentConstraint):
		return apperr.NotFound("Appointment not found")
	}
	return err
}

func (r *billRepoPG) Create(ctx context.Context, b *Bill) error {
	b.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bills (id, bill_number, patient_id, appointment_id, subtotal, discount_amount,
			tax_amount, total_amount, payment_status, notes, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		b.ID, b.BillNumber, b.PatientID, b.AppointmentID, b.Subtotal, b.DiscountAmount,
		b.TaxAmount, b.TotalAmount, b.PaymentStatus, b.Notes, b.CreatedBy,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	return translateWriteError(err)
}

func (r *billRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := r.scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billCols+billFrom+` WHERE b.id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("Bill not found")
	}
	return b, err
}

func (r *billRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := r.scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billCols+billFrom+` WHERE b.id = $1 FOR UPDATE OF b`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("Bill not found")
	}
	return b, err
}

func (r *billRepoPG) SaveTotals(ctx context.Context, b *Bill) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE bills SET subtotal = $2, discount_amount = $3, tax_amount = $4, total_amount = $5,
			payment_status = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		b.ID, b.Subtotal, b.DiscountAmount, b.TaxAmount, b.TotalAmount, b.PaymentStatus,
	).Scan(&b.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("Bill not found")
	}
	return err
}

func (r *billRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Bill, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(` AND b.payment_status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND b.patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bills b`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + billCols + billFrom + where +
		fmt.Sprintf(` ORDER BY b.created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	items, err := r.queryBills(ctx, query, args...)
	return items, total, err
}

func (r *billRepoPG) Outstanding(ctx context.Context, patientID uuid.UUID) ([]*Bill, error) {
	return r.queryBills(ctx, `SELECT `+billCols+billFrom+`
		WHERE b.patient_id = $1 AND b.payment_status IN ($2, $3)
		ORDER BY b.created_at`, patientID, StatusPending, StatusPartiallyPaid)
}

func (r *billRepoPG) queryBills(ctx context.Context, query string, args ...interface{}) ([]*Bill, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Bill
	for rows.Next() {
		b, err := r.scanBill(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (r *billRepoPG) Stats(ctx context.Context, days int) (*Stats, error) {
	st := &Stats{Days: days}
	q := r.conn(ctx)

	err := q.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(total_amount) FILTER (WHERE payment_status = $2), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE payment_status = $3), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE payment_status = $4), 0),
			COUNT(*)
		FROM bills
		WHERE created_at >= NOW() - make_interval(days => $1)`,
		days, StatusPaid, StatusPending, StatusPartiallyPaid,
	).Scan(&st.Overview.TotalRevenue, &st.Overview.PendingAmount, &st.Overview.PartiallyPaidAmount, &st.Overview.TotalBills)
	if err != nil {
		return nil, err
	}

	err = q.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_amount), 0), COUNT(*)
		FROM bills
		WHERE created_at >= date_trunc('day', NOW()) AND payment_status = $1`,
		StatusPaid,
	).Scan(&st.Today.Revenue, &st.Today.Bills)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT to_char(created_at, 'YYYY-MM') AS month, SUM(total_amount), COUNT(*)
		FROM bills
		WHERE payment_status = $1 AND created_at >= NOW() - INTERVAL '6 months'
		GROUP BY month
		ORDER BY month DESC`, StatusPaid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m MonthRevenue
		if err := rows.Scan(&m.Month, &m.Revenue, &m.Bills); err != nil {
			return nil, err
		}
		st.Monthly = append(st.Monthly, m)
	}
	return st, rows.Err()
}

func (r *billRepoPG) AddItem(ctx context.Context, it *BillItem) error {
	it.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bill_items (id, bill_id, service_type, description, unit_price, quantity, total_price)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		it.ID, it.BillID, it.ServiceType, it.Description, it.UnitPrice, it.Quantity, it.TotalPrice,
	).Scan(&it.CreatedAt)
}

func (r *billRepoPG) DeleteItem(ctx context.Context, billID, itemID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM bill_items WHERE id = $1 AND bill_id = $2`, itemID, billID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Bill item not found")
	}
	return nil
}

func (r *billRepoPG) Items(ctx context.Context, billID uuid.UUID) ([]*BillItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, bill_id, service_type, description, unit_price, quantity, total_price, created_at
		FROM bill_items WHERE bill_id = $1 ORDER BY created_at, id`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BillItem
	for rows.Next() {
		var it BillItem
		if err := rows.Scan(&it.ID, &it.BillID, &it.ServiceType, &it.Description, &it.UnitPrice,
			&it.Quantity, &it.TotalPrice, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *billRepoPG) AddPayment(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payments (id, bill_id, amount, payment_method, transaction_id, notes, processed_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING payment_date`,
		p.ID, p.BillID, p.Amount, p.Method, p.TransactionID, p.Notes, p.ProcessedBy,
	).Scan(&p.PaymentDate)
}

const paymentCols = `pm.id, pm.bill_id, pm.amount, pm.payment_method, pm.transaction_id, pm.notes,
	pm.processed_by, pm.payment_date, b.bill_number, p.first_name || ' ' || p.last_name`

const paymentFrom = ` FROM payments pm
	JOIN bills b ON b.id = pm.bill_id
	JOIN patients p ON p.id = b.patient_id`

func (r *billRepoPG) queryPayments(ctx context.Context, query string, args ...interface{}) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.BillID, &p.Amount, &p.Method, &p.TransactionID, &p.Notes,
			&p.ProcessedBy, &p.PaymentDate, &p.BillNumber, &p.PatientName); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}

func (r *billRepoPG) Payments(ctx context.Context, billID uuid.UUID) ([]*Payment, error) {
	return r.queryPayments(ctx, `SELECT `+paymentCols+paymentFrom+`
		WHERE pm.bill_id = $1 ORDER BY pm.payment_date DESC`, billID)
}

func (r *billRepoPG) SumPayments(ctx context.Context, billID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE bill_id = $1`, billID).Scan(&sum)
	return sum, err
}

func (r *billRepoPG) PaymentHistory(ctx context.Context, patientID *uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if patientID != nil {
		where += fmt.Sprintf(` AND b.patient_id = $%d`, idx)
		args = append(args, *patientID)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM payments pm JOIN bills b ON b.id = pm.bill_id`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + paymentCols + paymentFrom + where +
		fmt.Sprintf(` ORDER BY pm.payment_date DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	items, err := r.queryPayments(ctx, query, args...)
	return items, total, err
}
