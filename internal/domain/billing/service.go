package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/sequence"
)

const (
	DefaultStatsDays = 30
	maxStatsDays     = 366
)

type Service struct {
	bills   BillRepository
	numbers sequence.Generator
	tx      db.TxRunner
	logger  zerolog.Logger
}

func NewService(bills BillRepository, numbers sequence.Generator, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		bills:   bills,
		numbers: numbers,
		tx:      tx,
		logger:  logger.With().Str("component", "billing").Logger(),
	}
}

// CreateBill prices the items, allocates the next INV number and stores the
// header with every item in one transaction.
func (s *Service) CreateBill(ctx context.Context, in CreateInput) (*Bill, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.Invalid("%s", err.Error())
	}
	totals, err := ComputeTotals(in.Items, in.Discount, in.TaxPercent)
	if err != nil {
		return nil, apperr.Invalid("%s", err.Error())
	}

	b := &Bill{
		PatientID:     in.PatientID,
		AppointmentID: in.AppointmentID,
		Notes:         in.Notes,
	}
	totals.apply(b)
	b.PaymentStatus = DeriveStatus(b.TotalAmount, decimal.Zero)
	if in.CreatedBy != "" {
		b.CreatedBy = &in.CreatedBy
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		number, err := s.numbers.Next(ctx)
		if err != nil {
			return err
		}
		b.BillNumber = number
		if err := s.bills.Create(ctx, b); err != nil {
			return err
		}
		b.Items = make([]*BillItem, 0, len(in.Items))
		for _, item := range in.Items {
			it := newItem(b.ID, item)
			if err := s.bills.AddItem(ctx, it); err != nil {
				return err
			}
			b.Items = append(b.Items, it)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("bill_number", b.BillNumber).
		Str("patient_id", b.PatientID.String()).
		Str("total", b.TotalAmount.StringFixed(2)).
		Msg("bill created")
	return b, nil
}

func newItem(billID uuid.UUID, in ItemInput) *BillItem {
	return &BillItem{
		BillID:      billID,
		ServiceType: in.ServiceType,
		Description: in.Description,
		UnitPrice:   round2(in.UnitPrice),
		Quantity:    in.Quantity,
		TotalPrice:  in.LineTotal(),
	}
}

// AddItem appends a line to an issued bill and recalculates it.
func (s *Service) AddItem(ctx context.Context, billID uuid.UUID, in ItemInput) (*Bill, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.Invalid("%s", err.Error())
	}
	var updated *Bill
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.bills.GetForUpdate(ctx, billID)
		if err != nil {
			return err
		}
		if err := s.bills.AddItem(ctx, newItem(b.ID, in)); err != nil {
			return err
		}
		if err := s.recalculate(ctx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveItem drops a line from an issued bill and recalculates it. Removing
// a line that would leave the discount above the subtotal is refused.
func (s *Service) RemoveItem(ctx context.Context, billID, itemID uuid.UUID) (*Bill, error) {
	var updated *Bill
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.bills.GetForUpdate(ctx, billID)
		if err != nil {
			return err
		}
		if err := s.bills.DeleteItem(ctx, b.ID, itemID); err != nil {
			return err
		}
		if err := s.recalculate(ctx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// recalculate re-derives subtotal and total from the stored items, keeps the
// issued discount and tax, and re-derives the status from the ledger. The
// bill row must already be locked.
func (s *Service) recalculate(ctx context.Context, b *Bill) error {
	items, err := s.bills.Items(ctx, b.ID)
	if err != nil {
		return err
	}
	totals := Recalculate(items, b.DiscountAmount, b.TaxAmount)
	if totals.Discount.GreaterThan(totals.Subtotal) {
		return apperr.Invalid("discount %s would exceed subtotal %s",
			totals.Discount.StringFixed(2), totals.Subtotal.StringFixed(2))
	}
	paid, err := s.bills.SumPayments(ctx, b.ID)
	if err != nil {
		return err
	}
	totals.apply(b)
	b.PaymentStatus = DeriveStatus(b.TotalAmount, paid)
	if err := s.bills.SaveTotals(ctx, b); err != nil {
		return err
	}
	b.Items = items
	return nil
}

// RecordPayment appends a payment and re-derives the bill status from the
// full ledger. A bill that is already Paid is left untouched.
func (s *Service) RecordPayment(ctx context.Context, billID uuid.UUID, in PaymentInput) (*PaymentResult, *Bill, error) {
	if err := in.Validate(); err != nil {
		return nil, nil, apperr.Invalid("%s", err.Error())
	}

	var (
		result *PaymentResult
		bill   *Bill
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.bills.GetForUpdate(ctx, billID)
		if err != nil {
			return err
		}
		if b.PaymentStatus == StatusPaid {
			return apperr.AlreadyPaid("Bill is already paid")
		}

		p := &Payment{
			BillID:        b.ID,
			Amount:        in.Amount,
			Method:        in.Method,
			TransactionID: in.TransactionID,
			Notes:         in.Notes,
		}
		if in.ProcessedBy != "" {
			p.ProcessedBy = &in.ProcessedBy
		}
		if err := s.bills.AddPayment(ctx, p); err != nil {
			return err
		}

		paid, err := s.bills.SumPayments(ctx, b.ID)
		if err != nil {
			return err
		}
		b.PaymentStatus = DeriveStatus(b.TotalAmount, paid)
		if err := s.bills.SaveTotals(ctx, b); err != nil {
			return err
		}

		result = &PaymentResult{
			PaymentID:       p.ID,
			PaymentAmount:   p.Amount,
			TotalPaid:       paid,
			RemainingAmount: Remaining(b.TotalAmount, paid),
			PaymentStatus:   b.PaymentStatus,
		}
		bill = b
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().
		Str("bill_number", bill.BillNumber).
		Str("amount", result.PaymentAmount.StringFixed(2)).
		Str("status", result.PaymentStatus).
		Msg("payment recorded")
	return result, bill, nil
}

// GetBill returns the bill with its items and payments.
func (s *Service) GetBill(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Items, err = s.bills.Items(ctx, id); err != nil {
		return nil, err
	}
	if b.Payments, err = s.bills.Payments(ctx, id); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) ListBills(ctx context.Context, f ListFilter, limit, offset int) ([]*Bill, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, apperr.Invalid("invalid payment status: %s", f.Status)
	}
	return s.bills.List(ctx, f, limit, offset)
}

// Outstanding lists the patient's Pending and Partially Paid bills.
func (s *Service) Outstanding(ctx context.Context, patientID uuid.UUID) ([]*Bill, error) {
	bills, err := s.bills.Outstanding(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if bills == nil {
		bills = []*Bill{}
	}
	return bills, nil
}

func (s *Service) PaymentHistory(ctx context.Context, patientID *uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	return s.bills.PaymentHistory(ctx, patientID, limit, offset)
}

// Stats summarises the trailing days of billing. Zero selects the default
// window.
func (s *Service) Stats(ctx context.Context, days int) (*Stats, error) {
	if days == 0 {
		days = DefaultStatsDays
	}
	if days < 0 || days > maxStatsDays {
		return nil, apperr.Invalid("days must be between 1 and %d", maxStatsDays)
	}
	return s.bills.Stats(ctx, days)
}
