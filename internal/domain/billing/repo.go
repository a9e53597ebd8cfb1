package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BillRepository interface {
	Create(ctx context.Context, b *Bill) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	// GetForUpdate locks the bill row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Bill, error)
	SaveTotals(ctx context.Context, b *Bill) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Bill, int, error)
	Outstanding(ctx context.Context, patientID uuid.UUID) ([]*Bill, error)
	Stats(ctx context.Context, days int) (*Stats, error)

	AddItem(ctx context.Context, it *BillItem) error
	DeleteItem(ctx context.Context, billID, itemID uuid.UUID) error
	Items(ctx context.Context, billID uuid.UUID) ([]*BillItem, error)

	AddPayment(ctx context.Context, p *Payment) error
	Payments(ctx context.Context, billID uuid.UUID) ([]*Payment, error)
	SumPayments(ctx context.Context, billID uuid.UUID) (decimal.Decimal, error)
	PaymentHistory(ctx context.Context, patientID *uuid.UUID, limit, offset int) ([]*Payment, int, error)
}
