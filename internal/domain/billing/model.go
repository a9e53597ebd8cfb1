package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusPending       = "Pending"
	StatusPartiallyPaid = "Partially Paid"
	StatusPaid          = "Paid"
)

var validStatuses = map[string]bool{
	StatusPending: true, StatusPartiallyPaid: true, StatusPaid: true,
}

var validServiceTypes = map[string]bool{
	"Consultation": true, "Lab Test": true, "Medication": true, "Procedure": true, "Room Charge": true,
}

var validMethods = map[string]bool{
	"Cash": true, "Card": true, "Insurance": true, "Bank Transfer": true, "Online": true,
}

// Bill maps to the bills table. Items and Payments are filled on detail reads.
type Bill struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	BillNumber     string          `db:"bill_number" json:"bill_number"`
	PatientID      uuid.UUID       `db:"patient_id" json:"patient_id"`
	AppointmentID  *uuid.UUID      `db:"appointment_id" json:"appointment_id,omitempty"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	TaxAmount      decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	PaymentStatus  string          `db:"payment_status" json:"payment_status"`
	Notes          *string         `db:"notes" json:"notes,omitempty"`
	CreatedBy      *string         `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`

	PatientName string      `json:"patient_name,omitempty"`
	Items       []*BillItem `json:"items,omitempty"`
	Payments    []*Payment  `json:"payments,omitempty"`
}

type BillItem struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	BillID      uuid.UUID       `db:"bill_id" json:"bill_id"`
	ServiceType string          `db:"service_type" json:"service_type"`
	Description string          `db:"description" json:"description"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity    int             `db:"quantity" json:"quantity"`
	TotalPrice  decimal.Decimal `db:"total_price" json:"total_price"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Payment is one row of the append-only payment ledger.
type Payment struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	BillID        uuid.UUID       `db:"bill_id" json:"bill_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Method        string          `db:"payment_method" json:"payment_method"`
	TransactionID *string         `db:"transaction_id" json:"transaction_id,omitempty"`
	Notes         *string         `db:"notes" json:"notes,omitempty"`
	ProcessedBy   *string         `db:"processed_by" json:"processed_by,omitempty"`
	PaymentDate   time.Time       `db:"payment_date" json:"payment_date"`

	BillNumber  string `json:"bill_number,omitempty"`
	PatientName string `json:"patient_name,omitempty"`
}

// ItemInput is one line on a new bill or an item added later.
type ItemInput struct {
	ServiceType string          `json:"service_type"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

func (in *ItemInput) Validate() error {
	in.Description = strings.TrimSpace(in.Description)
	if !validServiceTypes[in.ServiceType] {
		return fmt.Errorf("invalid service_type: %q", in.ServiceType)
	}
	if in.Description == "" {
		return fmt.Errorf("description is required")
	}
	if in.UnitPrice.IsNegative() {
		return fmt.Errorf("unit_price must not be negative")
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	return nil
}

// LineTotal is unit price times quantity, rounded to cents.
func (in ItemInput) LineTotal() decimal.Decimal {
	return round2(in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity))))
}

// CreateInput is the request to issue a bill. TaxPercent applies to the
// discounted subtotal.
type CreateInput struct {
	PatientID     uuid.UUID       `json:"patient_id"`
	AppointmentID *uuid.UUID      `json:"appointment_id,omitempty"`
	Items         []ItemInput     `json:"items"`
	Discount      decimal.Decimal `json:"discount"`
	TaxPercent    decimal.Decimal `json:"tax_percent"`
	Notes         *string         `json:"notes,omitempty"`
	CreatedBy     string          `json:"-"`
}

func (in *CreateInput) Validate() error {
	if in.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("At least one item is required")
	}
	for i := range in.Items {
		if err := in.Items[i].Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i+1, err)
		}
	}
	if in.Discount.IsNegative() {
		return fmt.Errorf("discount must not be negative")
	}
	if in.TaxPercent.IsNegative() {
		return fmt.Errorf("tax_percent must not be negative")
	}
	return nil
}

type PaymentInput struct {
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"payment_method"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	Notes         *string         `json:"notes,omitempty"`
	ProcessedBy   string          `json:"-"`
}

func (in *PaymentInput) Validate() error {
	if !in.Amount.IsPositive() {
		return fmt.Errorf("payment amount must be positive")
	}
	if !in.Amount.Equal(round2(in.Amount)) {
		return fmt.Errorf("payment amount has more than two decimal places")
	}
	if !validMethods[in.Method] {
		return fmt.Errorf("invalid payment_method: %q", in.Method)
	}
	return nil
}

// PaymentResult reports the ledger position after a payment.
type PaymentResult struct {
	PaymentID       uuid.UUID       `json:"payment_id"`
	PaymentAmount   decimal.Decimal `json:"payment_amount"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	PaymentStatus   string          `json:"payment_status"`
}

type ListFilter struct {
	Status    string
	PatientID *uuid.UUID
}

// Stats summarises billing over a trailing window.
type Stats struct {
	Days     int            `json:"days"`
	Overview StatsOverview  `json:"overview"`
	Today    StatsToday     `json:"today"`
	Monthly  []MonthRevenue `json:"monthly_trends"`
}

type StatsOverview struct {
	TotalRevenue        decimal.Decimal `json:"total_revenue"`
	PendingAmount       decimal.Decimal `json:"pending_amount"`
	PartiallyPaidAmount decimal.Decimal `json:"partially_paid_amount"`
	TotalBills          int             `json:"total_bills"`
}

type StatsToday struct {
	Revenue decimal.Decimal `json:"today_revenue"`
	Bills   int             `json:"today_bills"`
}

type MonthRevenue struct {
	Month   string          `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
	Bills   int             `json:"bills_count"`
}
