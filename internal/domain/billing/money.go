package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// Totals is the money header of a bill.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals prices a new bill. Tax is taxPercent of the discounted
// subtotal, rounded to cents.
func ComputeTotals(items []ItemInput, discount, taxPercent decimal.Decimal) (Totals, error) {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	discount = round2(discount)
	if discount.GreaterThan(subtotal) {
		return Totals{}, fmt.Errorf("discount %s exceeds subtotal %s", discount.StringFixed(2), subtotal.StringFixed(2))
	}
	tax := round2(subtotal.Sub(discount).Mul(taxPercent).Div(hundred))
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    subtotal.Sub(discount).Add(tax),
	}, nil
}

// Recalculate re-derives subtotal and total from the current items. Discount
// and tax stay as issued.
func Recalculate(items []*BillItem, discount, tax decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.TotalPrice)
	}
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    subtotal.Sub(discount).Add(tax),
	}
}

// Remaining is what is still owed, never below zero.
func Remaining(total, paid decimal.Decimal) decimal.Decimal {
	r := total.Sub(paid)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// DeriveStatus classifies a bill from its ledger sum.
func DeriveStatus(total, paid decimal.Decimal) string {
	switch {
	case Remaining(total, paid).IsZero():
		return StatusPaid
	case paid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusPending
	}
}

func (t Totals) apply(b *Bill) {
	b.Subtotal = t.Subtotal
	b.DiscountAmount = t.Discount
	b.TaxAmount = t.Tax
	b.TotalAmount = t.Total
}
