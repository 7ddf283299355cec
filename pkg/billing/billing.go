// Package billing turns a customer's last ledger row and a new meter reading into
// the next ledger row. It has no side effects.
package billing

import (
	"time"

	"github.com/mcclellann/airbersih/pkg/models"
	"github.com/shopspring/decimal"
)

// DefaultUnitPrice is the charge per m³ when none is configured.
var DefaultUnitPrice = decimal.NewFromInt(2500)

// ComputePeriod computes the ledger row for the period that ends with newReading.
//
// Arrears carried in are last.TotalDue - last.AmountPaid and are not clamped, so an
// earlier overpayment is carried forward as a negative amount (a credit).
func ComputePeriod(last models.LedgerRow, newReading, amountPaid, unitPrice decimal.Decimal, now time.Time) (models.LedgerRow, error) {
	if newReading.LessThan(last.CurrentReading) {
		return models.LedgerRow{}, &models.ValidationError{
			Field:   "current_reading",
			Message: "must not be less than the previous reading " + last.CurrentReading.String(),
		}
	}
	if amountPaid.IsNegative() {
		return models.LedgerRow{}, &models.ValidationError{Field: "amount_paid", Message: "must not be negative"}
	}
	if unitPrice.IsNegative() {
		return models.LedgerRow{}, &models.ValidationError{Field: "unit_price", Message: "must not be negative"}
	}

	usage := newReading.Sub(last.CurrentReading)
	charge := usage.Mul(unitPrice)
	arrears := last.Outstanding()
	totalDue := charge.Add(arrears)

	return models.LedgerRow{
		CustomerCode:   last.CustomerCode,
		Name:           last.Name,
		Village:        last.Village,
		Subunit:        last.Subunit,
		PriorReading:   last.CurrentReading,
		CurrentReading: newReading,
		Usage:          usage,
		Charge:         charge,
		AmountPaid:     amountPaid,
		Remaining:      totalDue.Sub(amountPaid),
		ArrearsIn:      arrears,
		TotalDue:       totalDue,
		InputAt:        now,
	}, nil
}
