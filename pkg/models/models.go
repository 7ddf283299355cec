package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the persisted format of a ledger row's input timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// Customer is the identity part of a ledger row. Code is immutable once assigned.
type Customer struct {
	Code    string `json:"customer_code" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Village string `json:"village" validate:"required"`
	Subunit string `json:"subunit" validate:"required"` // RT/RW, e.g. "001/002"
}

// LedgerRow is one billing period for one customer. Rows are append-only.
type LedgerRow struct {
	CustomerCode   string          `json:"customer_code"`
	Name           string          `json:"name"`
	Village        string          `json:"village"`
	Subunit        string          `json:"subunit"`
	PriorReading   decimal.Decimal `json:"prior_reading"`   // m³
	CurrentReading decimal.Decimal `json:"current_reading"` // m³
	Usage          decimal.Decimal `json:"usage"`
	Charge         decimal.Decimal `json:"charge"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	Remaining      decimal.Decimal `json:"remaining"`
	ArrearsIn      decimal.Decimal `json:"arrears_in"` // carried from the previous row, negative when overpaid
	TotalDue       decimal.Decimal `json:"total_due"`
	InputAt        time.Time       `json:"input_timestamp"`
}

// Customer returns the identity columns of the row.
func (r LedgerRow) Customer() Customer {
	return Customer{
		Code:    r.CustomerCode,
		Name:    r.Name,
		Village: r.Village,
		Subunit: r.Subunit,
	}
}

// Outstanding is what the next period carries in as arrears.
func (r LedgerRow) Outstanding() decimal.Decimal {
	return r.TotalDue.Sub(r.AmountPaid)
}

// NewCustomer is the input of the registration workflow.
type NewCustomer struct {
	Customer
	OpeningReading decimal.Decimal `json:"opening_reading"`
}
