// Package directory derives the known customers and their latest ledger rows from a
// ledger snapshot.
package directory

import (
	"strings"
	"time"

	"github.com/mcclellann/airbersih/pkg/models"
	"github.com/shopspring/decimal"
)

// Directory indexes a snapshot by customer code. Build a new one per snapshot.
type Directory struct {
	latest map[string]models.LedgerRow
	order  []string // codes in first-appearance order
}

// LatestRowsByCustomer selects, per customer code, the row with the greatest input
// timestamp. Rows with equal timestamps resolve to the one appearing later.
func LatestRowsByCustomer(rows []models.LedgerRow) map[string]models.LedgerRow {
	return Build(rows).latest
}

func Build(rows []models.LedgerRow) *Directory {
	d := &Directory{latest: make(map[string]models.LedgerRow)}
	for _, row := range rows {
		cur, ok := d.latest[row.CustomerCode]
		if !ok {
			d.order = append(d.order, row.CustomerCode)
			d.latest[row.CustomerCode] = row
			continue
		}
		if !row.InputAt.Before(cur.InputAt) {
			d.latest[row.CustomerCode] = row
		}
	}
	return d
}

// Len is the number of distinct customers.
func (d *Directory) Len() int {
	return len(d.order)
}

// Has reports whether code is known. Matching is exact and case-sensitive.
func (d *Directory) Has(code string) bool {
	_, ok := d.latest[code]
	return ok
}

// Latest returns the most recent row of a customer.
func (d *Directory) Latest(code string) (models.LedgerRow, bool) {
	row, ok := d.latest[code]
	return row, ok
}

// Customers lists customers in first-appearance order, with the attributes of their latest row.
func (d *Directory) Customers() []models.Customer {
	out := make([]models.Customer, 0, len(d.order))
	for _, code := range d.order {
		out = append(out, d.latest[code].Customer())
	}
	return out
}

// LatestRows lists each customer's latest row in first-appearance order.
func (d *Directory) LatestRows() []models.LedgerRow {
	out := make([]models.LedgerRow, 0, len(d.order))
	for _, code := range d.order {
		out = append(out, d.latest[code])
	}
	return out
}

// FindByName returns the first customer whose name matches, ignoring case and surrounding space.
func (d *Directory) FindByName(name string) (models.Customer, bool) {
	name = strings.TrimSpace(name)
	for _, code := range d.order {
		row := d.latest[code]
		if strings.EqualFold(strings.TrimSpace(row.Name), name) {
			return row.Customer(), true
		}
	}
	return models.Customer{}, false
}

// OutstandingArrears estimates the total still owed: the sum over latest rows of
// total due minus amount paid.
func (d *Directory) OutstandingArrears() decimal.Decimal {
	totalDue, paid := decimal.Zero, decimal.Zero
	for _, row := range d.latest {
		totalDue = totalDue.Add(row.TotalDue)
		paid = paid.Add(row.AmountPaid)
	}
	return totalDue.Sub(paid)
}

// NewCustomerOpeningRow builds the opening-balance row of a new customer: the meter
// starts at openingReading and every amount is zero.
func (d *Directory) NewCustomerOpeningRow(c models.Customer, openingReading decimal.Decimal, now time.Time) (models.LedgerRow, error) {
	if d.Has(c.Code) {
		return models.LedgerRow{}, &models.DuplicateCustomerError{Code: c.Code}
	}
	if openingReading.IsNegative() {
		return models.LedgerRow{}, &models.ValidationError{Field: "opening_reading", Message: "must not be negative"}
	}
	return models.LedgerRow{
		CustomerCode:   c.Code,
		Name:           c.Name,
		Village:        c.Village,
		Subunit:        c.Subunit,
		PriorReading:   decimal.Zero,
		CurrentReading: openingReading,
		Usage:          decimal.Zero,
		Charge:         decimal.Zero,
		AmountPaid:     decimal.Zero,
		Remaining:      decimal.Zero,
		ArrearsIn:      decimal.Zero,
		TotalDue:       decimal.Zero,
		InputAt:        now,
	}, nil
}
