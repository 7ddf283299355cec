package billing

import (
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// DefaultCurrencySymbol prefixes every displayed amount.
const DefaultCurrencySymbol = "Rp"

// FormatCurrency renders an amount for display, e.g. "Rp 12,500" or "Rp -2,500".
// Amounts are rounded to whole units; storage keeps the exact value.
func FormatCurrency(symbol string, d decimal.Decimal) string {
	return symbol + " " + humanize.Comma(d.Round(0).IntPart())
}

// Summary is the human-readable result shown after a reading is saved.
type Summary struct {
	Usage     string `json:"usage"`
	Charge    string `json:"charge"`
	TotalDue  string `json:"total_due"`
	Paid      string `json:"paid"`
	Remaining string `json:"remaining"`
}

// Summarize formats the amounts of a computed period.
func Summarize(symbol string, usage, charge, totalDue, paid, remaining decimal.Decimal) Summary {
	return Summary{
		Usage:     usage.String() + " m³",
		Charge:    FormatCurrency(symbol, charge),
		TotalDue:  FormatCurrency(symbol, totalDue),
		Paid:      FormatCurrency(symbol, paid),
		Remaining: FormatCurrency(symbol, remaining),
	}
}
