package store

import (
	"strings"
	"time"

	"github.com/mcclellann/airbersih/pkg/models"
	"github.com/shopspring/decimal"
)

type Kind int

const (
	KindText Kind = iota
	KindDecimal
	KindTimestamp
)

// Column is one field of the persisted table. Alias is the header the legacy
// spreadsheet used and is accepted on read alongside Name.
type Column struct {
	Name  string
	Alias string
	Kind  Kind
}

// Schema is an ordered, versioned column list. Rows are written in this order.
type Schema struct {
	Version int
	Columns []Column
}

// Column positions in V1.
const (
	colCustomerCode = iota
	colName
	colVillage
	colSubunit
	colPriorReading
	colCurrentReading
	colUsage
	colCharge
	colAmountPaid
	colRemaining
	colArrearsIn
	colTotalDue
	colInputTimestamp
)

var V1 = Schema{
	Version: 1,
	Columns: []Column{
		{Name: "CUSTOMER_CODE", Alias: "KODE PELANGGAN", Kind: KindText},
		{Name: "NAME", Alias: "NAMA", Kind: KindText},
		{Name: "VILLAGE", Alias: "KAMPUNG", Kind: KindText},
		{Name: "SUBUNIT", Alias: "RT/RW", Kind: KindText},
		{Name: "PRIOR_READING", Alias: "JUMLAH METER BULAN LALU", Kind: KindDecimal},
		{Name: "CURRENT_READING", Alias: "JUMLAH METER BULAN INI", Kind: KindDecimal},
		{Name: "USAGE", Alias: "JUMLAH METER DIGUNAKAN BULAN INI", Kind: KindDecimal},
		{Name: "CHARGE", Alias: "TAGIHAN YANG HARUS DI BAYAR BULAN INI", Kind: KindDecimal},
		{Name: "AMOUNT_PAID", Alias: "TAGIHAN YANG SUDAH DI BAYAR BULAN INI", Kind: KindDecimal},
		{Name: "REMAINING", Alias: "SISA TAGIHAN BULAN INI", Kind: KindDecimal},
		{Name: "ARREARS_IN", Alias: "TUNGGAKAN DARI BULAN LALU", Kind: KindDecimal},
		{Name: "TOTAL_DUE", Alias: "TOTAL TAGIHAN (TERMASUK TUNGGAKAN)", Kind: KindDecimal},
		{Name: "INPUT_TIMESTAMP", Alias: "TANGGAL INPUT", Kind: KindTimestamp},
	},
}

// Header returns the canonical column names in order.
func (s Schema) Header() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Binding maps schema columns to positions in a concrete header.
type Binding struct {
	index []int
}

// Bind locates every schema column in header, by name or alias, ignoring case and
// surrounding space. Extra header columns are ignored.
func (s Schema) Bind(header []string) (Binding, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := pos[key]; !dup {
			pos[key] = i
		}
	}

	b := Binding{index: make([]int, len(s.Columns))}
	var missing []string
	for i, c := range s.Columns {
		if p, ok := pos[normalizeHeader(c.Name)]; ok {
			b.index[i] = p
			continue
		}
		if p, ok := pos[normalizeHeader(c.Alias)]; ok && c.Alias != "" {
			b.index[i] = p
			continue
		}
		missing = append(missing, c.Name)
	}
	if len(missing) > 0 {
		return Binding{}, &SchemaError{Version: s.Version, Missing: missing}
	}
	return b, nil
}

// Decode converts one record. It reports false for a record whose bound cells are all blank.
func (b Binding) Decode(record []string) (models.LedgerRow, bool) {
	cells := make([]string, len(b.index))
	blank := true
	for i, p := range b.index {
		if p < len(record) {
			cells[i] = strings.TrimSpace(record[p])
		}
		if cells[i] != "" {
			blank = false
		}
	}
	if blank {
		return models.LedgerRow{}, false
	}

	return models.LedgerRow{
		CustomerCode:   cells[colCustomerCode],
		Name:           cells[colName],
		Village:        cells[colVillage],
		Subunit:        cells[colSubunit],
		PriorReading:   parseDecimal(cells[colPriorReading]),
		CurrentReading: parseDecimal(cells[colCurrentReading]),
		Usage:          parseDecimal(cells[colUsage]),
		Charge:         parseDecimal(cells[colCharge]),
		AmountPaid:     parseDecimal(cells[colAmountPaid]),
		Remaining:      parseDecimal(cells[colRemaining]),
		ArrearsIn:      parseDecimal(cells[colArrearsIn]),
		TotalDue:       parseDecimal(cells[colTotalDue]),
		InputAt:        parseTimestamp(cells[colInputTimestamp]),
	}, true
}

// DecodeTable decodes a header row followed by data records. A table with no
// header at all is empty, not a schema error.
func DecodeTable(s Schema, records [][]string) ([]models.LedgerRow, error) {
	if len(records) == 0 || isBlank(records[0]) {
		return []models.LedgerRow{}, nil
	}
	b, err := s.Bind(records[0])
	if err != nil {
		return nil, err
	}
	rows := make([]models.LedgerRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if row, ok := b.Decode(rec); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// EncodeRow renders a row as cells in V1 column order.
func EncodeRow(r models.LedgerRow) []string {
	ts := ""
	if !r.InputAt.IsZero() {
		ts = r.InputAt.Format(models.TimestampLayout)
	}
	return []string{
		r.CustomerCode,
		r.Name,
		r.Village,
		r.Subunit,
		r.PriorReading.String(),
		r.CurrentReading.String(),
		r.Usage.String(),
		r.Charge.String(),
		r.AmountPaid.String(),
		r.Remaining.String(),
		r.ArrearsIn.String(),
		r.TotalDue.String(),
		ts,
	}
}

// Blank and malformed numeric cells read as zero.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

var timestampLayouts = []string{
	models.TimestampLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"1/2/2006 15:04:05",
	"2/1/2006 15:04:05",
	"2006-01-02",
}

// parseTimestamp interprets local process time; unparseable values read as zero.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Local()
	}
	return time.Time{}
}

func normalizeHeader(h string) string {
	return strings.ToUpper(strings.TrimSpace(h))
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
