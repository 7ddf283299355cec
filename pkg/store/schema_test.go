package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mcclellann/airbersih/pkg/models"
	"github.com/shopspring/decimal"
)

var legacyHeader = []string{
	"KODE PELANGGAN", "NAMA", "KAMPUNG", "RT/RW",
	"JUMLAH METER BULAN LALU", "JUMLAH METER BULAN INI",
	"JUMLAH METER DIGUNAKAN BULAN INI",
	"TAGIHAN YANG HARUS DI BAYAR BULAN INI",
	"TAGIHAN YANG SUDAH DI BAYAR BULAN INI",
	"SISA TAGIHAN BULAN INI", "TUNGGAKAN DARI BULAN LALU",
	"TOTAL TAGIHAN (TERMASUK TUNGGAKAN)", "TANGGAL INPUT",
}

func sampleRow() models.LedgerRow {
	return models.LedgerRow{
		CustomerCode:   "A001",
		Name:           "Budi",
		Village:        "Sukamaju",
		Subunit:        "001/002",
		PriorReading:   decimal.NewFromInt(10),
		CurrentReading: decimal.RequireFromString("15.5"),
		Usage:          decimal.RequireFromString("5.5"),
		Charge:         decimal.NewFromInt(13750),
		AmountPaid:     decimal.NewFromInt(15000),
		Remaining:      decimal.NewFromInt(3750),
		ArrearsIn:      decimal.NewFromInt(5000),
		TotalDue:       decimal.NewFromInt(18750),
		InputAt:        time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local),
	}
}

func TestDecodeTable_AcceptsLegacyHeaders(t *testing.T) {
	records := [][]string{
		legacyHeader,
		EncodeRow(sampleRow()),
	}

	rows, err := DecodeTable(V1, records)
	if err != nil {
		t.Fatalf("DecodeTable: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	got, want := rows[0], sampleRow()
	if got.Customer() != want.Customer() {
		t.Errorf("customer = %+v, want %+v", got.Customer(), want.Customer())
	}
	if !got.CurrentReading.Equal(want.CurrentReading) || !got.TotalDue.Equal(want.TotalDue) {
		t.Errorf("amounts = %s / %s", got.CurrentReading, got.TotalDue)
	}
	if !got.InputAt.Equal(want.InputAt) {
		t.Errorf("InputAt = %v, want %v", got.InputAt, want.InputAt)
	}
}

func TestDecodeTable_ReorderedAndCaseInsensitiveHeader(t *testing.T) {
	header := V1.Header()
	// Swap two columns and lower-case one name.
	header[0], header[1] = strings.ToLower(header[1]), header[0]
	cells := EncodeRow(sampleRow())
	cells[0], cells[1] = cells[1], cells[0]

	rows, err := DecodeTable(V1, [][]string{append(header, "NOTES"), append(cells, "ignored")})
	if err != nil {
		t.Fatalf("DecodeTable: %v", err)
	}
	if rows[0].CustomerCode != "A001" || rows[0].Name != "Budi" {
		t.Errorf("columns bound wrongly: %+v", rows[0].Customer())
	}
}

func TestDecodeTable_MissingColumnIsSchemaError(t *testing.T) {
	header := append([]string(nil), V1.Header()[:12]...) // drop INPUT_TIMESTAMP

	_, err := DecodeTable(V1, [][]string{header})
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if se.Version != 1 || len(se.Missing) != 1 || se.Missing[0] != "INPUT_TIMESTAMP" {
		t.Errorf("unexpected schema error: %+v", se)
	}
}

func TestDecodeTable_CoercesBlanksAndDropsEmptyRows(t *testing.T) {
	records := [][]string{
		V1.Header(),
		{"A001", "Budi", "Sukamaju", "001/002", "", "10", "", "abc", "", "", "", "", "2024-05-01 09:30:00"},
		{"", "", "", "", "", "", "", "", "", "", "", "", ""},
		{"B002", "Sari"}, // short record
	}

	rows, err := DecodeTable(V1, records)
	if err != nil {
		t.Fatalf("DecodeTable: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if !rows[0].PriorReading.IsZero() || !rows[0].Charge.IsZero() {
		t.Errorf("blank/garbage cells should be zero: %+v", rows[0])
	}
	if !rows[0].CurrentReading.Equal(decimal.NewFromInt(10)) {
		t.Errorf("current = %s, want 10", rows[0].CurrentReading)
	}
	if !rows[1].InputAt.IsZero() || !rows[1].TotalDue.IsZero() {
		t.Errorf("short record should decode with zero values: %+v", rows[1])
	}
}

func TestDecodeTable_EmptyTable(t *testing.T) {
	rows, err := DecodeTable(V1, nil)
	if err != nil {
		t.Fatalf("DecodeTable: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", rows)
	}
}

func TestParseTimestamp_SpreadsheetRenderings(t *testing.T) {
	want := time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)
	for _, in := range []string{"2024-05-01 09:30:00", "2024-05-01 9:30:00", "5/1/2024 9:30:00", "2024-05-01T09:30:00"} {
		if got := parseTimestamp(in); !got.Equal(want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", in, got, want)
		}
	}
	if got := parseTimestamp("yesterday"); !got.IsZero() {
		t.Errorf("unparseable timestamp = %v, want zero", got)
	}
}
