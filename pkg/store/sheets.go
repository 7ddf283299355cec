package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mcclellann/airbersih/pkg/models"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsStore keeps the ledger in one worksheet of a Google spreadsheet; the first
// sheet row is the header.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	worksheet     string
	schema        Schema
}

// NewSheetsStore connects to the spreadsheet. Authentication normally comes from
// option.WithCredentialsFile; tests pass an endpoint and HTTP client instead.
func NewSheetsStore(ctx context.Context, spreadsheetID, worksheet string, opts ...option.ClientOption) (*SheetsStore, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, &ConnectivityError{Driver: "sheets", Op: "connect", Err: err}
	}
	return &SheetsStore{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		worksheet:     worksheet,
		schema:        V1,
	}, nil
}

// ReadAll fetches the whole worksheet. Numbers come back unformatted so display
// separators never reach the decoder.
func (s *SheetsStore) ReadAll(ctx context.Context) ([]models.LedgerRow, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.worksheet).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).
		Do()
	if err != nil {
		return nil, &ConnectivityError{Driver: "sheets", Op: "read", Err: err}
	}

	records := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		rec := make([]string, len(row))
		for j, v := range row {
			rec[j] = cellString(v)
		}
		records[i] = rec
	}
	return DecodeTable(s.schema, records)
}

// AppendRow adds a row below the table. Values are user-entered so the sheet
// parses numbers and the timestamp the way a person typing them would.
func (s *SheetsStore) AppendRow(ctx context.Context, row models.LedgerRow) error {
	cells := EncodeRow(row)
	values := make([]interface{}, len(cells))
	for i, c := range cells {
		values[i] = c
	}

	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.worksheet, &sheets.ValueRange{
		Values: [][]interface{}{values},
	}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return &ConnectivityError{Driver: "sheets", Op: "append", Err: err}
	}
	return nil
}

func (s *SheetsStore) Close() error { return nil }

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
