package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/mcclellann/airbersih/pkg/models"
)

// CSVStore keeps the ledger in a CSV file laid out like the spreadsheet export:
// one header row, then one line per ledger row.
type CSVStore struct {
	path   string
	schema Schema
	mu     sync.Mutex
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path, schema: V1}
}

// ReadAll parses the whole file. A missing file is an empty ledger.
func (s *CSVStore) ReadAll(ctx context.Context) ([]models.LedgerRow, error) {
	_ = ctx // local file reads are not cancellable

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.LedgerRow{}, nil
	}
	if err != nil {
		return nil, &ConnectivityError{Driver: "csv", Op: "read", Err: err}
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1 // be permissive; the schema binding validates columns
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, &ConnectivityError{Driver: "csv", Op: "read", Err: fmt.Errorf("parse csv %q: %w", s.path, err)}
	}
	return DecodeTable(s.schema, records)
}

// AppendRow writes one line, writing the header first when the file is new or empty.
func (s *CSVStore) AppendRow(ctx context.Context, row models.LedgerRow) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &ConnectivityError{Driver: "csv", Op: "append", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &ConnectivityError{Driver: "csv", Op: "append", Err: err}
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(s.schema.Header()); err != nil {
			return &ConnectivityError{Driver: "csv", Op: "append", Err: err}
		}
	}
	if err := w.Write(EncodeRow(row)); err != nil {
		return &ConnectivityError{Driver: "csv", Op: "append", Err: err}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &ConnectivityError{Driver: "csv", Op: "append", Err: err}
	}
	return nil
}

func (s *CSVStore) Close() error { return nil }
