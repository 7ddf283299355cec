package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mcclellann/airbersih/pkg/metrics"
	"github.com/mcclellann/airbersih/pkg/models"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	DriverSheets = "sheets"
	DriverSQLite = "sqlite"
	DriverCSV    = "csv"
)

// Options selects and locates a datastore.
type Options struct {
	Driver      string
	Identifier  string // spreadsheet ID, or file path for sqlite and csv
	Worksheet   string
	Credentials string // service-account JSON file, sheets only
	Logger      *zap.Logger
}

// Open returns the configured store, instrumented with operation metrics.
func Open(ctx context.Context, opts Options) (Storage, error) {
	var (
		s   Storage
		err error
	)
	switch opts.Driver {
	case DriverSheets:
		s, err = NewSheetsStore(ctx, opts.Identifier, opts.Worksheet,
			option.WithCredentialsFile(opts.Credentials),
			option.WithScopes(sheets.SpreadsheetsScope),
		)
	case DriverSQLite:
		s, err = NewSQLiteStore(opts.Identifier)
	case DriverCSV:
		s = NewCSVStore(opts.Identifier)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Datastore opened",
		zap.String("driver", opts.Driver),
		zap.String("identifier", opts.Identifier),
	)
	return Instrument(opts.Driver, s), nil
}

// Instrument wraps s so every call is counted and timed under driver.
func Instrument(driver string, s Storage) Storage {
	return &instrumented{driver: driver, next: s}
}

type instrumented struct {
	driver string
	next   Storage
}

func (i *instrumented) ReadAll(ctx context.Context) ([]models.LedgerRow, error) {
	start := time.Now()
	rows, err := i.next.ReadAll(ctx)
	metrics.ObserveStoreOp(i.driver, "read", err, time.Since(start))
	return rows, err
}

func (i *instrumented) AppendRow(ctx context.Context, row models.LedgerRow) error {
	start := time.Now()
	err := i.next.AppendRow(ctx, row)
	metrics.ObserveStoreOp(i.driver, "append", err, time.Since(start))
	return err
}

func (i *instrumented) Close() error { return i.next.Close() }
