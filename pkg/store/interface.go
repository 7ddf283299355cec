package store

import (
	"context"

	"github.com/mcclellann/airbersih/pkg/models"
)

// Storage is the tabular datastore holding every ledger row in append order.
type Storage interface {
	// ReadAll returns every row in the order it was appended. Failures are
	// *ConnectivityError or *SchemaError; an empty table is not an error.
	ReadAll(ctx context.Context) ([]models.LedgerRow, error)
	// AppendRow appends one row after the last. The row is durable once this returns nil.
	AppendRow(ctx context.Context, row models.LedgerRow) error

	Close() error
}
