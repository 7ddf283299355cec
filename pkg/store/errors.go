package store

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownDriver = errors.New("unknown datastore driver")

// ConnectivityError means the datastore could not be reached, authenticated or
// read at the I/O level. The operation was aborted and nothing was written.
type ConnectivityError struct {
	Driver string
	Op     string
	Err    error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s datastore %s: %v", e.Driver, e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// SchemaError means the table lacks columns the schema requires.
type SchemaError struct {
	Version int
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("ledger schema v%d: missing column(s) %s", e.Version, strings.Join(e.Missing, ", "))
}

func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

func IsSchema(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
