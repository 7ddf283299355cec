package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcclellann/airbersih/pkg/ledger"
	"github.com/mcclellann/airbersih/pkg/models"
	"github.com/mcclellann/airbersih/pkg/store"
)

type apiErrorJSON struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeAPIFieldError(w, status, code, "", message)
}

func writeAPIFieldError(w http.ResponseWriter, status int, code, field, message string) {
	_ = writeJSON(w, status, apiErrorJSON{
		Code:      code,
		Message:   message,
		Field:     field,
		RequestID: w.Header().Get(requestIDHeader),
	})
}

// failure is how a ledger error is shown to the person who caused it.
type failure struct {
	status  int
	code    string
	field   string
	message string
}

// classify maps ledger errors to HTTP. A SchemaError on a read never gets here: read
// handlers render it as a degraded 200.
func classify(err error) failure {
	var (
		dup *models.DuplicateCustomerError
		ve  *models.ValidationError
		ce  *store.ConnectivityError
		se  *store.SchemaError
	)
	switch {
	case errors.As(err, &dup):
		return failure{http.StatusConflict, "duplicate_customer", "customer_code", dup.Error()}
	case errors.As(err, &ve):
		return failure{http.StatusBadRequest, "invalid_argument", ve.Field, ve.Error()}
	case errors.Is(err, ledger.ErrCustomerNotFound):
		return failure{http.StatusNotFound, "not_found", "customer_code", err.Error()}
	case errors.As(err, &ce):
		return failure{http.StatusBadGateway, "datastore_unavailable", "", "the ledger datastore could not be reached; nothing was saved, please try again"}
	case errors.As(err, &se):
		return failure{http.StatusInternalServerError, "schema_mismatch", "", se.Error()}
	default:
		return failure{http.StatusInternalServerError, "internal_error", "", "internal error"}
	}
}

func writeLedgerError(w http.ResponseWriter, err error) {
	f := classify(err)
	writeAPIFieldError(w, f.status, f.code, f.field, f.message)
}

// degradedMessage is non-empty when the datastore layout is not understood.
func degradedMessage(err error) string {
	var se *store.SchemaError
	if errors.As(err, &se) {
		return se.Error()
	}
	return ""
}
