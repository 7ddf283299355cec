package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/airbersih/pkg/billing"
	"github.com/mcclellann/airbersih/pkg/models"
	"github.com/mcclellann/airbersih/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type dashboardJSON struct {
	ActiveCustomers           int             `json:"active_customers"`
	OutstandingArrears        decimal.Decimal `json:"outstanding_arrears"`
	OutstandingArrearsDisplay string          `json:"outstanding_arrears_display"`
	LastRefresh               *time.Time      `json:"last_refresh,omitempty"`
	Degraded                  string          `json:"degraded,omitempty"`
}

type rowsJSON struct {
	Rows     []models.LedgerRow `json:"rows"`
	Degraded string             `json:"degraded,omitempty"`
}

type customersJSON struct {
	Customers []models.Customer `json:"customers"`
	Degraded  string            `json:"degraded,omitempty"`
}

type recordReadingRequest struct {
	CustomerCode   string          `json:"customer_code"`
	CurrentReading decimal.NullDecimal `json:"current_reading"`
	AmountPaid     decimal.Decimal     `json:"amount_paid"`
}

// readFailed writes the error for a failed read and reports whether it did. A schema
// mismatch is not a failure here; the caller answers 200 with a degraded notice.
func (s *Server) readFailed(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil || store.IsSchema(err) {
		if err != nil {
			s.logger.Warn("Serving degraded read", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
		}
		return false
	}
	s.logger.Error("Ledger read failed", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
	writeLedgerError(w, err)
	return true
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	dash, err := s.ledger.Dashboard(r.Context())
	if s.readFailed(w, r, err) {
		return
	}
	resp := dashboardJSON{
		ActiveCustomers:           dash.ActiveCustomers,
		OutstandingArrears:        dash.OutstandingArrears,
		OutstandingArrearsDisplay: billing.FormatCurrency(s.ledger.Symbol(), dash.OutstandingArrears),
		Degraded:                  degradedMessage(err),
	}
	if !dash.LastRefresh.IsZero() {
		resp.LastRefresh = &dash.LastRefresh
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listRowsHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ledger.Snapshot(r.Context())
	if s.readFailed(w, r, err) {
		return
	}
	_ = writeJSON(w, http.StatusOK, rowsJSON{Rows: rows, Degraded: degradedMessage(err)})
}

// listCustomersHandler lists customers, or with ?name= returns the one prefill that matches.
func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		p, err := s.ledger.CustomerByName(r.Context(), name)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		_ = writeJSON(w, http.StatusOK, p)
		return
	}

	customers, err := s.ledger.Customers(r.Context())
	if s.readFailed(w, r, err) {
		return
	}
	_ = writeJSON(w, http.StatusOK, customersJSON{Customers: customers, Degraded: degradedMessage(err)})
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	p, err := s.ledger.Customer(r.Context(), code)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, p)
}

func (s *Server) recordReadingHandler(w http.ResponseWriter, r *http.Request) {
	var req recordReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "invalid JSON body: "+err.Error())
		return
	}

	if !req.CurrentReading.Valid {
		writeLedgerError(w, &models.ValidationError{Field: "current_reading", Message: "is required"})
		return
	}

	res, err := s.ledger.RecordReading(r.Context(), req.CustomerCode, req.CurrentReading.Decimal, req.AmountPaid)
	if err != nil {
		s.logger.Warn("Record reading rejected",
			zap.String("customer_code", req.CustomerCode),
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
		writeLedgerError(w, err)
		return
	}
	_ = writeJSON(w, http.StatusCreated, res)
}

func (s *Server) registerCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req models.NewCustomer
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "invalid JSON body: "+err.Error())
		return
	}

	row, err := s.ledger.RegisterCustomer(r.Context(), req)
	if err != nil {
		s.logger.Warn("Customer registration rejected",
			zap.String("customer_code", req.Code),
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
		writeLedgerError(w, err)
		return
	}
	_ = writeJSON(w, http.StatusCreated, row)
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	s.ledger.Refresh()
	w.WriteHeader(http.StatusNoContent)
}
