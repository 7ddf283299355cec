package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mcclellann/airbersih/pkg/cache"
	"github.com/mcclellann/airbersih/pkg/ledger"
	"github.com/mcclellann/airbersih/pkg/models"
	"github.com/mcclellann/airbersih/pkg/store"
	"github.com/shopspring/decimal"
)

func newTestServer(t *testing.T, s store.Storage, opts ServerOptions) *Server {
	t.Helper()
	snapshots := cache.New(s.ReadAll, time.Minute)
	l := ledger.NewLedger(s, snapshots, decimal.NewFromInt(2500))
	return NewServer(l, nil, opts)
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test_api.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return newTestServer(t, s, ServerOptions{})
}

// brokenStore fails every call with the configured errors.
type brokenStore struct {
	readErr   error
	appendErr error
}

func (b *brokenStore) ReadAll(ctx context.Context) ([]models.LedgerRow, error) {
	return nil, b.readErr
}

func (b *brokenStore) AppendRow(ctx context.Context, row models.LedgerRow) error {
	return b.appendErr
}

func (b *brokenStore) Close() error { return nil }

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) apiErrorJSON {
	t.Helper()
	var e apiErrorJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil {
		t.Fatalf("unmarshal error body %q: %v", rr.Body.String(), err)
	}
	return e
}

var budi = map[string]any{
	"customer_code":   "A001",
	"name":            "Budi",
	"village":         "Sukamaju",
	"subunit":         "001/002",
	"opening_reading": "10",
}

func TestAPI_RegisterAndRecordReading(t *testing.T) {
	server := setupTestServer(t)

	rr := doJSON(t, server, "POST", "/api/customers", budi)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get(requestIDHeader) == "" {
		t.Errorf("Expected %s header", requestIDHeader)
	}

	rr = doJSON(t, server, "POST", "/api/readings", map[string]any{
		"customer_code":   "A001",
		"current_reading": 15,
		"amount_paid":     "10000",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var res ledger.RecordResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.Row.Charge.Equal(decimal.NewFromInt(12500)) || !res.Row.Remaining.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("Unexpected row: charge %s remaining %s", res.Row.Charge, res.Row.Remaining)
	}
	if res.Summary.Charge != "Rp 12,500" {
		t.Errorf("Expected summary charge Rp 12,500, got %q", res.Summary.Charge)
	}

	rr = doJSON(t, server, "GET", "/api/customers/A001", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var p ledger.Prefill
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !p.PriorReading.Equal(decimal.NewFromInt(15)) || !p.Arrears.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("Unexpected prefill %+v", p)
	}

	rr = doJSON(t, server, "GET", "/api/dashboard", nil)
	var dash dashboardJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &dash); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if dash.ActiveCustomers != 1 || dash.OutstandingArrearsDisplay != "Rp 2,500" || dash.Degraded != "" {
		t.Errorf("Unexpected dashboard %+v", dash)
	}

	rr = doJSON(t, server, "GET", "/api/rows", nil)
	var rows rowsJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows.Rows) != 2 {
		t.Errorf("Expected 2 rows, got %d", len(rows.Rows))
	}
}

func TestAPI_ErrorMapping(t *testing.T) {
	server := setupTestServer(t)
	if rr := doJSON(t, server, "POST", "/api/customers", budi); rr.Code != http.StatusCreated {
		t.Fatalf("seed customer: %d %s", rr.Code, rr.Body.String())
	}

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
		field  string
	}{
		{"reading below prior", "POST", "/api/readings", map[string]any{"customer_code": "A001", "current_reading": 8}, 400, "invalid_argument", "current_reading"},
		{"missing reading", "POST", "/api/readings", map[string]any{"customer_code": "A001", "amount_paid": "1000"}, 400, "invalid_argument", "current_reading"},
		{"null reading", "POST", "/api/readings", map[string]any{"customer_code": "A001", "current_reading": nil}, 400, "invalid_argument", "current_reading"},
		{"negative payment", "POST", "/api/readings", map[string]any{"customer_code": "A001", "current_reading": 12, "amount_paid": -1}, 400, "invalid_argument", "amount_paid"},
		{"unknown customer", "POST", "/api/readings", map[string]any{"customer_code": "Z999", "current_reading": 1}, 404, "not_found", "customer_code"},
		{"duplicate code", "POST", "/api/customers", budi, 409, "duplicate_customer", "customer_code"},
		{"missing name", "POST", "/api/customers", map[string]any{"customer_code": "B002", "village": "Cibodas", "subunit": "003/001"}, 400, "invalid_argument", "name"},
		{"unknown lookup", "GET", "/api/customers/Z999", nil, 404, "not_found", "customer_code"},
		{"unknown route", "GET", "/api/nothing", nil, 404, "not_found", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, server, tc.method, tc.path, tc.body)
			if rr.Code != tc.status {
				t.Fatalf("status=%d want %d, body=%s", rr.Code, tc.status, rr.Body.String())
			}
			e := decodeError(t, rr)
			if e.Code != tc.code || e.Field != tc.field {
				t.Errorf("error = %+v, want code %q field %q", e, tc.code, tc.field)
			}
			if e.RequestID == "" {
				t.Errorf("Expected request id in error body")
			}
		})
	}

	var rows rowsJSON
	if err := json.Unmarshal(doJSON(t, server, "GET", "/api/rows", nil).Body.Bytes(), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows.Rows) != 1 {
		t.Errorf("rejected submissions must not append rows, got %d rows", len(rows.Rows))
	}
}

func TestAPI_InvalidJSON(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest("POST", "/api/readings", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestAPI_SchemaErrorDegradesReadsAndFailsWrites(t *testing.T) {
	bs := &brokenStore{readErr: &store.SchemaError{Version: 1, Missing: []string{"TOTAL_DUE"}}}
	server := newTestServer(t, bs, ServerOptions{})

	rr := doJSON(t, server, "GET", "/api/rows", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var rows rowsJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rows.Rows == nil || len(rows.Rows) != 0 || !strings.Contains(rows.Degraded, "TOTAL_DUE") {
		t.Errorf("Expected empty degraded rows, got %+v", rows)
	}

	rr = doJSON(t, server, "GET", "/api/dashboard", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "degraded") {
		t.Errorf("Expected degraded dashboard, got %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, "POST", "/api/customers", budi)
	if rr.Code != http.StatusInternalServerError || decodeError(t, rr).Code != "schema_mismatch" {
		t.Errorf("Expected 500 schema_mismatch, got %d %s", rr.Code, rr.Body.String())
	}

	req := httptest.NewRequest("GET", "/", nil)
	page := httptest.NewRecorder()
	server.ServeHTTP(page, req)
	if page.Code != http.StatusOK || !strings.Contains(page.Body.String(), "not recognised") {
		t.Errorf("Expected degraded HTML dashboard, got %d", page.Code)
	}
}

func TestAPI_ConnectivityErrorIsBadGateway(t *testing.T) {
	bs := &brokenStore{readErr: &store.ConnectivityError{Driver: "sheets", Op: "read", Err: errors.New("403 PERMISSION_DENIED")}}
	server := newTestServer(t, bs, ServerOptions{})

	rr := doJSON(t, server, "GET", "/api/dashboard", nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("Expected status 502, got %d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != "datastore_unavailable" || strings.Contains(e.Message, "PERMISSION") {
		t.Errorf("Unexpected error body %+v", e)
	}
}

func TestAPI_WriteRateLimit(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test_limit.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()
	server := newTestServer(t, s, ServerOptions{WriteRateLimit: 0.001})

	if rr := doJSON(t, server, "POST", "/api/customers", budi); rr.Code != http.StatusCreated {
		t.Fatalf("first write: %d", rr.Code)
	}
	rr := doJSON(t, server, "POST", "/api/customers", budi)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", rr.Code)
	}
	if rr := doJSON(t, server, "GET", "/api/rows", nil); rr.Code != http.StatusOK {
		t.Errorf("reads must not be limited, got %d", rr.Code)
	}
}

func TestWeb_FormsRedirectWithFlash(t *testing.T) {
	server := setupTestServer(t)

	post := func(path string, form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		server.ServeHTTP(rr, req)
		return rr
	}

	rr := post("/forms/customers", url.Values{
		"customer_code": {"B002"}, "name": {"Sari"}, "village": {"Cibodas"}, "subunit": {"003/001"}, "opening_reading": {"3,0"},
	})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("Expected 303, got %d", rr.Code)
	}
	loc, _ := url.Parse(rr.Header().Get("Location"))
	if loc.Query().Get("level") != "ok" {
		t.Errorf("Expected ok flash, got %q", loc.RawQuery)
	}

	rr = post("/forms/readings", url.Values{"customer_code": {"B002"}, "current_reading": {"1"}})
	loc, _ = url.Parse(rr.Header().Get("Location"))
	if loc.Query().Get("level") != "error" || !strings.Contains(loc.Query().Get("msg"), "current_reading") {
		t.Errorf("Expected current_reading error flash, got %q", loc.Query().Get("msg"))
	}

	rr = post("/forms/readings", url.Values{"customer_code": {"B002"}, "current_reading": {"7"}, "amount_paid": {"5000"}})
	loc, _ = url.Parse(rr.Header().Get("Location"))
	if msg := loc.Query().Get("msg"); !strings.Contains(msg, "Rp 10,000") || !strings.Contains(msg, "Rp 5,000") {
		t.Errorf("Expected summary in flash, got %q", msg)
	}

	req := httptest.NewRequest("GET", rr.Header().Get("Location"), nil)
	page := httptest.NewRecorder()
	server.ServeHTTP(page, req)
	body := page.Body.String()
	if page.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", page.Code)
	}
	for _, want := range []string{"Sari", "Rp 10,000", `class="flash ok"`, `<option value="B002">`} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestWeb_ReadingFormGroupedAmounts(t *testing.T) {
	server := setupTestServer(t)
	if rr := doJSON(t, server, "POST", "/api/customers", budi); rr.Code != http.StatusCreated {
		t.Fatalf("seed customer: %d %s", rr.Code, rr.Body.String())
	}

	post := func(form url.Values) url.Values {
		req := httptest.NewRequest("POST", "/forms/readings", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		server.ServeHTTP(rr, req)
		if rr.Code != http.StatusSeeOther {
			t.Fatalf("Expected 303, got %d", rr.Code)
		}
		loc, _ := url.Parse(rr.Header().Get("Location"))
		return loc.Query()
	}
	arrears := func() decimal.Decimal {
		var p ledger.Prefill
		if err := json.Unmarshal(doJSON(t, server, "GET", "/api/customers/A001", nil).Body.Bytes(), &p); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return p.Arrears
	}

	// 5 m3 at 2500 is 12500 due; paying 15,000 leaves a 2500 credit.
	if q := post(url.Values{"customer_code": {"A001"}, "current_reading": {"15"}, "amount_paid": {"15,000"}}); q.Get("level") != "ok" {
		t.Fatalf("Expected ok flash, got %q", q.Get("msg"))
	}
	if got := arrears(); !got.Equal(decimal.NewFromInt(-2500)) {
		t.Fatalf("arrears after \"15,000\" = %s, want -2500", got)
	}

	// 1 m3 is 2500, fully covered by the credit; 15.000 becomes a 15000 credit.
	if q := post(url.Values{"customer_code": {"A001"}, "current_reading": {"16"}, "amount_paid": {"Rp 15.000"}}); q.Get("level") != "ok" {
		t.Fatalf("Expected ok flash, got %q", q.Get("msg"))
	}
	if got := arrears(); !got.Equal(decimal.NewFromInt(-15000)) {
		t.Fatalf("arrears after \"Rp 15.000\" = %s, want -15000", got)
	}

	for _, form := range []url.Values{
		{"customer_code": {"A001"}, "current_reading": {"17"}, "amount_paid": {"15.000,50"}},
		{"customer_code": {"A001"}, "current_reading": {"17"}, "amount_paid": {"1500,5"}},
		{"customer_code": {"A001"}, "current_reading": {"1.017,5"}, "amount_paid": {"0"}},
	} {
		q := post(form)
		if q.Get("level") != "error" {
			t.Errorf("form %v: expected error flash, got %q", form, q.Get("msg"))
		}
	}

	var rows rowsJSON
	if err := json.Unmarshal(doJSON(t, server, "GET", "/api/rows", nil).Body.Bytes(), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows.Rows) != 3 {
		t.Errorf("Expected 3 rows, got %d", len(rows.Rows))
	}
}

func TestFormAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "0", true},
		{"15000", "15000", true},
		{"15,000", "15000", true},
		{"15.000", "15000", true},
		{"1.250.000", "1250000", true},
		{"Rp 12,500", "12500", true},
		{"12.5", "12.5", true},
		{"15.000,50", "", false},
		{"1500,5", "", false},
		{"abc", "", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("POST", "/", strings.NewReader(url.Values{"amount_paid": {tc.in}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		got, err := formAmount(req, "amount_paid", "Rp", true)
		if (err == nil) != tc.ok {
			t.Errorf("formAmount(%q) err = %v, want ok=%v", tc.in, err, tc.ok)
			continue
		}
		if tc.ok && got.String() != tc.want {
			t.Errorf("formAmount(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestFormReading(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"3,0", "3", true},
		{"3,5", "3.5", true},
		{"12.25", "12.25", true},
		{"1.017,5", "", false},
		{"1,2,3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("POST", "/", strings.NewReader(url.Values{"current_reading": {tc.in}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		got, err := formReading(req, "current_reading", false)
		if (err == nil) != tc.ok {
			t.Errorf("formReading(%q) err = %v, want ok=%v", tc.in, err, tc.ok)
			continue
		}
		if tc.ok && got.String() != tc.want {
			t.Errorf("formReading(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestHealthz(t *testing.T) {
	server := setupTestServer(t)

	rr := doJSON(t, server, "GET", "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rr.Code)
	}
}
