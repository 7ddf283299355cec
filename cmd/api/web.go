package main

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/mcclellann/airbersih/pkg/billing"
	"github.com/mcclellann/airbersih/pkg/directory"
	"github.com/mcclellann/airbersih/pkg/ledger"
	"github.com/mcclellann/airbersih/pkg/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

func parsePages() *template.Template {
	return template.Must(template.New("pages").Funcs(template.FuncMap{
		"decimal": func(d decimal.Decimal) string { return d.String() },
	}).ParseFS(templateFS, "templates/*.html"))
}

type flash struct {
	Level   string // "ok" or "error"
	Message string
}

type dashboardView struct {
	Flash              *flash
	Degraded           string
	ActiveCustomers    int
	OutstandingArrears string
	Rows               []rowView
	Customers          []models.Customer
	LastRefresh        string
}

type rowView struct {
	models.LedgerRow
	ChargeDisplay    string
	PaidDisplay      string
	RemainingDisplay string
	ArrearsDisplay   string
	TotalDisplay     string
	InputDisplay     string
}

func (s *Server) dashboardPage(w http.ResponseWriter, r *http.Request) {
	view := dashboardView{Flash: flashFrom(r)}

	dash, err := s.ledger.Dashboard(r.Context())
	if err != nil {
		if msg := degradedMessage(err); msg != "" {
			view.Degraded = msg
		} else {
			s.logger.Error("Dashboard read failed", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
			f := classify(err)
			view.Flash = &flash{Level: "error", Message: f.message}
			s.render(w, f.status, view)
			return
		}
	}

	sym := s.ledger.Symbol()
	view.ActiveCustomers = dash.ActiveCustomers
	view.OutstandingArrears = billing.FormatCurrency(sym, dash.OutstandingArrears)
	if !dash.LastRefresh.IsZero() {
		view.LastRefresh = dash.LastRefresh.Format(models.TimestampLayout)
	}
	for _, row := range dash.Rows {
		view.Rows = append(view.Rows, rowView{
			LedgerRow:        row,
			ChargeDisplay:    billing.FormatCurrency(sym, row.Charge),
			PaidDisplay:      billing.FormatCurrency(sym, row.AmountPaid),
			RemainingDisplay: billing.FormatCurrency(sym, row.Remaining),
			ArrearsDisplay:   billing.FormatCurrency(sym, row.ArrearsIn),
			TotalDisplay:     billing.FormatCurrency(sym, row.TotalDue),
			InputDisplay:     formatInputAt(row),
		})
	}
	view.Customers = directory.Build(dash.Rows).Customers()
	s.render(w, http.StatusOK, view)
}

func (s *Server) render(w http.ResponseWriter, status int, view dashboardView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages.ExecuteTemplate(w, "dashboard.html", view); err != nil {
		s.logger.Error("Failed to render dashboard", zap.Error(err))
	}
}

func formatInputAt(row models.LedgerRow) string {
	if row.InputAt.IsZero() {
		return ""
	}
	return row.InputAt.Format(models.TimestampLayout)
}

func (s *Server) readingForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWithFlash(w, r, "error", "Could not read the form: "+err.Error())
		return
	}
	reading, err := formReading(r, "current_reading", false)
	if err != nil {
		redirectWithFlash(w, r, "error", err.Error())
		return
	}
	paid, err := formAmount(r, "amount_paid", s.ledger.Symbol(), true)
	if err != nil {
		redirectWithFlash(w, r, "error", err.Error())
		return
	}

	res, err := s.ledger.RecordReading(r.Context(), r.PostFormValue("customer_code"), reading, paid)
	if err != nil {
		s.logger.Warn("Reading form rejected", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
		redirectWithFlash(w, r, "error", formMessage(err))
		return
	}
	sum := res.Summary
	redirectWithFlash(w, r, "ok", "Saved "+res.Row.CustomerCode+": usage "+sum.Usage+
		", charge "+sum.Charge+", total due "+sum.TotalDue+", paid "+sum.Paid+", remaining "+sum.Remaining)
}

func (s *Server) customerForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWithFlash(w, r, "error", "Could not read the form: "+err.Error())
		return
	}
	opening, err := formReading(r, "opening_reading", true)
	if err != nil {
		redirectWithFlash(w, r, "error", err.Error())
		return
	}

	row, err := s.ledger.RegisterCustomer(r.Context(), models.NewCustomer{
		Customer: models.Customer{
			Code:    r.PostFormValue("customer_code"),
			Name:    r.PostFormValue("name"),
			Village: r.PostFormValue("village"),
			Subunit: r.PostFormValue("subunit"),
		},
		OpeningReading: opening,
	})
	if err != nil {
		s.logger.Warn("Customer form rejected", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
		redirectWithFlash(w, r, "error", formMessage(err))
		return
	}
	redirectWithFlash(w, r, "ok", "Registered customer "+row.CustomerCode+" ("+row.Name+")")
}

func (s *Server) refreshForm(w http.ResponseWriter, r *http.Request) {
	s.ledger.Refresh()
	redirectWithFlash(w, r, "ok", "Data refreshed")
}

var groupedAmount = regexp.MustCompile(`^-?\d{1,3}([.,]\d{3})+$`)

// formField returns the trimmed field value. A blank optional field is reported as absent.
func formField(r *http.Request, field string, optional bool) (string, bool, error) {
	v := strings.TrimSpace(r.PostFormValue(field))
	if v != "" {
		return v, true, nil
	}
	if optional {
		return "", false, nil
	}
	return "", false, &models.ValidationError{Field: field, Message: "is required"}
}

// formReading parses a meter reading. A single comma is taken as the decimal mark, so "3,5" is 3.5.
func formReading(r *http.Request, field string, optional bool) (decimal.Decimal, error) {
	v, ok, err := formField(r, field, optional)
	if !ok {
		return decimal.Zero, err
	}
	if strings.Contains(v, ",") {
		if strings.Contains(v, ".") || strings.Count(v, ",") > 1 {
			return decimal.Zero, &models.ValidationError{Field: field, Message: "must be a number with at most one decimal mark"}
		}
		v = strings.Replace(v, ",", ".", 1)
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, &models.ValidationError{Field: field, Message: "must be a number"}
	}
	return d, nil
}

// formAmount parses a money amount. Thousands may be grouped with either "," or "." but not
// both, and a leading currency symbol is ignored: "15,000", "15.000" and "Rp 15.000" are 15000.
func formAmount(r *http.Request, field, symbol string, optional bool) (decimal.Decimal, error) {
	v, ok, err := formField(r, field, optional)
	if !ok {
		return decimal.Zero, err
	}
	if symbol != "" {
		v = strings.TrimSpace(strings.TrimPrefix(v, symbol))
	}
	switch {
	case strings.Contains(v, ",") && strings.Contains(v, "."):
		return decimal.Zero, &models.ValidationError{Field: field, Message: "mixes \",\" and \".\" separators"}
	case groupedAmount.MatchString(v):
		v = strings.NewReplacer(",", "", ".", "").Replace(v)
	case strings.Contains(v, ","):
		return decimal.Zero, &models.ValidationError{Field: field, Message: "must be a whole amount"}
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, &models.ValidationError{Field: field, Message: "must be a number"}
	}
	return d, nil
}

func formMessage(err error) string {
	if err == nil {
		return ""
	}
	f := classify(err)
	if f.status == http.StatusNotFound {
		return "Unknown customer: " + strings.TrimPrefix(err.Error(), ledger.ErrCustomerNotFound.Error()+": ")
	}
	return f.message
}

func redirectWithFlash(w http.ResponseWriter, r *http.Request, level, message string) {
	q := url.Values{}
	q.Set("level", level)
	q.Set("msg", message)
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}

func flashFrom(r *http.Request) *flash {
	msg := r.URL.Query().Get("msg")
	if msg == "" {
		return nil
	}
	level := r.URL.Query().Get("level")
	if level != "ok" {
		level = "error"
	}
	return &flash{Level: level, Message: msg}
}
