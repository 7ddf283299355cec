package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mcclellann/airbersih/pkg/billing"
	"github.com/mcclellann/airbersih/pkg/cache"
	"github.com/mcclellann/airbersih/pkg/directory"
	"github.com/mcclellann/airbersih/pkg/events"
	"github.com/mcclellann/airbersih/pkg/metrics"
	"github.com/mcclellann/airbersih/pkg/models"
	"github.com/mcclellann/airbersih/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrCustomerNotFound = errors.New("customer not found")

// Ledger handles the business logic for readings, payments and registrations.
// Writers are not coordinated: two concurrent submissions for the same customer can
// both compute from the same last row.
type Ledger struct {
	storage   store.Storage
	snapshots *cache.Snapshot
	unitPrice decimal.Decimal
	symbol    string
	now       func() time.Time
	events    events.Publisher
	logger    *zap.Logger
	validate  *validator.Validate
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithPublisher(p events.Publisher) Option {
	return func(l *Ledger) { l.events = p }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithCurrencySymbol(symbol string) Option {
	return func(l *Ledger) { l.symbol = symbol }
}

// NewLedger creates a Ledger on top of s. snapshots must read from the same storage.
func NewLedger(s store.Storage, snapshots *cache.Snapshot, unitPrice decimal.Decimal, opts ...Option) *Ledger {
	l := &Ledger{
		storage:   s,
		snapshots: snapshots,
		unitPrice: unitPrice,
		symbol:    billing.DefaultCurrencySymbol,
		now:       time.Now,
		events:    events.NopPublisher{},
		logger:    zap.NewNop(),
		validate:  validator.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordResult is a persisted period together with its display amounts.
type RecordResult struct {
	Row     models.LedgerRow `json:"row"`
	Summary billing.Summary  `json:"summary"`
}

// RecordReading appends the next billing period for an existing customer.
func (l *Ledger) RecordReading(ctx context.Context, code string, newReading, amountPaid decimal.Decimal) (*RecordResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &models.ValidationError{Field: "customer_code", Message: "is required"}
	}

	dir, err := l.directory(ctx)
	if err != nil {
		return nil, err
	}
	last, ok := dir.Latest(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, code)
	}

	row, err := billing.ComputePeriod(last, newReading, amountPaid, l.unitPrice, l.now())
	if err != nil {
		return nil, err
	}
	if err := l.append(ctx, events.TypeReadingRecorded, row); err != nil {
		return nil, err
	}

	l.logger.Info("Reading recorded",
		zap.String("customer_code", row.CustomerCode),
		zap.String("usage", row.Usage.String()),
		zap.String("total_due", row.TotalDue.String()),
		zap.String("amount_paid", row.AmountPaid.String()),
	)
	return &RecordResult{
		Row:     row,
		Summary: billing.Summarize(l.symbol, row.Usage, row.Charge, row.TotalDue, row.AmountPaid, row.Remaining),
	}, nil
}

// RegisterCustomer appends the opening row of a new customer.
func (l *Ledger) RegisterCustomer(ctx context.Context, in models.NewCustomer) (models.LedgerRow, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Village = strings.TrimSpace(in.Village)
	in.Subunit = strings.TrimSpace(in.Subunit)

	if err := l.validateCustomer(in.Customer); err != nil {
		return models.LedgerRow{}, err
	}

	dir, err := l.directory(ctx)
	if err != nil {
		return models.LedgerRow{}, err
	}
	row, err := dir.NewCustomerOpeningRow(in.Customer, in.OpeningReading, l.now())
	if err != nil {
		return models.LedgerRow{}, err
	}
	if err := l.append(ctx, events.TypeCustomerRegistered, row); err != nil {
		return models.LedgerRow{}, err
	}

	l.logger.Info("Customer registered",
		zap.String("customer_code", row.CustomerCode),
		zap.String("opening_reading", row.CurrentReading.String()),
	)
	return row, nil
}

func (l *Ledger) validateCustomer(c models.Customer) error {
	err := l.validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &models.ValidationError{Field: jsonFieldName(fe.Field()), Message: "is required"}
	}
	return &models.ValidationError{Field: "customer", Message: err.Error()}
}

// Field names as the API spells them.
func jsonFieldName(field string) string {
	switch field {
	case "Code":
		return "customer_code"
	default:
		return strings.ToLower(field)
	}
}

// append persists row, then invalidates the snapshot, then announces it. A publish
// failure is logged only since the row is already durable.
func (l *Ledger) append(ctx context.Context, t events.Type, row models.LedgerRow) error {
	if err := l.storage.AppendRow(ctx, row); err != nil {
		l.logger.Error("Failed to append ledger row",
			zap.String("customer_code", row.CustomerCode),
			zap.Error(err),
		)
		return fmt.Errorf("failed to store ledger row: %w", err)
	}
	l.snapshots.Invalidate()

	err := l.events.Publish(ctx, events.New(t, row))
	metrics.ObserveEventPublished(string(t), err)
	if err != nil {
		l.logger.Warn("Failed to publish ledger event",
			zap.String("type", string(t)),
			zap.String("customer_code", row.CustomerCode),
			zap.Error(err),
		)
	}
	return nil
}

func (l *Ledger) directory(ctx context.Context) (*directory.Directory, error) {
	rows, err := l.snapshots.Get(ctx)
	if err != nil {
		return nil, err
	}
	return directory.Build(rows), nil
}

// Snapshot returns every ledger row. On a schema mismatch it returns an empty,
// non-nil slice together with the *store.SchemaError.
func (l *Ledger) Snapshot(ctx context.Context) ([]models.LedgerRow, error) {
	rows, err := l.snapshots.Get(ctx)
	if err != nil {
		if store.IsSchema(err) {
			return []models.LedgerRow{}, err
		}
		return nil, err
	}
	return rows, nil
}

// Dashboard holds the headline figures of the landing page.
type Dashboard struct {
	ActiveCustomers    int                `json:"active_customers"`
	OutstandingArrears decimal.Decimal    `json:"outstanding_arrears"`
	Rows               []models.LedgerRow `json:"rows"`
	LastRefresh        time.Time          `json:"last_refresh"`
}

// Dashboard summarizes the ledger. A schema mismatch yields a zero Dashboard and the error.
func (l *Ledger) Dashboard(ctx context.Context) (Dashboard, error) {
	rows, err := l.Snapshot(ctx)
	if err != nil {
		return Dashboard{Rows: rows, OutstandingArrears: decimal.Zero}, err
	}
	dir := directory.Build(rows)
	return Dashboard{
		ActiveCustomers:    dir.Len(),
		OutstandingArrears: dir.OutstandingArrears(),
		Rows:               rows,
		LastRefresh:        l.snapshots.LastRefresh(),
	}, nil
}

// Customers lists the known customers in first-appearance order.
func (l *Ledger) Customers(ctx context.Context) ([]models.Customer, error) {
	rows, err := l.Snapshot(ctx)
	if err != nil {
		if store.IsSchema(err) {
			return []models.Customer{}, err
		}
		return nil, err
	}
	return directory.Build(rows).Customers(), nil
}

// Prefill is what the reading form shows once a customer is picked.
type Prefill struct {
	Customer     models.Customer `json:"customer"`
	PriorReading decimal.Decimal `json:"prior_reading"`
	Arrears      decimal.Decimal `json:"arrears"`
	LastInputAt  time.Time       `json:"last_input_at"`
}

// Customer looks up one customer by exact code.
func (l *Ledger) Customer(ctx context.Context, code string) (Prefill, error) {
	code = strings.TrimSpace(code)
	rows, err := l.Snapshot(ctx)
	if err != nil {
		return Prefill{}, err
	}
	last, ok := directory.Build(rows).Latest(code)
	if !ok {
		return Prefill{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, code)
	}
	return Prefill{
		Customer:     last.Customer(),
		PriorReading: last.CurrentReading,
		Arrears:      last.Outstanding(),
		LastInputAt:  last.InputAt,
	}, nil
}

// CustomerByName finds a customer by display name.
func (l *Ledger) CustomerByName(ctx context.Context, name string) (Prefill, error) {
	rows, err := l.Snapshot(ctx)
	if err != nil {
		return Prefill{}, err
	}
	c, ok := directory.Build(rows).FindByName(name)
	if !ok {
		return Prefill{}, fmt.Errorf("%w: %s", ErrCustomerNotFound, strings.TrimSpace(name))
	}
	return l.Customer(ctx, c.Code)
}

// Refresh drops the cached snapshot so the next read goes to the datastore.
func (l *Ledger) Refresh() {
	l.snapshots.Invalidate()
	l.logger.Info("Ledger snapshot invalidated on request")
}

// Symbol is the currency prefix used in summaries.
func (l *Ledger) Symbol() string {
	return l.symbol
}
