// Package events announces durable ledger changes to other systems.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/airbersih/pkg/models"
)

type Type string

const (
	TypeReadingRecorded    Type = "reading_recorded"
	TypeCustomerRegistered Type = "customer_registered"
)

// Event carries a row that has already been appended to the datastore.
type Event struct {
	ID         uuid.UUID        `json:"id"`
	Type       Type             `json:"type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Row        models.LedgerRow `json:"row"`
}

func New(t Type, row models.LedgerRow) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		OccurredAt: row.InputAt,
		Row:        row,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
