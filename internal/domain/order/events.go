package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an order event.
type EventType string

const (
	EventCreated       EventType = "order.created"
	EventUpdated       EventType = "order.updated"
	EventStatusChanged EventType = "order.status_changed"
	EventDeleted       EventType = "order.deleted"
	EventRefunded      EventType = "order.refund_recorded"
)

// Event describes a committed change to an order. PrevStatus is zero for
// events that do not change status.
type Event struct {
	Type        EventType
	OrderID     int64
	UserID      int64
	Status      Status
	PrevStatus  Status
	TotalAmount decimal.Decimal
	OccurredAt  time.Time
}

// EventSink records events in the same transaction as the change they
// describe.
type EventSink interface {
	Append(ctx context.Context, e Event) error
}

func newEvent(t EventType, o *Order, prev Status, at time.Time) Event {
	return Event{
		Type:        t,
		OrderID:     o.ID,
		UserID:      o.UserID,
		Status:      o.Status,
		PrevStatus:  prev,
		TotalAmount: o.TotalAmount,
		OccurredAt:  at,
	}
}
