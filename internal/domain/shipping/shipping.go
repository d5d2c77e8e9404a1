// Package shipping tracks the single logistics record of each order through
// pending, shipped and delivered.
package shipping

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when an order has no logistics record.
	ErrNotFound = errors.New("logistics record not found")
	// ErrAlreadyExists is returned when an order already has a record.
	ErrAlreadyExists = errors.New("logistics record already exists")
	// ErrInvalidState is returned when a shipment step is attempted out of order.
	ErrInvalidState = errors.New("invalid logistics state")
	// ErrMissingTracking is returned when shipping without carrier details.
	ErrMissingTracking = errors.New("express company and tracking number required")
)

// Status is the shipment state of a logistics record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
)

// Logistics is the one-to-one shipment record of an order.
type Logistics struct {
	ID             int64
	OrderID        int64
	ExpressCompany string
	TrackingNumber string
	Status         Status
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
}

// Repository persists logistics records. The update methods only touch a
// record in the expected previous state and return ErrInvalidState
// otherwise.
type Repository interface {
	Create(ctx context.Context, l *Logistics) error
	FindByOrderID(ctx context.Context, orderID int64) (*Logistics, error)
	UpdateShippingInfo(ctx context.Context, orderID int64, company, tracking string, at time.Time) error
	UpdateDeliveryInfo(ctx context.Context, orderID int64, at time.Time) error
	DeleteByOrderID(ctx context.Context, orderID int64) error
}
