// Package finance records income and refunds derived from order events.
package finance

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an income record does not exist.
	ErrNotFound = errors.New("income not found")
	// ErrAlreadyPosted is returned when posting a record that is not pending.
	ErrAlreadyPosted = errors.New("income already posted")
	// ErrInvalidAmount is returned for negative amounts.
	ErrInvalidAmount = errors.New("amount must not be negative")
)

// Type distinguishes revenue from refunds.
type Type string

const (
	TypeIncome Type = "income"
	TypeRefund Type = "refund"
)

// Status tells whether a record counts toward totals.
type Status string

const (
	StatusPending Status = "pending"
	StatusPosted  Status = "posted"
)

// Income is an immutable money movement linked to an order. Amount is
// non-negative for TypeIncome and non-positive for TypeRefund. Only Status
// changes after creation, and only from pending to posted.
type Income struct {
	ID              int64
	OrderID         int64
	Type            Type
	Amount          decimal.Decimal
	Status          Status
	TransactionTime time.Time
}

// Summary holds totals over posted records. TotalRefund is an absolute value.
type Summary struct {
	TotalIncome decimal.Decimal
	TotalRefund decimal.Decimal
}

// Net returns income minus refunds.
func (s Summary) Net() decimal.Decimal {
	return s.TotalIncome.Sub(s.TotalRefund)
}

// Repository persists income records.
type Repository interface {
	Create(ctx context.Context, in *Income) error
	FindByOrderID(ctx context.Context, orderID int64) ([]Income, error)
	// UpdateStatus moves a record from one status to another and reports
	// ErrAlreadyPosted when the record is not in the from status.
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
	DeleteByOrderID(ctx context.Context, orderID int64) error
	// Totals sums posted rows by type. The refund sum is returned as stored
	// (non-positive).
	Totals(ctx context.Context) (income, refund decimal.Decimal, err error)
}
