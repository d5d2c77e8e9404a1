// Package aftersales holds return and refund requests. The order engine only
// reads them for order details and removes them with their order.
package aftersales

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Request is an after-sales case raised against an order.
type Request struct {
	ID        int64
	OrderID   int64
	Type      string
	Reason    string
	Amount    decimal.Decimal
	Status    int16
	CreatedAt time.Time
}

// Repository exposes the operations the order engine needs.
type Repository interface {
	FindByOrderID(ctx context.Context, orderID int64) ([]Request, error)
	DeleteByOrderID(ctx context.Context, orderID int64) error
}
