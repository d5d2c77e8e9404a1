// Package review holds customer reviews. An order has at most one review.
package review

import (
	"context"
	"time"
)

// Review is a customer's rating of a completed order.
type Review struct {
	ID        int64
	OrderID   int64
	UserID    int64
	Rating    int16
	Content   string
	CreatedAt time.Time
}

// Repository exposes the operations the order engine needs. FindByOrderID
// returns nil without error when the order has no review.
type Repository interface {
	FindByOrderID(ctx context.Context, orderID int64) (*Review, error)
	DeleteByOrderID(ctx context.Context, orderID int64) error
}
