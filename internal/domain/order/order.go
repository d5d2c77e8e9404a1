package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the header row of a customer order. Status drives every side
// effect the engine performs.
type Order struct {
	ID            int64
	UserID        int64
	TotalAmount   decimal.Decimal
	Status        Status
	PaymentMethod string
	AddressID     int64
	CreatedAt     time.Time
	PaidAt        *time.Time
	ShippedAt     *time.Time
	CompletedAt   *time.Time
}

// Item is a line of an order. ProductName and Price are snapshots taken at
// order time and never change afterwards.
type Item struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	Subtotal    decimal.Decimal
}

// Patch holds the order metadata that may change while payment is pending.
// Nil fields are left untouched.
type Patch struct {
	AddressID     *int64
	PaymentMethod *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.AddressID == nil && p.PaymentMethod == nil
}

// Repository defines persistence operations for order headers.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Order, error)
	// Create inserts the order and sets its ID.
	Create(ctx context.Context, o *Order) error
	// Update writes AddressID and PaymentMethod while the stored status is
	// still PendingPayment, returning ErrStatusChanged otherwise.
	Update(ctx context.Context, o *Order) error
	// UpdateStatus writes Status and the lifecycle timestamps only if the
	// stored status equals from, returning ErrStatusChanged otherwise.
	UpdateStatus(ctx context.Context, o *Order, from Status) error
	// Delete removes the order only if the stored status equals expected.
	Delete(ctx context.Context, id int64, expected Status) error
	List(ctx context.Context, limit, offset int) ([]Order, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Order, error)
	Count(ctx context.Context) (int64, error)
}

// ItemRepository defines persistence operations for order lines. Lines are
// written once, in a single batch, when the order is created.
type ItemRepository interface {
	FindByOrderID(ctx context.Context, orderID int64) ([]Item, error)
	// CreateBatch inserts all items and sets their IDs.
	CreateBatch(ctx context.Context, items []Item) error
	Total(ctx context.Context, orderID int64) (decimal.Decimal, error)
	DeleteByOrderID(ctx context.Context, orderID int64) error
}

// Transactor runs fn inside one database transaction. The transaction
// commits when fn returns nil and rolls back on error or panic. Repositories
// called with the ctx passed to fn take part in the transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
