package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned when a conditional decrement finds
	// less stock than requested.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidQuantity is returned for non-positive stock deltas.
	ErrInvalidQuantity = errors.New("stock quantity must be greater than 0")
)

// Status is the sale status of a catalog item.
type Status int16

const (
	StatusOffSale Status = 0
	StatusOnSale  Status = 1
)

// Product represents a catalog item with its current stock level.
type Product struct {
	ID     int64
	Name   string
	Price  decimal.Decimal
	Stock  int
	Status Status
}

// StockChange is the stock level observed around a single write.
type StockChange struct {
	Before int
	After  int
}

// Delta returns the signed quantity applied by the write.
func (c StockChange) Delta() int {
	return c.After - c.Before
}

// Repository defines catalog reads and stock writes.
//
// Stock is mutated only through the three write methods. DecreaseStock must
// be a single conditional statement so concurrent callers cannot overdraw.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	FindByID(ctx context.Context, id int64) (*Product, error)
	DecreaseStock(ctx context.Context, id int64, qty int) (StockChange, error)
	IncreaseStock(ctx context.Context, id int64, qty int) (StockChange, error)
	UpdateStock(ctx context.Context, id int64, stock int) (StockChange, error)
}
