// Package inventory keeps product stock and its append-only audit trail in
// step. Every stock write made through the Ledger appends exactly one
// LogEntry whose AfterStock equals BeforeStock plus Quantity.
package inventory

import (
	"context"
	"time"
)

// ChangeType classifies an inventory movement.
type ChangeType string

const (
	// ChangePurchase is a positive restock.
	ChangePurchase ChangeType = "purchase"
	// ChangeSale is a negative, order-linked movement.
	ChangeSale ChangeType = "sale"
	// ChangeAdjust is a manual or compensating correction of either sign.
	ChangeAdjust ChangeType = "adjust"
)

// LogEntry is one row of the inventory ledger. Entries are never updated or
// deleted once written.
type LogEntry struct {
	ID          int64
	ProductID   int64
	ChangeType  ChangeType
	Quantity    int
	BeforeStock int
	AfterStock  int
	OrderID     *int64
	Note        string
	CreatedAt   time.Time
}

// Consistent reports whether the entry satisfies AfterStock = BeforeStock + Quantity.
func (e LogEntry) Consistent() bool {
	return e.AfterStock == e.BeforeStock+e.Quantity
}

// Totals aggregates movement quantities for one product. Sold is reported as
// a positive number of units.
type Totals struct {
	Purchased int
	Sold      int
}

// StockLevel is a product whose stock is at or below a caller-supplied threshold.
type StockLevel struct {
	ProductID int64
	Name      string
	Stock     int
}

// LogRepository persists and queries ledger entries.
type LogRepository interface {
	Create(ctx context.Context, e *LogEntry) error
	CreateBatch(ctx context.Context, entries []LogEntry) error
	FindByProductID(ctx context.Context, productID int64) ([]LogEntry, error)
	FindByOrderID(ctx context.Context, orderID int64) ([]LogEntry, error)
	Totals(ctx context.Context, productID int64) (Totals, error)
	LowStock(ctx context.Context, threshold int) ([]StockLevel, error)
}
