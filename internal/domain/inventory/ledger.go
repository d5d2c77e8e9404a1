package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/shopdesk/internal/domain/product"
)

// ErrZeroAdjustment is returned when an adjustment would not change stock.
var ErrZeroAdjustment = errors.New("adjustment delta must not be zero")

// ShortageError reports a conditional decrement that found less stock than
// requested. It matches product.ErrInsufficientStock.
type ShortageError struct {
	ProductID int64
	Requested int
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d", e.ProductID, e.Requested)
}

func (e *ShortageError) Is(target error) bool { return target == product.ErrInsufficientStock }

// Line is a product quantity taken from or returned to stock on behalf of an order.
type Line struct {
	ProductID int64
	Quantity  int
}

// Ledger applies stock mutations and records them in the inventory log. It
// does not open transactions; callers that need several movements to land
// together run the Ledger inside their own unit of work.
type Ledger struct {
	products product.Repository
	logs     LogRepository
	now      func() time.Time
}

// NewLedger creates a Ledger over the given repositories.
func NewLedger(products product.Repository, logs LogRepository) *Ledger {
	return &Ledger{products: products, logs: logs, now: time.Now}
}

// Sell takes qty units out of stock for an order. The decrement is
// conditional, so it fails with product.ErrInsufficientStock instead of
// driving stock negative.
func (l *Ledger) Sell(ctx context.Context, productID int64, qty int, orderID int64) (LogEntry, error) {
	entries, err := l.SellLines(ctx, orderID, []Line{{ProductID: productID, Quantity: qty}})
	if err != nil {
		return LogEntry{}, err
	}
	return entries[0], nil
}

// SellLines decrements stock for every line and appends one sale entry per
// line in a single batch.
func (l *Ledger) SellLines(ctx context.Context, orderID int64, lines []Line) ([]LogEntry, error) {
	entries := make([]LogEntry, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, product.ErrInvalidQuantity
		}
		change, err := l.decrease(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return nil, err
		}
		entries = append(entries, l.entry(line.ProductID, ChangeSale, change, orderRef(orderID), ""))
	}
	if err := l.logs.CreateBatch(ctx, entries); err != nil {
		return nil, errors.Wrap(err, "append sale entries")
	}
	return entries, nil
}

// Restore returns qty units of an order to stock.
func (l *Ledger) Restore(ctx context.Context, productID int64, qty int, orderID int64) (LogEntry, error) {
	entries, err := l.RestoreLines(ctx, orderID, []Line{{ProductID: productID, Quantity: qty}})
	if err != nil {
		return LogEntry{}, err
	}
	return entries[0], nil
}

// RestoreLines returns the quantities of an order to stock and appends one
// compensating adjust entry per line.
func (l *Ledger) RestoreLines(ctx context.Context, orderID int64, lines []Line) ([]LogEntry, error) {
	entries := make([]LogEntry, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, product.ErrInvalidQuantity
		}
		change, err := l.products.IncreaseStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "increase stock of product %d", line.ProductID)
		}
		entries = append(entries, l.entry(line.ProductID, ChangeAdjust, change, orderRef(orderID), "order stock restored"))
	}
	if err := l.logs.CreateBatch(ctx, entries); err != nil {
		return nil, errors.Wrap(err, "append restore entries")
	}
	return entries, nil
}

// Purchase adds restocked units and records a purchase entry.
func (l *Ledger) Purchase(ctx context.Context, productID int64, qty int, note string) (LogEntry, error) {
	if qty <= 0 {
		return LogEntry{}, product.ErrInvalidQuantity
	}
	change, err := l.products.IncreaseStock(ctx, productID, qty)
	if err != nil {
		return LogEntry{}, errors.Wrapf(err, "increase stock of product %d", productID)
	}
	return l.append(ctx, l.entry(productID, ChangePurchase, change, nil, note))
}

// Adjust applies a manual correction. Negative deltas take the conditional
// decrement path and never drive stock below zero.
func (l *Ledger) Adjust(ctx context.Context, productID int64, delta int, note string) (LogEntry, error) {
	var (
		change product.StockChange
		err    error
	)
	switch {
	case delta > 0:
		change, err = l.products.IncreaseStock(ctx, productID, delta)
	case delta < 0:
		change, err = l.decrease(ctx, productID, -delta)
	default:
		return LogEntry{}, ErrZeroAdjustment
	}
	if err != nil {
		return LogEntry{}, errors.Wrapf(err, "adjust stock of product %d", productID)
	}
	return l.append(ctx, l.entry(productID, ChangeAdjust, change, nil, note))
}

// Stocktake overwrites stock with a counted value and records the difference
// as an adjust entry.
func (l *Ledger) Stocktake(ctx context.Context, productID int64, counted int, note string) (LogEntry, error) {
	if counted < 0 {
		return LogEntry{}, product.ErrInvalidQuantity
	}
	change, err := l.products.UpdateStock(ctx, productID, counted)
	if err != nil {
		return LogEntry{}, errors.Wrapf(err, "set stock of product %d", productID)
	}
	if change.Delta() == 0 {
		return LogEntry{}, ErrZeroAdjustment
	}
	return l.append(ctx, l.entry(productID, ChangeAdjust, change, nil, note))
}

// History returns the ledger of a product, oldest first.
func (l *Ledger) History(ctx context.Context, productID int64) ([]LogEntry, error) {
	return l.logs.FindByProductID(ctx, productID)
}

// OrderHistory returns every entry linked to an order, oldest first.
func (l *Ledger) OrderHistory(ctx context.Context, orderID int64) ([]LogEntry, error) {
	return l.logs.FindByOrderID(ctx, orderID)
}

// Totals returns purchased and sold quantities for a product.
func (l *Ledger) Totals(ctx context.Context, productID int64) (Totals, error) {
	return l.logs.Totals(ctx, productID)
}

// LowStock lists products whose stock is at or below threshold.
func (l *Ledger) LowStock(ctx context.Context, threshold int) ([]StockLevel, error) {
	if threshold < 0 {
		return nil, product.ErrInvalidQuantity
	}
	return l.logs.LowStock(ctx, threshold)
}

func (l *Ledger) decrease(ctx context.Context, productID int64, qty int) (product.StockChange, error) {
	change, err := l.products.DecreaseStock(ctx, productID, qty)
	if errors.Is(err, product.ErrInsufficientStock) {
		return change, &ShortageError{ProductID: productID, Requested: qty}
	}
	if err != nil {
		return change, errors.Wrapf(err, "decrease stock of product %d", productID)
	}
	return change, nil
}

func (l *Ledger) entry(productID int64, ct ChangeType, change product.StockChange, orderID *int64, note string) LogEntry {
	return LogEntry{
		ProductID:   productID,
		ChangeType:  ct,
		Quantity:    change.Delta(),
		BeforeStock: change.Before,
		AfterStock:  change.After,
		OrderID:     orderID,
		Note:        note,
		CreatedAt:   l.now(),
	}
}

func (l *Ledger) append(ctx context.Context, e LogEntry) (LogEntry, error) {
	if err := l.logs.Create(ctx, &e); err != nil {
		return LogEntry{}, errors.Wrapf(err, "append %s entry", e.ChangeType)
	}
	return e, nil
}

func orderRef(id int64) *int64 {
	return &id
}
