package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopdesk/internal/domain/inventory"
)

const logColumns = `id, product_id, change_type, quantity, before_stock, after_stock, order_id, note, created_at`

const (
	insertLogSQL = `INSERT INTO inventory_logs
		(product_id, change_type, quantity, before_stock, after_stock, order_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`

	logsByProductSQL = `SELECT ` + logColumns + ` FROM inventory_logs WHERE product_id = $1 ORDER BY id`

	logsByOrderSQL = `SELECT ` + logColumns + ` FROM inventory_logs WHERE order_id = $1 ORDER BY id`

	logTotalsSQL = `SELECT
		COALESCE(SUM(quantity) FILTER (WHERE change_type = 'purchase'), 0),
		COALESCE(-SUM(quantity) FILTER (WHERE change_type = 'sale'), 0)
		FROM inventory_logs WHERE product_id = $1`

	lowStockSQL = `SELECT id, name, stock FROM products WHERE stock <= $1 ORDER BY stock, id`
)

var _ inventory.LogRepository = (*InventoryLogRepository)(nil)

// InventoryLogRepository implements inventory.LogRepository backed by
// PostgreSQL. It only ever inserts into inventory_logs.
type InventoryLogRepository struct {
	store
}

// NewInventoryLogRepository returns an InventoryLogRepository that uses the given pool.
func NewInventoryLogRepository(pool *pgxpool.Pool) *InventoryLogRepository {
	return &InventoryLogRepository{store{pool: pool}}
}

// Create appends one entry and sets its ID.
func (r *InventoryLogRepository) Create(ctx context.Context, e *inventory.LogEntry) error {
	if err := r.q(ctx).QueryRow(ctx, insertLogSQL, logArgs(e)...).Scan(&e.ID); err != nil {
		return fmt.Errorf("creating %s entry for product %d: %w", e.ChangeType, e.ProductID, err)
	}
	return nil
}

// CreateBatch appends all entries in one round trip and sets their IDs.
func (r *InventoryLogRepository) CreateBatch(ctx context.Context, entries []inventory.LogEntry) error {
	args := make([][]any, len(entries))
	ids := make([]*int64, len(entries))
	for i := range entries {
		args[i] = logArgs(&entries[i])
		ids[i] = &entries[i].ID
	}
	if err := r.insertBatch(ctx, insertLogSQL, args, ids); err != nil {
		return fmt.Errorf("creating inventory entries: %w", err)
	}
	return nil
}

func (r *InventoryLogRepository) FindByProductID(ctx context.Context, productID int64) ([]inventory.LogEntry, error) {
	rows, err := r.q(ctx).Query(ctx, logsByProductSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("listing inventory of product %d: %w", productID, err)
	}
	return pgx.CollectRows(rows, scanLogEntry)
}

func (r *InventoryLogRepository) FindByOrderID(ctx context.Context, orderID int64) ([]inventory.LogEntry, error) {
	rows, err := r.q(ctx).Query(ctx, logsByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing inventory of order %d: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanLogEntry)
}

// Totals sums purchase and sale quantities. Sales are reported as positive units.
func (r *InventoryLogRepository) Totals(ctx context.Context, productID int64) (inventory.Totals, error) {
	var t inventory.Totals
	if err := r.q(ctx).QueryRow(ctx, logTotalsSQL, productID).Scan(&t.Purchased, &t.Sold); err != nil {
		return t, fmt.Errorf("summing inventory of product %d: %w", productID, err)
	}
	return t, nil
}

// LowStock lists products at or below threshold, lowest stock first.
func (r *InventoryLogRepository) LowStock(ctx context.Context, threshold int) ([]inventory.StockLevel, error) {
	rows, err := r.q(ctx).Query(ctx, lowStockSQL, threshold)
	if err != nil {
		return nil, fmt.Errorf("listing low stock: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.StockLevel, error) {
		var l inventory.StockLevel
		err := row.Scan(&l.ProductID, &l.Name, &l.Stock)
		return l, err
	})
}

func logArgs(e *inventory.LogEntry) []any {
	return []any{
		e.ProductID, string(e.ChangeType), e.Quantity, e.BeforeStock, e.AfterStock,
		e.OrderID, e.Note, e.CreatedAt,
	}
}

func scanLogEntry(row pgx.CollectableRow) (inventory.LogEntry, error) {
	var (
		e  inventory.LogEntry
		ct string
	)
	err := row.Scan(&e.ID, &e.ProductID, &ct, &e.Quantity, &e.BeforeStock, &e.AfterStock,
		&e.OrderID, &e.Note, &e.CreatedAt)
	e.ChangeType = inventory.ChangeType(ct)
	return e, err
}
