package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopdesk/internal/domain/order"
)

const orderColumns = `id, user_id, total_amount, status, payment_method, address_id,
	created_at, paid_at, shipped_at, completed_at`

const (
	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		ORDER BY id DESC LIMIT $1 OFFSET $2`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`

	countOrdersSQL = `SELECT count(*) FROM orders`

	createOrderSQL = `INSERT INTO orders
		(user_id, total_amount, status, payment_method, address_id, created_at, paid_at, shipped_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`

	updateOrderSQL = `UPDATE orders SET address_id = $2, payment_method = $3
		WHERE id = $1 AND status = $4`

	updateOrderStatusSQL = `UPDATE orders
		SET status = $2, paid_at = $3, shipped_at = $4, completed_at = $5
		WHERE id = $1 AND status = $6`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1 AND status = $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	store
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{store{pool: pool}}
}

// FindByID returns order.ErrNotFound when no row matches.
func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.q(ctx).Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	return &o, nil
}

// Create inserts the order and sets its ID.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := r.q(ctx).QueryRow(ctx, createOrderSQL,
		o.UserID, o.TotalAmount, int16(o.Status), o.PaymentMethod, o.AddressID,
		o.CreatedAt, o.PaidAt, o.ShippedAt, o.CompletedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("creating order: %w", err)
	}
	return nil
}

// Update writes the editable metadata of an order still pending payment.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.q(ctx).Exec(ctx, updateOrderSQL,
		o.ID, o.AddressID, o.PaymentMethod, int16(order.StatusPendingPayment))
	if err != nil {
		return fmt.Errorf("updating order %d: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStatusChanged
	}
	return nil
}

// UpdateStatus writes the new status and timestamps if the row is still in from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order, from order.Status) error {
	tag, err := r.q(ctx).Exec(ctx, updateOrderStatusSQL,
		o.ID, int16(o.Status), o.PaidAt, o.ShippedAt, o.CompletedAt, int16(from))
	if err != nil {
		return fmt.Errorf("updating status of order %d: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStatusChanged
	}
	return nil
}

// Delete removes the order row if it is still in the expected status.
func (r *OrderRepository) Delete(ctx context.Context, id int64, expected order.Status) error {
	tag, err := r.q(ctx).Exec(ctx, deleteOrderSQL, id, int16(expected))
	if err != nil {
		return fmt.Errorf("deleting order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStatusChanged
	}
	return nil
}

// List returns orders newest first.
func (r *OrderRepository) List(ctx context.Context, limit, offset int) ([]order.Order, error) {
	rows, err := r.q(ctx).Query(ctx, listOrdersSQL, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListByUser returns a user's orders newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]order.Order, error) {
	rows, err := r.q(ctx).Query(ctx, listOrdersByUserSQL, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q(ctx).QueryRow(ctx, countOrdersSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders: %w", err)
	}
	return n, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		total  decimal.Decimal
		status int16
	)
	err := row.Scan(
		&o.ID, &o.UserID, &total, &status, &o.PaymentMethod, &o.AddressID,
		&o.CreatedAt, &o.PaidAt, &o.ShippedAt, &o.CompletedAt,
	)
	o.TotalAmount = total
	o.Status = order.Status(status)
	return o, err
}

const (
	getItemsByOrderSQL = `SELECT id, order_id, product_id, product_name, quantity, price, subtotal
		FROM order_items WHERE order_id = $1 ORDER BY id`

	insertItemSQL = `INSERT INTO order_items (order_id, product_id, product_name, quantity, price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	sumItemsSQL = `SELECT COALESCE(SUM(subtotal), 0) FROM order_items WHERE order_id = $1`

	deleteItemsSQL = `DELETE FROM order_items WHERE order_id = $1`
)

var _ order.ItemRepository = (*OrderItemRepository)(nil)

// OrderItemRepository implements order.ItemRepository backed by PostgreSQL.
type OrderItemRepository struct {
	store
}

// NewOrderItemRepository returns an OrderItemRepository that uses the given pool.
func NewOrderItemRepository(pool *pgxpool.Pool) *OrderItemRepository {
	return &OrderItemRepository{store{pool: pool}}
}

// FindByOrderID returns the lines of an order in insertion order.
func (r *OrderItemRepository) FindByOrderID(ctx context.Context, orderID int64) ([]order.Item, error) {
	rows, err := r.q(ctx).Query(ctx, getItemsByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %d: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanItem)
}

// CreateBatch inserts every item in one round trip and sets their IDs.
func (r *OrderItemRepository) CreateBatch(ctx context.Context, items []order.Item) error {
	args := make([][]any, len(items))
	ids := make([]*int64, len(items))
	for i := range items {
		it := &items[i]
		args[i] = []any{it.OrderID, it.ProductID, it.ProductName, it.Quantity, it.Price, it.Subtotal}
		ids[i] = &it.ID
	}
	if err := r.insertBatch(ctx, insertItemSQL, args, ids); err != nil {
		return fmt.Errorf("creating order items: %w", err)
	}
	return nil
}

// Total sums the subtotals of an order; an order without items totals zero.
func (r *OrderItemRepository) Total(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := r.q(ctx).QueryRow(ctx, sumItemsSQL, orderID).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("summing items of order %d: %w", orderID, err)
	}
	return total, nil
}

func (r *OrderItemRepository) DeleteByOrderID(ctx context.Context, orderID int64) error {
	if _, err := r.q(ctx).Exec(ctx, deleteItemsSQL, orderID); err != nil {
		return fmt.Errorf("deleting items of order %d: %w", orderID, err)
	}
	return nil
}

func scanItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price, &it.Subtotal)
	return it, err
}
