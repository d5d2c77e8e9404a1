package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopdesk/internal/domain/shipping"
)

const uniqueViolation = "23505"

const (
	insertLogisticsSQL = `INSERT INTO logistics (order_id, express_company, tracking_number, status)
		VALUES ($1, $2, $3, $4) RETURNING id`

	logisticsByOrderSQL = `SELECT id, order_id, express_company, tracking_number, status, shipped_at, delivered_at
		FROM logistics WHERE order_id = $1`

	shipLogisticsSQL = `UPDATE logistics
		SET express_company = $2, tracking_number = $3, status = 'shipped', shipped_at = $4
		WHERE order_id = $1 AND status = 'pending'`

	deliverLogisticsSQL = `UPDATE logistics SET status = 'delivered', delivered_at = $2
		WHERE order_id = $1 AND status = 'shipped'`

	logisticsExistsSQL = `SELECT EXISTS (SELECT 1 FROM logistics WHERE order_id = $1)`

	deleteLogisticsSQL = `DELETE FROM logistics WHERE order_id = $1`
)

var _ shipping.Repository = (*LogisticsRepository)(nil)

// LogisticsRepository implements shipping.Repository backed by PostgreSQL.
type LogisticsRepository struct {
	store
}

// NewLogisticsRepository returns a LogisticsRepository that uses the given pool.
func NewLogisticsRepository(pool *pgxpool.Pool) *LogisticsRepository {
	return &LogisticsRepository{store{pool: pool}}
}

// Create inserts the record of an order. A second record for the same order
// fails with shipping.ErrAlreadyExists.
func (r *LogisticsRepository) Create(ctx context.Context, l *shipping.Logistics) error {
	err := r.q(ctx).QueryRow(ctx, insertLogisticsSQL,
		l.OrderID, l.ExpressCompany, l.TrackingNumber, string(l.Status),
	).Scan(&l.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return shipping.ErrAlreadyExists
		}
		return fmt.Errorf("creating logistics for order %d: %w", l.OrderID, err)
	}
	return nil
}

func (r *LogisticsRepository) FindByOrderID(ctx context.Context, orderID int64) (*shipping.Logistics, error) {
	rows, err := r.q(ctx).Query(ctx, logisticsByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting logistics of order %d: %w", orderID, err)
	}
	l, err := pgx.CollectExactlyOneRow(rows, scanLogistics)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shipping.ErrNotFound
		}
		return nil, fmt.Errorf("getting logistics of order %d: %w", orderID, err)
	}
	return &l, nil
}

// UpdateShippingInfo moves a pending record to shipped.
func (r *LogisticsRepository) UpdateShippingInfo(ctx context.Context, orderID int64, company, tracking string, at time.Time) error {
	tag, err := r.q(ctx).Exec(ctx, shipLogisticsSQL, orderID, company, tracking, at)
	if err != nil {
		return fmt.Errorf("shipping order %d: %w", orderID, err)
	}
	return r.affected(ctx, orderID, tag)
}

// UpdateDeliveryInfo moves a shipped record to delivered.
func (r *LogisticsRepository) UpdateDeliveryInfo(ctx context.Context, orderID int64, at time.Time) error {
	tag, err := r.q(ctx).Exec(ctx, deliverLogisticsSQL, orderID, at)
	if err != nil {
		return fmt.Errorf("delivering order %d: %w", orderID, err)
	}
	return r.affected(ctx, orderID, tag)
}

func (r *LogisticsRepository) DeleteByOrderID(ctx context.Context, orderID int64) error {
	if _, err := r.q(ctx).Exec(ctx, deleteLogisticsSQL, orderID); err != nil {
		return fmt.Errorf("deleting logistics of order %d: %w", orderID, err)
	}
	return nil
}

func (r *LogisticsRepository) affected(ctx context.Context, orderID int64, tag pgconn.CommandTag) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.q(ctx).QueryRow(ctx, logisticsExistsSQL, orderID).Scan(&exists); err != nil {
		return fmt.Errorf("checking logistics of order %d: %w", orderID, err)
	}
	if !exists {
		return shipping.ErrNotFound
	}
	return shipping.ErrInvalidState
}

func scanLogistics(row pgx.CollectableRow) (shipping.Logistics, error) {
	var (
		l      shipping.Logistics
		status string
	)
	err := row.Scan(&l.ID, &l.OrderID, &l.ExpressCompany, &l.TrackingNumber, &status, &l.ShippedAt, &l.DeliveredAt)
	l.Status = shipping.Status(status)
	return l, err
}
