package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopdesk/internal/domain/aftersales"
	"github.com/xenking/shopdesk/internal/domain/review"
)

const (
	afterSalesByOrderSQL = `SELECT id, order_id, type, reason, amount, status, created_at
		FROM after_sales WHERE order_id = $1 ORDER BY id`

	deleteAfterSalesSQL = `DELETE FROM after_sales WHERE order_id = $1`

	reviewByOrderSQL = `SELECT id, order_id, user_id, rating, content, created_at
		FROM reviews WHERE order_id = $1`

	deleteReviewSQL = `DELETE FROM reviews WHERE order_id = $1`
)

var _ aftersales.Repository = (*AfterSalesRepository)(nil)

// AfterSalesRepository reads and removes after-sales requests.
type AfterSalesRepository struct {
	store
}

// NewAfterSalesRepository returns an AfterSalesRepository that uses the given pool.
func NewAfterSalesRepository(pool *pgxpool.Pool) *AfterSalesRepository {
	return &AfterSalesRepository{store{pool: pool}}
}

func (r *AfterSalesRepository) FindByOrderID(ctx context.Context, orderID int64) ([]aftersales.Request, error) {
	rows, err := r.q(ctx).Query(ctx, afterSalesByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing after-sales of order %d: %w", orderID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (aftersales.Request, error) {
		var a aftersales.Request
		err := row.Scan(&a.ID, &a.OrderID, &a.Type, &a.Reason, &a.Amount, &a.Status, &a.CreatedAt)
		return a, err
	})
}

func (r *AfterSalesRepository) DeleteByOrderID(ctx context.Context, orderID int64) error {
	if _, err := r.q(ctx).Exec(ctx, deleteAfterSalesSQL, orderID); err != nil {
		return fmt.Errorf("deleting after-sales of order %d: %w", orderID, err)
	}
	return nil
}

var _ review.Repository = (*ReviewRepository)(nil)

// ReviewRepository reads and removes order reviews.
type ReviewRepository struct {
	store
}

// NewReviewRepository returns a ReviewRepository that uses the given pool.
func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{store{pool: pool}}
}

// FindByOrderID returns nil without error when the order has no review.
func (r *ReviewRepository) FindByOrderID(ctx context.Context, orderID int64) (*review.Review, error) {
	var rv review.Review
	err := r.q(ctx).QueryRow(ctx, reviewByOrderSQL, orderID).Scan(
		&rv.ID, &rv.OrderID, &rv.UserID, &rv.Rating, &rv.Content, &rv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting review of order %d: %w", orderID, err)
	}
	return &rv, nil
}

func (r *ReviewRepository) DeleteByOrderID(ctx context.Context, orderID int64) error {
	if _, err := r.q(ctx).Exec(ctx, deleteReviewSQL, orderID); err != nil {
		return fmt.Errorf("deleting review of order %d: %w", orderID, err)
	}
	return nil
}
