package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopdesk/internal/domain/finance"
)

const (
	insertIncomeSQL = `INSERT INTO incomes (order_id, type, amount, status, transaction_time)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	incomesByOrderSQL = `SELECT id, order_id, type, amount, status, transaction_time
		FROM incomes WHERE order_id = $1 ORDER BY id`

	updateIncomeStatusSQL = `UPDATE incomes SET status = $3 WHERE id = $1 AND status = $2`

	incomeExistsSQL = `SELECT EXISTS (SELECT 1 FROM incomes WHERE id = $1)`

	deleteIncomesSQL = `DELETE FROM incomes WHERE order_id = $1`

	incomeTotalsSQL = `SELECT
		COALESCE(SUM(amount) FILTER (WHERE type = 'income'), 0),
		COALESCE(SUM(amount) FILTER (WHERE type = 'refund'), 0)
		FROM incomes WHERE status = 'posted'`
)

var _ finance.Repository = (*IncomeRepository)(nil)

// IncomeRepository implements finance.Repository backed by PostgreSQL.
type IncomeRepository struct {
	store
}

// NewIncomeRepository returns an IncomeRepository that uses the given pool.
func NewIncomeRepository(pool *pgxpool.Pool) *IncomeRepository {
	return &IncomeRepository{store{pool: pool}}
}

func (r *IncomeRepository) Create(ctx context.Context, in *finance.Income) error {
	err := r.q(ctx).QueryRow(ctx, insertIncomeSQL,
		in.OrderID, string(in.Type), in.Amount, string(in.Status), in.TransactionTime,
	).Scan(&in.ID)
	if err != nil {
		return fmt.Errorf("creating %s for order %d: %w", in.Type, in.OrderID, err)
	}
	return nil
}

func (r *IncomeRepository) FindByOrderID(ctx context.Context, orderID int64) ([]finance.Income, error) {
	rows, err := r.q(ctx).Query(ctx, incomesByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing incomes of order %d: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanIncome)
}

// UpdateStatus moves a record from one status to another. It returns
// finance.ErrNotFound for an unknown id and finance.ErrAlreadyPosted when the
// record is not in from.
func (r *IncomeRepository) UpdateStatus(ctx context.Context, id int64, from, to finance.Status) error {
	tag, err := r.q(ctx).Exec(ctx, updateIncomeStatusSQL, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("updating income %d: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.q(ctx).QueryRow(ctx, incomeExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking income %d: %w", id, err)
	}
	if !exists {
		return finance.ErrNotFound
	}
	return finance.ErrAlreadyPosted
}

func (r *IncomeRepository) DeleteByOrderID(ctx context.Context, orderID int64) error {
	if _, err := r.q(ctx).Exec(ctx, deleteIncomesSQL, orderID); err != nil {
		return fmt.Errorf("deleting incomes of order %d: %w", orderID, err)
	}
	return nil
}

// Totals sums posted income and posted refunds; the refund sum is non-positive.
func (r *IncomeRepository) Totals(ctx context.Context) (income, refund decimal.Decimal, err error) {
	if err := r.q(ctx).QueryRow(ctx, incomeTotalsSQL).Scan(&income, &refund); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("summing incomes: %w", err)
	}
	return income, refund, nil
}

func scanIncome(row pgx.CollectableRow) (finance.Income, error) {
	var (
		in        finance.Income
		typ, stat string
	)
	err := row.Scan(&in.ID, &in.OrderID, &typ, &in.Amount, &stat, &in.TransactionTime)
	in.Type = finance.Type(typ)
	in.Status = finance.Status(stat)
	return in, err
}
