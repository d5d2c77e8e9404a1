package finance

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Ledger creates and posts income records.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

// NewLedger creates a Ledger backed by repo.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// RecordIncome books a posted income for a paid order.
func (l *Ledger) RecordIncome(ctx context.Context, orderID int64, amount decimal.Decimal) (*Income, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	return l.create(ctx, &Income{
		OrderID: orderID,
		Type:    TypeIncome,
		Amount:  amount,
		Status:  StatusPosted,
	})
}

// RecordRefund books a pending refund. The stored amount is negative
// regardless of the sign passed in.
func (l *Ledger) RecordRefund(ctx context.Context, orderID int64, amount decimal.Decimal) (*Income, error) {
	return l.create(ctx, &Income{
		OrderID: orderID,
		Type:    TypeRefund,
		Amount:  amount.Abs().Neg(),
		Status:  StatusPending,
	})
}

// Post moves a pending record to posted.
func (l *Ledger) Post(ctx context.Context, id int64) error {
	if err := l.repo.UpdateStatus(ctx, id, StatusPending, StatusPosted); err != nil {
		return errors.Wrapf(err, "post income %d", id)
	}
	return nil
}

// ByOrder lists the records of an order.
func (l *Ledger) ByOrder(ctx context.Context, orderID int64) ([]Income, error) {
	return l.repo.FindByOrderID(ctx, orderID)
}

// Summary returns posted totals with refunds as an absolute value.
func (l *Ledger) Summary(ctx context.Context) (Summary, error) {
	income, refund, err := l.repo.Totals(ctx)
	if err != nil {
		return Summary{}, errors.Wrap(err, "income totals")
	}
	return Summary{TotalIncome: income, TotalRefund: refund.Abs()}, nil
}

func (l *Ledger) create(ctx context.Context, in *Income) (*Income, error) {
	in.TransactionTime = l.now()
	if err := l.repo.Create(ctx, in); err != nil {
		return nil, errors.Wrapf(err, "create %s for order %d", in.Type, in.OrderID)
	}
	return in, nil
}

// DiscardOrder deletes every record of an order. Only the order cascade
// calls it; records are otherwise immutable.
func (l *Ledger) DiscardOrder(ctx context.Context, orderID int64) error {
	return l.repo.DeleteByOrderID(ctx, orderID)
}
