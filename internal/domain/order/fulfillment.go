package order

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopdesk/internal/domain/finance"
	"github.com/xenking/shopdesk/internal/domain/shipping"
)

var (
	shippable   = []Status{StatusPaid, StatusShipped}
	deliverable = []Status{StatusPaid, StatusShipped, StatusCompleted}
	refundable  = []Status{StatusPaid, StatusShipped, StatusCompleted}
)

// ShipOrder records carrier details on the logistics record of a paid or
// shipped order. The order status itself is not changed.
func (s *Service) ShipOrder(ctx context.Context, id int64, company, tracking string) (*shipping.Logistics, error) {
	ctx, span := s.tracer.Start(ctx, "order.ShipOrder")
	l, err := s.moveLogistics(ctx, id, "ship", shippable, func(ctx context.Context) (*shipping.Logistics, error) {
		return s.shipping.Ship(ctx, id, company, tracking)
	})
	return l, s.finish(ctx, span, "ship", id, err)
}

// DeliverOrder marks the shipment of a paid, shipped or completed order as
// delivered.
func (s *Service) DeliverOrder(ctx context.Context, id int64) (*shipping.Logistics, error) {
	ctx, span := s.tracer.Start(ctx, "order.DeliverOrder")
	l, err := s.moveLogistics(ctx, id, "deliver", deliverable, func(ctx context.Context) (*shipping.Logistics, error) {
		return s.shipping.Deliver(ctx, id)
	})
	return l, s.finish(ctx, span, "deliver", id, err)
}

func (s *Service) moveLogistics(
	ctx context.Context,
	id int64,
	op string,
	allowed []Status,
	move func(ctx context.Context) (*shipping.Logistics, error),
) (*shipping.Logistics, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	var l *shipping.Logistics
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if !slices.Contains(allowed, o.Status) {
			return &StatusError{OrderID: id, Status: o.Status, Op: op}
		}
		l, err = move(ctx)
		if err != nil {
			return shippingError(op+" order", err)
		}
		return nil
	})
	if err != nil {
		return nil, classify(op+" order", err)
	}
	return l, nil
}

// RefundOrder books a pending refund against a paid, shipped or completed
// order. The refund counts towards the finance totals once posted. Refunds
// of an order, pending or posted, never add up to more than its total.
func (s *Service) RefundOrder(ctx context.Context, id int64, amount decimal.Decimal) (*finance.Income, error) {
	ctx, span := s.tracer.Start(ctx, "order.RefundOrder")
	in, err := s.refundOrder(ctx, id, amount)
	return in, s.finish(ctx, span, "refund", id, err)
}

func (s *Service) refundOrder(ctx context.Context, id int64, amount decimal.Decimal) (*finance.Income, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidRefund
	}

	var in *finance.Income
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if !slices.Contains(refundable, o.Status) {
			return &StatusError{OrderID: id, Status: o.Status, Op: "refund"}
		}

		records, err := s.finance.ByOrder(ctx, id)
		if err != nil {
			return persistence("load incomes", err)
		}
		refunded := decimal.Zero
		for _, r := range records {
			if r.Type == finance.TypeRefund {
				refunded = refunded.Add(r.Amount.Abs())
			}
		}
		if refunded.Add(amount).GreaterThan(o.TotalAmount) {
			return ErrRefundExceedsTotal
		}

		in, err = s.finance.RecordRefund(ctx, id, amount)
		if err != nil {
			return persistence("record refund", err)
		}
		return s.emit(ctx, newEvent(EventRefunded, o, 0, s.now()))
	})
	if err != nil {
		return nil, classify("refund order", err)
	}
	return in, nil
}

// shippingError maps logistics failures onto engine categories.
func shippingError(op string, err error) error {
	switch {
	case errors.Is(err, shipping.ErrMissingTracking):
		return &Error{Kind: ErrValidation, Msg: op, Err: err}
	case errors.Is(err, shipping.ErrInvalidState), errors.Is(err, shipping.ErrAlreadyExists):
		return &Error{Kind: ErrConflict, Msg: op, Err: err}
	case errors.Is(err, shipping.ErrNotFound):
		return &Error{Kind: ErrNotFound, Msg: op, Err: err}
	default:
		return persistence(op, err)
	}
}
