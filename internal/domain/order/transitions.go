package order

import (
	"context"
	"time"
)

type transition struct {
	from, to Status
}

// transitionHook is what happens to an order on one allowed transition.
// stamp sets lifecycle timestamps before the status is written; effect
// runs after it, inside the same transaction.
type transitionHook struct {
	stamp  func(o *Order, now time.Time)
	effect func(s *Service, ctx context.Context, o *Order) error
}

// transitionHooks has exactly one entry per pair in allowedTransitions.
var transitionHooks = map[transition]transitionHook{
	{StatusPendingPayment, StatusPaid}: {
		stamp:  func(o *Order, now time.Time) { o.PaidAt = &now },
		effect: (*Service).postIncome,
	},
	{StatusPendingPayment, StatusCancelled}: {
		effect: (*Service).restoreOrderStock,
	},
	{StatusPaid, StatusShipped}: {
		stamp: func(o *Order, now time.Time) { o.ShippedAt = &now },
	},
	{StatusShipped, StatusCompleted}: {
		stamp: func(o *Order, now time.Time) { o.CompletedAt = &now },
	},
}

// UpdateOrderStatus moves an order to status to. Transitions missing from
// the table are rejected and leave the order untouched. The status write is
// conditional on the status read at the start, so of two concurrent
// transitions from the same state only one succeeds.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, to Status) error {
	ctx, span := s.tracer.Start(ctx, "order.UpdateOrderStatus")
	return s.finish(ctx, span, "transition", id, s.updateOrderStatus(ctx, id, to))
}

func (s *Service) updateOrderStatus(ctx context.Context, id int64, to Status) error {
	if id <= 0 {
		return ErrInvalidID
	}
	if !to.Valid() {
		return ErrInvalidStatus
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		from := o.Status
		if !from.CanTransitionTo(to) {
			return &TransitionError{OrderID: id, From: from, To: to}
		}
		hook := transitionHooks[transition{from, to}]

		now := s.now()
		o.Status = to
		if hook.stamp != nil {
			hook.stamp(o, now)
		}
		if err := s.orders.UpdateStatus(ctx, o, from); err != nil {
			return classify("update order status", err)
		}
		if hook.effect != nil {
			if err := hook.effect(s, ctx, o); err != nil {
				return err
			}
		}
		return s.emit(ctx, newEvent(EventStatusChanged, o, from, now))
	})
	return classify("update order status", err)
}

func (s *Service) restoreOrderStock(ctx context.Context, o *Order) error {
	items, err := s.items.FindByOrderID(ctx, o.ID)
	if err != nil {
		return persistence("load order items", err)
	}
	return s.restoreStock(ctx, o, items)
}
