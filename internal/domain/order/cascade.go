package order

import (
	"context"
)

// cascadeStep removes one kind of dependent row. compensate, when set, runs
// right after remove and undoes the stock effect of the removed rows.
type cascadeStep struct {
	name       string
	remove     func(s *Service, ctx context.Context, orderID int64) error
	compensate func(s *Service, ctx context.Context, o *Order, items []Item) error
}

// cascade lists the dependents of an order in deletion order. The order row
// itself is removed after the last step.
var cascade = []cascadeStep{
	{
		name:       "order items",
		remove:     func(s *Service, ctx context.Context, id int64) error { return s.items.DeleteByOrderID(ctx, id) },
		compensate: restorePaidStock,
	},
	{
		name:   "logistics",
		remove: func(s *Service, ctx context.Context, id int64) error { return s.shipping.Remove(ctx, id) },
	},
	{
		name:   "income",
		remove: func(s *Service, ctx context.Context, id int64) error { return s.finance.DiscardOrder(ctx, id) },
	},
	{
		name:   "after-sales",
		remove: func(s *Service, ctx context.Context, id int64) error { return s.afterSales.DeleteByOrderID(ctx, id) },
	},
	{
		name:   "review",
		remove: func(s *Service, ctx context.Context, id int64) error { return s.reviews.DeleteByOrderID(ctx, id) },
	},
}

// Stock taken by a pending order is only given back through cancellation,
// so deleting it restores nothing. A paid order still holds its stock.
func restorePaidStock(s *Service, ctx context.Context, o *Order, items []Item) error {
	if o.Status != StatusPaid {
		return nil
	}
	return s.restoreStock(ctx, o, items)
}

// DeleteOrder removes an order that is pending payment or paid, together
// with its items, logistics, income, after-sales and review rows. Stock of
// a paid order is returned with one adjust ledger entry per item. All of it
// happens in one transaction.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "order.DeleteOrder")
	return s.finish(ctx, span, "delete", id, s.deleteOrder(ctx, id))
}

func (s *Service) deleteOrder(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if !o.Status.Deletable() {
			return &StatusError{OrderID: id, Status: o.Status, Op: "delete"}
		}
		items, err := s.items.FindByOrderID(ctx, id)
		if err != nil {
			return persistence("load order items", err)
		}

		for _, step := range cascade {
			if err := step.remove(s, ctx, id); err != nil {
				return persistence("delete "+step.name, err)
			}
			if step.compensate != nil {
				if err := step.compensate(s, ctx, o, items); err != nil {
					return err
				}
			}
		}
		if err := s.orders.Delete(ctx, id, o.Status); err != nil {
			return classify("delete order", err)
		}
		return s.emit(ctx, newEvent(EventDeleted, o, 0, s.now()))
	})
	return classify("delete order", err)
}
