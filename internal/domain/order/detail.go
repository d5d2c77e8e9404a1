package order

import (
	"context"
	"math"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shopdesk/internal/domain/aftersales"
	"github.com/xenking/shopdesk/internal/domain/finance"
	"github.com/xenking/shopdesk/internal/domain/review"
	"github.com/xenking/shopdesk/internal/domain/shipping"
)

// Pagination limits for list reads.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	maxPage = math.MaxInt / MaxPageSize
)

// Detail is an order with every record that hangs off it. Slices are never
// nil; Logistics and Review are nil when absent.
type Detail struct {
	Order      Order
	Items      []Item
	Logistics  *shipping.Logistics
	Incomes    []finance.Income
	AfterSales []aftersales.Request
	Review     *review.Review
}

// WithItems is an order joined with its lines.
type WithItems struct {
	Order Order
	Items []Item
}

// Aggregator composes read-only order views. Missing or failing dependents
// degrade to empty values and are logged; they never fail the read.
type Aggregator struct {
	orders     Repository
	items      ItemRepository
	shipping   *shipping.Service
	finance    *finance.Ledger
	afterSales aftersales.Repository
	reviews    review.Repository
}

// NewAggregator creates an Aggregator from the read side of deps.
func NewAggregator(deps Deps) *Aggregator {
	return &Aggregator{
		orders:     deps.Orders,
		items:      deps.Items,
		shipping:   deps.Shipping,
		finance:    deps.Finance,
		afterSales: deps.AfterSales,
		reviews:    deps.Reviews,
	}
}

// OrderDetail returns nil only if the order does not exist or its own fetch fails.
func (a *Aggregator) OrderDetail(ctx context.Context, id int64) *Detail {
	lg := zctx.From(ctx).With(zap.Int64("order_id", id))

	o, err := a.orders.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			lg.Error("Load order", zap.Error(err))
		}
		return nil
	}

	d := &Detail{
		Order:      *o,
		Items:      []Item{},
		Incomes:    []finance.Income{},
		AfterSales: []aftersales.Request{},
	}

	if items, err := a.items.FindByOrderID(ctx, id); err != nil {
		lg.Warn("Load order items", zap.Error(err))
	} else if items != nil {
		d.Items = items
	}

	if l, err := a.shipping.Get(ctx, id); err != nil {
		if !errors.Is(err, shipping.ErrNotFound) {
			lg.Warn("Load logistics", zap.Error(err))
		}
	} else {
		d.Logistics = l
	}

	if incomes, err := a.finance.ByOrder(ctx, id); err != nil {
		lg.Warn("Load incomes", zap.Error(err))
	} else if incomes != nil {
		d.Incomes = incomes
	}

	if requests, err := a.afterSales.FindByOrderID(ctx, id); err != nil {
		lg.Warn("Load after-sales", zap.Error(err))
	} else if requests != nil {
		d.AfterSales = requests
	}

	if r, err := a.reviews.FindByOrderID(ctx, id); err != nil {
		lg.Warn("Load review", zap.Error(err))
	} else {
		d.Review = r
	}

	return d
}

// OrdersWithItems lists one page of orders and looks up the items of each.
// It returns an empty slice when there are no orders or the listing fails.
func (a *Aggregator) OrdersWithItems(ctx context.Context, page, size int) []WithItems {
	limit, offset := pageBounds(page, size)

	orders, err := a.orders.List(ctx, limit, offset)
	if err != nil {
		zctx.From(ctx).Error("List orders", zap.Int("page", page), zap.Int("size", size), zap.Error(err))
		return []WithItems{}
	}

	out := make([]WithItems, 0, len(orders))
	for _, o := range orders {
		items, err := a.items.FindByOrderID(ctx, o.ID)
		if err != nil {
			zctx.From(ctx).Warn("Load order items", zap.Int64("order_id", o.ID), zap.Error(err))
		}
		if items == nil {
			items = []Item{}
		}
		out = append(out, WithItems{Order: o, Items: items})
	}
	return out
}

// pageBounds converts a 1-based page and a size into limit and offset,
// clamping size to [1, MaxPageSize] and defaulting it to DefaultPageSize.
// The page is capped so the offset cannot overflow.
func pageBounds(page, size int) (limit, offset int) {
	switch {
	case page < 1:
		page = 1
	case page > maxPage:
		page = maxPage
	}
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return size, (page - 1) * size
}
