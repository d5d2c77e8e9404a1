package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/shopdesk/internal/domain/aftersales"
	"github.com/xenking/shopdesk/internal/domain/finance"
	"github.com/xenking/shopdesk/internal/domain/inventory"
	"github.com/xenking/shopdesk/internal/domain/product"
	"github.com/xenking/shopdesk/internal/domain/review"
	"github.com/xenking/shopdesk/internal/domain/shipping"
)

// ErrNegativePrice is returned for line items priced below zero.
var ErrNegativePrice = &Error{Kind: ErrValidation, Msg: "price must not be negative"}

// Deps holds the collaborators of the order engine. Events is optional.
type Deps struct {
	Tx         Transactor
	Orders     Repository
	Items      ItemRepository
	Products   product.Repository
	Stock      *inventory.Ledger
	Finance    *finance.Ledger
	Shipping   *shipping.Service
	AfterSales aftersales.Repository
	Reviews    review.Repository
	Events     EventSink
}

// Option configures a Service.
type Option func(*Service)

// WithMeterProvider sets the meter provider used for operation counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider used for operation spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("github.com/xenking/shopdesk/order") }
}

// WithClock overrides the time source for lifecycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the order lifecycle manager. It is the only writer of stock,
// income and logistics on behalf of orders, and runs every write operation
// in one transaction so either all of its rows commit or none do.
type Service struct {
	tx         Transactor
	orders     Repository
	items      ItemRepository
	products   product.Repository
	stock      *inventory.Ledger
	finance    *finance.Ledger
	shipping   *shipping.Service
	afterSales aftersales.Repository
	reviews    review.Repository
	events     EventSink
	details    *Aggregator

	now           func() time.Time
	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	ops           metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(deps Deps, opts ...Option) (*Service, error) {
	s := &Service{
		tx:            deps.Tx,
		orders:        deps.Orders,
		items:         deps.Items,
		products:      deps.Products,
		stock:         deps.Stock,
		finance:       deps.Finance,
		shipping:      deps.Shipping,
		afterSales:    deps.AfterSales,
		reviews:       deps.Reviews,
		events:        deps.Events,
		details:       NewAggregator(deps),
		now:           time.Now,
		meterProvider: metricnoop.NewMeterProvider(),
		tracer:        tracenoop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(s)
	}

	ops, err := s.meterProvider.Meter("github.com/xenking/shopdesk/order").Int64Counter(
		"shopdesk.order.operations",
		metric.WithDescription("Order write operations by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create operations counter")
	}
	s.ops = ops
	return s, nil
}

// CreateOrder validates the order and its items, then in one transaction
// persists the order and its items, takes the ordered quantities out of
// stock with one sale ledger entry per line, opens a pending logistics
// record and, for orders created already paid, books the income.
//
// Items are completed in place: product name and price are snapshotted from
// the catalog and subtotals are computed. A zero TotalAmount is filled with
// the sum of subtotals.
func (s *Service) CreateOrder(ctx context.Context, o *Order, items []Item) error {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder")
	err := s.createOrder(ctx, o, items)
	var id int64
	if o != nil {
		id = o.ID
	}
	return s.finish(ctx, span, "create", id, err)
}

func (s *Service) createOrder(ctx context.Context, o *Order, items []Item) error {
	if o == nil {
		return ErrNilOrder
	}
	if len(items) == 0 {
		return ErrEmptyItems
	}
	if o.Status == 0 {
		o.Status = StatusPendingPayment
	}
	if !o.Status.Valid() {
		return ErrInvalidStatus
	}
	if o.Status != StatusPendingPayment && o.Status != StatusPaid {
		return ErrInitialStatus
	}

	lines, total, err := s.prepareItems(ctx, items)
	if err != nil {
		return err
	}
	switch {
	case o.TotalAmount.IsZero():
		o.TotalAmount = total
	case !o.TotalAmount.Equal(total):
		return ErrTotalMismatch
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		now := s.now()
		o.CreatedAt = now
		o.PaidAt, o.ShippedAt, o.CompletedAt = nil, nil, nil
		if o.Status == StatusPaid {
			o.PaidAt = &now
		}

		if err := s.orders.Create(ctx, o); err != nil {
			return persistence("insert order", err)
		}
		for i := range items {
			items[i].OrderID = o.ID
		}
		if err := s.items.CreateBatch(ctx, items); err != nil {
			return persistence("insert order items", err)
		}
		if _, err := s.stock.SellLines(ctx, o.ID, lines); err != nil {
			return stockError("take stock", err)
		}
		if _, err := s.shipping.Open(ctx, o.ID); err != nil {
			return persistence("open logistics", err)
		}
		if o.Status == StatusPaid {
			if err := s.postIncome(ctx, o); err != nil {
				return err
			}
		}
		return s.emit(ctx, newEvent(EventCreated, o, 0, now))
	})
	if err != nil {
		o.ID = 0
		for i := range items {
			items[i].ID, items[i].OrderID = 0, 0
		}
		return classify("create order", err)
	}
	return nil
}

// prepareItems loads every product, checks stock ahead of the transaction and
// completes the item snapshots. The conditional decrement inside the
// transaction remains the authoritative stock check.
func (s *Service) prepareItems(ctx context.Context, items []Item) ([]inventory.Line, decimal.Decimal, error) {
	lines := make([]inventory.Line, len(items))
	need := make(map[int64]int, len(items))
	total := decimal.Zero

	for i := range items {
		it := &items[i]
		if it.Quantity <= 0 {
			return nil, total, &InvalidQuantityError{ProductID: it.ProductID}
		}
		if it.Price.IsNegative() {
			return nil, total, ErrNegativePrice
		}

		p, err := s.products.FindByID(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return nil, total, &ProductNotFoundError{ProductID: it.ProductID}
			}
			return nil, total, persistence("load product", err)
		}

		need[p.ID] += it.Quantity
		if p.Stock < need[p.ID] {
			return nil, total, &InsufficientStockError{ProductID: p.ID, Requested: need[p.ID], Available: p.Stock}
		}

		it.ProductName = p.Name
		if it.Price.IsZero() {
			it.Price = p.Price
		}
		subtotal := it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		if !it.Subtotal.IsZero() && !it.Subtotal.Equal(subtotal) {
			return nil, total, ErrSubtotalMismatch
		}
		it.Subtotal = subtotal
		total = total.Add(subtotal)

		lines[i] = inventory.Line{ProductID: p.ID, Quantity: it.Quantity}
	}
	return lines, total, nil
}

// UpdateOrder applies the non-nil fields of patch to an order that is still
// pending payment.
func (s *Service) UpdateOrder(ctx context.Context, id int64, patch Patch) error {
	ctx, span := s.tracer.Start(ctx, "order.UpdateOrder")
	return s.finish(ctx, span, "update", id, s.updateOrder(ctx, id, patch))
}

func (s *Service) updateOrder(ctx context.Context, id int64, patch Patch) error {
	if id <= 0 {
		return ErrInvalidID
	}
	if patch.Empty() {
		return ErrEmptyPatch
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if !o.Status.Editable() {
			return &StatusError{OrderID: id, Status: o.Status, Op: "update"}
		}

		if patch.AddressID != nil {
			o.AddressID = *patch.AddressID
		}
		if patch.PaymentMethod != nil {
			o.PaymentMethod = *patch.PaymentMethod
		}
		if err := s.orders.Update(ctx, o); err != nil {
			return classify("update order", err)
		}
		return s.emit(ctx, newEvent(EventUpdated, o, 0, s.now()))
	})
	return classify("update order", err)
}

// CalculateOrderTotal returns the sum of the order's item subtotals.
func (s *Service) CalculateOrderTotal(ctx context.Context, id int64) (decimal.Decimal, error) {
	if id <= 0 {
		return decimal.Zero, ErrInvalidID
	}
	total, err := s.items.Total(ctx, id)
	if err != nil {
		return decimal.Zero, persistence("sum order items", err)
	}
	return total, nil
}

// ListByUser returns one page of a user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64, page, size int) ([]Order, error) {
	if userID <= 0 {
		return nil, ErrInvalidID
	}
	limit, offset := pageBounds(page, size)
	orders, err := s.orders.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, persistence("list user orders", err)
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

// Count returns the number of stored orders.
func (s *Service) Count(ctx context.Context) (int64, error) {
	n, err := s.orders.Count(ctx)
	if err != nil {
		return 0, persistence("count orders", err)
	}
	return n, nil
}

// OrderDetail returns the order with all of its dependents, or nil when the
// order does not exist or cannot be read.
func (s *Service) OrderDetail(ctx context.Context, id int64) *Detail {
	return s.details.OrderDetail(ctx, id)
}

// OrdersWithItems returns one page of orders joined with their items. It
// never returns nil.
func (s *Service) OrdersWithItems(ctx context.Context, page, size int) []WithItems {
	return s.details.OrdersWithItems(ctx, page, size)
}

func (s *Service) load(ctx context.Context, id int64) (*Order, error) {
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{OrderID: id}
		}
		return nil, persistence("load order", err)
	}
	return o, nil
}

func (s *Service) postIncome(ctx context.Context, o *Order) error {
	if _, err := s.finance.RecordIncome(ctx, o.ID, o.TotalAmount); err != nil {
		return persistence("record income", err)
	}
	return nil
}

func (s *Service) restoreStock(ctx context.Context, o *Order, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	lines := make([]inventory.Line, len(items))
	for i, it := range items {
		lines[i] = inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	if _, err := s.stock.RestoreLines(ctx, o.ID, lines); err != nil {
		return stockError("restore stock", err)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, e Event) error {
	if s.events == nil {
		return nil
	}
	if err := s.events.Append(ctx, e); err != nil {
		return persistence("append "+string(e.Type)+" event", err)
	}
	return nil
}

var resultNames = map[error]string{
	ErrValidation:  "validation",
	ErrConflict:    "conflict",
	ErrNotFound:    "not_found",
	ErrPersistence: "persistence",
}

// finish records the outcome of a write operation and logs failures with
// their root cause.
func (s *Service) finish(ctx context.Context, span trace.Span, op string, orderID int64, err error) error {
	defer span.End()

	result := "ok"
	if err != nil {
		k := kind(err)
		result = resultNames[k]

		lg := zctx.From(ctx).With(zap.String("op", op), zap.Int64("order_id", orderID))
		if k == ErrPersistence {
			lg.Error("Order operation failed", zap.Error(err))
		} else {
			lg.Warn("Order operation rejected", zap.String("reason", result), zap.Error(err))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}
	s.ops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
	return err
}

// classify keeps categorized errors as they are and wraps anything else as
// a persistence failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, k := range []error{ErrValidation, ErrConflict, ErrNotFound, ErrPersistence} {
		if errors.Is(err, k) {
			return err
		}
	}
	return persistence(op, err)
}

// stockError maps stock ledger failures onto engine categories.
func stockError(op string, err error) error {
	var short *inventory.ShortageError
	switch {
	case errors.As(err, &short):
		return &InsufficientStockError{ProductID: short.ProductID, Requested: short.Requested, Available: -1}
	case errors.Is(err, product.ErrNotFound):
		return &Error{Kind: ErrNotFound, Msg: op, Err: err}
	default:
		return persistence(op, err)
	}
}
