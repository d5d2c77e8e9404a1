package order

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/shopdesk/internal/domain/aftersales"
	"github.com/xenking/shopdesk/internal/domain/finance"
	"github.com/xenking/shopdesk/internal/domain/inventory"
	"github.com/xenking/shopdesk/internal/domain/product"
	"github.com/xenking/shopdesk/internal/domain/review"
	"github.com/xenking/shopdesk/internal/domain/shipping"
)

// --- In-memory store ---

// memState is every table the engine touches.
type memState struct {
	products   map[int64]product.Product
	orders     map[int64]Order
	items      []Item
	logs       []inventory.LogEntry
	incomes    []finance.Income
	logistics  map[int64]shipping.Logistics
	afterSales []aftersales.Request
	reviews    map[int64]review.Review
	events     []Event
	nextID     int64
}

func (st memState) clone() memState {
	st.products = maps.Clone(st.products)
	st.orders = maps.Clone(st.orders)
	st.items = slices.Clone(st.items)
	st.logs = slices.Clone(st.logs)
	st.incomes = slices.Clone(st.incomes)
	st.logistics = maps.Clone(st.logistics)
	st.afterSales = slices.Clone(st.afterSales)
	st.reviews = maps.Clone(st.reviews)
	st.events = slices.Clone(st.events)
	return st
}

// memStore backs every repository with one memState. InTx serializes
// transactions and restores the pre-transaction state on error or panic, so
// a rollback is observable.
type memStore struct {
	txMu sync.Mutex
	memState

	// failures makes the named operation fail, e.g. "items.create" or
	// "products.decrease:2".
	failures map[string]error
	commits  int
}

func newMemStore(products ...product.Product) *memStore {
	s := &memStore{
		memState: memState{
			products:  make(map[int64]product.Product),
			orders:    make(map[int64]Order),
			logistics: make(map[int64]shipping.Logistics),
			reviews:   make(map[int64]review.Review),
		},
		failures: make(map[string]error),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.memState.clone()
	committed := false
	defer func() {
		if !committed {
			s.memState = snap
		}
	}()

	if err := fn(ctx); err != nil {
		return err
	}
	committed = true
	s.commits++
	return nil
}

func (s *memStore) fail(op string) error {
	return s.failures[op]
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) stock(id int64) int {
	return s.products[id].Stock
}

func (s *memStore) logsFor(productID int64) []inventory.LogEntry {
	var out []inventory.LogEntry
	for _, e := range s.logs {
		if e.ProductID == productID {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) itemsOf(orderID int64) []Item {
	var out []Item
	for _, it := range s.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out
}

func (s *memStore) incomesOf(orderID int64) []finance.Income {
	var out []finance.Income
	for _, in := range s.incomes {
		if in.OrderID == orderID {
			out = append(out, in)
		}
	}
	return out
}

// seedOrder stores an order with its items as if it had been created
// earlier, without touching stock.
func (s *memStore) seedOrder(o Order, items ...Item) Order {
	o.ID = s.id()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	total := decimal.Zero
	for _, it := range items {
		it.ID = s.id()
		it.OrderID = o.ID
		it.Subtotal = it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		total = total.Add(it.Subtotal)
		s.items = append(s.items, it)
	}
	o.TotalAmount = total
	s.orders[o.ID] = o
	s.logistics[o.ID] = shipping.Logistics{ID: s.id(), OrderID: o.ID, Status: shipping.StatusPending}
	return o
}

// --- Repository views ---

type memProducts struct{ s *memStore }

var _ product.Repository = memProducts{}

func (r memProducts) List(_ context.Context) ([]product.Product, error) {
	out := slices.Collect(maps.Values(r.s.products))
	slices.SortFunc(out, func(a, b product.Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r memProducts) FindByID(_ context.Context, id int64) (*product.Product, error) {
	if err := r.s.fail("products.find"); err != nil {
		return nil, err
	}
	p, ok := r.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r memProducts) DecreaseStock(_ context.Context, id int64, qty int) (product.StockChange, error) {
	if err := r.s.fail(fmt.Sprintf("products.decrease:%d", id)); err != nil {
		return product.StockChange{}, err
	}
	p, ok := r.s.products[id]
	if !ok {
		return product.StockChange{}, product.ErrNotFound
	}
	if p.Stock < qty {
		return product.StockChange{}, product.ErrInsufficientStock
	}
	return r.set(p, p.Stock-qty), nil
}

func (r memProducts) IncreaseStock(_ context.Context, id int64, qty int) (product.StockChange, error) {
	if qty <= 0 {
		return product.StockChange{}, product.ErrInvalidQuantity
	}
	p, ok := r.s.products[id]
	if !ok {
		return product.StockChange{}, product.ErrNotFound
	}
	return r.set(p, p.Stock+qty), nil
}

func (r memProducts) UpdateStock(_ context.Context, id int64, stock int) (product.StockChange, error) {
	p, ok := r.s.products[id]
	if !ok {
		return product.StockChange{}, product.ErrNotFound
	}
	return r.set(p, stock), nil
}

func (r memProducts) set(p product.Product, stock int) product.StockChange {
	change := product.StockChange{Before: p.Stock, After: stock}
	p.Stock = stock
	r.s.products[p.ID] = p
	return change
}

type memOrders struct{ s *memStore }

var _ Repository = memOrders{}

func (r memOrders) FindByID(_ context.Context, id int64) (*Order, error) {
	if err := r.s.fail("orders.find"); err != nil {
		return nil, err
	}
	o, ok := r.s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (r memOrders) Create(_ context.Context, o *Order) error {
	if err := r.s.fail("orders.create"); err != nil {
		return err
	}
	o.ID = r.s.id()
	r.s.orders[o.ID] = *o
	return nil
}

func (r memOrders) Update(_ context.Context, o *Order) error {
	stored, ok := r.s.orders[o.ID]
	if !ok || stored.Status != StatusPendingPayment {
		return ErrStatusChanged
	}
	stored.AddressID = o.AddressID
	stored.PaymentMethod = o.PaymentMethod
	r.s.orders[o.ID] = stored
	return nil
}

func (r memOrders) UpdateStatus(_ context.Context, o *Order, from Status) error {
	if err := r.s.fail("orders.update_status"); err != nil {
		return err
	}
	stored, ok := r.s.orders[o.ID]
	if !ok || stored.Status != from {
		return ErrStatusChanged
	}
	stored.Status = o.Status
	stored.PaidAt, stored.ShippedAt, stored.CompletedAt = o.PaidAt, o.ShippedAt, o.CompletedAt
	r.s.orders[o.ID] = stored
	return nil
}

func (r memOrders) Delete(_ context.Context, id int64, expected Status) error {
	stored, ok := r.s.orders[id]
	if !ok || stored.Status != expected {
		return ErrStatusChanged
	}
	delete(r.s.orders, id)
	return nil
}

func (r memOrders) List(_ context.Context, limit, offset int) ([]Order, error) {
	if err := r.s.fail("orders.list"); err != nil {
		return nil, err
	}
	return page(r.sorted(func(Order) bool { return true }), limit, offset), nil
}

func (r memOrders) ListByUser(_ context.Context, userID int64, limit, offset int) ([]Order, error) {
	return page(r.sorted(func(o Order) bool { return o.UserID == userID }), limit, offset), nil
}

func (r memOrders) Count(_ context.Context) (int64, error) {
	return int64(len(r.s.orders)), nil
}

// sorted returns matching orders newest first.
func (r memOrders) sorted(match func(Order) bool) []Order {
	var out []Order
	for _, o := range r.s.orders {
		if match(o) {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b Order) int { return cmp.Compare(b.ID, a.ID) })
	return out
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	return all[offset:min(offset+limit, len(all))]
}

type memItems struct{ s *memStore }

var _ ItemRepository = memItems{}

func (r memItems) FindByOrderID(_ context.Context, orderID int64) ([]Item, error) {
	if err := r.s.fail("items.find"); err != nil {
		return nil, err
	}
	return r.s.itemsOf(orderID), nil
}

func (r memItems) CreateBatch(_ context.Context, items []Item) error {
	if err := r.s.fail("items.create"); err != nil {
		return err
	}
	for i := range items {
		items[i].ID = r.s.id()
		r.s.items = append(r.s.items, items[i])
	}
	return nil
}

func (r memItems) Total(_ context.Context, orderID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, it := range r.s.itemsOf(orderID) {
		total = total.Add(it.Subtotal)
	}
	return total, nil
}

func (r memItems) DeleteByOrderID(_ context.Context, orderID int64) error {
	r.s.items = slices.DeleteFunc(r.s.items, func(it Item) bool { return it.OrderID == orderID })
	return nil
}

type memLogs struct{ s *memStore }

var _ inventory.LogRepository = memLogs{}

func (r memLogs) Create(_ context.Context, e *inventory.LogEntry) error {
	e.ID = r.s.id()
	r.s.logs = append(r.s.logs, *e)
	return nil
}

func (r memLogs) CreateBatch(_ context.Context, entries []inventory.LogEntry) error {
	if err := r.s.fail("logs.create"); err != nil {
		return err
	}
	for i := range entries {
		entries[i].ID = r.s.id()
		r.s.logs = append(r.s.logs, entries[i])
	}
	return nil
}

func (r memLogs) FindByProductID(_ context.Context, productID int64) ([]inventory.LogEntry, error) {
	return r.s.logsFor(productID), nil
}

func (r memLogs) FindByOrderID(_ context.Context, orderID int64) ([]inventory.LogEntry, error) {
	var out []inventory.LogEntry
	for _, e := range r.s.logs {
		if e.OrderID != nil && *e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memLogs) Totals(_ context.Context, productID int64) (inventory.Totals, error) {
	var t inventory.Totals
	for _, e := range r.s.logsFor(productID) {
		switch e.ChangeType {
		case inventory.ChangePurchase:
			t.Purchased += e.Quantity
		case inventory.ChangeSale:
			t.Sold -= e.Quantity
		}
	}
	return t, nil
}

func (r memLogs) LowStock(_ context.Context, threshold int) ([]inventory.StockLevel, error) {
	var out []inventory.StockLevel
	for _, p := range r.s.products {
		if p.Stock <= threshold {
			out = append(out, inventory.StockLevel{ProductID: p.ID, Name: p.Name, Stock: p.Stock})
		}
	}
	return out, nil
}

type memIncomes struct{ s *memStore }

var _ finance.Repository = memIncomes{}

func (r memIncomes) Create(_ context.Context, in *finance.Income) error {
	if err := r.s.fail("incomes.create"); err != nil {
		return err
	}
	in.ID = r.s.id()
	r.s.incomes = append(r.s.incomes, *in)
	return nil
}

func (r memIncomes) FindByOrderID(_ context.Context, orderID int64) ([]finance.Income, error) {
	if err := r.s.fail("incomes.find"); err != nil {
		return nil, err
	}
	return r.s.incomesOf(orderID), nil
}

func (r memIncomes) UpdateStatus(_ context.Context, id int64, from, to finance.Status) error {
	for i, in := range r.s.incomes {
		if in.ID != id {
			continue
		}
		if in.Status != from {
			return finance.ErrAlreadyPosted
		}
		r.s.incomes[i].Status = to
		return nil
	}
	return finance.ErrNotFound
}

func (r memIncomes) DeleteByOrderID(_ context.Context, orderID int64) error {
	if err := r.s.fail("incomes.delete"); err != nil {
		return err
	}
	r.s.incomes = slices.DeleteFunc(r.s.incomes, func(in finance.Income) bool { return in.OrderID == orderID })
	return nil
}

func (r memIncomes) Totals(_ context.Context) (income, refund decimal.Decimal, err error) {
	income, refund = decimal.Zero, decimal.Zero
	for _, in := range r.s.incomes {
		if in.Status != finance.StatusPosted {
			continue
		}
		if in.Type == finance.TypeIncome {
			income = income.Add(in.Amount)
		} else {
			refund = refund.Add(in.Amount)
		}
	}
	return income, refund, nil
}

type memLogistics struct{ s *memStore }

var _ shipping.Repository = memLogistics{}

func (r memLogistics) Create(_ context.Context, l *shipping.Logistics) error {
	if err := r.s.fail("logistics.create"); err != nil {
		return err
	}
	if _, ok := r.s.logistics[l.OrderID]; ok {
		return shipping.ErrAlreadyExists
	}
	l.ID = r.s.id()
	r.s.logistics[l.OrderID] = *l
	return nil
}

func (r memLogistics) FindByOrderID(_ context.Context, orderID int64) (*shipping.Logistics, error) {
	l, ok := r.s.logistics[orderID]
	if !ok {
		return nil, shipping.ErrNotFound
	}
	return &l, nil
}

func (r memLogistics) UpdateShippingInfo(_ context.Context, orderID int64, company, tracking string, at time.Time) error {
	l, ok := r.s.logistics[orderID]
	if !ok {
		return shipping.ErrNotFound
	}
	if l.Status != shipping.StatusPending {
		return shipping.ErrInvalidState
	}
	l.ExpressCompany, l.TrackingNumber, l.Status, l.ShippedAt = company, tracking, shipping.StatusShipped, &at
	r.s.logistics[orderID] = l
	return nil
}

func (r memLogistics) UpdateDeliveryInfo(_ context.Context, orderID int64, at time.Time) error {
	l, ok := r.s.logistics[orderID]
	if !ok {
		return shipping.ErrNotFound
	}
	if l.Status != shipping.StatusShipped {
		return shipping.ErrInvalidState
	}
	l.Status, l.DeliveredAt = shipping.StatusDelivered, &at
	r.s.logistics[orderID] = l
	return nil
}

func (r memLogistics) DeleteByOrderID(_ context.Context, orderID int64) error {
	delete(r.s.logistics, orderID)
	return nil
}

type memAfterSales struct{ s *memStore }

var _ aftersales.Repository = memAfterSales{}

func (r memAfterSales) FindByOrderID(_ context.Context, orderID int64) ([]aftersales.Request, error) {
	var out []aftersales.Request
	for _, req := range r.s.afterSales {
		if req.OrderID == orderID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r memAfterSales) DeleteByOrderID(_ context.Context, orderID int64) error {
	r.s.afterSales = slices.DeleteFunc(r.s.afterSales, func(req aftersales.Request) bool { return req.OrderID == orderID })
	return nil
}

type memReviews struct{ s *memStore }

var _ review.Repository = memReviews{}

func (r memReviews) FindByOrderID(_ context.Context, orderID int64) (*review.Review, error) {
	if err := r.s.fail("reviews.find"); err != nil {
		return nil, err
	}
	rv, ok := r.s.reviews[orderID]
	if !ok {
		return nil, nil
	}
	return &rv, nil
}

func (r memReviews) DeleteByOrderID(_ context.Context, orderID int64) error {
	if err := r.s.fail("reviews.delete"); err != nil {
		return err
	}
	delete(r.s.reviews, orderID)
	return nil
}

type memEvents struct{ s *memStore }

var _ EventSink = memEvents{}

func (r memEvents) Append(_ context.Context, e Event) error {
	if err := r.s.fail("events.append"); err != nil {
		return err
	}
	r.s.events = append(r.s.events, e)
	return nil
}

// deps wires the domain services over the store.
func (s *memStore) deps() Deps {
	return Deps{
		Tx:         s,
		Orders:     memOrders{s},
		Items:      memItems{s},
		Products:   memProducts{s},
		Stock:      inventory.NewLedger(memProducts{s}, memLogs{s}),
		Finance:    finance.NewLedger(memIncomes{s}),
		Shipping:   shipping.NewService(memLogistics{s}),
		AfterSales: memAfterSales{s},
		Reviews:    memReviews{s},
		Events:     memEvents{s},
	}
}
