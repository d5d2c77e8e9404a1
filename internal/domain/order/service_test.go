package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shopdesk/internal/domain/finance"
	"github.com/xenking/shopdesk/internal/domain/inventory"
	"github.com/xenking/shopdesk/internal/domain/product"
	"github.com/xenking/shopdesk/internal/domain/shipping"
)

// --- Helpers ---

var testNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func newTestProduct(id int64, name, price string, stock int) product.Product {
	return product.Product{
		ID:     id,
		Name:   name,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Status: product.StatusOnSale,
	}
}

func newTestService(t *testing.T, store *memStore) *Service {
	t.Helper()
	svc, err := NewService(store.deps(), WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return svc
}

func catalog() *memStore {
	return newMemStore(
		newTestProduct(1, "Waffle with Berries", "6.50", 50),
		newTestProduct(2, "Vanilla Bean Crème Brûlée", "7.00", 5),
	)
}

func line(productID int64, qty int) Item {
	return Item{ProductID: productID, Quantity: qty}
}

// --- CreateOrder ---

func TestService_CreateOrder(t *testing.T) {
	ctx := context.Background()
	store := catalog()
	svc := newTestService(t, store)

	o := &Order{UserID: 7, PaymentMethod: "card", AddressID: 3}
	items := []Item{line(1, 3), line(2, 2)}
	require.NoError(t, svc.CreateOrder(ctx, o, items))

	require.NotZero(t, o.ID)
	assert.Equal(t, StatusPendingPayment, o.Status)
	assert.True(t, decimal.RequireFromString("33.50").Equal(o.TotalAmount), "got %s", o.TotalAmount)
	assert.Equal(t, testNow, o.CreatedAt)
	assert.Nil(t, o.PaidAt)

	assert.Equal(t, "Waffle with Berries", items[0].ProductName)
	assert.True(t, decimal.RequireFromString("6.50").Equal(items[0].Price))
	assert.True(t, decimal.RequireFromString("19.50").Equal(items[0].Subtotal))
	assert.True(t, decimal.RequireFromString("14.00").Equal(items[1].Subtotal))
	for _, it := range items {
		assert.NotZero(t, it.ID)
		assert.Equal(t, o.ID, it.OrderID)
	}

	assert.Equal(t, 47, store.stock(1))
	assert.Equal(t, 3, store.stock(2))

	for _, tc := range []struct {
		productID     int64
		qty           int
		before, after int
	}{
		{1, 3, 50, 47},
		{2, 2, 5, 3},
	} {
		logs := store.logsFor(tc.productID)
		require.Len(t, logs, 1)
		e := logs[0]
		assert.Equal(t, inventory.ChangeSale, e.ChangeType)
		assert.Equal(t, -tc.qty, e.Quantity)
		assert.Equal(t, tc.before, e.BeforeStock)
		assert.Equal(t, tc.after, e.AfterStock)
		assert.True(t, e.Consistent())
		require.NotNil(t, e.OrderID)
		assert.Equal(t, o.ID, *e.OrderID)
	}

	l, ok := store.logistics[o.ID]
	require.True(t, ok)
	assert.Equal(t, shipping.StatusPending, l.Status)
	assert.Len(t, store.logistics, 1)

	assert.Empty(t, store.incomes)
	require.Len(t, store.events, 1)
	assert.Equal(t, EventCreated, store.events[0].Type)
	assert.Equal(t, o.ID, store.events[0].OrderID)
}

func TestService_CreateOrder_Paid(t *testing.T) {
	ctx := context.Background()
	store := catalog()
	svc := newTestService(t, store)

	o := &Order{UserID: 7, Status: StatusPaid}
	require.NoError(t, svc.CreateOrder(ctx, o, []Item{line(1, 2)}))

	require.NotNil(t, o.PaidAt)
	assert.Equal(t, testNow, *o.PaidAt)

	incomes := store.incomesOf(o.ID)
	require.Len(t, incomes, 1)
	assert.Equal(t, finance.TypeIncome, incomes[0].Type)
	assert.Equal(t, finance.StatusPosted, incomes[0].Status)
	assert.True(t, o.TotalAmount.Equal(incomes[0].Amount))
}

func TestService_CreateOrder_ExplicitPriceAndTotal(t *testing.T) {
	ctx := context.Background()
	store := catalog()
	svc := newTestService(t, store)

	items := []Item{{
		ProductID: 1,
		Quantity:  2,
		Price:     decimal.RequireFromString("5.00"),
		Subtotal:  decimal.RequireFromString("10.00"),
	}}
	o := &Order{UserID: 1, TotalAmount: decimal.RequireFromString("10")}
	require.NoError(t, svc.CreateOrder(ctx, o, items))

	assert.True(t, decimal.RequireFromString("5.00").Equal(items[0].Price))
	assert.True(t, decimal.RequireFromString("10").Equal(o.TotalAmount))
}

func TestService_CreateOrder_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		order   *Order
		items   []Item
		wantErr error
		check   func(t *testing.T, err error)
	}{
		{
			name:    "NilOrder",
			items:   []Item{line(1, 1)},
			wantErr: ErrValidation,
		},
		{
			name:    "NoItems",
			order:   &Order{UserID: 1},
			wantErr: ErrValidation,
		},
		{
			name:    "ZeroQuantity",
			order:   &Order{UserID: 1},
			items:   []Item{line(1, 0)},
			wantErr: ErrValidation,
			check: func(t *testing.T, err error) {
				var qe *InvalidQuantityError
				require.True(t, errors.As(err, &qe))
				assert.Equal(t, int64(1), qe.ProductID)
			},
		},
		{
			name:    "NegativePrice",
			order:   &Order{UserID: 1},
			items:   []Item{{ProductID: 1, Quantity: 1, Price: decimal.NewFromInt(-1)}},
			wantErr: ErrValidation,
		},
		{
			name:    "UnknownStatus",
			order:   &Order{UserID: 1, Status: 9},
			items:   []Item{line(1, 1)},
			wantErr: ErrValidation,
		},
		{
			name:    "CreatedShipped",
			order:   &Order{UserID: 1, Status: StatusShipped},
			items:   []Item{line(1, 1)},
			wantErr: ErrValidation,
		},
		{
			name:    "TotalMismatch",
			order:   &Order{UserID: 1, TotalAmount: decimal.NewFromInt(1)},
			items:   []Item{line(1, 1)},
			wantErr: ErrValidation,
		},
		{
			name:    "SubtotalMismatch",
			order:   &Order{UserID: 1},
			items:   []Item{{ProductID: 1, Quantity: 2, Subtotal: decimal.NewFromInt(1)}},
			wantErr: ErrValidation,
		},
		{
			name:    "UnknownProduct",
			order:   &Order{UserID: 1},
			items:   []Item{line(99, 1)},
			wantErr: ErrNotFound,
			check: func(t *testing.T, err error) {
				var pe *ProductNotFoundError
				require.True(t, errors.As(err, &pe))
				assert.Equal(t, int64(99), pe.ProductID)
			},
		},
		{
			name:    "InsufficientStock",
			order:   &Order{UserID: 1},
			items:   []Item{line(2, 6)},
			wantErr: ErrConflict,
			check: func(t *testing.T, err error) {
				var se *InsufficientStockError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, 6, se.Requested)
				assert.Equal(t, 5, se.Available)
			},
		},
		{
			name:    "RepeatedProductExceedsStock",
			order:   &Order{UserID: 1},
			items:   []Item{line(2, 3), line(2, 3)},
			wantErr: ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := catalog()
			svc := newTestService(t, store)

			err := svc.CreateOrder(context.Background(), tt.order, tt.items)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.check != nil {
				tt.check(t, err)
			}

			assert.Empty(t, store.orders)
			assert.Empty(t, store.logs)
			assert.Equal(t, 50, store.stock(1))
			assert.Equal(t, 5, store.stock(2))
			assert.Zero(t, store.commits)
		})
	}
}

func TestService_CreateOrder_RollsBackOnShortageAtDecrement(t *testing.T) {
	ctx := context.Background()
	store := catalog()
	// Another order takes the last units of product 2 after the pre-check.
	store.failures["products.decrease:2"] = product.ErrInsufficientStock
	svc := newTestService(t, store)

	o := &Order{UserID: 1}
	items := []Item{line(1, 4), line(2, 1)}
	err := svc.CreateOrder(ctx, o, items)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	var se *InsufficientStockError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int64(2), se.ProductID)
	assert.Equal(t, -1, se.Available)

	assert.Zero(t, o.ID)
	for _, it := range items {
		assert.Zero(t, it.ID)
		assert.Zero(t, it.OrderID)
	}
	assert.Empty(t, store.orders)
	assert.Empty(t, store.items)
	assert.Empty(t, store.logs)
	assert.Empty(t, store.logistics)
	assert.Empty(t, store.events)
	assert.Equal(t, 50, store.stock(1))
	assert.Equal(t, 5, store.stock(2))
}

func TestService_CreateOrder_RollsBackOnLateFailure(t *testing.T) {
	for _, op := range []string{"orders.create", "items.create", "logs.create", "logistics.create", "incomes.create", "events.append"} {
		t.Run(op, func(t *testing.T) {
			store := catalog()
			store.failures[op] = errors.New("connection reset")
			svc := newTestService(t, store)

			err := svc.CreateOrder(context.Background(), &Order{UserID: 1, Status: StatusPaid}, []Item{line(1, 2)})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPersistence)

			assert.Empty(t, store.orders)
			assert.Empty(t, store.items)
			assert.Empty(t, store.logs)
			assert.Empty(t, store.logistics)
			assert.Empty(t, store.incomes)
			assert.Equal(t, 50, store.stock(1))
		})
	}
}

// --- UpdateOrder ---

func TestService_UpdateOrder(t *testing.T) {
	ctx := context.Background()
	store := catalog()
	svc := newTestService(t, store)
	o := store.seedOrder(Order{UserID: 1, Status: StatusPendingPayment, PaymentMethod: "card", AddressID: 1}, line(1, 1))

	method := "cash"
	require.NoError(t, svc.UpdateOrder(ctx, o.ID, Patch{PaymentMethod: &method}))

	got := store.orders[o.ID]
	assert.Equal(t, "cash", got.PaymentMethod)
	assert.Equal(t, int64(1), got.AddressID)
	require.Len(t, store.events, 1)
	assert.Equal(t, EventUpdated, store.events[0].Type)

	addr := int64(9)
	require.NoError(t, svc.UpdateOrder(ctx, o.ID, Patch{AddressID: &addr}))
	got = store.orders[o.ID]
	assert.Equal(t, "cash", got.PaymentMethod)
	assert.Equal(t, int64(9), got.AddressID)
}

func TestService_UpdateOrder_Rejected(t *testing.T) {
	ctx := context.Background()
	store := catalog()
	svc := newTestService(t, store)
	paid := store.seedOrder(Order{UserID: 1, Status: StatusPaid, PaymentMethod: "card"}, line(1, 1))
	method := "cash"

	err := svc.UpdateOrder(ctx, paid.ID, Patch{PaymentMethod: &method})
	assert.ErrorIs(t, err, ErrConflict)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StatusPaid, se.Status)
	assert.Equal(t, "card", store.orders[paid.ID].PaymentMethod)

	assert.ErrorIs(t, svc.UpdateOrder(ctx, 404, Patch{PaymentMethod: &method}), ErrNotFound)
	assert.ErrorIs(t, svc.UpdateOrder(ctx, 0, Patch{PaymentMethod: &method}), ErrValidation)
	assert.ErrorIs(t, svc.UpdateOrder(ctx, paid.ID, Patch{}), ErrValidation)
	assert.Empty(t, store.events)
}

// --- Reads ---

func TestService_CalculateOrderTotal(t *testing.T) {
	ctx := context.Background()
	store := catalog()
	svc := newTestService(t, store)

	o := &Order{UserID: 1}
	require.NoError(t, svc.CreateOrder(ctx, o, []Item{line(1, 2), line(2, 1)}))

	total, err := svc.CalculateOrderTotal(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("20.00").Equal(total), "got %s", total)
	assert.True(t, o.TotalAmount.Equal(total))

	_, err = svc.CalculateOrderTotal(ctx, -1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_ListByUser(t *testing.T) {
	ctx := context.Background()
	store := catalog()
	svc := newTestService(t, store)
	for range 3 {
		store.seedOrder(Order{UserID: 1, Status: StatusPendingPayment}, line(1, 1))
	}
	store.seedOrder(Order{UserID: 2, Status: StatusPendingPayment}, line(1, 1))

	orders, err := svc.ListByUser(ctx, 1, 1, 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Greater(t, orders[0].ID, orders[1].ID)

	orders, err = svc.ListByUser(ctx, 1, 2, 2)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	orders, err = svc.ListByUser(ctx, 3, 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

// --- Concurrency ---

func TestService_UpdateOrderStatus_ConcurrentSameTransition(t *testing.T) {
	ctx := context.Background()
	store := catalog()
	svc := newTestService(t, store)
	o := store.seedOrder(Order{UserID: 1, Status: StatusPendingPayment}, line(1, 1))

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = svc.UpdateOrderStatus(ctx, o.ID, StatusPaid)
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrConflict)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, store.incomesOf(o.ID), 1)
}
