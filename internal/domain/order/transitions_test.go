package order

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shopdesk/internal/domain/finance"
	"github.com/xenking/shopdesk/internal/domain/inventory"
)

var allStatuses = []Status{
	StatusPendingPayment,
	StatusPaid,
	StatusShipped,
	StatusCompleted,
	StatusCancelled,
}

func TestTransitionHooksMatchTable(t *testing.T) {
	var allowed int
	for from, targets := range allowedTransitions {
		for _, to := range targets {
			allowed++
			_, ok := transitionHooks[transition{from, to}]
			assert.True(t, ok, "no hook for %s -> %s", from, to)
		}
	}
	assert.Len(t, transitionHooks, allowed)
}

func TestStatus_CanTransitionTo(t *testing.T) {
	want := map[transition]bool{
		{StatusPendingPayment, StatusPaid}:      true,
		{StatusPendingPayment, StatusCancelled}: true,
		{StatusPaid, StatusShipped}:             true,
		{StatusShipped, StatusCompleted}:        true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			assert.Equal(t, want[transition{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestService_UpdateOrderStatus_Table(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			t.Run(fmt.Sprintf("%s_to_%s", from, to), func(t *testing.T) {
				store := catalog()
				svc := newTestService(t, store)
				o := store.seedOrder(Order{UserID: 1, Status: from}, line(1, 2))
				before := store.orders[o.ID]

				err := svc.UpdateOrderStatus(context.Background(), o.ID, to)
				if from.CanTransitionTo(to) {
					require.NoError(t, err)
					assert.Equal(t, to, store.orders[o.ID].Status)
					require.Len(t, store.events, 1)
					assert.Equal(t, EventStatusChanged, store.events[0].Type)
					assert.Equal(t, from, store.events[0].PrevStatus)
					return
				}

				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConflict)
				var te *TransitionError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, from, te.From)
				assert.Equal(t, to, te.To)

				assert.Equal(t, before, store.orders[o.ID])
				assert.Empty(t, store.logs)
				assert.Empty(t, store.incomes)
				assert.Empty(t, store.events)
				assert.Equal(t, 50, store.stock(1))
			})
		}
	}
}

func TestService_UpdateOrderStatus_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := catalog()
	svc := newTestService(t, store)

	o := &Order{UserID: 1}
	require.NoError(t, svc.CreateOrder(ctx, o, []Item{line(1, 2)}))

	require.NoError(t, svc.UpdateOrderStatus(ctx, o.ID, StatusPaid))
	got := store.orders[o.ID]
	require.NotNil(t, got.PaidAt)
	assert.Equal(t, testNow, *got.PaidAt)
	incomes := store.incomesOf(o.ID)
	require.Len(t, incomes, 1)
	assert.Equal(t, finance.TypeIncome, incomes[0].Type)
	assert.Equal(t, finance.StatusPosted, incomes[0].Status)
	assert.True(t, o.TotalAmount.Equal(incomes[0].Amount))

	require.NoError(t, svc.UpdateOrderStatus(ctx, o.ID, StatusShipped))
	got = store.orders[o.ID]
	require.NotNil(t, got.ShippedAt)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, svc.UpdateOrderStatus(ctx, o.ID, StatusCompleted))
	got = store.orders[o.ID]
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, StatusCompleted, got.Status)

	// Shipping and completion have no stock or finance effect.
	assert.Len(t, store.incomesOf(o.ID), 1)
	assert.Len(t, store.logsFor(1), 1)
	assert.Equal(t, 48, store.stock(1))
}

func TestService_CancelRestoresStock(t *testing.T) {
	ctx := context.Background()
	store := catalog()
	svc := newTestService(t, store)

	o := &Order{UserID: 1}
	require.NoError(t, svc.CreateOrder(ctx, o, []Item{line(1, 1)}))
	assert.Equal(t, 49, store.stock(1))

	require.NoError(t, svc.UpdateOrderStatus(ctx, o.ID, StatusCancelled))
	assert.Equal(t, 50, store.stock(1))
	assert.Equal(t, StatusCancelled, store.orders[o.ID].Status)

	logs := store.logsFor(1)
	require.Len(t, logs, 2)
	assert.Equal(t, inventory.ChangeSale, logs[0].ChangeType)
	assert.Equal(t, -1, logs[0].Quantity)
	assert.Equal(t, 50, logs[0].BeforeStock)
	assert.Equal(t, 49, logs[0].AfterStock)

	assert.Equal(t, inventory.ChangeAdjust, logs[1].ChangeType)
	assert.Equal(t, 1, logs[1].Quantity)
	assert.Equal(t, 49, logs[1].BeforeStock)
	assert.Equal(t, 50, logs[1].AfterStock)
	require.NotNil(t, logs[1].OrderID)
	assert.Equal(t, o.ID, *logs[1].OrderID)

	assert.Empty(t, store.incomes)
}

func TestService_UpdateOrderStatus_RollsBackEffectFailure(t *testing.T) {
	ctx := context.Background()
	store := catalog()
	store.failures["incomes.create"] = errors.New("disk full")
	svc := newTestService(t, store)
	o := store.seedOrder(Order{UserID: 1, Status: StatusPendingPayment}, line(1, 1))

	err := svc.UpdateOrderStatus(ctx, o.ID, StatusPaid)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)

	got := store.orders[o.ID]
	assert.Equal(t, StatusPendingPayment, got.Status)
	assert.Nil(t, got.PaidAt)
	assert.Empty(t, store.incomes)
}

func TestService_UpdateOrderStatus_Invalid(t *testing.T) {
	ctx := context.Background()
	store := catalog()
	svc := newTestService(t, store)
	o := store.seedOrder(Order{UserID: 1, Status: StatusPendingPayment}, line(1, 1))

	assert.ErrorIs(t, svc.UpdateOrderStatus(ctx, o.ID, 0), ErrValidation)
	assert.ErrorIs(t, svc.UpdateOrderStatus(ctx, o.ID, 6), ErrValidation)
	assert.ErrorIs(t, svc.UpdateOrderStatus(ctx, 0, StatusPaid), ErrValidation)

	err := svc.UpdateOrderStatus(ctx, 12345, StatusPaid)
	assert.ErrorIs(t, err, ErrNotFound)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, int64(12345), nf.OrderID)
}
