package finance

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	rows []Income
}

func (m *mockRepo) Create(_ context.Context, in *Income) error {
	in.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *in)
	return nil
}

func (m *mockRepo) FindByOrderID(_ context.Context, orderID int64) ([]Income, error) {
	var out []Income
	for _, r := range m.rows {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id int64, from, to Status) error {
	for i := range m.rows {
		if m.rows[i].ID != id {
			continue
		}
		if m.rows[i].Status != from {
			return ErrAlreadyPosted
		}
		m.rows[i].Status = to
		return nil
	}
	return ErrNotFound
}

func (m *mockRepo) DeleteByOrderID(_ context.Context, orderID int64) error {
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.OrderID != orderID {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

func (m *mockRepo) Totals(_ context.Context) (income, refund decimal.Decimal, err error) {
	for _, r := range m.rows {
		if r.Status != StatusPosted {
			continue
		}
		if r.Type == TypeIncome {
			income = income.Add(r.Amount)
		} else {
			refund = refund.Add(r.Amount)
		}
	}
	return income, refund, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLedger_RecordIncome(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(&mockRepo{})

	in, err := l.RecordIncome(ctx, 1, dec("42.50"))
	require.NoError(t, err)
	assert.NotZero(t, in.ID)
	assert.Equal(t, TypeIncome, in.Type)
	assert.Equal(t, StatusPosted, in.Status)
	assert.False(t, in.TransactionTime.IsZero())

	_, err = l.RecordIncome(ctx, 1, dec("-1"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedger_RecordRefund(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(&mockRepo{})

	for _, amount := range []string{"10", "-10"} {
		in, err := l.RecordRefund(ctx, 1, dec(amount))
		require.NoError(t, err)
		assert.Equal(t, TypeRefund, in.Type)
		assert.Equal(t, StatusPending, in.Status)
		assert.True(t, dec("-10").Equal(in.Amount), "got %s", in.Amount)
	}
}

func TestLedger_PostAndSummary(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(&mockRepo{})

	_, err := l.RecordIncome(ctx, 1, dec("100"))
	require.NoError(t, err)
	refund, err := l.RecordRefund(ctx, 1, dec("30"))
	require.NoError(t, err)

	s, err := l.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(s.TotalIncome))
	assert.True(t, s.TotalRefund.IsZero(), "pending refunds are not counted")

	require.NoError(t, l.Post(ctx, refund.ID))
	s, err = l.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, dec("30").Equal(s.TotalRefund))
	assert.True(t, dec("70").Equal(s.Net()))

	assert.ErrorIs(t, l.Post(ctx, refund.ID), ErrAlreadyPosted)
	assert.ErrorIs(t, l.Post(ctx, 999), ErrNotFound)
}

func TestLedger_DiscardOrder(t *testing.T) {
	ctx := context.Background()
	repo := &mockRepo{}
	l := NewLedger(repo)

	_, err := l.RecordIncome(ctx, 1, dec("5"))
	require.NoError(t, err)
	_, err = l.RecordIncome(ctx, 2, dec("6"))
	require.NoError(t, err)

	require.NoError(t, l.DiscardOrder(ctx, 1))
	rows, err := l.ByOrder(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, rows)
	rows, err = l.ByOrder(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
