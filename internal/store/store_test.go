package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger", "withdrawals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedger_InsertGetSetTxID(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	w := &Withdrawal{
		AccountID:   "main",
		CryptoCode:  "BTC",
		Address:     "1A2B",
		Amount:      decimal.RequireFromString("0.015"),
		Fee:         decimal.RequireFromString("0.0001"),
		RequestCode: "req-1",
	}
	require.NoError(t, l.Insert(ctx, w))
	assert.NotEmpty(t, w.ID)

	got, err := l.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)
	assert.True(t, got.Amount.Equal(w.Amount))
	assert.True(t, got.Fee.Equal(w.Fee))
	assert.Empty(t, got.TxID)

	require.NoError(t, l.SetTxID(ctx, "req-1", "abc123"))
	got, err = l.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.TxID)
}

func TestLedger_RequestCodeUnique(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Insert(ctx, &Withdrawal{AccountID: "a", RequestCode: "dup"}))
	assert.Error(t, l.Insert(ctx, &Withdrawal{AccountID: "a", RequestCode: "dup"}))
}

func TestLedger_NotFound(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	_, err := l.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, l.SetTxID(ctx, "missing", "x"), ErrNotFound)
}

func TestLedger_ListPendingAndList(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, code := range []string{"r1", "r2", "r3"} {
		require.NoError(t, l.Insert(ctx, &Withdrawal{
			AccountID:   "main",
			CryptoCode:  "BTC",
			RequestCode: code,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, l.Insert(ctx, &Withdrawal{AccountID: "other", RequestCode: "o1"}))
	require.NoError(t, l.SetTxID(ctx, "r2", "tx2"))

	pending, err := l.ListPending(ctx, "main")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "r1", pending[0].RequestCode)
	assert.Equal(t, "r3", pending[1].RequestCode)

	all, err := l.List(ctx, "main", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "r3", all[0].RequestCode)
	assert.Equal(t, "r2", all[1].RequestCode)
}
