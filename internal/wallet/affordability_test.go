package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/apexwallet/pkg/apex"
)

func TestAvailable(t *testing.T) {
	cases := []struct {
		amount, hold, want string
	}{
		{"10", "3", "7"},
		{"10", "10", "0"},
		{"0.5", "0", "0.5"},
		{"1", "2", "0"},
		{"0", "0.1", "0"},
	}
	for _, tc := range cases {
		got := Available(apex.Position{Amount: dec(tc.amount), Hold: dec(tc.hold)})
		assert.True(t, got.Equal(dec(tc.want)), "amount=%s hold=%s got=%s", tc.amount, tc.hold, got)
	}
}

func TestAffordable_Boundaries(t *testing.T) {
	bid := dec("30000")
	fiat := dec("9000")
	crypto := dec("1.5")

	assert.True(t, Affordable(SideSell, dec("1.5"), bid, fiat, crypto), "sell equal to available")
	assert.False(t, Affordable(SideSell, dec("1.5000001"), bid, fiat, crypto))
	assert.True(t, Affordable(SideBuy, dec("0.3"), bid, fiat, crypto), "buy cost equal to available")
	assert.False(t, Affordable(SideBuy, dec("0.30001"), bid, fiat, crypto))
}

func TestCanAfford_UsesAvailableBalances(t *testing.T) {
	v := newTestVenue()
	m := NewMarket()
	s := testSession(v)
	ctx := context.Background()

	// USD available 9000 at bid 30000 -> 0.3 BTC; BTC available 1.5.
	ok, err := m.CanAfford(ctx, s, "USD", "BTC", SideBuy, dec("0.3"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.CanAfford(ctx, s, "USD", "BTC", SideBuy, dec("0.31"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.CanAfford(ctx, s, "USD", "BTC", SideSell, dec("1.5"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.CanAfford(ctx, s, "USD", "BTC", SideSell, dec("1.6"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanAfford_NegativeAvailableClampsToZero(t *testing.T) {
	v := newTestVenue()
	v.Positions[0] = apex.Position{ProductSymbol: "BTC", Amount: dec("1"), Hold: dec("2")}

	ok, err := NewMarket().CanAfford(context.Background(), testSession(v), "USD", "BTC", SideSell, dec("0"))
	require.NoError(t, err)
	assert.True(t, ok, "zero amount against zero available")

	ok, err = NewMarket().CanAfford(context.Background(), testSession(v), "USD", "BTC", SideSell, dec("0.0001"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanAfford_QuoteNeverCachedCatalogCached(t *testing.T) {
	v := newTestVenue()
	m := NewMarket()
	s := testSession(v)

	for i := 0; i < 3; i++ {
		_, err := m.CanAfford(context.Background(), s, "USD", "BTC", SideBuy, dec("0.1"))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, v.CallCount(apex.MethodSubscribeLevel1))
	assert.Equal(t, 3, v.CallCount(apex.MethodGetAccountPositions))
	assert.Equal(t, 1, v.CallCount(apex.MethodGetInstruments))
}

func TestCanAfford_MissingData(t *testing.T) {
	v := newTestVenue()
	m := NewMarket()
	s := testSession(v)

	_, err := m.CanAfford(context.Background(), s, "EUR", "BTC", SideBuy, dec("1"))
	assert.ErrorIs(t, err, ErrInstrumentNotFound)

	_, err = m.CanAfford(context.Background(), s, "USD", "ETH", SideSell, dec("1"))
	assert.ErrorIs(t, err, ErrPositionNotFound)
	assert.True(t, IsNotFound(err))
}

func TestParseSide(t *testing.T) {
	for in, want := range map[string]Side{"buy": SideBuy, "0": SideBuy, "SELL": SideSell, "1": SideSell} {
		got, err := ParseSide(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSide("hold")
	assert.Error(t, err)
}
