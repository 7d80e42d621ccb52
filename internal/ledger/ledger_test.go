package ledger

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-backtester/internal/types"
)

func TestBuyFillsInFull(t *testing.T) {
	l := New(1000)

	filled := l.ExecuteTrade(types.ActionBuy, 5, 100)

	assert.Equal(t, 5, filled)
	assert.Equal(t, 500.0, l.Cash())
	assert.Equal(t, 5, l.Position())
}

func TestBuyClipsToAffordable(t *testing.T) {
	l := New(1000)

	filled := l.ExecuteTrade(types.ActionBuy, 5, 300)

	assert.Equal(t, 3, filled)
	assert.Equal(t, 100.0, l.Cash())
	assert.Equal(t, 3, l.Position())
}

func TestBuyUnaffordable(t *testing.T) {
	l := New(50)

	assert.Equal(t, 0, l.ExecuteTrade(types.ActionBuy, 1, 100))
	assert.Equal(t, 50.0, l.Cash())
	assert.Equal(t, 0, l.Position())
}

func TestSellClipsToPosition(t *testing.T) {
	l := New(1000)
	require.Equal(t, 4, l.ExecuteTrade(types.ActionBuy, 4, 100))

	filled := l.ExecuteTrade(types.ActionSell, 10, 100)

	assert.Equal(t, 4, filled)
	assert.Equal(t, 0, l.Position())
	assert.Equal(t, 1000.0, l.Cash())
}

func TestSellWithoutPosition(t *testing.T) {
	l := New(1000)

	assert.Equal(t, 0, l.ExecuteTrade(types.ActionSell, 3, 100))
	assert.Equal(t, 1000.0, l.Cash())
}

func TestNoOpActions(t *testing.T) {
	l := New(1000)
	l.ExecuteTrade(types.ActionBuy, 2, 100)

	for _, action := range []string{types.ActionHold, types.ActionReduce, "short", ""} {
		assert.Equal(t, 0, l.ExecuteTrade(action, 2, 100), "action %q", action)
	}
	assert.Equal(t, types.Portfolio{Cash: 800, Position: 2}, l.Snapshot())
}

func TestRejectsNonPositiveInputs(t *testing.T) {
	l := New(1000)

	assert.Equal(t, 0, l.ExecuteTrade(types.ActionBuy, 0, 100))
	assert.Equal(t, 0, l.ExecuteTrade(types.ActionBuy, -3, 100))
	assert.Equal(t, 0, l.ExecuteTrade(types.ActionBuy, 3, 0))
	assert.Equal(t, 1000.0, l.Cash())
}

func TestActionIsCaseInsensitive(t *testing.T) {
	l := New(1000)

	assert.Equal(t, 2, l.ExecuteTrade("BUY", 2, 100))
	assert.Equal(t, 1, l.ExecuteTrade(" Sell ", 1, 100))
}

func TestValuation(t *testing.T) {
	l := New(1000)
	l.ExecuteTrade(types.ActionBuy, 3, 100)

	assert.Equal(t, 1000.0, l.Valuation(100))
	assert.Equal(t, 1030.0, l.Valuation(110))
}

func TestRepeatedFillsStayExact(t *testing.T) {
	l := New(1000)
	for i := 0; i < 10; i++ {
		l.ExecuteTrade(types.ActionBuy, 1, 0.1)
	}

	assert.Equal(t, 999.0, l.Cash())
	assert.Equal(t, 10, l.Position())
}

func TestInvariantsUnderRandomTrades(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	actions := []string{types.ActionBuy, types.ActionSell, types.ActionHold, types.ActionReduce}
	l := New(10_000)

	for i := 0; i < 2000; i++ {
		action := actions[rng.Intn(len(actions))]
		qty := rng.Intn(50) - 5
		price := 1 + rng.Float64()*500

		l.ExecuteTrade(action, qty, price)

		snap := l.Snapshot()
		require.GreaterOrEqual(t, snap.Cash, 0.0, "negative cash after step %d", i)
		require.GreaterOrEqual(t, snap.Position, 0, "negative position after step %d", i)
	}
}

func TestNonFinitePricesAreRejected(t *testing.T) {
	l := New(1000)
	require.Equal(t, 2, l.ExecuteTrade(types.ActionBuy, 2, 100))

	for _, px := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.Equal(t, 0, l.ExecuteTrade(types.ActionBuy, 1, px))
		assert.Equal(t, 0, l.ExecuteTrade(types.ActionSell, 1, px))
		assert.True(t, math.IsNaN(l.Valuation(px)))
	}
	assert.Equal(t, 800.0, l.Cash())
	assert.Equal(t, 2, l.Position())
	assert.Equal(t, 1000.0, l.Valuation(100))
}

func TestNonFiniteCapitalStartsEmpty(t *testing.T) {
	for _, c := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -5} {
		l := New(c)
		assert.Equal(t, 0.0, l.Cash())
		assert.Equal(t, 0, l.ExecuteTrade(types.ActionBuy, 1, 10))
	}
}
