package ta

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-backtester/internal/types"
)

func TestShortSeriesAreNaN(t *testing.T) {
	assert.True(t, math.IsNaN(SMA([]float64{1, 2}, 3)))
	assert.True(t, math.IsNaN(EMA([]float64{1, 2}, 3)))
	assert.True(t, math.IsNaN(RSI([]float64{1, 2}, 2)))
	assert.True(t, math.IsNaN(StdDev(nil, 1)))
	assert.True(t, math.IsNaN(ATR([]types.Bar{{Close: 1}}, 1)))
}

func TestSMAAndEMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 4, SMA(closes, 3), 1e-12)
	assert.InDelta(t, 3, EMA([]float64{3, 3, 3, 3}, 2), 1e-12)
	// seed (1+2)/2 = 1.5, then 3*2/3 + 1.5/3 = 2.5
	assert.InDelta(t, 2.5, EMA([]float64{1, 2, 3}, 2), 1e-12)
}

func TestRSI(t *testing.T) {
	assert.Equal(t, 100.0, RSI([]float64{1, 2, 3, 4}, 3))
	assert.InDelta(t, 50, RSI([]float64{10, 11, 10, 11, 10}, 4), 1e-9)
	assert.InDelta(t, 0, RSI([]float64{4, 3, 2, 1}, 3), 1e-9)
}

func TestBollingerFlat(t *testing.T) {
	mid, up, low := Bollinger([]float64{5, 5, 5}, 3, 2)
	assert.Equal(t, 5.0, mid)
	assert.Equal(t, 5.0, up)
	assert.Equal(t, 5.0, low)
}

func TestATR(t *testing.T) {
	bars := []types.Bar{
		{High: 11, Low: 9, Close: 10},
		{High: 12, Low: 10, Close: 11},
		{High: 15, Low: 12, Close: 14},
	}
	// true ranges 2 and max(3, 4, 1) = 4
	assert.InDelta(t, 3, ATR(bars, 2), 1e-12)
}

func TestComputeSnapshot(t *testing.T) {
	assert.Nil(t, Compute(nil))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, 30)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = types.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c}
	}

	s := Compute(bars)
	require.NotNil(t, s)
	assert.Equal(t, "2024-01-30", s.AsOf)
	assert.Equal(t, 30, s.Bars)
	require.NotNil(t, s.SMA20)
	assert.InDelta(t, 119.5, *s.SMA20, 1e-9)
	assert.Nil(t, s.SMA50)
	assert.Nil(t, s.SMA200)
	require.NotNil(t, s.RSI14)
	assert.Equal(t, 100.0, *s.RSI14)
	assert.NotNil(t, s.MACD)
	require.NotNil(t, s.ATR14)
	assert.InDelta(t, 2, *s.ATR14, 1e-9)
	assert.Len(t, s.RecentCloses, RecentBars)
	require.NotNil(t, s.RecentCloses[RecentBars-1])
	assert.Equal(t, 129.0, *s.RecentCloses[RecentBars-1])

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"sma_50":null`)
}

func TestSnapshotWithNaNCloseStillEncodes(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []types.Bar{
		{Date: start, Open: 10, High: 11, Low: 9, Close: 10},
		{Date: start.AddDate(0, 0, 1), Open: 10, High: 11, Low: 9, Close: math.NaN()},
		{Date: start.AddDate(0, 0, 2), Open: 10, High: 11, Low: 9, Close: 12},
	}

	s := Compute(bars)
	require.NotNil(t, s)
	require.Len(t, s.RecentCloses, 3)
	assert.Nil(t, s.RecentCloses[1])

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"recent_closes":[10,null,12]`)
}
