package parquet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-backtester/internal/marketdata/static"
	"llm-backtester/internal/types"
)

func d(day int) time.Time {
	return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
}

func TestWriteAndReadBars(t *testing.T) {
	s := NewStore(t.TempDir())

	require.NoError(t, s.WriteBars("aapl", []types.Bar{
		{Date: d(3), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100},
		{Date: d(2), Open: 9, High: 10, Low: 8, Close: 9.5, Volume: 90},
	}))
	require.NoError(t, s.WriteBars("AAPL", []types.Bar{
		{Date: d(3), Open: 20, High: 21, Low: 19, Close: 20.5, Volume: 200},
		{Date: d(4), Open: 30, High: 31, Low: 29, Close: 30.5, Volume: 300},
	}))

	bars, err := s.ReadBars("AAPL")
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, d(2), bars[0].Date)
	assert.Equal(t, 20.0, bars[1].Open)
	assert.Equal(t, int64(300), bars[2].Volume)

	window, err := s.PriceSeries(context.Background(), "AAPL", d(3), d(3))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, 20.5, window[0].Close)

	empty, err := s.PriceSeries(context.Background(), "AAPL", d(10), d(20))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMissingTicker(t *testing.T) {
	s := NewStore(t.TempDir())

	_, err := s.PriceSeries(context.Background(), "MSFT", d(1), d(5))
	assert.ErrorIs(t, err, types.ErrDataUnavailable)
}

func TestFetchFromProvider(t *testing.T) {
	src := static.New().Flat("MSFT", 370, d(2), d(3), d(4), d(5))
	s := NewStore(t.TempDir())

	n, err := s.Fetch(context.Background(), src, "MSFT", d(3), d(5))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	bars, err := s.ReadBars("MSFT")
	require.NoError(t, err)
	assert.Len(t, bars, 3)
	assert.Equal(t, d(3), bars[0].Date)
}
