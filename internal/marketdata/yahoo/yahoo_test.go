package yahoo

import (
	"context"
	"errors"
	"testing"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-backtester/internal/types"
)

func chartBar(t time.Time, open, close float64) finance.ChartBar {
	return finance.ChartBar{
		Open:      decimal.NewFromFloat(open),
		High:      decimal.NewFromFloat(close + 1),
		Low:       decimal.NewFromFloat(open - 1),
		Close:     decimal.NewFromFloat(close),
		AdjClose:  decimal.NewFromFloat(close),
		Volume:    1200,
		Timestamp: int(t.Unix()),
	}
}

func TestPriceSeriesConvertsBars(t *testing.T) {
	var gotStart, gotEnd time.Time
	p := &Provider{fetch: func(symbol string, start, end time.Time) ([]finance.ChartBar, error) {
		assert.Equal(t, "AAPL", symbol)
		gotStart, gotEnd = start, end
		return []finance.ChartBar{
			// regular session opens 14:30 UTC
			chartBar(time.Date(2024, 1, 3, 14, 30, 0, 0, time.UTC), 184.22, 184.25),
			chartBar(time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC), 187.15, 185.64),
		}, nil
	}}

	bars, err := p.PriceSeries(context.Background(), "aapl",
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), gotEnd)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), gotStart)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.InDelta(t, 187.15, bars[0].Open, 1e-9)
	assert.InDelta(t, 184.25, bars[1].Close, 1e-9)
	assert.Equal(t, int64(1200), bars[1].Volume)
}

func TestPriceSeriesErrors(t *testing.T) {
	p := &Provider{fetch: func(string, time.Time, time.Time) ([]finance.ChartBar, error) {
		return nil, errors.New("remote error: 500")
	}}
	_, err := p.PriceSeries(context.Background(), "AAPL", time.Now(), time.Now())
	assert.ErrorIs(t, err, types.ErrDataUnavailable)

	p.fetch = func(string, time.Time, time.Time) ([]finance.ChartBar, error) {
		return nil, errors.New("No data found, symbol may be delisted")
	}
	bars, err := p.PriceSeries(context.Background(), "AAPL", time.Now(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, bars)
}
