package yahoo

import (
	"context"
	"fmt"
	"strings"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/marketdata"
	"llm-backtester/internal/types"
)

type fetchFunc func(symbol string, start, end time.Time) ([]finance.ChartBar, error)

// Provider reads daily bars from the Yahoo Finance chart API.
type Provider struct {
	fetch fetchFunc
}

var _ interfaces.DataProvider = (*Provider)(nil)

func New() *Provider {
	return &Provider{fetch: fetchChart}
}

func fetchChart(symbol string, start, end time.Time) ([]finance.ChartBar, error) {
	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}

	iter := chart.Get(params)
	bars := make([]finance.ChartBar, 0)
	for iter.Next() {
		bars = append(bars, *iter.Bar())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return bars, nil
}

// PriceSeries fetches [start, end]. The chart API treats end as exclusive so
// one day is added before the call.
func (p *Provider) PriceSeries(ctx context.Context, ticker string, start, end time.Time) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	start, end = marketdata.Day(start), marketdata.Day(end)

	raw, err := p.fetch(symbol, start, end.AddDate(0, 0, 1))
	if err != nil {
		// the chart API reports an empty range as an error
		if strings.Contains(strings.ToLower(err.Error()), "no data") {
			return []types.Bar{}, nil
		}
		return nil, fmt.Errorf("%w: yahoo chart %s: %v", types.ErrDataUnavailable, symbol, err)
	}

	bars := make([]types.Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, types.Bar{
			Date:   time.Unix(int64(b.Timestamp), 0).UTC(),
			Open:   b.Open.InexactFloat64(),
			High:   b.High.InexactFloat64(),
			Low:    b.Low.InexactFloat64(),
			Close:  b.Close.InexactFloat64(),
			Volume: int64(b.Volume),
		})
	}
	return marketdata.Slice(marketdata.Normalize(bars), start, end), nil
}
