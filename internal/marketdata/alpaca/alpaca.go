package alpaca

import (
	"context"
	"fmt"
	"strings"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/marketdata"
	"llm-backtester/internal/types"
)

type barsClient interface {
	GetBars(symbol string, req alpacamd.GetBarsRequest) ([]alpacamd.Bar, error)
}

// Provider reads daily bars from the Alpaca market data API.
type Provider struct {
	client barsClient
	feed   string
}

var _ interfaces.DataProvider = (*Provider)(nil)

// New builds a provider; feed is "iex" on free plans, "sip" otherwise.
func New(apiKey, apiSecret, feed string) *Provider {
	client := alpacamd.NewClient(alpacamd.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
	return newProvider(client, feed)
}

func newProvider(client barsClient, feed string) *Provider {
	if feed == "" {
		feed = "iex"
	}
	return &Provider{client: client, feed: strings.ToLower(feed)}
}

// PriceSeries asks for split adjusted daily bars. Daily bar timestamps sit at
// midnight New York time, which is the same calendar date in UTC.
func (p *Provider) PriceSeries(ctx context.Context, ticker string, start, end time.Time) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	start, end = marketdata.Day(start), marketdata.Day(end)

	raw, err := p.client.GetBars(symbol, alpacamd.GetBarsRequest{
		TimeFrame:  alpacamd.OneDay,
		Adjustment: alpacamd.Split,
		Start:      start,
		End:        end.AddDate(0, 0, 1),
		Feed:       alpacamd.Feed(p.feed),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: alpaca bars %s: %v", types.ErrDataUnavailable, symbol, err)
	}

	bars := make([]types.Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, types.Bar{
			Date:   b.Timestamp,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: int64(b.Volume),
		})
	}
	return marketdata.Slice(marketdata.Normalize(bars), start, end), nil
}
