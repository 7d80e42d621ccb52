package static

import (
	"context"
	"strings"
	"sync"
	"time"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/marketdata"
	"llm-backtester/internal/types"
)

// Range is one PriceSeries query as received.
type Range struct {
	Ticker     string
	Start, End time.Time
}

// Provider serves bars held in memory and remembers every query.
type Provider struct {
	mu      sync.Mutex
	bars    map[string][]types.Bar
	queries []Range
	failing map[string]error
}

var _ interfaces.DataProvider = (*Provider)(nil)

func New() *Provider {
	return &Provider{
		bars:    make(map[string][]types.Bar),
		failing: make(map[string]error),
	}
}

// Add stores bars for ticker, replacing same-date bars.
func (p *Provider) Add(ticker string, bars ...types.Bar) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := strings.ToUpper(ticker)
	p.bars[key] = marketdata.Normalize(append(p.bars[key], bars...))
	return p
}

// Flat adds one bar per listed date with every price equal to price.
func (p *Provider) Flat(ticker string, price float64, dates ...time.Time) *Provider {
	bars := make([]types.Bar, len(dates))
	for i, d := range dates {
		bars[i] = types.Bar{Date: d, Open: price, High: price, Low: price, Close: price, Volume: 1000}
	}
	return p.Add(ticker, bars...)
}

// Fail makes every query for ticker return err.
func (p *Provider) Fail(ticker string, err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing[strings.ToUpper(ticker)] = err
	return p
}

func (p *Provider) PriceSeries(_ context.Context, ticker string, start, end time.Time) ([]types.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := strings.ToUpper(ticker)
	p.queries = append(p.queries, Range{Ticker: key, Start: start, End: end})
	if err := p.failing[key]; err != nil {
		return nil, err
	}
	return marketdata.Slice(p.bars[key], marketdata.Day(start), marketdata.Day(end)), nil
}

// Queries returns every range asked for so far.
func (p *Provider) Queries() []Range {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Range(nil), p.queries...)
}
