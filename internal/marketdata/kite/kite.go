package kite

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/logger"
	"llm-backtester/internal/marketdata"
	"llm-backtester/internal/types"
)

// maxDaysPerRequest is the Kite limit for the "day" interval.
const maxDaysPerRequest = 2000

type kiteClient interface {
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
}

type Params struct {
	APIKey      string
	AccessToken string
	Exchange    string
}

// Provider reads daily candles for NSE/BSE symbols from Kite Connect.
type Provider struct {
	client   kiteClient
	exchange string
	mapper   *instrumentMapper
	loadMu   sync.Mutex
}

var _ interfaces.DataProvider = (*Provider)(nil)

func New(p Params) *Provider {
	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)
	return newProvider(kc, p.Exchange)
}

func newProvider(client kiteClient, exchange string) *Provider {
	if exchange == "" {
		exchange = "NSE"
	}
	return &Provider{
		client:   client,
		exchange: strings.ToUpper(exchange),
		mapper:   newInstrumentMapper(),
	}
}

func (p *Provider) PriceSeries(ctx context.Context, ticker string, start, end time.Time) ([]types.Bar, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	token, err := p.token(ctx, symbol)
	if err != nil {
		return nil, err
	}
	start, end = marketdata.Day(start), marketdata.Day(end)

	var bars []types.Bar
	for from := start; !from.After(end); from = from.AddDate(0, 0, maxDaysPerRequest) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		to := from.AddDate(0, 0, maxDaysPerRequest-1)
		if to.After(end) {
			to = end
		}
		candles, err := p.client.GetHistoricalData(token, "day", from, to.Add(24*time.Hour-time.Second), false, false)
		if err != nil {
			return nil, fmt.Errorf("%w: kite historical %s: %v", types.ErrDataUnavailable, symbol, err)
		}
		for _, c := range candles {
			bars = append(bars, types.Bar{
				Date:   localDate(c.Date.Time),
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: int64(c.Volume),
			})
		}
	}
	return marketdata.Slice(marketdata.Normalize(bars), start, end), nil
}

// localDate keeps the exchange calendar date. Kite stamps day candles at
// midnight IST, which is the previous day in UTC.
func localDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (p *Provider) token(ctx context.Context, symbol string) (int, error) {
	if err := p.loadInstruments(ctx); err != nil {
		return 0, err
	}
	token, ok := p.mapper.getToken(symbol)
	if !ok {
		return 0, fmt.Errorf("%w: no %s instrument for %s", types.ErrDataUnavailable, p.exchange, symbol)
	}
	return token, nil
}

func (p *Provider) loadInstruments(ctx context.Context) error {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	if p.mapper.isLoaded() {
		return nil
	}

	instruments, err := p.client.GetInstrumentsByExchange(p.exchange)
	if err != nil {
		return fmt.Errorf("%w: kite instruments %s: %v", types.ErrDataUnavailable, p.exchange, err)
	}
	for _, inst := range instruments {
		// equity cash segment only
		if inst.InstrumentType != "" && inst.InstrumentType != "EQ" {
			continue
		}
		p.mapper.addMapping(inst.Tradingsymbol, inst.InstrumentToken)
	}
	p.mapper.markLoaded()

	logger.Info(ctx, "Loaded Kite instruments", "exchange", p.exchange, "count", len(instruments))
	return nil
}
