package marketdataobs

import (
	"context"
	"time"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/logger"
	"llm-backtester/internal/trace"
	"llm-backtester/internal/types"
)

// observableProvider wraps a DataProvider with logging and tracing
type observableProvider struct {
	provider interfaces.DataProvider
	source   string
}

var _ interfaces.DataProvider = (*observableProvider)(nil)

func Wrap(provider interfaces.DataProvider, source string) interfaces.DataProvider {
	return &observableProvider{
		provider: provider,
		source:   source,
	}
}

func (op *observableProvider) PriceSeries(ctx context.Context, ticker string, start, end time.Time) ([]types.Bar, error) {
	ctx, span := trace.StartSpan(ctx, "marketdata.PriceSeries")
	defer span.End()

	from, to := start.Format("2006-01-02"), end.Format("2006-01-02")
	logger.DebugSkip(ctx, 1, "Fetching price series",
		"source", op.source,
		"ticker", ticker,
		"start", from,
		"end", to,
	)

	t0 := time.Now()
	bars, err := op.provider.PriceSeries(ctx, ticker, start, end)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch price series", err,
			"source", op.source,
			"ticker", ticker,
			"start", from,
			"end", to,
		)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Price series fetched",
		"source", op.source,
		"ticker", ticker,
		"count", len(bars),
		"duration_ms", time.Since(t0).Milliseconds(),
	)
	return bars, nil
}
