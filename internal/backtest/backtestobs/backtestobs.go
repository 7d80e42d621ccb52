package backtestobs

import (
	"context"
	"time"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/logger"
	"llm-backtester/internal/trace"
	"llm-backtester/internal/types"
)

type observableBacktester struct {
	backtester interfaces.Backtester
	ticker     string
}

var _ interfaces.Backtester = (*observableBacktester)(nil)

func Wrap(bt interfaces.Backtester, ticker string) interfaces.Backtester {
	return &observableBacktester{
		backtester: bt,
		ticker:     ticker,
	}
}

func (ob *observableBacktester) Run(ctx context.Context) (*types.Result, error) {
	ctx, span := trace.StartSpan(ctx, "backtest.Run")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting backtest run",
		"ticker", ob.ticker,
	)

	result, err := ob.backtester.Run(ctx)
	if result == nil {
		logger.ErrorWithErrSkip(ctx, 1, "Backtest run failed", err,
			"ticker", ob.ticker,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Backtest finished with publish errors", err,
			"ticker", ob.ticker,
			"run_id", result.RunID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return result, err
	}

	logger.InfoSkip(ctx, 1, "Backtest run completed",
		"ticker", ob.ticker,
		"run_id", result.RunID,
		"sessions", len(result.Records),
		"final_value", result.FinalValue(),
		"sharpe_ratio", result.Report.SharpeRatio,
		"stopped", result.Stopped,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}
