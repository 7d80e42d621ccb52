package oracleobs

import (
	"context"
	"time"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/logger"
	"llm-backtester/internal/trace"
	"llm-backtester/internal/types"
)

type observableOracle struct {
	oracle   interfaces.Oracle
	provider string
}

var _ interfaces.Oracle = (*observableOracle)(nil)

// Wrap adds spans and structured logs around every oracle consultation.
func Wrap(oracle interfaces.Oracle, provider string) interfaces.Oracle {
	return &observableOracle{
		oracle:   oracle,
		provider: provider,
	}
}

func (o *observableOracle) Consult(ctx context.Context, req types.OracleRequest) (types.OracleResult, error) {
	ctx, span := trace.StartSpan(ctx, "oracle.Consult")
	defer span.End()

	cutoff := req.EndDate.Format("2006-01-02")
	logger.DebugSkip(ctx, 1, "Requesting trading decision",
		"provider", o.provider,
		"ticker", req.Ticker,
		"cutoff", cutoff,
		"cash", req.Portfolio.Cash,
		"position", req.Portfolio.Position,
	)

	start := time.Now()
	res, err := o.oracle.Consult(ctx, req)
	duration := time.Since(start)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to get trading decision", err,
			"provider", o.provider,
			"ticker", req.Ticker,
			"cutoff", cutoff,
			"duration_ms", duration.Milliseconds(),
		)
		return types.OracleResult{}, err
	}

	fields := []any{
		"provider", o.provider,
		"ticker", req.Ticker,
		"cutoff", cutoff,
		"duration_ms", duration.Milliseconds(),
	}
	if res.Decision != nil {
		fields = append(fields, "action", res.Decision.Action, "quantity", res.Decision.Quantity)
	} else {
		fields = append(fields, "raw_length", len(res.Raw))
	}
	logger.InfoSkip(ctx, 1, "Trading decision received", fields...)

	return res, nil
}
