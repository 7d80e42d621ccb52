package noop

import (
	"context"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/logger"
	"llm-backtester/internal/types"
)

// Oracle is the fallback used when no LLM provider is configured.
type Oracle struct{}

var _ interfaces.Oracle = (*Oracle)(nil)

func New() *Oracle {
	return &Oracle{}
}

// Consult always answers hold/0 with zero confidence.
func (o *Oracle) Consult(ctx context.Context, req types.OracleRequest) (types.OracleResult, error) {
	logger.Debug(ctx, "Noop oracle called - always returns hold", "ticker", req.Ticker)
	return types.OracleResult{Decision: &types.Decision{
		Action:    types.ActionHold,
		Reasoning: "noop_oracle_fallback",
		Signals:   map[string]types.AgentSignal{},
	}}, nil
}
