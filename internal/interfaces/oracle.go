package interfaces

import (
	"context"
	"time"

	"llm-backtester/internal/types"
)

type Oracle interface {
	Consult(ctx context.Context, req types.OracleRequest) (types.OracleResult, error)
}

// Invoker turns oracle calls into a canonical decision. It never fails; an
// unusable oracle answer becomes the safe default.
type Invoker interface {
	Decide(ctx context.Context, cutoff, lookbackStart time.Time, portfolio types.Portfolio, contextSize int) types.Decision
}
