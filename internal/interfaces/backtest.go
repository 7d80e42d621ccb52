package interfaces

import (
	"context"

	"llm-backtester/internal/types"
)

type Backtester interface {
	Run(ctx context.Context) (*types.Result, error)
}

type Sink interface {
	Publish(ctx context.Context, result *types.Result) error
}
