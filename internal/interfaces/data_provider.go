package interfaces

import (
	"context"
	"time"

	"llm-backtester/internal/types"
)

// DataProvider returns daily bars in date order. A range with no trading
// activity yields an empty slice, not an error.
type DataProvider interface {
	PriceSeries(ctx context.Context, ticker string, start, end time.Time) ([]types.Bar, error)
}
