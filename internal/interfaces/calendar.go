package interfaces

import (
	"context"
	"time"
)

type Calendar interface {
	Sessions(ctx context.Context, start, end time.Time) ([]time.Time, error)
	IsOpen(ctx context.Context, date time.Time) (bool, error)
	PreviousSession(ctx context.Context, date time.Time) (time.Time, error)
}
