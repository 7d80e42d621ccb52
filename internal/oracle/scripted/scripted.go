// Package scripted provides deterministic oracles: a programmable one for
// tests and a replay of decisions recorded in an earlier run's trade log.
package scripted

import (
	"context"
	"fmt"
	"sync"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/tradelog"
	"llm-backtester/internal/types"
)

// Func answers one oracle request.
type Func func(ctx context.Context, req types.OracleRequest) (types.OracleResult, error)

// Oracle records every request it receives and answers with fn.
type Oracle struct {
	fn Func

	mu       sync.Mutex
	requests []types.OracleRequest
}

var _ interfaces.Oracle = (*Oracle)(nil)

func New(fn Func) *Oracle {
	return &Oracle{fn: fn}
}

// Always answers every request with d.
func Always(d types.Decision) *Oracle {
	return New(func(context.Context, types.OracleRequest) (types.OracleResult, error) {
		dc := d
		return types.OracleResult{Decision: &dc}, nil
	})
}

func (o *Oracle) Consult(ctx context.Context, req types.OracleRequest) (types.OracleResult, error) {
	o.mu.Lock()
	o.requests = append(o.requests, req)
	o.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return types.OracleResult{}, err
	}
	return o.fn(ctx, req)
}

// Requests returns a copy of every request seen so far.
func (o *Oracle) Requests() []types.OracleRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]types.OracleRequest(nil), o.requests...)
}

func (o *Oracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.requests)
}

// Replay answers with the decisions recorded in a trade log run file, keyed
// by the information cutoff date. Fallback decisions are replayed as holds.
// A cutoff with no recorded decision is reported as malformed so the run
// holds instead of retrying.
func Replay(path string) (*Oracle, error) {
	entries, err := tradelog.ReadRun(path)
	if err != nil {
		return nil, fmt.Errorf("read replay %s: %w", path, err)
	}

	byCutoff := make(map[string]types.Decision, len(entries))
	for _, e := range entries {
		if e.Decision == nil || e.DecisionDate == "" {
			continue
		}
		d := *e.Decision
		d.Fallback = types.FallbackNone
		byCutoff[e.DecisionDate] = d
	}
	if len(byCutoff) == 0 {
		return nil, fmt.Errorf("replay %s holds no decisions", path)
	}

	return New(func(_ context.Context, req types.OracleRequest) (types.OracleResult, error) {
		key := req.EndDate.Format("2006-01-02")
		d, ok := byCutoff[key]
		if !ok {
			return types.OracleResult{}, fmt.Errorf("%w: no recorded decision for %s", types.ErrOracleMalformed, key)
		}
		return types.OracleResult{Decision: &d}, nil
	}), nil
}
