package invoker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-backtester/internal/types"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type step struct {
	res types.OracleResult
	err error
}

// scriptedOracle replays steps in order and repeats the last one.
type scriptedOracle struct {
	steps    []step
	requests []types.OracleRequest
	latency  time.Duration
	clock    *fakeClock
}

func (o *scriptedOracle) Consult(_ context.Context, req types.OracleRequest) (types.OracleResult, error) {
	o.requests = append(o.requests, req)
	if o.clock != nil && o.latency > 0 {
		o.clock.Advance(o.latency)
	}
	i := len(o.requests) - 1
	if i >= len(o.steps) {
		i = len(o.steps) - 1
	}
	return o.steps[i].res, o.steps[i].err
}

func buy(qty int) step {
	return step{res: types.OracleResult{Decision: &types.Decision{Action: "buy", Quantity: qty, Confidence: 0.9}}}
}

func fail(err error) step {
	return step{err: err}
}

var (
	cutoff   = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	lookback = cutoff.AddDate(0, 0, -365)
	book     = types.Portfolio{Cash: 1000, Position: 2}
)

func TestRateLimiterPausesBeforeNinthCall(t *testing.T) {
	clock := newFakeClock()
	oracle := &scriptedOracle{steps: []step{buy(1)}}
	inv := New(oracle, "AAPL", WithClock(clock))

	for i := 0; i < 9; i++ {
		d := inv.Decide(context.Background(), cutoff, lookback, book, 5)
		require.False(t, d.IsFallback())
	}

	expected := []time.Duration{
		6 * time.Second, 6 * time.Second, 6 * time.Second, 6 * time.Second,
		6 * time.Second, 6 * time.Second, 6 * time.Second,
		18 * time.Second,
	}
	assert.Equal(t, expected, clock.Sleeps())
	assert.Len(t, oracle.requests, 9)

	state := inv.Limiter().State()
	assert.Equal(t, 1, state.CallsInWindow)
}

func TestRateLimiterNoSleepWhenCallsAreSlow(t *testing.T) {
	clock := newFakeClock()
	oracle := &scriptedOracle{steps: []step{buy(1)}, latency: 10 * time.Second, clock: clock}
	inv := New(oracle, "AAPL", WithClock(clock))

	for i := 0; i < 5; i++ {
		inv.Decide(context.Background(), cutoff, lookback, book, 5)
	}

	assert.Empty(t, clock.Sleeps())
}

func TestRateLimiterWindowRollsOver(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(clock, 2, time.Minute, 0)
	ctx := context.Background()

	require.NoError(t, rl.Wait(ctx))
	require.NoError(t, rl.Wait(ctx))
	clock.Advance(61 * time.Second)
	require.NoError(t, rl.Wait(ctx))

	assert.Empty(t, clock.Sleeps())
	assert.Equal(t, 1, rl.State().CallsInWindow)
}

func TestRateLimiterCancelled(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(clock, 1, time.Minute, 0)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, rl.Wait(ctx), context.Canceled)
}

func TestDecidePassesRequest(t *testing.T) {
	oracle := &scriptedOracle{steps: []step{buy(3)}}
	inv := New(oracle, "MSFT", WithClock(newFakeClock()))

	d := inv.Decide(context.Background(), cutoff, lookback, book, 7)

	assert.Equal(t, types.ActionBuy, d.Action)
	assert.Equal(t, 3, d.Quantity)
	require.Len(t, oracle.requests, 1)
	assert.Equal(t, types.OracleRequest{
		Ticker:      "MSFT",
		StartDate:   lookback,
		EndDate:     cutoff,
		Portfolio:   book,
		ContextSize: 7,
	}, oracle.requests[0])
}

func TestRetryBacksOffExponentially(t *testing.T) {
	clock := newFakeClock()
	transient := fmt.Errorf("%w: 503", types.ErrOracleTransient)
	oracle := &scriptedOracle{steps: []step{fail(transient), fail(transient), buy(2)}}
	inv := New(oracle, "AAPL", WithClock(clock), WithLimits(8, time.Minute, 0))

	d := inv.Decide(context.Background(), cutoff, lookback, book, 5)

	assert.Equal(t, types.ActionBuy, d.Action)
	assert.Equal(t, 2, d.Quantity)
	assert.Len(t, oracle.requests, 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
}

func TestRetriesExhaustedReturnsSafeDefault(t *testing.T) {
	clock := newFakeClock()
	oracle := &scriptedOracle{steps: []step{fail(errors.New("connection reset"))}}
	inv := New(oracle, "AAPL", WithClock(clock), WithLimits(8, time.Minute, 0))

	d := inv.Decide(context.Background(), cutoff, lookback, book, 5)

	assert.Equal(t, types.ActionHold, d.Action)
	assert.Equal(t, 0, d.Quantity)
	assert.Empty(t, d.Signals)
	assert.Equal(t, types.FallbackRetriesExhausted, d.Fallback)
	assert.Len(t, oracle.requests, 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
}

func TestQuotaPauseDoesNotConsumeAttempts(t *testing.T) {
	clock := newFakeClock()
	oracle := &scriptedOracle{steps: []step{
		fail(types.ErrOracleQuotaExceeded),
		fail(types.ErrOracleQuotaExceeded),
		buy(1),
	}}
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = 1
	inv := New(oracle, "AAPL", WithClock(clock), WithRetryPolicy(policy))

	d := inv.Decide(context.Background(), cutoff, lookback, book, 5)

	assert.False(t, d.IsFallback())
	assert.Equal(t, types.ActionBuy, d.Action)
	assert.Len(t, oracle.requests, 3)
	assert.Equal(t, []time.Duration{60 * time.Second, 60 * time.Second}, clock.Sleeps())
}

func TestQuotaPauseResetsWindow(t *testing.T) {
	clock := newFakeClock()
	steps := make([]step, 0, 10)
	for i := 0; i < 7; i++ {
		steps = append(steps, buy(1))
	}
	steps = append(steps, fail(types.ErrOracleQuotaExceeded), buy(1))
	oracle := &scriptedOracle{steps: steps}
	inv := New(oracle, "AAPL", WithClock(clock), WithLimits(8, time.Minute, 0))

	for i := 0; i < 8; i++ {
		inv.Decide(context.Background(), cutoff, lookback, book, 5)
	}

	// the eighth decision hit the quota; after the pause the window restarts
	assert.Equal(t, []time.Duration{60 * time.Second}, clock.Sleeps())
	assert.Equal(t, 1, inv.Limiter().State().CallsInWindow)
}

func TestQuotaPausesAreBounded(t *testing.T) {
	clock := newFakeClock()
	oracle := &scriptedOracle{steps: []step{fail(types.ErrOracleQuotaExceeded)}}
	policy := DefaultRetryPolicy()
	policy.MaxQuotaPauses = 2
	inv := New(oracle, "AAPL", WithClock(clock), WithRetryPolicy(policy), WithLimits(8, time.Minute, 0))

	d := inv.Decide(context.Background(), cutoff, lookback, book, 5)

	assert.Equal(t, types.FallbackQuotaExhausted, d.Fallback)
	assert.Len(t, oracle.requests, 3)
}

func TestMalformedRawTextReturnsSafeDefault(t *testing.T) {
	oracle := &scriptedOracle{steps: []step{{res: types.OracleResult{Raw: "I think you should buy"}}}}
	inv := New(oracle, "AAPL", WithClock(newFakeClock()))

	d := inv.Decide(context.Background(), cutoff, lookback, book, 5)

	assert.Equal(t, types.ActionHold, d.Action)
	assert.Equal(t, types.FallbackMalformed, d.Fallback)
	assert.Len(t, oracle.requests, 1)
}

func TestMalformedErrorIsNotRetried(t *testing.T) {
	oracle := &scriptedOracle{steps: []step{fail(fmt.Errorf("%w: no choices", types.ErrOracleMalformed))}}
	inv := New(oracle, "AAPL", WithClock(newFakeClock()))

	d := inv.Decide(context.Background(), cutoff, lookback, book, 5)

	assert.Equal(t, types.FallbackMalformed, d.Fallback)
	assert.Len(t, oracle.requests, 1)
}

func TestCancelledContext(t *testing.T) {
	oracle := &scriptedOracle{steps: []step{buy(1)}}
	inv := New(oracle, "AAPL", WithClock(newFakeClock()))
	inv.Decide(context.Background(), cutoff, lookback, book, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := inv.Decide(ctx, cutoff, lookback, book, 5)

	assert.Equal(t, types.FallbackCancelled, d.Fallback)
	assert.Len(t, oracle.requests, 1)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, FailureQuota, Classify(fmt.Errorf("wrap: %w", types.ErrOracleQuotaExceeded)))
	assert.Equal(t, FailureMalformed, Classify(types.ErrOracleMalformed))
	assert.Equal(t, FailureCancelled, Classify(context.DeadlineExceeded))
	assert.Equal(t, FailureTransient, Classify(errors.New("boom")))
}

func TestBackoff(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 30*time.Second, p.Backoff(10))
}
