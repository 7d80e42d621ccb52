package invoker

import (
	"context"
	"sync"
	"time"

	"llm-backtester/internal/logger"
)

const (
	DefaultMaxCalls   = 8
	DefaultWindow     = 60 * time.Second
	DefaultMinSpacing = 6 * time.Second
)

// LimiterState is a snapshot of the limiter counters.
type LimiterState struct {
	CallsInWindow int
	WindowStart   time.Time
	LastCall      time.Time
}

// RateLimiter enforces two limits on oracle calls: at most maxCalls per
// window, and at least minSpacing between consecutive calls. Wait holds the
// lock while sleeping so concurrent callers are serialized.
type RateLimiter struct {
	clock      Clock
	maxCalls   int
	window     time.Duration
	minSpacing time.Duration

	mu    sync.Mutex
	state LimiterState
}

// NewRateLimiter starts the first window at the clock's current time.
func NewRateLimiter(clock Clock, maxCalls int, window, minSpacing time.Duration) *RateLimiter {
	if clock == nil {
		clock = RealClock()
	}
	return &RateLimiter{
		clock:      clock,
		maxCalls:   maxCalls,
		window:     window,
		minSpacing: minSpacing,
		state:      LimiterState{WindowStart: clock.Now()},
	}
}

// Wait blocks until a call is allowed and records it.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	if now.Sub(rl.state.WindowStart) >= rl.window {
		rl.state.CallsInWindow = 0
		rl.state.WindowStart = now
	}

	if rl.maxCalls > 0 && rl.state.CallsInWindow >= rl.maxCalls {
		if wait := rl.window - now.Sub(rl.state.WindowStart); wait > 0 {
			logger.Info(ctx, "Oracle call cap reached, waiting for window",
				"calls_in_window", rl.state.CallsInWindow,
				"wait_ms", wait.Milliseconds(),
			)
			if err := rl.clock.Sleep(ctx, wait); err != nil {
				return err
			}
		}
		rl.state.CallsInWindow = 0
		rl.state.WindowStart = rl.clock.Now()
	}

	if !rl.state.LastCall.IsZero() && rl.minSpacing > 0 {
		if since := rl.clock.Now().Sub(rl.state.LastCall); since < rl.minSpacing {
			if err := rl.clock.Sleep(ctx, rl.minSpacing-since); err != nil {
				return err
			}
		}
	}

	rl.state.LastCall = rl.clock.Now()
	rl.state.CallsInWindow++
	return nil
}

// Reset starts a fresh window now. Used after a quota pause.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.state.CallsInWindow = 0
	rl.state.WindowStart = rl.clock.Now()
}

func (rl *RateLimiter) State() LimiterState {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.state
}
