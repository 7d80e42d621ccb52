package invoker

import (
	"context"
	"time"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/logger"
	"llm-backtester/internal/types"
)

// Invoker calls the decision oracle under a rate limit and retry policy and
// always hands back a usable Decision.
type Invoker struct {
	oracle  interfaces.Oracle
	ticker  string
	clock   Clock
	limiter *RateLimiter
	policy  RetryPolicy
}

var _ interfaces.Invoker = (*Invoker)(nil)

type Option func(*options)

type options struct {
	clock      Clock
	policy     RetryPolicy
	maxCalls   int
	window     time.Duration
	minSpacing time.Duration
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithLimits overrides the per-window call cap and the minimum call spacing.
func WithLimits(maxCalls int, window, minSpacing time.Duration) Option {
	return func(o *options) {
		o.maxCalls = maxCalls
		o.window = window
		o.minSpacing = minSpacing
	}
}

func New(oracle interfaces.Oracle, ticker string, opts ...Option) *Invoker {
	o := options{
		clock:      RealClock(),
		policy:     DefaultRetryPolicy(),
		maxCalls:   DefaultMaxCalls,
		window:     DefaultWindow,
		minSpacing: DefaultMinSpacing,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Invoker{
		oracle:  oracle,
		ticker:  ticker,
		clock:   o.clock,
		limiter: NewRateLimiter(o.clock, o.maxCalls, o.window, o.minSpacing),
		policy:  o.policy.withDefaults(),
	}
}

// Limiter exposes the rate limiter state for inspection.
func (inv *Invoker) Limiter() *RateLimiter {
	return inv.limiter
}

// Decide asks the oracle for a decision on data up to cutoff. It never
// returns an error: exhausted retries, malformed answers and cancellation
// all yield the hold/0 safe default with the reason recorded in Fallback.
func (inv *Invoker) Decide(ctx context.Context, cutoff, lookbackStart time.Time, portfolio types.Portfolio, contextSize int) types.Decision {
	req := types.OracleRequest{
		Ticker:      inv.ticker,
		StartDate:   lookbackStart,
		EndDate:     cutoff,
		Portfolio:   portfolio,
		ContextSize: contextSize,
	}
	date := cutoff.Format("2006-01-02")

	quotaPauses := 0
	for attempt := 0; attempt < inv.policy.MaxAttempts; {
		if err := inv.limiter.Wait(ctx); err != nil {
			logger.Warn(ctx, "Oracle call abandoned while rate limited", "date", date, "error", err)
			return types.SafeDecision(types.FallbackCancelled)
		}

		res, err := inv.oracle.Consult(ctx, req)
		if err == nil {
			decision, perr := Normalize(res)
			if perr != nil {
				logger.Warn(ctx, "Could not parse oracle response, holding",
					"date", date,
					"error", perr,
					"raw", truncate(res.Raw, 500),
				)
				return types.SafeDecision(types.FallbackMalformed)
			}
			return decision
		}

		switch Classify(err) {
		case FailureCancelled:
			logger.Warn(ctx, "Oracle call cancelled", "date", date, "error", err)
			return types.SafeDecision(types.FallbackCancelled)

		case FailureMalformed:
			logger.Warn(ctx, "Oracle returned a malformed response, holding", "date", date, "error", err)
			return types.SafeDecision(types.FallbackMalformed)

		case FailureQuota:
			if quotaPauses >= inv.policy.MaxQuotaPauses {
				logger.Warn(ctx, "Oracle quota still exhausted, holding",
					"date", date,
					"quota_pauses", quotaPauses,
				)
				return types.SafeDecision(types.FallbackQuotaExhausted)
			}
			quotaPauses++
			logger.Warn(ctx, "Oracle quota exceeded, pausing",
				"date", date,
				"pause_ms", inv.policy.QuotaPause.Milliseconds(),
				"quota_pauses", quotaPauses,
			)
			if err := inv.clock.Sleep(ctx, inv.policy.QuotaPause); err != nil {
				return types.SafeDecision(types.FallbackCancelled)
			}
			inv.limiter.Reset()
			continue

		default:
			logger.Warn(ctx, "Failed to get oracle decision",
				"date", date,
				"attempt", attempt+1,
				"max_attempts", inv.policy.MaxAttempts,
				"error", err,
			)
			if attempt == inv.policy.MaxAttempts-1 {
				return types.SafeDecision(types.FallbackRetriesExhausted)
			}
			if err := inv.clock.Sleep(ctx, inv.policy.Backoff(attempt)); err != nil {
				return types.SafeDecision(types.FallbackCancelled)
			}
			attempt++
		}
	}
	return types.SafeDecision(types.FallbackRetriesExhausted)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
