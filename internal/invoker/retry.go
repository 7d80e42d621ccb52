package invoker

import (
	"context"
	"errors"
	"math"
	"time"

	"llm-backtester/internal/types"
)

// Failure classifies an oracle error for the retry loop.
type Failure int

const (
	FailureTransient Failure = iota
	FailureQuota
	FailureMalformed
	FailureCancelled
)

func (f Failure) String() string {
	switch f {
	case FailureQuota:
		return "quota"
	case FailureMalformed:
		return "malformed"
	case FailureCancelled:
		return "cancelled"
	default:
		return "transient"
	}
}

// Classify maps an oracle error onto a Failure. Unknown errors are transient.
func Classify(err error) Failure {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCancelled
	case errors.Is(err, types.ErrOracleQuotaExceeded):
		return FailureQuota
	case errors.Is(err, types.ErrOracleMalformed):
		return FailureMalformed
	default:
		return FailureTransient
	}
}

// RetryPolicy bounds oracle retries.
//
// Transient failures consume one of MaxAttempts and back off by
// BaseDelay*Multiplier^attempt. Quota failures pause for QuotaPause and reset
// the rate window without consuming an attempt, at most MaxQuotaPauses times
// per decision.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Multiplier     float64
	MaxDelay       time.Duration
	QuotaPause     time.Duration
	MaxQuotaPauses int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		Multiplier:     2,
		MaxDelay:       30 * time.Second,
		QuotaPause:     60 * time.Second,
		MaxQuotaPauses: 10,
	}
}

// Backoff is the delay after the failed attempt with 0-based index attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = def.Multiplier
	}
	if p.QuotaPause <= 0 {
		p.QuotaPause = def.QuotaPause
	}
	if p.MaxQuotaPauses < 0 {
		p.MaxQuotaPauses = 0
	}
	return p
}
