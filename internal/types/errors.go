package types

import "errors"

var (
	// ErrDataUnavailable means the provider had no usable bar for a session.
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrOracleTransient is a retryable oracle failure.
	ErrOracleTransient = errors.New("oracle transient failure")
	// ErrOracleQuotaExceeded asks the caller to pause and reset its rate window.
	ErrOracleQuotaExceeded = errors.New("oracle quota exceeded")
	// ErrOracleMalformed means the oracle answered but the payload is unusable.
	ErrOracleMalformed = errors.New("oracle response malformed")
	// ErrNoPriorSession is returned when no open session exists in the lookback window.
	ErrNoPriorSession = errors.New("no prior trading session")
	// ErrInvalidParams is the only fatal condition of a run.
	ErrInvalidParams = errors.New("invalid backtest parameters")
)
