package types

import "time"

// Bar is one daily OHLCV row returned by a data provider.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Portfolio is a snapshot of the single-asset book.
type Portfolio struct {
	Cash     float64 `json:"cash"`
	Position int     `json:"position"`
}

// Trading actions understood by the ledger. Anything else is a no-op.
const (
	ActionBuy    = "buy"
	ActionSell   = "sell"
	ActionHold   = "hold"
	ActionReduce = "reduce"
)

// FallbackReason explains why a Decision is the safe default.
type FallbackReason string

const (
	FallbackNone             FallbackReason = ""
	FallbackRetriesExhausted FallbackReason = "retries_exhausted"
	FallbackQuotaExhausted   FallbackReason = "quota_exhausted"
	FallbackMalformed        FallbackReason = "malformed"
	FallbackCancelled        FallbackReason = "cancelled"
)

// AgentSignal is one analyst's view inside a Decision.
type AgentSignal struct {
	Signal     string  `json:"signal"`
	Confidence float64 `json:"confidence"`
}

type Decision struct {
	Action     string                 `json:"action"`
	Quantity   int                    `json:"quantity"`
	Confidence float64                `json:"confidence"`
	Reasoning  string                 `json:"reasoning,omitempty"`
	Signals    map[string]AgentSignal `json:"signals"`
	Fallback   FallbackReason         `json:"fallback,omitempty"`
}

// SafeDecision returns the hold/0 decision used whenever the oracle cannot
// produce a usable result.
func SafeDecision(reason FallbackReason) Decision {
	return Decision{
		Action:   ActionHold,
		Quantity: 0,
		Signals:  map[string]AgentSignal{},
		Fallback: reason,
	}
}

// IsFallback reports whether d is a safe default rather than an oracle answer.
func (d Decision) IsFallback() bool {
	return d.Fallback != FallbackNone
}

// OracleRequest is the context handed to a decision oracle for one session.
type OracleRequest struct {
	Ticker      string    `json:"ticker"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Portfolio   Portfolio `json:"portfolio"`
	ContextSize int       `json:"context_size"`
}

// OracleResult carries either a structured decision or the raw text payload
// the oracle produced. Exactly one of the two is expected to be set.
type OracleResult struct {
	Decision *Decision
	Raw      string
}

type ValuationRecord struct {
	Date           time.Time `json:"date"`
	PortfolioValue float64   `json:"portfolio_value"`
	DailyReturn    float64   `json:"daily_return"`
}

type RiskReport struct {
	Volatility  float64 `json:"volatility"`
	VaR95       float64 `json:"var_95"`
	MaxDrawdown float64 `json:"max_drawdown"`
	RiskScore   int     `json:"risk_score"`
	SharpeRatio float64 `json:"sharpe_ratio"`
	TotalReturn float64 `json:"total_return"`
}
