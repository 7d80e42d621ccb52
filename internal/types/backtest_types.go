package types

import "time"

// SessionState tracks one calendar date through the backtest loop.
type SessionState string

const (
	StatePending    SessionState = "PENDING"
	StateEvaluating SessionState = "EVALUATING"
	StateExecuted   SessionState = "EXECUTED"
	StateRecorded   SessionState = "RECORDED"
	StateSkipped    SessionState = "SKIPPED"
)

// SkipReason says why a session never reached RECORDED.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipMarketClosed    SkipReason = "market_closed"
	SkipNoPriorSession  SkipReason = "no_prior_session"
	SkipDataUnavailable SkipReason = "data_unavailable"
)

// SignalTally counts analyst signals by direction.
type SignalTally struct {
	Bullish int `json:"bullish"`
	Bearish int `json:"bearish"`
	Neutral int `json:"neutral"`
}

// RiskAssessment is the pre-trade risk view computed from lookback closes.
type RiskAssessment struct {
	Volatility      float64 `json:"volatility"`
	VaR95           float64 `json:"var_95"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	VolatilityZ     float64 `json:"volatility_z"`
	MarketRiskScore int     `json:"market_risk_score"`
	RiskScore       int     `json:"risk_score"`
	MaxPositionSize float64 `json:"max_position_size"`
	TradingAction   string  `json:"trading_action"`
	Reasoning       string  `json:"reasoning"`
}

// SessionOutcome is the trace entry for one processed calendar date.
type SessionOutcome struct {
	Date             time.Time       `json:"date"`
	State            SessionState    `json:"state"`
	SkipReason       SkipReason      `json:"skip_reason,omitempty"`
	DecisionDate     time.Time       `json:"decision_date,omitempty"`
	LookbackStart    time.Time       `json:"lookback_start,omitempty"`
	Price            float64         `json:"price,omitempty"`
	Decision         *Decision       `json:"decision,omitempty"`
	ExecutedQuantity int             `json:"executed_quantity"`
	Cash             float64         `json:"cash"`
	Position         int             `json:"position"`
	PortfolioValue   float64         `json:"portfolio_value"`
	Tally            SignalTally     `json:"tally"`
	Advisory         string          `json:"advisory,omitempty"`
	Assessment       *RiskAssessment `json:"assessment,omitempty"`
}

// Result is everything a finished (or early-stopped) run produced.
type Result struct {
	RunID          string            `json:"run_id"`
	Ticker         string            `json:"ticker"`
	Start          time.Time         `json:"start"`
	End            time.Time         `json:"end"`
	InitialCapital float64           `json:"initial_capital"`
	Records        []ValuationRecord `json:"records"`
	Outcomes       []SessionOutcome  `json:"outcomes"`
	Report         RiskReport        `json:"report"`
	FinalPortfolio Portfolio         `json:"final_portfolio"`
	Executed       int               `json:"executed"`
	Skipped        int               `json:"skipped"`
	Fallbacks      int               `json:"fallbacks"`
	Stopped        bool              `json:"stopped"`
}

// FinalValue is the last recorded portfolio value, or the initial capital
// when nothing was recorded.
func (r *Result) FinalValue() float64 {
	if len(r.Records) == 0 {
		return r.InitialCapital
	}
	return r.Records[len(r.Records)-1].PortfolioValue
}
