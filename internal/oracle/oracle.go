// Package oracle holds what the HTTP decision oracles share: the request
// state shown to the model and the mapping of HTTP failures onto the oracle
// error sentinels.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/logger"
	"llm-backtester/internal/ta"
	"llm-backtester/internal/types"
)

const DefaultSystem = "You are a disciplined equities portfolio manager. Output STRICT JSON with an action of buy, sell, hold or reduce."

const DefaultSchema = `{"action":"buy|sell|hold|reduce","quantity":int,"confidence":0..1,"reasoning":string,"agent_signals":[{"agent":string,"signal":"bullish|bearish|neutral","confidence":0..1}]}`

// State is the JSON document the model sees for one session.
type State struct {
	Ticker      string          `json:"ticker"`
	StartDate   string          `json:"start_date"`
	EndDate     string          `json:"end_date"`
	Portfolio   types.Portfolio `json:"portfolio"`
	ContextSize int             `json:"context_size"`
	Market      *ta.Snapshot    `json:"market,omitempty"`
}

func NewState(req types.OracleRequest) State {
	return State{
		Ticker:      req.Ticker,
		StartDate:   req.StartDate.Format("2006-01-02"),
		EndDate:     req.EndDate.Format("2006-01-02"),
		Portfolio:   req.Portfolio,
		ContextSize: req.ContextSize,
	}
}

// BuildState adds an indicator snapshot over [StartDate, EndDate] when data
// is set. Bars after EndDate are never requested. A failed fetch leaves the
// state without market data.
func BuildState(ctx context.Context, data interfaces.DataProvider, req types.OracleRequest) State {
	st := NewState(req)
	if data == nil {
		return st
	}
	bars, err := data.PriceSeries(ctx, req.Ticker, req.StartDate, req.EndDate)
	if err != nil {
		logger.Warn(ctx, "Market context unavailable, prompting without it",
			"ticker", req.Ticker,
			"end_date", st.EndDate,
			"error", err,
		)
		return st
	}
	st.Market = ta.Compute(bars)
	return st
}

// Prompt builds the system and user messages for state. A state that cannot
// be encoded is reported as ErrOracleMalformed rather than sent empty.
func Prompt(system, schema string, state State) (string, string, error) {
	if system == "" {
		system = DefaultSystem
	}
	if schema == "" {
		schema = DefaultSchema
	}
	stateB, err := json.Marshal(state)
	if err != nil {
		return "", "", fmt.Errorf("%w: encode prompt state: %v", types.ErrOracleMalformed, err)
	}
	user := fmt.Sprintf("Schema:%s\nState:%s\n\nUse only data dated on or before end_date. Respond ONLY with compact JSON matching the schema.", schema, string(stateB))
	return system, user, nil
}

// StatusError maps a non-2xx response onto the oracle sentinels. 429 and
// explicit quota bodies are quota errors; everything else is transient.
func StatusError(provider string, status int, body string) error {
	if len(body) > 300 {
		body = body[:300]
	}
	if status == http.StatusTooManyRequests || isQuotaBody(body) {
		return fmt.Errorf("%w: %s http %d: %s", types.ErrOracleQuotaExceeded, provider, status, body)
	}
	return fmt.Errorf("%w: %s http %d: %s", types.ErrOracleTransient, provider, status, body)
}

func isQuotaBody(body string) bool {
	b := strings.ToLower(body)
	return strings.Contains(b, "insufficient_quota") ||
		strings.Contains(b, "rate_limit_error") ||
		strings.Contains(b, "afc is enabled")
}
