package risk

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"llm-backtester/internal/types"
)

func TestTradingAction(t *testing.T) {
	strongBull := map[string]types.AgentSignal{
		"technical_analyst": {Signal: "bullish", Confidence: 0.8},
		"fundamentals":      {Signal: "bullish", Confidence: 0.6},
	}
	weakBull := map[string]types.AgentSignal{
		"technical": {Signal: "bullish", Confidence: 0.5},
	}
	bear := map[string]types.AgentSignal{
		"technical": {Signal: "bearish", Confidence: 0.6},
	}

	tests := []struct {
		name     string
		score    int
		signals  map[string]types.AgentSignal
		expected string
	}{
		{"extreme risk forces hold", 9, strongBull, types.ActionHold},
		{"high risk with strong agreement buys", 7, strongBull, types.ActionBuy},
		{"high risk otherwise reduces", 8, bear, types.ActionReduce},
		{"normal risk follows technical bull", 3, strongBull, types.ActionBuy},
		{"normal risk follows technical bear", 3, bear, types.ActionSell},
		{"weak technical signal holds", 3, weakBull, types.ActionHold},
		{"no signals holds", 0, nil, types.ActionHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TradingAction(tt.score, tt.signals))
		})
	}
}

func TestMaxPositionSize(t *testing.T) {
	portfolio := types.Portfolio{Cash: 1000, Position: 10}
	closes := []float64{90, 100}

	assert.InDelta(t, 500.0, MaxPositionSize(closes, portfolio, 0), 1e-9)
	assert.InDelta(t, 500.0, MaxPositionSize(closes, portfolio, 1), 1e-9)
	assert.InDelta(t, 375.0, MaxPositionSize(closes, portfolio, 2), 1e-9)
	assert.InDelta(t, 250.0, MaxPositionSize(closes, portfolio, 4), 1e-9)
}

func TestAssessFlatMarket(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 50
	}
	signals := map[string]types.AgentSignal{
		"technical":   {Signal: "bullish", Confidence: 0.8},
		"fundamental": {Signal: "bullish", Confidence: 0.9},
		"sentiment":   {Signal: "neutral", Confidence: 0.6},
		"valuation":   {Signal: "bullish", Confidence: 0.7},
	}

	a := Assess(closes, types.Portfolio{Cash: 1000}, signals)

	assert.Equal(t, 0.0, a.Volatility)
	assert.Equal(t, 0.0, a.VaR95)
	assert.Equal(t, 0.0, a.MaxDrawdown)
	assert.True(t, math.IsNaN(a.VolatilityZ))
	assert.Equal(t, 0, a.MarketRiskScore)
	assert.Equal(t, 0, a.RiskScore)
	assert.InDelta(t, 250.0, a.MaxPositionSize, 1e-9)
	assert.Equal(t, types.ActionBuy, a.TradingAction)
	assert.Contains(t, a.Reasoning, "Risk Score 0/10")
}

func TestAssessFallingMarket(t *testing.T) {
	closes := make([]float64, 80)
	price := 100.0
	for i := range closes {
		closes[i] = price
		price *= 0.96
	}

	a := Assess(closes, types.Portfolio{Cash: 1000}, map[string]types.AgentSignal{
		"technical": {Signal: "bearish", Confidence: 0.9},
	})

	// every return is -4%: VaR and the 60-bar drawdown both score the maximum
	assert.Equal(t, 4, a.MarketRiskScore)
	assert.Equal(t, 4, a.RiskScore)
	assert.InDelta(t, 125.0, a.MaxPositionSize, 1e-9)
	assert.Equal(t, types.ActionSell, a.TradingAction)
}

func TestBuildReportFlatSeries(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	records := make([]types.ValuationRecord, 5)
	for i := range records {
		records[i] = types.ValuationRecord{Date: day.AddDate(0, 0, i), PortfolioValue: 1000}
	}

	r := BuildReport(records, 1000)

	assert.Equal(t, 0.0, r.Volatility)
	assert.Equal(t, 0.0, r.VaR95)
	assert.Equal(t, 0.0, r.MaxDrawdown)
	assert.Equal(t, 0.0, r.SharpeRatio)
	assert.Equal(t, 0.0, r.TotalReturn)
	assert.Equal(t, 0, r.RiskScore)
}

func TestBuildReportDrawdown(t *testing.T) {
	values := []float64{1000, 850, 700}
	records := make([]types.ValuationRecord, len(values))
	for i, v := range values {
		records[i] = types.ValuationRecord{PortfolioValue: v, DailyReturn: DailyReturn(valueAt(values, i-1), v, i > 0)}
	}

	r := BuildReport(records, 1000)

	assert.InDelta(t, -0.3, r.MaxDrawdown, 1e-12)
	assert.InDelta(t, -0.3, r.TotalReturn, 1e-12)
	assert.Less(t, r.VaR95, -0.03)
	assert.Equal(t, 4, r.RiskScore)
}

func TestBuildReportEmpty(t *testing.T) {
	r := BuildReport(nil, 1000)

	assert.True(t, math.IsNaN(r.Volatility))
	assert.True(t, math.IsNaN(r.MaxDrawdown))
	assert.Equal(t, 0.0, r.TotalReturn)
	assert.Equal(t, 0, r.RiskScore)
}

func valueAt(values []float64, i int) float64 {
	if i < 0 {
		return 0
	}
	return values[i]
}
