package types

import (
	"encoding/json"
	"math"
)

// Risk statistics use NaN for "not enough data", which encoding/json rejects.
// Both report types encode NaN and Inf as null.

func nullable(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func (r RiskReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Volatility  *float64 `json:"volatility"`
		VaR95       *float64 `json:"var_95"`
		MaxDrawdown *float64 `json:"max_drawdown"`
		RiskScore   int      `json:"risk_score"`
		SharpeRatio *float64 `json:"sharpe_ratio"`
		TotalReturn *float64 `json:"total_return"`
	}{
		Volatility:  nullable(r.Volatility),
		VaR95:       nullable(r.VaR95),
		MaxDrawdown: nullable(r.MaxDrawdown),
		RiskScore:   r.RiskScore,
		SharpeRatio: nullable(r.SharpeRatio),
		TotalReturn: nullable(r.TotalReturn),
	})
}

func (a RiskAssessment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Volatility      *float64 `json:"volatility"`
		VaR95           *float64 `json:"var_95"`
		MaxDrawdown     *float64 `json:"max_drawdown"`
		VolatilityZ     *float64 `json:"volatility_z"`
		MarketRiskScore int      `json:"market_risk_score"`
		RiskScore       int      `json:"risk_score"`
		MaxPositionSize float64  `json:"max_position_size"`
		TradingAction   string   `json:"trading_action"`
		Reasoning       string   `json:"reasoning"`
	}{
		Volatility:      nullable(a.Volatility),
		VaR95:           nullable(a.VaR95),
		MaxDrawdown:     nullable(a.MaxDrawdown),
		VolatilityZ:     nullable(a.VolatilityZ),
		MarketRiskScore: a.MarketRiskScore,
		RiskScore:       a.RiskScore,
		MaxPositionSize: a.MaxPositionSize,
		TradingAction:   a.TradingAction,
		Reasoning:       a.Reasoning,
	})
}
