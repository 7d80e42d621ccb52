package risk

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"llm-backtester/internal/types"
)

// BasePositionFraction is the share of portfolio value one position may take
// before market-risk scaling.
const BasePositionFraction = 0.25

// Assess computes the pre-trade risk view over lookback closes: market risk,
// composite risk score, position limit and a recommended action.
func Assess(closes []float64, portfolio types.Portfolio, signals map[string]types.AgentSignal) types.RiskAssessment {
	returns := Returns(closes)

	a := types.RiskAssessment{
		Volatility:  Volatility(returns),
		VaR95:       ValueAtRisk95(returns),
		MaxDrawdown: MaxDrawdown(closes, DrawdownWindow),
		VolatilityZ: VolatilityZScore(returns, VolatilityWindow),
	}
	a.MarketRiskScore = MarketRiskScore(a.VolatilityZ, a.VaR95, a.MaxDrawdown)
	a.RiskScore = RiskScore(a.VolatilityZ, a.VaR95, a.MaxDrawdown, SignalList(signals))
	a.MaxPositionSize = MaxPositionSize(closes, portfolio, a.MarketRiskScore)
	a.TradingAction = TradingAction(a.RiskScore, signals)
	a.Reasoning = fmt.Sprintf("Risk Score %d/10: Market Risk=%d, Volatility=%s, VaR=%s, Max Drawdown=%s",
		a.RiskScore, a.MarketRiskScore, pct(a.Volatility), pct(a.VaR95), pct(a.MaxDrawdown))
	return a
}

// MaxPositionSize is 25% of portfolio value, cut to 75% at market risk 2 and
// to 50% at market risk 4.
func MaxPositionSize(closes []float64, portfolio types.Portfolio, marketRisk int) float64 {
	last := 0.0
	if len(closes) > 0 && !math.IsNaN(closes[len(closes)-1]) {
		last = closes[len(closes)-1]
	}
	base := (portfolio.Cash + float64(portfolio.Position)*last) * BasePositionFraction

	switch {
	case marketRisk >= 4:
		return base * 0.5
	case marketRisk >= 2:
		return base * 0.75
	default:
		return base
	}
}

// TradingAction recommends hold, buy, sell or reduce from the risk score and
// the technical and fundamental signals.
func TradingAction(riskScore int, signals map[string]types.AgentSignal) string {
	technical, _ := findSignal(signals, "technical")
	fundamental, _ := findSignal(signals, "fundamental")
	techDir := Direction(technical.Signal)

	switch {
	case riskScore >= 9:
		return types.ActionHold
	case riskScore >= 7:
		if techDir == "bullish" && technical.Confidence > 0.7 && Direction(fundamental.Signal) == "bullish" {
			return types.ActionBuy
		}
		return types.ActionReduce
	case techDir == "bullish" && technical.Confidence > 0.5:
		return types.ActionBuy
	case techDir == "bearish" && technical.Confidence > 0.5:
		return types.ActionSell
	default:
		return types.ActionHold
	}
}

// findSignal matches agent names loosely so that "technical",
// "technical_analyst" and "Technical Analysis" all resolve.
func findSignal(signals map[string]types.AgentSignal, kind string) (types.AgentSignal, bool) {
	if s, ok := signals[kind]; ok {
		return s, true
	}
	for _, name := range sortedKeys(signals) {
		if strings.Contains(strings.ToLower(name), kind) {
			return signals[name], true
		}
	}
	return types.AgentSignal{}, false
}

func sortedKeys(signals map[string]types.AgentSignal) []string {
	keys := make([]string, 0, len(signals))
	for k := range signals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func pct(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}
