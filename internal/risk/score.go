package risk

import (
	"strconv"
	"strings"

	"llm-backtester/internal/types"
)

const (
	// MaxScore caps the composite risk score.
	MaxScore = 10
	// VolatilityWindow is the rolling window for the volatility z-score.
	VolatilityWindow = 120
	// DrawdownWindow is the pre-trade drawdown window.
	DrawdownWindow = 60
)

// MarketRiskScore scores volatility, VaR and drawdown. NaN inputs add nothing.
func MarketRiskScore(volZ, var95, maxDD float64) int {
	score := 0

	if volZ > 1.5 {
		score += 2
	} else if volZ > 1.0 {
		score += 1
	}

	if var95 < -0.03 {
		score += 2
	} else if var95 < -0.02 {
		score += 1
	}

	if maxDD < -0.20 {
		score += 2
	} else if maxDD < -0.10 {
		score += 1
	}

	return score
}

// RiskScore adds signal quality to the market score: +2 when any signal has
// confidence below 0.30 and +2 when exactly three distinct signals appear.
func RiskScore(volZ, var95, maxDD float64, signals []types.AgentSignal) int {
	score := MarketRiskScore(volZ, var95, maxDD)

	lowConfidence := false
	distinct := map[string]struct{}{}
	for _, s := range signals {
		if s.Confidence < 0.30 {
			lowConfidence = true
		}
		distinct[strings.ToLower(strings.TrimSpace(s.Signal))] = struct{}{}
	}
	if lowConfidence {
		score += 2
	}
	if len(distinct) == 3 {
		score += 2
	}

	if score > MaxScore {
		score = MaxScore
	}
	return score
}

// ParseConfidence accepts 0.75, "0.75" or "75%". Anything else is 0.
func ParseConfidence(v any) float64 {
	switch c := v.(type) {
	case float64:
		return c
	case float32:
		return float64(c)
	case int:
		return float64(c)
	case int64:
		return float64(c)
	case string:
		s := strings.TrimSpace(c)
		pct := strings.HasSuffix(s, "%")
		s = strings.TrimSuffix(s, "%")
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		if pct {
			return f / 100
		}
		return f
	default:
		return 0
	}
}

// Direction folds analyst vocabularies onto bullish, bearish or neutral.
// Unknown values come back unchanged.
func Direction(signal string) string {
	switch strings.ToLower(strings.TrimSpace(signal)) {
	case "bullish", "buy", "positive":
		return "bullish"
	case "bearish", "sell", "negative":
		return "bearish"
	case "neutral", "hold":
		return "neutral"
	default:
		return strings.ToLower(strings.TrimSpace(signal))
	}
}

// Tally counts signals by direction.
func Tally(signals map[string]types.AgentSignal) types.SignalTally {
	var t types.SignalTally
	for _, s := range signals {
		switch Direction(s.Signal) {
		case "bullish":
			t.Bullish++
		case "bearish":
			t.Bearish++
		case "neutral":
			t.Neutral++
		}
	}
	return t
}

// SignalList flattens a signal map in agent-name order.
func SignalList(signals map[string]types.AgentSignal) []types.AgentSignal {
	names := sortedKeys(signals)
	out := make([]types.AgentSignal, 0, len(names))
	for _, name := range names {
		out = append(out, signals[name])
	}
	return out
}
