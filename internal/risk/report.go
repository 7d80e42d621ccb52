package risk

import "llm-backtester/internal/types"

// BuildReport derives the run summary from the recorded valuation series
// alone. It never looks at decisions, so signal terms do not contribute to
// the risk score.
func BuildReport(records []types.ValuationRecord, initialCapital float64) types.RiskReport {
	values := make([]float64, len(records))
	daily := make([]float64, len(records))
	for i, r := range records {
		values[i] = r.PortfolioValue
		daily[i] = r.DailyReturn
	}

	returns := Returns(values)
	report := types.RiskReport{
		Volatility:  Volatility(returns),
		VaR95:       ValueAtRisk95(returns),
		MaxDrawdown: MaxDrawdown(values, 0),
		SharpeRatio: SharpeRatio(daily),
	}
	report.RiskScore = RiskScore(VolatilityZScore(returns, VolatilityWindow), report.VaR95, report.MaxDrawdown, nil)

	final := initialCapital
	if len(values) > 0 {
		final = values[len(values)-1]
	}
	report.TotalReturn = TotalReturn(initialCapital, final)
	return report
}

// DailyReturn is value/prev - 1, and 0 when there is no previous value.
func DailyReturn(prev, value float64, hasPrev bool) float64 {
	if !hasPrev || prev == 0 {
		return 0
	}
	return value/prev - 1
}

// CumulativeReturns is value/initial - 1 for every record.
func CumulativeReturns(records []types.ValuationRecord, initialCapital float64) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = TotalReturn(initialCapital, r.PortfolioValue)
	}
	return out
}
