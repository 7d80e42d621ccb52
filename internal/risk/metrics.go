package risk

import (
	"math"
	"sort"
)

// TradingDays annualizes daily statistics.
const TradingDays = 252

// Returns converts a price series into simple returns, one shorter than prices.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev == 0 || math.IsNaN(prev) || math.IsNaN(prices[i]) {
			out = append(out, math.NaN())
			continue
		}
		out = append(out, prices[i]/prev-1)
	}
	return out
}

func finite(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func Mean(vals []float64) float64 {
	v := finite(vals)
	if len(v) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// StdDev is the sample standard deviation (n-1 denominator).
func StdDev(vals []float64) float64 {
	v := finite(vals)
	if len(v) < 2 {
		return math.NaN()
	}
	m := Mean(v)
	s := 0.0
	for _, x := range v {
		d := x - m
		s += d * d
	}
	return math.Sqrt(s / float64(len(v)-1))
}

func Volatility(returns []float64) float64 {
	return StdDev(returns) * math.Sqrt(TradingDays)
}

// Quantile uses linear interpolation between the two nearest ranks.
func Quantile(vals []float64, q float64) float64 {
	v := finite(vals)
	if len(v) == 0 || q < 0 || q > 1 {
		return math.NaN()
	}
	sort.Float64s(v)
	pos := float64(len(v)-1) * q
	lo := math.Floor(pos)
	hi := math.Ceil(pos)
	if lo == hi {
		return v[int(lo)]
	}
	return v[int(lo)] + (v[int(hi)]-v[int(lo)])*(pos-lo)
}

func ValueAtRisk95(returns []float64) float64 {
	return Quantile(returns, 0.05)
}

// MaxDrawdown returns min(price/rollingMax - 1). A window <= 0 uses an
// expanding maximum. Positions before the first full window are ignored.
func MaxDrawdown(prices []float64, window int) float64 {
	if len(prices) == 0 {
		return math.NaN()
	}
	dd := math.NaN()
	runMax := math.Inf(-1)
	for i, p := range prices {
		if math.IsNaN(p) {
			continue
		}
		var peak float64
		if window <= 0 {
			if p > runMax {
				runMax = p
			}
			peak = runMax
		} else {
			if i < window-1 {
				continue
			}
			peak = math.Inf(-1)
			for j := i - window + 1; j <= i; j++ {
				if !math.IsNaN(prices[j]) && prices[j] > peak {
					peak = prices[j]
				}
			}
		}
		if peak <= 0 || math.IsInf(peak, -1) {
			continue
		}
		d := p/peak - 1
		if math.IsNaN(dd) || d < dd {
			dd = d
		}
	}
	return dd
}

// RollingVolatility returns the annualized sample std of every full window.
func RollingVolatility(returns []float64, window int) []float64 {
	if window < 2 || len(returns) < window {
		return nil
	}
	out := make([]float64, 0, len(returns)-window+1)
	for i := window; i <= len(returns); i++ {
		out = append(out, Volatility(returns[i-window:i]))
	}
	return out
}

// VolatilityZScore places the full-series volatility inside the distribution
// of its own rolling volatility.
func VolatilityZScore(returns []float64, window int) float64 {
	rolling := RollingVolatility(returns, window)
	sd := StdDev(rolling)
	if math.IsNaN(sd) || sd == 0 {
		return math.NaN()
	}
	return (Volatility(returns) - Mean(rolling)) / sd
}

// SharpeRatio is mean/std*sqrt(252) and 0 when std is zero or undefined.
func SharpeRatio(dailyReturns []float64) float64 {
	sd := StdDev(dailyReturns)
	if math.IsNaN(sd) || sd == 0 {
		return 0
	}
	return Mean(dailyReturns) / sd * math.Sqrt(TradingDays)
}

func TotalReturn(initial, final float64) float64 {
	if initial <= 0 {
		return math.NaN()
	}
	return (final - initial) / initial
}
