// Package ta computes the technical indicators shown to the decision oracle.
// Every indicator returns NaN when the series is too short.
package ta

import (
	"math"

	"llm-backtester/internal/types"
)

// RecentBars is how many trailing closes a Snapshot carries.
const RecentBars = 10

func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, c := range closes[len(closes)-n:] {
		sum += c
	}
	return sum / float64(n)
}

// EMA seeds with the SMA of the first n closes and smooths the rest.
func EMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	k := 2.0 / float64(n+1)
	ema := SMA(closes[:n], n)
	for _, c := range closes[n:] {
		ema = c*k + ema*(1-k)
	}
	return ema
}

// RSI is the simple-average relative strength index over the last period
// changes.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	var gain, loss float64
	for i := len(closes) - period; i < len(closes); i++ {
		switch d := closes[i] - closes[i-1]; {
		case d > 0:
			gain += d
		case d < 0:
			loss -= d
		}
	}
	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// StdDev is the population standard deviation of the last n values.
func StdDev(vals []float64, n int) float64 {
	m := SMA(vals, n)
	if math.IsNaN(m) {
		return m
	}
	var s float64
	for _, v := range vals[len(vals)-n:] {
		s += (v - m) * (v - m)
	}
	return math.Sqrt(s / float64(n))
}

func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	mid = SMA(closes, n)
	sd := StdDev(closes, n)
	return mid, mid + k*sd, mid - k*sd
}

// ATR averages the true range of the last period bars.
func ATR(bars []types.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return math.NaN()
	}
	var sum float64
	for i := len(bars) - period; i < len(bars); i++ {
		prevClose := bars[i-1].Close
		tr := math.Max(bars[i].High-bars[i].Low,
			math.Max(math.Abs(bars[i].High-prevClose), math.Abs(bars[i].Low-prevClose)))
		sum += tr
	}
	return sum / float64(period)
}

// MACD is EMA12 - EMA26 of the closes.
func MACD(closes []float64) float64 {
	return EMA(closes, 12) - EMA(closes, 26)
}

// Snapshot is the indicator view of a lookback window. Indicators the
// window is too short for are nil so the value encodes as JSON null.
type Snapshot struct {
	AsOf         string     `json:"as_of"`
	Bars         int        `json:"bars"`
	LastClose    *float64   `json:"last_close"`
	SMA20        *float64   `json:"sma_20"`
	SMA50        *float64   `json:"sma_50"`
	SMA200       *float64   `json:"sma_200"`
	RSI14        *float64   `json:"rsi_14"`
	MACD         *float64   `json:"macd"`
	BBUpper      *float64   `json:"bb_upper"`
	BBMiddle     *float64   `json:"bb_middle"`
	BBLower      *float64   `json:"bb_lower"`
	ATR14        *float64   `json:"atr_14"`
	RecentCloses []*float64 `json:"recent_closes"`
}

// Compute builds a Snapshot from bars in date order. Nil for no bars.
func Compute(bars []types.Bar) *Snapshot {
	if len(bars) == 0 {
		return nil
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	mid, up, low := Bollinger(closes, 20, 2)

	tail := closes
	if len(tail) > RecentBars {
		tail = tail[len(tail)-RecentBars:]
	}
	recent := make([]*float64, len(tail))
	for i, c := range tail {
		recent[i] = finite(c)
	}
	return &Snapshot{
		AsOf:         bars[len(bars)-1].Date.Format("2006-01-02"),
		Bars:         len(bars),
		LastClose:    finite(closes[len(closes)-1]),
		SMA20:        finite(SMA(closes, 20)),
		SMA50:        finite(SMA(closes, 50)),
		SMA200:       finite(SMA(closes, 200)),
		RSI14:        finite(RSI(closes, 14)),
		MACD:         finite(MACD(closes)),
		BBUpper:      finite(up),
		BBMiddle:     finite(mid),
		BBLower:      finite(low),
		ATR14:        finite(ATR(bars, 14)),
		RecentCloses: recent,
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r := math.Round(v*1e4) / 1e4
	return &r
}
