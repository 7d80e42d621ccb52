package ledger

import (
	"math"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"llm-backtester/internal/types"
)

// Ledger holds the cash and share position of a single-asset backtest.
// Cash is kept as a decimal so that repeated fills do not drift.
type Ledger struct {
	mu       sync.Mutex
	cash     decimal.Decimal
	position int
}

// New creates a ledger funded with initialCash. Negative or non-finite cash
// is treated as zero.
func New(initialCash float64) *Ledger {
	if !finite(initialCash) || initialCash < 0 {
		return &Ledger{cash: decimal.Zero}
	}
	return &Ledger{cash: decimal.NewFromFloat(initialCash)}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ExecuteTrade applies a decision at price and returns the filled quantity.
//
// Buys fill in full when affordable, otherwise as many whole shares as cash
// allows. Sells are clipped to the current position. hold, reduce and any
// unrecognised action leave the book untouched and return 0.
func (l *Ledger) ExecuteTrade(action string, quantity int, price float64) int {
	if quantity <= 0 || !finite(price) || price <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	px := decimal.NewFromFloat(price)

	switch strings.ToLower(strings.TrimSpace(action)) {
	case types.ActionBuy:
		qty := quantity
		cost := px.Mul(decimal.NewFromInt(int64(qty)))
		if cost.GreaterThan(l.cash) {
			qty = int(l.cash.Div(px).Floor().IntPart())
			cost = px.Mul(decimal.NewFromInt(int64(qty)))
			// Div rounds at DivisionPrecision, which can overshoot by one share
			for qty > 0 && cost.GreaterThan(l.cash) {
				qty--
				cost = px.Mul(decimal.NewFromInt(int64(qty)))
			}
			if qty <= 0 {
				return 0
			}
		}
		l.cash = l.cash.Sub(cost)
		l.position += qty
		return qty

	case types.ActionSell:
		qty := quantity
		if qty > l.position {
			qty = l.position
		}
		if qty <= 0 {
			return 0
		}
		l.cash = l.cash.Add(px.Mul(decimal.NewFromInt(int64(qty))))
		l.position -= qty
		return qty

	default:
		return 0
	}
}

// Valuation is cash + position*price. A non-finite price has no valuation
// and yields NaN.
func (l *Ledger) Valuation(price float64) float64 {
	if !finite(price) {
		return math.NaN()
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	v := l.cash.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(l.position))))
	return v.InexactFloat64()
}

func (l *Ledger) Snapshot() types.Portfolio {
	l.mu.Lock()
	defer l.mu.Unlock()

	return types.Portfolio{Cash: l.cash.InexactFloat64(), Position: l.position}
}

func (l *Ledger) Cash() float64 {
	return l.Snapshot().Cash
}

func (l *Ledger) Position() int {
	return l.Snapshot().Position
}
