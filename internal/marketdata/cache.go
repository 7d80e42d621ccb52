// Package marketdata holds the daily bar providers and the in-memory cache
// that sits in front of them during a run.
package marketdata

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/types"
)

// Cache serves repeated range queries for a ticker from memory. A request
// outside the covered range refetches the union of both ranges once.
type Cache struct {
	provider interfaces.DataProvider

	mu      sync.RWMutex
	buffers map[string]*barBuffer
}

type barBuffer struct {
	from, to time.Time
	bars     []types.Bar
}

var _ interfaces.DataProvider = (*Cache)(nil)

func NewCache(provider interfaces.DataProvider) *Cache {
	return &Cache{
		provider: provider,
		buffers:  make(map[string]*barBuffer),
	}
}

// Prefetch loads [start, end] for ticker so later queries inside it are free.
func (c *Cache) Prefetch(ctx context.Context, ticker string, start, end time.Time) error {
	_, err := c.PriceSeries(ctx, ticker, start, end)
	return err
}

func (c *Cache) PriceSeries(ctx context.Context, ticker string, start, end time.Time) ([]types.Bar, error) {
	key := strings.ToUpper(ticker)
	start, end = Day(start), Day(end)

	c.mu.RLock()
	buf, ok := c.buffers[key]
	if ok && !start.Before(buf.from) && !end.After(buf.to) {
		out := Slice(buf.bars, start, end)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	from, to := start, end
	if ok {
		if buf.from.Before(from) {
			from = buf.from
		}
		if buf.to.After(to) {
			to = buf.to
		}
	}

	bars, err := c.provider.PriceSeries(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	bars = Normalize(bars)

	c.mu.Lock()
	c.buffers[key] = &barBuffer{from: from, to: to, bars: bars}
	c.mu.Unlock()

	return Slice(bars, start, end), nil
}

// Clear drops every cached buffer.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffers = make(map[string]*barBuffer)
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Normalize puts bars on UTC dates, sorts them and drops duplicate dates,
// keeping the last one seen.
func Normalize(bars []types.Bar) []types.Bar {
	byDate := make(map[time.Time]types.Bar, len(bars))
	for _, b := range bars {
		b.Date = Day(b.Date)
		byDate[b.Date] = b
	}
	out := make([]types.Bar, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Slice returns the bars of a sorted series dated within [start, end].
func Slice(bars []types.Bar, start, end time.Time) []types.Bar {
	lo := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(start) })
	hi := sort.Search(len(bars), func(i int) bool { return bars[i].Date.After(end) })
	if lo >= hi {
		return []types.Bar{}
	}
	out := make([]types.Bar, hi-lo)
	copy(out, bars[lo:hi])
	return out
}

// Closes extracts closing prices in order.
func Closes(bars []types.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
