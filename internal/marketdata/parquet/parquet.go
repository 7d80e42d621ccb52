package parquet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/marketdata"
	"llm-backtester/internal/types"
)

// BarRecord is the on-disk schema for one daily bar.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, UTC midnight
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// Store keeps one parquet file per ticker under DataDir:
//
//	<DataDir>/daily/<TICKER>.parquet
type Store struct {
	DataDir string
}

var _ interfaces.DataProvider = (*Store)(nil)

func NewStore(dataDir string) *Store {
	return &Store{DataDir: dataDir}
}

func (s *Store) path(ticker string) string {
	return filepath.Join(s.DataDir, "daily", strings.ToUpper(ticker)+".parquet")
}

// WriteBars merges bars into the ticker's file. Incoming bars win on equal
// dates.
func (s *Store) WriteBars(ticker string, bars []types.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	existing, err := s.ReadBars(ticker)
	if err != nil && !errors.Is(err, types.ErrDataUnavailable) {
		return err
	}
	merged := marketdata.Normalize(append(existing, bars...))

	symbol := strings.ToUpper(ticker)
	records := make([]BarRecord, len(merged))
	for i, b := range merged {
		records[i] = BarRecord{
			Symbol:    symbol,
			Timestamp: b.Date.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}

	p := s.path(ticker)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(p, records)
}

// ReadBars loads every stored bar for ticker in date order.
func (s *Store) ReadBars(ticker string) ([]types.Bar, error) {
	p := s.path(ticker)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no parquet bars for %s", types.ErrDataUnavailable, strings.ToUpper(ticker))
		}
		return nil, err
	}

	rows, err := parquet.ReadFile[BarRecord](p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	bars := make([]types.Bar, len(rows))
	for i, r := range rows {
		bars[i] = types.Bar{
			Date:   time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return marketdata.Normalize(bars), nil
}

func (s *Store) PriceSeries(ctx context.Context, ticker string, start, end time.Time) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars, err := s.ReadBars(ticker)
	if err != nil {
		return nil, err
	}
	return marketdata.Slice(bars, marketdata.Day(start), marketdata.Day(end)), nil
}

// Fetch copies [start, end] from src into the store and returns the number of
// bars written.
func (s *Store) Fetch(ctx context.Context, src interfaces.DataProvider, ticker string, start, end time.Time) (int, error) {
	bars, err := src.PriceSeries(ctx, ticker, start, end)
	if err != nil {
		return 0, err
	}
	if err := s.WriteBars(ticker, bars); err != nil {
		return 0, err
	}
	return len(bars), nil
}
