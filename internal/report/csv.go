package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/risk"
	"llm-backtester/internal/types"
)

// CSV writes the valuation series of a run with its cumulative returns and
// a trailing summary block.
type CSV struct {
	dir string
}

var _ interfaces.Sink = (*CSV)(nil)

func NewCSV(dir string) *CSV {
	return &CSV{dir: dir}
}

// Path is <dir>/<TICKER>_<start>_<end>.csv.
func (c *CSV) Path(r *types.Result) string {
	name := fmt.Sprintf("%s_%s_%s.csv", r.Ticker, r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
	return filepath.Join(c.dir, name)
}

func (c *CSV) Publish(_ context.Context, r *types.Result) error {
	outPath := c.Path(r)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	headers := []string{"date", "portfolio_value", "daily_return_pct", "cumulative_return_pct"}
	if err := w.Write(headers); err != nil {
		return err
	}
	cumulative := risk.CumulativeReturns(r.Records, r.InitialCapital)
	for i, rec := range r.Records {
		row := []string{
			rec.Date.Format(time.DateOnly),
			fmt.Sprintf("%.2f", rec.PortfolioValue),
			fmt.Sprintf("%.4f", rec.DailyReturn*100),
			fmt.Sprintf("%.4f", cumulative[i]*100),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	summary := [][]string{
		{},
		{"initial_capital", fmt.Sprintf("%.2f", r.InitialCapital)},
		{"final_value", fmt.Sprintf("%.2f", r.FinalValue())},
		{"total_return_pct", percentField(r.Report.TotalReturn)},
		{"sharpe_ratio", numberField(r.Report.SharpeRatio)},
		{"max_drawdown_pct", percentField(r.Report.MaxDrawdown)},
		{"volatility_pct", percentField(r.Report.Volatility)},
		{"var_95_pct", percentField(r.Report.VaR95)},
		{"risk_score", strconv.Itoa(r.Report.RiskScore)},
	}
	if err := w.WriteAll(summary); err != nil {
		return err
	}
	return w.Error()
}

func percentField(v float64) string {
	s := percent(v)
	if s == "n/a" {
		return ""
	}
	return s[:len(s)-1]
}

func numberField(v float64) string {
	s := number(v)
	if s == "n/a" {
		return ""
	}
	return s
}
