// Package report renders finished backtest runs: a console trade table, a
// CSV valuation series and a fan-out over several sinks.
package report

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/types"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	colHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	labelStyle     = lipgloss.NewStyle().Width(18)
)

var tableHeaders = []string{"Date", "Code", "Action", "Quantity", "Price", "Cash", "Stock", "Total", "Bull", "Bear", "Neutral"}

// Console prints the per-session trade table and the run summary.
type Console struct {
	w io.Writer
}

var _ interfaces.Sink = (*Console)(nil)

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Publish(_ context.Context, r *types.Result) error {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf(" %s  %s → %s ", r.Ticker,
		r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))))
	b.WriteString("\n\n")
	b.WriteString(TradeTable(r))
	b.WriteString("\n\n")
	b.WriteString(Summary(r))
	b.WriteString("\n")

	_, err := io.WriteString(c.w, b.String())
	return err
}

// TradeTable renders one row per session that reached the ledger. Skipped
// sessions show up dimmed with their reason in the Action column.
func TradeTable(r *types.Result) string {
	rows := make([][]string, 0, len(r.Outcomes))
	skipped := map[int]bool{}
	for _, o := range r.Outcomes {
		date := o.Date.Format(time.DateOnly)
		if o.State == types.StateSkipped {
			skipped[len(rows)] = true
			rows = append(rows, []string{date, r.Ticker, string(o.SkipReason), "", "", money(o.Cash),
				strconv.Itoa(o.Position), money(o.PortfolioValue), "", "", ""})
			continue
		}
		action := types.ActionHold
		if o.Decision != nil {
			action = o.Decision.Action
		}
		rows = append(rows, []string{
			date,
			r.Ticker,
			action,
			strconv.Itoa(o.ExecutedQuantity),
			money(o.Price),
			money(o.Cash),
			strconv.Itoa(o.Position),
			money(o.PortfolioValue),
			strconv.Itoa(o.Tally.Bullish),
			strconv.Itoa(o.Tally.Bearish),
			strconv.Itoa(o.Tally.Neutral),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(tableHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return colHeaderStyle.Padding(0, 1)
			case skipped[row]:
				return dimStyle.Padding(0, 1)
			case col >= 3:
				return cellStyle.Align(lipgloss.Right)
			default:
				return cellStyle
			}
		})
	return t.String()
}

// Summary renders the headline numbers of a run.
func Summary(r *types.Result) string {
	var b strings.Builder
	line := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	b.WriteString(colHeaderStyle.Render("Backtest Summary"))
	b.WriteString("\n")
	line("Initial Capital:", money(r.InitialCapital))
	line("Final Value:", money(r.FinalValue()))
	line("Total Return:", signed(r.Report.TotalReturn, percent(r.Report.TotalReturn)))
	line("Sharpe Ratio:", number(r.Report.SharpeRatio))
	line("Max Drawdown:", percent(r.Report.MaxDrawdown))
	line("Volatility:", percent(r.Report.Volatility))
	line("VaR (95%):", percent(r.Report.VaR95))
	line("Risk Score:", fmt.Sprintf("%d/10", r.Report.RiskScore))
	line("Sessions:", fmt.Sprintf("%d recorded, %d skipped, %d fills, %d fallbacks",
		len(r.Records), r.Skipped, r.Executed, r.Fallbacks))
	if r.Stopped {
		line("Status:", lossStyle.Render("stopped early"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func number(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func percent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return strconv.FormatFloat(v*100, 'f', 2, 64) + "%"
}

func signed(v float64, s string) string {
	switch {
	case v > 0:
		return gainStyle.Render(s)
	case v < 0:
		return lossStyle.Render(s)
	default:
		return s
	}
}
