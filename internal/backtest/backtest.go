package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/ledger"
	"llm-backtester/internal/logger"
	"llm-backtester/internal/marketdata"
	"llm-backtester/internal/risk"
	"llm-backtester/internal/types"
)

// DefaultLookbackDays is the calendar span of history offered to the oracle.
const DefaultLookbackDays = 365

var tickerPattern = regexp.MustCompile(`^([A-Z]+|[0-9]{6})$`)

type Params struct {
	Ticker         string
	Start          time.Time
	End            time.Time
	InitialCapital float64
	ContextSize    int
	AssessRisk     bool
	LookbackDays   int
}

type Deps struct {
	Calendar interfaces.Calendar
	Data     interfaces.DataProvider
	Invoker  interfaces.Invoker
	Sinks    []interfaces.Sink
	NewID    func() string
}

// prefetcher is implemented by providers that can warm a range up front,
// such as marketdata.Cache.
type prefetcher interface {
	Prefetch(ctx context.Context, ticker string, start, end time.Time) error
}

// Orchestrator drives one ticker through a date range, one session at a
// time. Each Run starts from a fresh ledger.
type Orchestrator struct {
	p Params
	d Deps
}

var _ interfaces.Backtester = (*Orchestrator)(nil)

func New(p Params, d Deps) (*Orchestrator, error) {
	p.Ticker = strings.ToUpper(strings.TrimSpace(p.Ticker))
	p.Start = marketdata.Day(p.Start)
	p.End = marketdata.Day(p.End)

	switch {
	case p.Ticker == "":
		return nil, fmt.Errorf("%w: ticker is required", types.ErrInvalidParams)
	case !p.Start.Before(p.End):
		return nil, fmt.Errorf("%w: start %s must be before end %s", types.ErrInvalidParams,
			p.Start.Format(time.DateOnly), p.End.Format(time.DateOnly))
	case !(p.InitialCapital > 0) || math.IsInf(p.InitialCapital, 0):
		return nil, fmt.Errorf("%w: initial capital must be positive, got %v", types.ErrInvalidParams, p.InitialCapital)
	case d.Calendar == nil || d.Data == nil || d.Invoker == nil:
		return nil, fmt.Errorf("%w: calendar, data provider and invoker are required", types.ErrInvalidParams)
	}
	if p.LookbackDays <= 0 {
		p.LookbackDays = DefaultLookbackDays
	}
	if p.ContextSize < 0 {
		p.ContextSize = 0
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}

	if !tickerPattern.MatchString(p.Ticker) {
		logger.Warn(context.Background(), "Ticker is neither an alphabetic symbol nor a 6-digit code",
			"ticker", p.Ticker,
		)
	}
	return &Orchestrator{p: p, d: d}, nil
}

// Params returns the normalized run parameters.
func (o *Orchestrator) Params() Params {
	return o.p
}

// Run processes every weekday in [Start, End] against the calendar's session
// list, which is fetched once. Cancelling ctx stops the loop
// between sessions; the result then carries what was recorded so far with
// Stopped set. The returned error only reports sink failures, the result is
// always usable.
func (o *Orchestrator) Run(ctx context.Context) (*types.Result, error) {
	book := ledger.New(o.p.InitialCapital)
	res := &types.Result{
		RunID:          o.d.NewID(),
		Ticker:         o.p.Ticker,
		Start:          o.p.Start,
		End:            o.p.End,
		InitialCapital: o.p.InitialCapital,
		Records:        []types.ValuationRecord{},
		Outcomes:       []types.SessionOutcome{},
	}

	if pf, ok := o.d.Data.(prefetcher); ok {
		from := o.p.Start.AddDate(0, 0, -o.p.LookbackDays)
		if err := pf.Prefetch(ctx, o.p.Ticker, from, o.p.End); err != nil {
			logger.Warn(ctx, "Prefetch failed, falling back to per-session fetches",
				"ticker", o.p.Ticker,
				"error", err,
			)
		}
	}

	logger.Info(ctx, "Backtest started",
		"run_id", res.RunID,
		"ticker", o.p.Ticker,
		"start", o.p.Start.Format(time.DateOnly),
		"end", o.p.End.Format(time.DateOnly),
		"initial_capital", o.p.InitialCapital,
	)

	plan, err := o.planSessions(ctx)
	if err != nil && ctx.Err() == nil {
		logger.Warn(ctx, "Session list unavailable, checking the calendar day by day",
			"ticker", o.p.Ticker,
			"error", err,
		)
	}

	for day := o.p.Start; !day.After(o.p.End); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if ctx.Err() != nil {
			res.Stopped = true
			break
		}

		out, stop := o.session(ctx, book, plan, day, res.Records)
		if stop {
			res.Stopped = true
			break
		}
		res.Outcomes = append(res.Outcomes, out)

		if out.State != types.StateRecorded {
			res.Skipped++
			continue
		}

		prevValue, hasPrev := 0.0, len(res.Records) > 0
		if hasPrev {
			prevValue = res.Records[len(res.Records)-1].PortfolioValue
		}
		res.Records = append(res.Records, types.ValuationRecord{
			Date:           day,
			PortfolioValue: out.PortfolioValue,
			DailyReturn:    risk.DailyReturn(prevValue, out.PortfolioValue, hasPrev),
		})
		if out.ExecutedQuantity > 0 {
			res.Executed++
		}
		if out.Decision != nil && out.Decision.IsFallback() {
			res.Fallbacks++
		}
	}

	res.FinalPortfolio = book.Snapshot()
	res.Report = risk.BuildReport(res.Records, o.p.InitialCapital)

	logger.Info(ctx, "Backtest finished",
		"run_id", res.RunID,
		"ticker", o.p.Ticker,
		"sessions", len(res.Records),
		"skipped", res.Skipped,
		"executed", res.Executed,
		"fallbacks", res.Fallbacks,
		"stopped", res.Stopped,
		"final_value", res.FinalValue(),
		"total_return", res.Report.TotalReturn,
	)

	return res, o.publish(context.WithoutCancel(ctx), res)
}

// session walks one weekday through the state machine. stop is true when
// the run was cancelled before the session could be recorded.
func (o *Orchestrator) session(ctx context.Context, book *ledger.Ledger, plan *sessionPlan, day time.Time, records []types.ValuationRecord) (types.SessionOutcome, bool) {
	date := day.Format(time.DateOnly)
	out := types.SessionOutcome{Date: day, State: types.StatePending}

	skip := func(reason types.SkipReason, fields ...any) types.SessionOutcome {
		out.State = types.StateSkipped
		out.SkipReason = reason
		snap := book.Snapshot()
		out.Cash, out.Position = snap.Cash, snap.Position
		if len(records) > 0 {
			out.PortfolioValue = records[len(records)-1].PortfolioValue
		} else {
			out.PortfolioValue = o.p.InitialCapital
		}
		logger.Skip(ctx, o.p.Ticker, date, string(reason), fields...)
		return out
	}

	open, err := o.isOpen(ctx, plan, day)
	if err != nil {
		if ctx.Err() != nil {
			return out, true
		}
		return skip(types.SkipMarketClosed, "error", err), false
	}
	if !open {
		return skip(types.SkipMarketClosed), false
	}

	prev, err := o.previousSession(ctx, plan, day)
	if err != nil {
		if ctx.Err() != nil {
			return out, true
		}
		return skip(types.SkipNoPriorSession, "error", err), false
	}
	out.DecisionDate = prev
	out.LookbackStart = day.AddDate(0, 0, -o.p.LookbackDays)

	bars, err := o.d.Data.PriceSeries(ctx, o.p.Ticker, day, day)
	if err != nil {
		if ctx.Err() != nil {
			return out, true
		}
		return skip(types.SkipDataUnavailable, "error", err), false
	}
	if len(bars) == 0 || !usablePrice(bars[0].Open) {
		return skip(types.SkipDataUnavailable), false
	}
	out.Price = bars[0].Open

	out.State = types.StateEvaluating
	snapshot := book.Snapshot()
	decision := o.d.Invoker.Decide(ctx, prev, out.LookbackStart, snapshot, o.p.ContextSize)
	if decision.Fallback == types.FallbackCancelled {
		return out, true
	}
	out.Decision = &decision
	out.Tally = risk.Tally(decision.Signals)
	logger.Decision(ctx, o.p.Ticker, date, decision.Action, decision.Quantity, decision.Confidence,
		"decision_date", prev.Format(time.DateOnly),
		"fallback", string(decision.Fallback),
		"bullish", out.Tally.Bullish,
		"bearish", out.Tally.Bearish,
		"neutral", out.Tally.Neutral,
	)

	if o.p.AssessRisk {
		out.Assessment = o.assess(ctx, prev, out.LookbackStart, snapshot, decision)
	}
	if decision.Action == types.ActionReduce && decision.Quantity > 0 {
		out.Advisory = fmt.Sprintf("reduce %d shares recommended, not executed", decision.Quantity)
	}

	out.ExecutedQuantity = book.ExecuteTrade(decision.Action, decision.Quantity, out.Price)
	out.State = types.StateExecuted
	if out.ExecutedQuantity > 0 {
		logger.Trade(ctx, o.p.Ticker, date, decision.Action, out.ExecutedQuantity, out.Price,
			"requested", decision.Quantity,
		)
	}

	after := book.Snapshot()
	out.Cash, out.Position = after.Cash, after.Position
	out.PortfolioValue = book.Valuation(out.Price)
	out.State = types.StateRecorded
	return out, false
}

// usablePrice rejects zero, negative and non-finite opens.
func usablePrice(px float64) bool {
	return px > 0 && !math.IsInf(px, 0)
}

// assess computes the pre-trade risk view over the lookback closes. It ends
// at the information cutoff, never at the session itself.
func (o *Orchestrator) assess(ctx context.Context, cutoff, lookbackStart time.Time, snapshot types.Portfolio, d types.Decision) *types.RiskAssessment {
	bars, err := o.d.Data.PriceSeries(ctx, o.p.Ticker, lookbackStart, cutoff)
	if err != nil {
		logger.Warn(ctx, "Risk assessment skipped, lookback unavailable",
			"ticker", o.p.Ticker,
			"cutoff", cutoff.Format(time.DateOnly),
			"error", err,
		)
		return nil
	}
	a := risk.Assess(marketdata.Closes(bars), snapshot, d.Signals)
	if a.TradingAction != d.Action {
		logger.Risk(ctx, o.p.Ticker, "ACTION_DIVERGENCE",
			"cutoff", cutoff.Format(time.DateOnly),
			"decided", d.Action,
			"recommended", a.TradingAction,
			"risk_score", a.RiskScore,
		)
	}
	return &a
}

func (o *Orchestrator) publish(ctx context.Context, res *types.Result) error {
	var errs []error
	for _, s := range o.d.Sinks {
		if err := s.Publish(ctx, res); err != nil {
			logger.ErrorWithErr(ctx, "Failed to publish backtest result", err,
				"run_id", res.RunID,
				"sink", fmt.Sprintf("%T", s),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
