package backtest

import (
	"context"
	"sort"
	"time"

	"llm-backtester/internal/marketdata"
)

// sessionPlan is the calendar's session list for the run range, fetched
// once so that per-day checks do not go back to the calendar.
type sessionPlan struct {
	list []time.Time
	open map[time.Time]bool
}

func newSessionPlan(sessions []time.Time) *sessionPlan {
	p := &sessionPlan{open: make(map[time.Time]bool, len(sessions))}
	for _, s := range sessions {
		day := marketdata.Day(s)
		if p.open[day] {
			continue
		}
		p.open[day] = true
		p.list = append(p.list, day)
	}
	sort.Slice(p.list, func(i, j int) bool { return p.list[i].Before(p.list[j]) })
	return p
}

// planSessions asks the calendar for the whole range. A nil plan means the
// orchestrator falls back to asking day by day.
func (o *Orchestrator) planSessions(ctx context.Context) (*sessionPlan, error) {
	sessions, err := o.d.Calendar.Sessions(ctx, o.p.Start, o.p.End)
	if err != nil {
		return nil, err
	}
	return newSessionPlan(sessions), nil
}

func (o *Orchestrator) isOpen(ctx context.Context, plan *sessionPlan, day time.Time) (bool, error) {
	if plan == nil {
		return o.d.Calendar.IsOpen(ctx, day)
	}
	return plan.open[day], nil
}

// previousSession uses the plan when day is not the first listed session.
// The first session's predecessor lies before the range and comes from the
// calendar.
func (o *Orchestrator) previousSession(ctx context.Context, plan *sessionPlan, day time.Time) (time.Time, error) {
	if plan != nil {
		i := sort.Search(len(plan.list), func(i int) bool { return !plan.list[i].Before(day) })
		if i > 0 {
			return plan.list[i-1], nil
		}
	}
	return o.d.Calendar.PreviousSession(ctx, day)
}
