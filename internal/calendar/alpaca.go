package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/types"
)

// readAhead is how far past a missed date IsOpen loads, so day-by-day
// callers cost one request per quarter.
const readAhead = 90

type calendarClient interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// Alpaca resolves sessions from the Alpaca trading calendar API. Fetched
// ranges are cached, so a backtest costs one request per uncovered range.
type Alpaca struct {
	client calendarClient

	mu      sync.Mutex
	open    map[time.Time]struct{}
	covered [2]time.Time
}

var _ interfaces.Calendar = (*Alpaca)(nil)

// NewAlpaca builds a calendar on the Alpaca trading API.
func NewAlpaca(apiKey, apiSecret, baseURL string) *Alpaca {
	return newAlpaca(alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	}))
}

func newAlpaca(client calendarClient) *Alpaca {
	return &Alpaca{client: client, open: make(map[time.Time]struct{})}
}

// load makes sure [start, end] is cached.
func (a *Alpaca) load(ctx context.Context, start, end time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	from, to := Day(start), Day(end)
	if a.coversLocked(from, to) {
		return nil
	}
	if !a.covered[0].IsZero() {
		if a.covered[0].Before(from) {
			from = a.covered[0]
		}
		if a.covered[1].After(to) {
			to = a.covered[1]
		}
	}

	days, err := a.client.GetCalendar(alpaca.GetCalendarRequest{Start: from, End: to})
	if err != nil {
		return fmt.Errorf("GetCalendar %s..%s: %w", from.Format(dateLayout), to.Format(dateLayout), err)
	}
	for _, day := range days {
		d, err := time.Parse(dateLayout, day.Date)
		if err != nil {
			continue
		}
		a.open[d] = struct{}{}
	}
	a.covered = [2]time.Time{from, to}
	return nil
}

func (a *Alpaca) coversLocked(from, to time.Time) bool {
	return !a.covered[0].IsZero() && !from.Before(a.covered[0]) && !to.After(a.covered[1])
}

func (a *Alpaca) covers(d time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.coversLocked(d, d)
}

func (a *Alpaca) isOpen(d time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.open[d]
	return ok
}

func (a *Alpaca) IsOpen(ctx context.Context, date time.Time) (bool, error) {
	d := Day(date)
	if !a.covers(d) {
		if err := a.load(ctx, d.AddDate(0, 0, -LookbackDays), d.AddDate(0, 0, readAhead)); err != nil {
			return false, err
		}
	}
	return a.isOpen(d), nil
}

func (a *Alpaca) Sessions(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	from, to := Day(start), Day(end)
	if to.Before(from) {
		return nil, nil
	}
	// include the lookback of the first session so PreviousSession stays cached
	if err := a.load(ctx, from.AddDate(0, 0, -LookbackDays), to); err != nil {
		return nil, err
	}
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if a.isOpen(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (a *Alpaca) PreviousSession(ctx context.Context, date time.Time) (time.Time, error) {
	d := Day(date)
	if err := a.load(ctx, d.AddDate(0, 0, -LookbackDays), d); err != nil {
		return time.Time{}, err
	}
	for i := 1; i <= LookbackDays; i++ {
		prev := d.AddDate(0, 0, -i)
		if a.isOpen(prev) {
			return prev, nil
		}
	}
	return time.Time{}, types.ErrNoPriorSession
}
