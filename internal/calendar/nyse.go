package calendar

import (
	"context"
	"sync"
	"time"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/types"
)

// LookbackDays bounds the PreviousSession search.
const LookbackDays = 10

const dateLayout = "2006-01-02"

// NYSE is a rule-based calendar for full-day New York Stock Exchange closures.
// Holidays are computed per year and cached; early closes count as sessions.
type NYSE struct {
	mu       sync.Mutex
	closures map[time.Time]string
	years    map[int]map[time.Time]string
}

var _ interfaces.Calendar = (*NYSE)(nil)

// Option customizes a NYSE calendar.
type Option func(*NYSE)

// WithClosures adds unscheduled closures such as national days of mourning.
func WithClosures(name string, dates ...time.Time) Option {
	return func(n *NYSE) {
		for _, d := range dates {
			n.closures[Day(d)] = name
		}
	}
}

// NewNYSE returns the NYSE calendar including known unscheduled closures
// since 2001.
func NewNYSE(opts ...Option) *NYSE {
	n := &NYSE{
		closures: make(map[time.Time]string),
		years:    make(map[int]map[time.Time]string),
	}
	for name, dates := range specialClosures {
		for _, d := range dates {
			n.closures[mustDate(d)] = name
		}
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var specialClosures = map[string][]string{
	"September 11":           {"2001-09-11", "2001-09-12", "2001-09-13", "2001-09-14"},
	"Reagan day of mourning": {"2004-06-11"},
	"Ford day of mourning":   {"2007-01-02"},
	"Hurricane Sandy":        {"2012-10-29", "2012-10-30"},
	"Bush day of mourning":   {"2018-12-05"},
	"Carter day of mourning": {"2025-01-09"},
}

// Day truncates t to a UTC calendar date.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func mustDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// Holiday reports whether date is a scheduled or unscheduled closure and its name.
func (n *NYSE) Holiday(date time.Time) (string, bool) {
	d := Day(date)

	n.mu.Lock()
	defer n.mu.Unlock()

	if name, ok := n.closures[d]; ok {
		return name, true
	}
	hol, ok := n.years[d.Year()]
	if !ok {
		hol = holidays(d.Year())
		n.years[d.Year()] = hol
	}
	name, ok := hol[d]
	return name, ok
}

func (n *NYSE) isOpen(date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, closed := n.Holiday(date)
	return !closed
}

func (n *NYSE) IsOpen(_ context.Context, date time.Time) (bool, error) {
	return n.isOpen(Day(date)), nil
}

// Sessions lists open dates in [start, end], both inclusive.
func (n *NYSE) Sessions(_ context.Context, start, end time.Time) ([]time.Time, error) {
	from, to := Day(start), Day(end)
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if n.isOpen(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// PreviousSession returns the last open date strictly before date, looking
// back at most LookbackDays calendar days.
func (n *NYSE) PreviousSession(_ context.Context, date time.Time) (time.Time, error) {
	d := Day(date)
	for i := 1; i <= LookbackDays; i++ {
		prev := d.AddDate(0, 0, -i)
		if n.isOpen(prev) {
			return prev, nil
		}
	}
	return time.Time{}, types.ErrNoPriorSession
}

// holidays computes the observed NYSE full-day holidays of a year.
func holidays(year int) map[time.Time]string {
	h := make(map[time.Time]string, 10)

	// New Year's Day moves to Monday when it falls on Sunday; a Saturday
	// holiday is not observed on the preceding Friday.
	ny := ymd(year, time.January, 1)
	switch ny.Weekday() {
	case time.Sunday:
		h[ny.AddDate(0, 0, 1)] = "New Year's Day"
	case time.Saturday:
	default:
		h[ny] = "New Year's Day"
	}

	if year >= 1998 {
		h[nthWeekday(year, time.January, time.Monday, 3)] = "Martin Luther King Jr. Day"
	}
	h[nthWeekday(year, time.February, time.Monday, 3)] = "Washington's Birthday"
	h[easter(year).AddDate(0, 0, -2)] = "Good Friday"
	h[lastWeekday(year, time.May, time.Monday)] = "Memorial Day"
	if year >= 2022 {
		h[observed(ymd(year, time.June, 19))] = "Juneteenth"
	}
	h[observed(ymd(year, time.July, 4))] = "Independence Day"
	h[nthWeekday(year, time.September, time.Monday, 1)] = "Labor Day"
	h[nthWeekday(year, time.November, time.Thursday, 4)] = "Thanksgiving Day"
	h[observed(ymd(year, time.December, 25))] = "Christmas Day"

	return h
}

func ymd(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// observed shifts Saturday holidays to Friday and Sunday holidays to Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	d := ymd(year, month, 1)
	offset := (int(wd) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	d := ymd(year, month+1, 1).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(wd) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// easter is the Gregorian Easter Sunday (anonymous algorithm).
func easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return ymd(year, time.Month(month), day)
}
