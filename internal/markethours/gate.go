// Package markethours implements the market-hours gate: a pure function of
// the current instant and a fixed NYSE holiday calendar (spec.md §4.A),
// grounded on _examples/original_source/docker/detector/market_hours.py.
package markethours

import (
	"time"
)

// Status is the gate's verdict for the current instant.
type Status int

const (
	// Active means the scan loop should run.
	Active Status = iota
	// Sleeping means the scan loop should sleep until the next active window.
	Sleeping
)

var nyse *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// Fall back to a fixed-offset zone rather than panic: DST
		// transitions will be wrong twice a year, but the gate keeps
		// functioning, and the loop's 300s re-check bound self-heals
		// drift once the real tzdata is available.
		loc = time.FixedZone("EST", -5*60*60)
	}
	nyse = loc
}

const (
	preMarketStartHour, preMarketStartMinute = 9, 15
	marketOpenHour, marketOpenMinute         = 9, 30
	marketCloseHour, marketCloseMinute       = 16, 0
	postMarketEndHour, postMarketEndMinute   = 16, 15
)

// Gate evaluates market-hours status against a fixed holiday calendar.
type Gate struct {
	holidays map[string]bool // "YYYY-MM-DD" in NYSE local time
}

// NewGate builds a gate with the standard NYSE holiday calendar for the
// given set of years.
func NewGate(years ...int) *Gate {
	g := &Gate{holidays: make(map[string]bool)}
	for _, y := range years {
		for _, d := range holidaysForYear(y) {
			g.holidays[d.Format("2006-01-02")] = true
		}
	}
	return g
}

// IsActive reports whether the scan loop should be running at instant t:
// 09:15-16:15 NYSE local time on non-holiday weekdays.
func (g *Gate) IsActive(t time.Time) bool {
	local := t.In(nyse)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	if g.isHoliday(local) {
		return false
	}
	start := dateAt(local, preMarketStartHour, preMarketStartMinute)
	end := dateAt(local, postMarketEndHour, postMarketEndMinute)
	return !local.Before(start) && local.Before(end)
}

// IsRegularSession reports whether t falls within the 09:30-16:00 regular
// session (ignoring the warm-up/grace padding), used by callers that care
// about the "real" market window rather than the detector's active window.
func (g *Gate) IsRegularSession(t time.Time) bool {
	local := t.In(nyse)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	if g.isHoliday(local) {
		return false
	}
	start := dateAt(local, marketOpenHour, marketOpenMinute)
	end := dateAt(local, marketCloseHour, marketCloseMinute)
	return !local.Before(start) && !local.After(end)
}

// SecondsUntilActive returns how long until the gate next becomes active,
// with no upper bound. Callers that want a bounded sleep (spec.md §4.C:
// "sleep for min(300s, seconds_until_active)") apply that cap themselves.
func (g *Gate) SecondsUntilActive(t time.Time) int {
	local := t.In(nyse)
	if g.IsActive(local) {
		return 0
	}

	next := g.nextActiveStart(local)
	secs := int(next.Sub(local).Seconds())
	if secs < 0 {
		secs = 0
	}
	return secs
}

func (g *Gate) nextActiveStart(local time.Time) time.Time {
	day := local
	if local.Hour() > postMarketEndHour || (local.Hour() == postMarketEndHour && local.Minute() >= postMarketEndMinute) {
		day = day.AddDate(0, 0, 1)
	}
	for {
		if day.Weekday() != time.Saturday && day.Weekday() != time.Sunday && !g.isHoliday(day) {
			return dateAt(day, preMarketStartHour, preMarketStartMinute)
		}
		day = day.AddDate(0, 0, 1)
	}
}

func (g *Gate) isHoliday(local time.Time) bool {
	return g.holidays[local.Format("2006-01-02")]
}

func dateAt(ref time.Time, hour, minute int) time.Time {
	y, m, d := ref.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, ref.Location())
}

// holidaysForYear returns the NYSE holiday calendar for one year: fixed
// dates are shifted to the nearest weekday (Saturday -> observed Friday,
// Sunday -> observed Monday), floating dates are computed directly.
func holidaysForYear(year int) []time.Time {
	var days []time.Time

	add := func(m time.Month, d int) {
		days = append(days, observedWeekday(time.Date(year, m, d, 0, 0, 0, 0, nyse)))
	}
	addFloating := func(t time.Time) {
		days = append(days, t)
	}

	add(time.January, 1)   // New Year's Day
	addFloating(nthWeekday(year, time.January, time.Monday, 3))  // MLK Day
	addFloating(nthWeekday(year, time.February, time.Monday, 3)) // Presidents Day
	addFloating(goodFriday(year))
	addFloating(lastWeekday(year, time.May, time.Monday)) // Memorial Day
	add(time.June, 19)                                    // Juneteenth
	add(time.July, 4)                                     // Independence Day
	addFloating(nthWeekday(year, time.September, time.Monday, 1)) // Labor Day
	addFloating(nthWeekday(year, time.November, time.Thursday, 4)) // Thanksgiving
	add(time.December, 25) // Christmas

	return days
}

// observedWeekday shifts a fixed-date holiday that falls on a weekend to
// the nearest business day, per NYSE convention.
func observedWeekday(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	default:
		return t
	}
}

func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	t := time.Date(year, month, 1, 0, 0, 0, 0, nyse)
	offset := (int(weekday) - int(t.Weekday()) + 7) % 7
	t = t.AddDate(0, 0, offset+7*(n-1))
	return t
}

func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	// First day of next month, minus one day, walking back to the target weekday.
	t := time.Date(year, month+1, 1, 0, 0, 0, 0, nyse).AddDate(0, 0, -1)
	for t.Weekday() != weekday {
		t = t.AddDate(0, 0, -1)
	}
	return t
}

// goodFriday computes Good Friday (two days before Easter Sunday) using the
// anonymous Gregorian Computus algorithm.
func goodFriday(year int) time.Time {
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
	easter := time.Date(year, time.Month(month), day, 0, 0, 0, 0, nyse)
	return easter.AddDate(0, 0, -2)
}
