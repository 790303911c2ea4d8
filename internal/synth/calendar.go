package synth

import (
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// Business hours for generated timestamps, [OpenHour, CloseHour).
const (
	OpenHour  = 9
	CloseHour = 21
)

// Day weights; weekends carry more orders.
const (
	weekendWeight = 1.3
	weekdayWeight = 0.9
)

// Calendar spreads timestamps over [Start, End) inside business hours.
type Calendar struct {
	rng    *rand.Rand
	start  time.Time
	latest time.Time // zero means uncapped
	days   []weighted[time.Time]
}

// CalendarOption customises a Calendar.
type CalendarOption func(*Calendar)

// NotAfter caps every drawn timestamp at t, usually the current time, so
// the part of today that has not happened yet stays empty.
func NotAfter(t time.Time) CalendarOption {
	return func(c *Calendar) { c.latest = t }
}

// NewCalendar creates a calendar over the days touched by [start, end).
func NewCalendar(rng *rand.Rand, start, end time.Time, opts ...CalendarOption) (*Calendar, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("synth: empty calendar window %s - %s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	c := &Calendar{rng: rng, start: start}
	for _, opt := range opts {
		opt(c)
	}
	if !c.latest.IsZero() && c.latest.Before(start) {
		return nil, fmt.Errorf("synth: calendar window starting %s lies after %s",
			start.Format(time.DateOnly), c.latest.Format(time.DateTime))
	}
	y, m, d := start.Date()
	for day := time.Date(y, m, d, 0, 0, 0, 0, start.Location()); day.Before(end); day = day.AddDate(0, 0, 1) {
		if !c.latest.IsZero() && day.After(c.latest) {
			break
		}
		w := weekdayWeight
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			w = weekendWeight
		}
		c.days = append(c.days, weighted[time.Time]{day, w})
	}
	return c, nil
}

// MonthWindow returns [first day of the month monthsAgo months before now,
// first day of the following month). The current month (0) ends today.
func MonthWindow(now time.Time, monthsAgo int) (time.Time, time.Time) {
	y, m, _ := now.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, now.Location()).AddDate(0, -monthsAgo, 0)
	end := start.AddDate(0, 1, 0)
	if monthsAgo == 0 {
		yy, mm, dd := now.Date()
		end = time.Date(yy, mm, dd, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	}
	return start, end
}

// Next draws one timestamp.
func (c *Calendar) Next() time.Time {
	day := pick(c.rng, c.days)
	at := day.Add(time.Duration(between(c.rng, OpenHour, CloseHour-1))*time.Hour +
		time.Duration(c.rng.Intn(60))*time.Minute +
		time.Duration(c.rng.Intn(60))*time.Second)
	if !c.latest.IsZero() && at.After(c.latest) {
		at = c.before(day)
	}
	if at.Before(c.start) {
		return c.start
	}
	return at
}

// before draws a time on day no later than the cap, inside business hours
// when the cap leaves any.
func (c *Calendar) before(day time.Time) time.Time {
	lo := day.Add(OpenHour * time.Hour)
	if lo.After(c.latest) {
		lo = day
	}
	if lo.Before(c.start) {
		lo = c.start
	}
	span := c.latest.Sub(lo)
	if span <= 0 {
		return c.latest
	}
	return lo.Add(time.Duration(c.rng.Int63n(int64(span) + 1))).Truncate(time.Second)
}

// Dates draws n timestamps in ascending order so order numbers follow time.
func (c *Calendar) Dates(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = c.Next()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
