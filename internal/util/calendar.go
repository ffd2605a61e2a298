package util

import (
	"time"
)

// MarketCalendar answers "which day should the latest data be from" for the
// US equity market: weekdays minus a fixed holiday list, with the session
// closing at 16:00 New York time.
type MarketCalendar struct {
	loc       *time.Location
	closeHour int
}

// NewMarketCalendar creates a calendar in New York time. If the zone
// database is unavailable it falls back to a fixed UTC-5 offset.
func NewMarketCalendar() *MarketCalendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	return &MarketCalendar{loc: loc, closeHour: 16}
}

// Location returns the calendar's time zone.
func (mc *MarketCalendar) Location() *time.Location {
	return mc.loc
}

// Holidays returns the fixed market holidays for a year as YYYY-MM-DD.
// Floating holidays (Thanksgiving, Good Friday, ...) are not modelled.
func Holidays(year int) []string {
	return []string{
		time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
		time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
		time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
	}
}

// IsMarketDay reports whether the calendar day of t is a trading day.
func (mc *MarketCalendar) IsMarketDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	day := t.Format("2006-01-02")
	for _, h := range Holidays(t.Year()) {
		if h == day {
			return false
		}
	}
	return true
}

// LastExpectedMarketDay returns the most recent trading day whose data
// should be available at now: today once the session has closed, otherwise
// the previous trading day. The result is midnight in the calendar's zone.
func (mc *MarketCalendar) LastExpectedMarketDay(now time.Time) time.Time {
	now = now.In(mc.loc)
	day := truncateDay(now)
	if now.Hour() >= mc.closeHour && mc.IsMarketDay(day) {
		return day
	}

	check := day.AddDate(0, 0, -1)
	for attempts := 0; !mc.IsMarketDay(check) && attempts < 10; attempts++ {
		check = check.AddDate(0, 0, -1)
	}
	return check
}

// MarketDaysBetween counts trading days strictly after from and up to and
// including to. It returns 0 when to is not after from.
func (mc *MarketCalendar) MarketDaysBetween(from, to time.Time) int {
	from = truncateDay(from.In(mc.loc))
	to = truncateDay(to.In(mc.loc))
	n := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if mc.IsMarketDay(d) {
			n++
		}
	}
	return n
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
