// Package status derives the freshness badge shown next to each ticker by
// comparing its last data date with the last trading day whose data should
// already exist.
package status

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"stockdash/internal/util"
)

// maxCountedDays caps the missing trading day count.
const maxCountedDays = 10

// Kind groups badges for the header counters.
type Kind string

const (
	KindUpdated Kind = "updated"
	KindPending Kind = "pending"
	KindMissing Kind = "missing"
	KindInvalid Kind = "invalid"
)

// Badge is the rendered status of one ticker.
type Badge struct {
	Kind        Kind
	Class       string
	Text        string
	Tooltip     string
	NeedsUpdate bool
	MissingDays int
}

func (b Badge) String() string {
	return b.Text
}

// HTML renders the badge as a span.
func (b Badge) HTML() template.HTML {
	return template.HTML(fmt.Sprintf(`<span class="%s" title="%s">%s</span>`,
		template.HTMLEscapeString(b.Class),
		template.HTMLEscapeString(b.Tooltip),
		template.HTMLEscapeString(b.Text)))
}

// Evaluator computes badges against a market calendar.
type Evaluator struct {
	cal *util.MarketCalendar
}

// NewEvaluator creates an Evaluator. A nil calendar uses the default New
// York one.
func NewEvaluator(cal *util.MarketCalendar) *Evaluator {
	if cal == nil {
		cal = util.NewMarketCalendar()
	}
	return &Evaluator{cal: cal}
}

// ParseDate accepts YYYY-MM-DD and DD/MM/YYYY in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.Contains(s, "/"):
		return time.ParseInLocation("2/1/2006", s, loc)
	case strings.Contains(s, "-"):
		if len(s) > 10 {
			s = s[:10]
		}
		return time.ParseInLocation("2006-01-02", s, loc)
	}
	return time.Time{}, fmt.Errorf("unrecognised date format %q", s)
}

// Badge evaluates lastData at now. An empty or "N/A" date is reported as
// missing data and an unparsable one as invalid; both need an update.
func (e *Evaluator) Badge(lastData string, now time.Time) Badge {
	if lastData == "" || lastData == "N/A" {
		return Badge{
			Kind:        KindMissing,
			Class:       "badge bg-danger status-badge",
			Text:        "❌ No data",
			Tooltip:     "No data available",
			NeedsUpdate: true,
		}
	}
	last, err := ParseDate(lastData, e.cal.Location())
	if err != nil {
		return Badge{
			Kind:        KindInvalid,
			Class:       "badge bg-warning status-badge",
			Text:        "⚠️ Invalid date",
			Tooltip:     "Could not parse date: " + lastData,
			NeedsUpdate: true,
		}
	}

	expected := e.cal.LastExpectedMarketDay(now)
	lastFmt := last.Format("2006-01-02")
	if !last.Before(expected) {
		return Badge{
			Kind:    KindUpdated,
			Class:   "badge bg-success status-badge",
			Text:    "✅ Up to date",
			Tooltip: fmt.Sprintf("Last data: %s (up to date)", lastFmt),
		}
	}

	missing := min(e.cal.MarketDaysBetween(last, expected), maxCountedDays)
	tooltip := fmt.Sprintf("Last data: %s (%s)\nExpected: %s",
		lastFmt, humanize.RelTime(last, now, "ago", "from now"), expected.Format("2006-01-02"))
	b := Badge{Kind: KindPending, NeedsUpdate: true, MissingDays: missing}
	switch {
	case missing <= 1:
		b.Class = "badge bg-warning status-badge"
		b.Text = "⏰ 1 day"
	case missing <= 3:
		b.Class = "badge bg-warning status-badge"
		b.Text = fmt.Sprintf("⏰ %d days", missing)
		tooltip += fmt.Sprintf("\n%d market days missing", missing)
	default:
		b.Class = "badge bg-danger status-badge"
		b.Text = fmt.Sprintf("❌ %d days", missing)
		tooltip += fmt.Sprintf("\n%d market days missing", missing)
	}
	b.Tooltip = tooltip
	return b
}

// Counts tallies up-to-date and pending badges for the header cards.
// Invalid dates count as neither.
func Counts(badges []Badge) (updated, pending int) {
	for _, b := range badges {
		switch b.Kind {
		case KindUpdated:
			updated++
		case KindPending, KindMissing:
			pending++
		}
	}
	return updated, pending
}
