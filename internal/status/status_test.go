package status

import (
	"strings"
	"testing"
	"time"

	"stockdash/internal/util"
)

func TestBadge(t *testing.T) {
	cal := util.NewMarketCalendar()
	ny := cal.Location()
	e := NewEvaluator(cal)
	// Wednesday 13 March 2024, 10:00 New York: expected day is Tue 12.
	morning := time.Date(2024, 3, 13, 10, 0, 0, 0, ny)
	// Same day after the close: expected day is Wed 13.
	evening := time.Date(2024, 3, 13, 17, 0, 0, 0, ny)

	tests := []struct {
		name    string
		last    string
		now     time.Time
		kind    Kind
		text    string
		missing int
	}{
		{"no data", "", morning, KindMissing, "❌ No data", 0},
		{"n/a", "N/A", morning, KindMissing, "❌ No data", 0},
		{"garbage", "yesterday", morning, KindInvalid, "⚠️ Invalid date", 0},
		{"fresh iso", "2024-03-12", morning, KindUpdated, "✅ Up to date", 0},
		{"fresh european", "12/03/2024", morning, KindUpdated, "✅ Up to date", 0},
		{"future", "2024-03-14", morning, KindUpdated, "✅ Up to date", 0},
		{"one day after close", "2024-03-12", evening, KindPending, "⏰ 1 day", 1},
		{"over weekend", "2024-03-08", morning, KindPending, "⏰ 2 days", 2},
		{"stale", "2024-03-01", morning, KindPending, "❌ 7 days", 7},
		{"capped", "2024-01-02", morning, KindPending, "❌ 10 days", 10},
		{"datetime", "2024-03-12T00:00:00", morning, KindUpdated, "✅ Up to date", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := e.Badge(tt.last, tt.now)
			if b.Kind != tt.kind || b.Text != tt.text || b.MissingDays != tt.missing {
				t.Errorf("Badge(%q) = %s %q %d, want %s %q %d", tt.last, b.Kind, b.Text, b.MissingDays, tt.kind, tt.text, tt.missing)
			}
			if b.NeedsUpdate != (tt.kind != KindUpdated) {
				t.Errorf("NeedsUpdate = %v for %s", b.NeedsUpdate, tt.kind)
			}
		})
	}
}

func TestBadgeTooltip(t *testing.T) {
	cal := util.NewMarketCalendar()
	now := time.Date(2024, 3, 13, 10, 0, 0, 0, cal.Location())
	b := NewEvaluator(cal).Badge("2024-03-01", now)
	for _, want := range []string{"Last data: 2024-03-01", "ago", "Expected: 2024-03-12", "7 market days missing"} {
		if !strings.Contains(b.Tooltip, want) {
			t.Errorf("tooltip %q missing %q", b.Tooltip, want)
		}
	}
	if html := string(b.HTML()); !strings.HasPrefix(html, `<span class="badge bg-danger status-badge" title="Last data`) {
		t.Errorf("HTML() = %s", html)
	}
}

func TestCounts(t *testing.T) {
	badges := []Badge{{Kind: KindUpdated}, {Kind: KindPending}, {Kind: KindMissing}, {Kind: KindInvalid}, {Kind: KindUpdated}}
	updated, pending := Counts(badges)
	if updated != 2 || pending != 2 {
		t.Errorf("Counts = %d, %d; want 2, 2", updated, pending)
	}
}
