package fallback

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"stockdash/internal/domain"
	"stockdash/internal/store"
)

func TestHashCode(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"a", 97},
		{"AAPLadjusted", 549827958},
		{"AAPLraw", 504649588},
	}
	for _, tt := range tests {
		if got := HashCode(tt.in); got != tt.want {
			t.Errorf("HashCode(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPlaceholder(t *testing.T) {
	today := time.Date(2024, 3, 8, 15, 30, 0, 0, time.UTC)
	got := Placeholder("AAPL", domain.VersionAdjusted, today)

	want := []domain.Bar{
		{Date: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), Open: 140.15, High: 140.96, Low: 137.77, Close: 141.1, AdjClose: 141.1, Volume: 450308},
		{Date: time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), Open: 121.09, High: 122.12, Low: 119.89, Close: 121.2, AdjClose: 121.2, Volume: 1069315},
		{Date: time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), Open: 140.44, High: 141.35, Low: 139.13, Close: 141.04, AdjClose: 141.04, Volume: 234619},
		{Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), Open: 115.52, High: 116.31, Low: 114.15, Close: 115.95, AdjClose: 115.95, Volume: 279552},
		{Date: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), Open: 111.68, High: 111.66, Low: 110.63, Close: 111.26, AdjClose: 111.26, Volume: 537448},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Placeholder mismatch (-want +got):\n%s", diff)
	}

	// Deterministic across calls and independent per version.
	if diff := cmp.Diff(got, Placeholder("AAPL", domain.VersionAdjusted, today)); diff != "" {
		t.Errorf("second call differs:\n%s", diff)
	}
	raw := Placeholder("AAPL", domain.VersionRaw, today)
	if raw[0].Close != 136.78 || raw[0].AdjClose != 0 {
		t.Errorf("raw first bar = %+v, want close 136.78 without adj close", raw[0])
	}
}

func TestTickerInfo(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "fb.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	if err := st.SaveSnapshot(ctx, []domain.Ticker{
		{Symbol: "AAPL", Name: "Apple Inc.", Sector: "Technology", Industry: "Consumer Electronics"},
		{Symbol: "IBM", Company: "International Business Machines"},
	}, time.Now()); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	src := NewSource(st, nil, nil)
	info, err := src.TickerInfo(ctx, "AAPL")
	if err != nil {
		t.Fatalf("TickerInfo: %v", err)
	}
	want := domain.TickerInfo{Symbol: "AAPL", Name: "Apple Inc.", Sector: "Technology", Industry: "Consumer Electronics", Source: domain.SourceFallback}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("TickerInfo mismatch (-want +got):\n%s", diff)
	}

	if info, _ := src.TickerInfo(ctx, "IBM"); info.Name != "International Business Machines" {
		t.Errorf("IBM name = %q, want company", info.Name)
	}
	if _, err := src.TickerInfo(ctx, "NOPE"); !errors.Is(err, ErrUnknownTicker) {
		t.Errorf("TickerInfo(NOPE) err = %v, want ErrUnknownTicker", err)
	}
	if _, err := NewSource(nil, nil, nil).TickerInfo(ctx, "AAPL"); !errors.Is(err, ErrUnknownTicker) {
		t.Errorf("TickerInfo without store err = %v", err)
	}
}

func TestHistoryPrefersCache(t *testing.T) {
	ctx := context.Background()
	hist := store.NewParquetStore(t.TempDir())
	src := NewSource(nil, hist, nil)
	src.now = func() time.Time { return time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC) }

	got, err := src.History(ctx, "MSFT", domain.VersionRaw, 20)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != PlaceholderDays {
		t.Fatalf("uncached History returned %d bars, want placeholder", len(got))
	}

	cached := []domain.Bar{{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 370}}
	src.Remember(ctx, "MSFT", domain.VersionRaw, cached)
	got, err = src.History(ctx, "MSFT", domain.VersionRaw, 20)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if diff := cmp.Diff(cached, got); diff != "" {
		t.Errorf("cached History mismatch (-want +got):\n%s", diff)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := src.History(cctx, "MSFT", domain.VersionRaw, 20); err == nil {
		t.Error("History with cancelled context returned no error")
	}
}
