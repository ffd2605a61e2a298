package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"stockdash/internal/domain"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	got := ps.historyPath("aapl", domain.VersionRaw)
	want := filepath.Join("/data", "history", "AAPL", "raw.parquet")
	if got != want {
		t.Errorf("historyPath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{
		{Date: day(3), Open: 185.5, High: 187.0, Low: 185.0, Close: 186.0, AdjClose: 185.9, Volume: 45000000},
		{Date: day(2), Open: 185.0, High: 186.5, Low: 184.0, Close: 185.5, AdjClose: 185.4, Volume: 50000000},
	}
	if err := ps.WriteBars(ctx, "AAPL", domain.VersionAdjusted, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, "AAPL", domain.VersionAdjusted, 0)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	want := []domain.Bar{bars[1], bars[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadBars mismatch (-want +got):\n%s", diff)
	}

	// The other version is a separate file.
	raw, err := ps.ReadBars(ctx, "AAPL", domain.VersionRaw, 0)
	if err != nil || len(raw) != 0 {
		t.Errorf("ReadBars(raw) = %v, %v; want empty", raw, err)
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if err := ps.WriteBars(ctx, "MSFT", domain.VersionRaw, []domain.Bar{
		{Date: day(1), Close: 400}, {Date: day(2), Close: 403},
	}); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}
	// Day 2 is replaced, day 3 is appended.
	if err := ps.WriteBars(ctx, "MSFT", domain.VersionRaw, []domain.Bar{
		{Date: day(2).Add(15 * time.Hour), Close: 404}, {Date: day(3), Close: 408},
	}); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	got, err := ps.ReadBars(ctx, "MSFT", domain.VersionRaw, 2)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 404 || got[1].Close != 408 {
		t.Errorf("closes = %v, %v; want 404, 408", got[0].Close, got[1].Close)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	for _, sym := range []string{"GOOGL", "AAPL"} {
		if err := ps.WriteBars(ctx, sym, domain.VersionAdjusted, []domain.Bar{{Date: day(2), Close: 1}}); err != nil {
			t.Fatalf("WriteBars: %v", err)
		}
	}

	symbols, err := ps.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if diff := cmp.Diff([]string{"AAPL", "GOOGL"}, symbols); diff != "" {
		t.Errorf("ListSymbols mismatch (-want +got):\n%s", diff)
	}
}

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	})
	return store
}

func TestSQLiteStoreOpen(t *testing.T) {
	store := openSQLite(t)
	if err := store.db.Ping(); err != nil {
		t.Fatalf("db.Ping() returned error: %v", err)
	}
}

func TestSQLiteActivities(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC)
	for i, msg := range []string{"first", "second", "third"} {
		a, err := store.AppendActivity(ctx, domain.Activity{Message: msg, Level: domain.LevelInfo, Time: base.Add(time.Duration(i) * time.Minute)})
		if err != nil {
			t.Fatalf("AppendActivity: %v", err)
		}
		if a.ID == 0 {
			t.Errorf("AppendActivity(%q) returned zero ID", msg)
		}
	}

	got, err := store.ListActivities(ctx, 2)
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(got) != 2 || got[0].Message != "third" || got[1].Message != "second" {
		t.Fatalf("ListActivities = %+v, want third, second", got)
	}
	if !got[0].Time.Equal(base.Add(2*time.Minute)) || got[0].Level != domain.LevelInfo {
		t.Errorf("round-tripped activity = %+v", got[0])
	}

	if err := store.TrimActivities(ctx, 1); err != nil {
		t.Fatalf("TrimActivities: %v", err)
	}
	all, err := store.ListActivities(ctx, 0)
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(all) != 1 || all[0].Message != "third" {
		t.Errorf("after trim = %+v, want only third", all)
	}
}

func TestSQLiteSnapshot(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	tickers, at, err := store.LoadSnapshot(ctx)
	if err != nil || len(tickers) != 0 || !at.IsZero() {
		t.Fatalf("empty LoadSnapshot = %v, %v, %v", tickers, at, err)
	}

	saved := time.Date(2024, 3, 8, 21, 0, 0, 0, time.UTC)
	want := []domain.Ticker{
		{Symbol: "AAPL", Name: "Apple Inc.", Sector: "Technology", LastCloseDate: "2024-03-08", TotalRecords: 250, NeedsUpdate: true},
		{Symbol: "MSFT", Name: "Microsoft", SizeAdjusted: "1.2 MB"},
	}
	if err := store.SaveSnapshot(ctx, []domain.Ticker{want[1], want[0]}, saved); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, at, err := store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadSnapshot mismatch (-want +got):\n%s", diff)
	}
	if !at.Equal(saved) {
		t.Errorf("saved at = %v, want %v", at, saved)
	}

	one, ok, err := store.SnapshotTicker(ctx, "AAPL")
	if err != nil || !ok || one.Name != "Apple Inc." {
		t.Errorf("SnapshotTicker(AAPL) = %+v, %v, %v", one, ok, err)
	}
	if _, ok, err := store.SnapshotTicker(ctx, "NOPE"); ok || err != nil {
		t.Errorf("SnapshotTicker(NOPE) ok = %v, err = %v", ok, err)
	}

	// Saving again replaces rather than appends.
	if err := store.SaveSnapshot(ctx, want[:1], saved.Add(time.Hour)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	got, _, _ = store.LoadSnapshot(ctx)
	if len(got) != 1 {
		t.Errorf("after resave got %d tickers, want 1", len(got))
	}
}
