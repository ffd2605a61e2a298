package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"stockdash/internal/backendtest"
	"stockdash/internal/csvimport"
	"stockdash/internal/domain"
	"stockdash/internal/fallback"
	"stockdash/internal/notify"
	"stockdash/internal/status"
	"stockdash/internal/store"
	"stockdash/pkg/tickerapi"
)

func newBackend() *backendtest.Backend {
	return backendtest.New(
		tickerapi.TickerStatus{
			Ticker: "AAPL", Name: "Apple Inc.", LastCloseDate: "2024-03-12", TotalRecords: 2500,
			CSVInfo: &tickerapi.CSVInfo{Company: "Apple", Sector: "Technology", Industry: "Consumer Electronics"},
		},
		tickerapi.TickerStatus{
			Ticker: "MSFT", LastCloseDate: "2024-03-01", TotalRecords: 2400,
			CSVInfo: &tickerapi.CSVInfo{Company: "Microsoft", Sector: "Technology", Industry: "Software"},
		},
	)
}

func newNotifier() *notify.Manager {
	return notify.NewManager(notify.Options{DefaultDuration: time.Hour, ErrorDuration: time.Hour, MaxVisible: 20}, nil, nil)
}

func newSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "stockdash.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newPage(t *testing.T, b *backendtest.Backend, snaps store.SnapshotStore) (*TickerPage, *notify.Manager) {
	t.Helper()
	notes := newNotifier()
	t.Cleanup(notes.RemoveAll)
	p := NewTickerPage(TickerPageConfig{
		Backend:   b.Start(t),
		Notifier:  notes,
		Snapshots: snaps,
		PageSizes: []int{10, 25},
		PageSize:  10,
	})
	return p, notes
}

func messages(m *notify.Manager) []string {
	var out []string
	for _, n := range m.Active() {
		out = append(out, string(n.Level)+": "+n.Message)
	}
	return out
}

func hasMessage(m *notify.Manager, level domain.Level, substr string) bool {
	for _, n := range m.Active() {
		if n.Level == level && strings.Contains(n.Message, substr) {
			return true
		}
	}
	return false
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{" aapl ", "AAPL", true},
		{"brk.b", "BRK.B", true},
		{"^gspc", "", false},
		{"ENI.MI", "ENI.MI", true},
		{"", "", false},
		{"bad symbol", "", false},
		{"BAD!", "", false},
	}
	for _, tt := range tests {
		got, err := NormalizeSymbol(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("NormalizeSymbol(%q) = %q, %v; want %q ok=%v", tt.in, got, err, tt.want, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrInvalidTicker) {
			t.Errorf("NormalizeSymbol(%q) error %v is not ErrInvalidTicker", tt.in, err)
		}
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(&tickerapi.APIError{StatusCode: 404, Message: "Ticker not found"}); got != "Ticker not found" {
		t.Errorf("UserMessage(APIError) = %q", got)
	}
	wrapped := errors.Join(errors.New("GET /api/tickers"), tickerapi.ErrTimeout)
	if got := UserMessage(wrapped); got != "request timeout" {
		t.Errorf("UserMessage(timeout) = %q", got)
	}
}

func TestTickerPageReload(t *testing.T) {
	ctx := context.Background()
	snaps := newSQLite(t)
	p, _ := newPage(t, newBackend(), snaps)

	if err := p.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if p.Table().Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Table().Len())
	}
	r, ok := p.Table().Row("MSFT")
	if !ok {
		t.Fatal("MSFT row missing")
	}
	if r["name"] != "Microsoft" {
		t.Errorf("name = %v, want CSV company as fallback", r["name"])
	}
	if _, ok := r["status"].(status.Badge); !ok {
		t.Errorf("status = %T, want status.Badge", r["status"])
	}
	if src, _ := p.Source(); src != domain.SourceBackend {
		t.Errorf("Source() = %q, want backend", src)
	}

	saved, _, err := snaps.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(saved) != 2 {
		t.Errorf("snapshot has %d tickers, want 2", len(saved))
	}
}

func TestTickerPageReloadFallsBackToSnapshot(t *testing.T) {
	ctx := context.Background()
	snaps := newSQLite(t)
	b := newBackend()

	first, _ := newPage(t, b, snaps)
	if err := first.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	b.SetDown(true)
	p, notes := newPage(t, b, snaps)
	if err := p.Reload(ctx); err == nil {
		t.Fatal("Reload with backend down should fail")
	}
	if p.Table().Len() != 2 {
		t.Fatalf("Len() = %d, want 2 rows from snapshot", p.Table().Len())
	}
	r, _ := p.Table().Row("AAPL")
	if r["source"] != string(domain.SourceFallback) {
		t.Errorf("source = %v, want fallback", r["source"])
	}
	if src, _ := p.Source(); src != domain.SourceFallback {
		t.Errorf("Source() = %q, want fallback", src)
	}
	if !hasMessage(notes, domain.LevelError, "backend unavailable") {
		t.Errorf("missing error notification, got %v", messages(notes))
	}
	if !hasMessage(notes, domain.LevelWarning, "showing 2 tickers") {
		t.Errorf("missing fallback warning, got %v", messages(notes))
	}

	// A loaded table is left alone on failure.
	first.Search("apple")
	if err := first.Reload(ctx); err == nil {
		t.Fatal("Reload with backend down should fail")
	}
	if got := len(first.Table().Filtered()); got != 1 {
		t.Errorf("filtered rows = %d, want 1", got)
	}
	r, _ = first.Table().Row("AAPL")
	if r["source"] != string(domain.SourceBackend) {
		t.Errorf("source = %v, want rows untouched", r["source"])
	}
}

func TestStateGesturesDoNotCallBackend(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	p, _ := newPage(t, b, nil)
	if err := p.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	p.Search("micro")
	p.ToggleSort("total_records")
	p.SetPageSize(25)
	p.GoToPage(1)
	if p.GoToPage(3) {
		t.Error("GoToPage(3) accepted with one page")
	}
	p.ClearFilters()

	if n := b.Calls("GET /api/tickers/status"); n != 1 {
		t.Errorf("status calls = %d, want 1", n)
	}
	html, err := p.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(string(html), `hx-post="/actions/row/remove/AAPL"`) {
		t.Error("rendered table lacks the remove action")
	}
}

func TestAddTicker(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	p, notes := newPage(t, b, nil)

	if err := p.AddTicker(ctx, " nvda "); err != nil {
		t.Fatalf("AddTicker: %v", err)
	}
	if _, ok := p.Table().Row("NVDA"); !ok {
		t.Error("NVDA not in table after add")
	}
	if !hasMessage(notes, domain.LevelSuccess, "Ticker NVDA added") {
		t.Errorf("notifications = %v", messages(notes))
	}

	if err := p.AddTicker(ctx, "AAPL"); err != nil {
		t.Fatalf("AddTicker(existing): %v", err)
	}
	if !hasMessage(notes, domain.LevelWarning, "already exists") {
		t.Errorf("notifications = %v", messages(notes))
	}
}

func TestAddTickerValidation(t *testing.T) {
	b := newBackend()
	p, notes := newPage(t, b, nil)

	for _, in := range []string{"", "not a ticker"} {
		if _, err := p.AddTickers(context.Background(), in); !errors.Is(err, ErrInvalidTicker) {
			t.Errorf("AddTickers(%q) error = %v, want ErrInvalidTicker", in, err)
		}
	}
	if n := b.Calls("POST /api/tickers"); n != 0 {
		t.Errorf("backend called %d times for invalid input", n)
	}
	if len(notes.Active()) != 2 {
		t.Errorf("notifications = %v, want 2 warnings", messages(notes))
	}
}

func TestAddTickerBackendError(t *testing.T) {
	ctx := context.Background()
	p, notes := newPage(t, newBackend(), nil)
	if err := p.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	err := p.AddTicker(ctx, "ZZZ")
	var apiErr *tickerapi.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("AddTicker error = %v, want APIError", err)
	}
	if p.Table().Len() != 2 {
		t.Errorf("Len() = %d, table changed on failure", p.Table().Len())
	}
	if !hasMessage(notes, domain.LevelError, "Error adding ZZZ: Ticker ZZZ not found") {
		t.Errorf("notifications = %v", messages(notes))
	}
}

func TestAddBatch(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	p, notes := newPage(t, b, nil)

	res, err := p.AddTickers(ctx, "tsla, BAD!, zzx, amzn")
	if err != nil {
		t.Fatalf("AddTickers: %v", err)
	}
	if res.SuccessCount != 2 || res.ErrorCount != 2 {
		t.Errorf("result = %d ok / %d failed, want 2/2", res.SuccessCount, res.ErrorCount)
	}
	want := []string{"BAD!: Invalid ticker", "ZZX: Ticker ZZX not found"}
	if diff := cmp.Diff(want, res.Failures); diff != "" {
		t.Errorf("Failures mismatch (-want +got):\n%s", diff)
	}
	if n := b.Calls("POST /api/tickers"); n != 3 {
		t.Errorf("backend add calls = %d, want 3", n)
	}
	if p.Table().Len() != 4 {
		t.Errorf("Len() = %d, want 4", p.Table().Len())
	}
	if !hasMessage(notes, domain.LevelSuccess, "Added 2 tickers successfully, 2 failed") {
		t.Errorf("notifications = %v", messages(notes))
	}
}

func TestRowActions(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	p, notes := newPage(t, b, nil)
	if err := p.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if err := p.RowAction(ctx, "download", "MSFT"); err != nil {
		t.Fatalf("download: %v", err)
	}
	r, _ := p.Table().Row("MSFT")
	if r["total_records"] != 2401 {
		t.Errorf("total_records = %v, want 2401 after reload", r["total_records"])
	}

	if err := p.RowAction(ctx, "remove", "MSFT"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := p.Table().Row("MSFT"); ok {
		t.Error("MSFT still in table")
	}
	if diff := cmp.Diff([]string{"AAPL"}, b.Tickers()); diff != "" {
		t.Errorf("backend tickers (-want +got):\n%s", diff)
	}
	if err := p.RowAction(ctx, "explode", "AAPL"); err == nil {
		t.Error("unknown action accepted")
	}
	if !hasMessage(notes, domain.LevelSuccess, "Ticker MSFT removed") {
		t.Errorf("notifications = %v", messages(notes))
	}
}

func TestDownloadAll(t *testing.T) {
	p, notes := newPage(t, newBackend(), nil)
	res, err := p.DownloadAll(context.Background())
	if err != nil {
		t.Fatalf("DownloadAll: %v", err)
	}
	if res.Summary == nil || res.Summary.TotalTickers != 2 {
		t.Errorf("summary = %+v", res.Summary)
	}
	if !hasMessage(notes, domain.LevelSuccess, "Download finished: 2 of 2 tickers updated, 2 new records") {
		t.Errorf("notifications = %v", messages(notes))
	}
	if p.Table().Len() != 2 {
		t.Errorf("Len() = %d, want table reloaded", p.Table().Len())
	}
}

func TestUploadCSV(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	p, notes := newPage(t, b, nil)

	_, err := p.UploadCSV(ctx, "bad.csv", []byte("Ticker,Company\nAAPL,Apple\n"), tickerapi.UploadOptions{})
	var ve *csvimport.ValidationError
	if !errors.As(err, &ve) || !IsValidation(err) {
		t.Fatalf("UploadCSV(bad) error = %v, want ValidationError", err)
	}
	if n := b.Calls("POST /api/upload/csv"); n != 0 {
		t.Errorf("invalid file reached the backend %d times", n)
	}

	content := "Ticker,Company,Sector,Industry\nNVDA,Nvidia,Technology,Semiconductors\nAAPL,Apple,Technology,Hardware\nZZQ,Nope,None,None\n"
	rep, err := p.UploadCSV(ctx, "tickers.csv", []byte(content), tickerapi.UploadOptions{DownloadData: true})
	if err != nil {
		t.Fatalf("UploadCSV: %v", err)
	}
	if rep.SuccessCount != 1 || rep.WarningCount != 1 || rep.ErrorCount != 1 {
		t.Errorf("report counts = %d/%d/%d, want 1/1/1", rep.SuccessCount, rep.WarningCount, rep.ErrorCount)
	}
	if _, ok := p.Table().Row("NVDA"); !ok {
		t.Error("NVDA not in table after upload")
	}
	if !hasMessage(notes, domain.LevelSuccess, "Imported 1 tickers") {
		t.Errorf("notifications = %v", messages(notes))
	}
}

func TestDetailsLoaderOpen(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	b.SetBars("AAPL", []tickerapi.Bar{
		{Date: "2024-03-11", Open: 172, High: 174, Low: 171, Close: 173, AdjClose: 172.8, Volume: 60000000},
		{Date: "2024-03-12", Open: 173, High: 175, Low: 172, Close: 174, AdjClose: 173.8, Volume: 55000000},
	})
	d := NewDetailsLoader(b.Start(t), nil, newNotifier(), nil)

	if st, _ := d.State(); st != StateIdle {
		t.Fatalf("initial state = %v", st)
	}
	det, err := d.Open(ctx, "aapl", domain.VersionAdjusted)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if det.Info.Name != "Apple Inc." || det.Info.Sector != "Technology" || det.Info.Source != domain.SourceBackend {
		t.Errorf("Info = %+v", det.Info)
	}
	if len(det.Bars) != 2 || det.HistorySource != domain.SourceBackend {
		t.Errorf("bars = %d from %q", len(det.Bars), det.HistorySource)
	}
	if st, _ := d.State(); st != StatePopulated {
		t.Errorf("state = %v, want populated", st)
	}

	if _, _, err := d.History(ctx, "AAPL", domain.VersionAdjusted); err != nil {
		t.Fatalf("History: %v", err)
	}
	if n := b.Calls("GET /api/ticker/{symbol}/data"); n != 1 {
		t.Errorf("data calls = %d, want cached reply", n)
	}
	if _, err := d.SwitchVersion(ctx, domain.VersionRaw); err != nil {
		t.Fatalf("SwitchVersion: %v", err)
	}
	if n := b.Calls("GET /api/ticker/{symbol}/data"); n != 2 {
		t.Errorf("data calls = %d, want one per version", n)
	}

	d.ClearTickerCache("AAPL")
	d.History(ctx, "AAPL", domain.VersionAdjusted)
	if n := b.Calls("GET /api/ticker/{symbol}/data"); n != 3 {
		t.Errorf("data calls = %d after ClearTickerCache, want 3", n)
	}
}

func TestDetailsLoaderHistoryFailureNotifies(t *testing.T) {
	notes := newNotifier()
	d := NewDetailsLoader(newBackend().Start(t), nil, notes, nil)

	if _, err := d.Open(context.Background(), "MSFT", domain.VersionAdjusted); err == nil {
		t.Fatal("Open(MSFT) should fail: backend has no bars")
	}
	if st, _ := d.State(); st != StateErrorShown {
		t.Errorf("state = %v, want error shown", st)
	}
	if !hasMessage(notes, domain.LevelError, "Error loading MSFT") {
		t.Errorf("notifications = %v", messages(notes))
	}
}

func TestDetailsLoaderFallback(t *testing.T) {
	ctx := context.Background()
	snaps := newSQLite(t)
	if err := snaps.SaveSnapshot(ctx, []domain.Ticker{{Symbol: "AAPL", Company: "Apple", Sector: "Technology"}}, time.Now()); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	b := newBackend()
	b.SetDown(true)
	notes := newNotifier()
	d := NewDetailsLoader(b.Start(t), fallback.NewSource(snaps, nil, nil), notes, nil)

	det, err := d.Open(ctx, "AAPL", domain.VersionAdjusted)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if det.Info.Name != "Apple" || det.Info.Source != domain.SourceFallback {
		t.Errorf("Info = %+v, want snapshot data", det.Info)
	}
	if len(det.Bars) != fallback.PlaceholderDays || det.HistorySource != domain.SourceFallback {
		t.Errorf("bars = %d from %q, want placeholder", len(det.Bars), det.HistorySource)
	}

	if _, err := d.Open(ctx, "MSFT", domain.VersionAdjusted); err == nil {
		t.Fatal("Open(MSFT) should fail: not in backend or snapshot")
	}
	if st, err := d.State(); st != StateErrorShown || err == nil {
		t.Errorf("state = %v, %v; want error shown", st, err)
	}
	if d.Current() != nil {
		t.Error("Current() should be nil after a failed load")
	}
	if !hasMessage(notes, domain.LevelError, "Error loading MSFT") {
		t.Errorf("notifications = %v", messages(notes))
	}
}

func TestDetailsLoaderBusy(t *testing.T) {
	b := newBackend()
	d := NewDetailsLoader(b.Start(t), nil, newNotifier(), nil)

	d.loading.Lock()
	_, err := d.Open(context.Background(), "AAPL", domain.VersionAdjusted)
	d.loading.Unlock()
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("Open while loading = %v, want ErrBusy", err)
	}
	if n := b.Calls("GET /api/ticker/{symbol}/details"); n != 0 {
		t.Errorf("details calls = %d, want 0", n)
	}
}

func TestLevelsPage(t *testing.T) {
	b := newBackend()
	b.SetAnalysis(
		[]tickerapi.Level{
			{ID: "l1", Ticker: "AAPL", Date: "2024-03-01", Type: "Support", Level: 170, Strength: 4.2, Touches: 3, DistancePct: -2.1},
			{ID: "l2", Ticker: "AAPL", Date: "2024-03-02", Type: "Resistance", Level: 180, Strength: 2.5, Touches: 2, DistancePct: 3.4},
			{ID: "l3", Ticker: "MSFT", Date: "2024-03-02", Type: "Support", Level: 400, Strength: 3.1, Touches: 5, DistancePct: -1},
		},
		[]tickerapi.Zone{
			{ID: "z1", Ticker: "AAPL", Date: "2024-02-20", Pattern: "RBR", Type: "Demand", Bottom: 165, Top: 168, StrengthScore: 4.5},
			{ID: "z2", Ticker: "MSFT", Date: "2024-02-21", Pattern: "DBD", Type: "Supply", Bottom: 420, Top: 425, StrengthScore: 2},
		},
	)
	p := NewLevelsPage(b.Start(t), newNotifier(), nil, nil, 0, nil)
	if err := p.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	p.FilterLevels(LevelFilter{Type: "Support", MinStrength: 3.5})
	got := p.Levels().Filtered()
	if len(got) != 1 || got[0]["id"] != "l1" {
		t.Errorf("filtered levels = %v, want l1", got)
	}
	p.FilterLevels(LevelFilter{Ticker: "msft"})
	if got := p.Levels().Filtered(); len(got) != 1 || got[0]["id"] != "l3" {
		t.Errorf("ticker filter = %v, want l3", got)
	}

	p.FilterZones(ZoneFilter{Pattern: "RBR"})
	if got := p.Zones().Filtered(); len(got) != 1 || got[0]["zone_id"] != "z1" {
		t.Errorf("filtered zones = %v, want z1", got)
	}

	if n := len(p.LevelsFor("aapl")); n != 2 {
		t.Errorf("LevelsFor(aapl) = %d, want 2", n)
	}
	if z := p.ZonesFor("MSFT"); len(z) != 1 || z[0].Kind != domain.ZoneSupply {
		t.Errorf("ZonesFor(MSFT) = %+v", z)
	}
	s, r, sup, dem := p.Counts()
	if s != 2 || r != 1 || sup != 1 || dem != 1 {
		t.Errorf("Counts() = %d %d %d %d", s, r, sup, dem)
	}
	if StrengthClass(3) != "bg-warning" || StrengthClass(4.5) != "bg-success" || StrengthClass(1) != "bg-danger" {
		t.Error("StrengthClass thresholds")
	}
}
