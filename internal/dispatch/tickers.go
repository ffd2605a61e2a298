package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"sync"
	"time"

	"stockdash/internal/batch"
	"stockdash/internal/csvimport"
	"stockdash/internal/domain"
	"stockdash/internal/status"
	"stockdash/internal/store"
	"stockdash/internal/table"
	"stockdash/pkg/tickerapi"
)

// TickerTableID is the DOM id of the ticker table.
const TickerTableID = "tickers-table"

// TickerPageConfig wires a TickerPage. Snapshots, Batch and Status are
// optional.
type TickerPageConfig struct {
	Backend   Backend
	Notifier  Notifier
	Snapshots store.SnapshotStore
	Batch     *batch.Runner
	Status    *status.Evaluator
	Formats   *table.Formats
	PageSizes []int
	PageSize  int
	Logger    *slog.Logger
}

// TickerPage is the controller of the tracked-tickers table.
type TickerPage struct {
	table     *table.Table
	backend   Backend
	notes     Notifier
	snapshots store.SnapshotStore
	batch     *batch.Runner
	status    *status.Evaluator
	log       *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	source   domain.Source
	loadedAt time.Time
}

// TickerColumns are the columns of the ticker table.
func TickerColumns() []table.Column {
	return []table.Column{
		{Key: "ticker", Title: "Ticker", Sortable: true, ClassName: "fw-bold"},
		{Key: "name", Title: "Name", Sortable: true},
		{Key: "sector", Title: "Sector", Sortable: true},
		{Key: "last_close_date", Title: "Last Close", Type: table.TypeDate, Format: table.FormatDate, Sortable: true},
		{Key: "total_records", Title: "Records", Type: table.TypeNumber, Format: table.FormatNumber, Sortable: true, ClassName: "text-end"},
		{Key: "status", Title: "Status", Sortable: true, Formatter: badgeHTML},
		{Key: "size_adjusted", Title: "Size", Hidden: true},
		{Key: "industry", Title: "Industry", Hidden: true},
	}
}

func badgeHTML(v any) template.HTML {
	if b, ok := v.(status.Badge); ok {
		return b.HTML()
	}
	return ""
}

// NewTickerPage creates the controller with an empty table.
func NewTickerPage(cfg TickerPageConfig) *TickerPage {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Batch == nil {
		cfg.Batch = batch.NewRunner(1, nil, cfg.Logger)
	}
	if cfg.Status == nil {
		cfg.Status = status.NewEvaluator(nil)
	}
	p := &TickerPage{
		backend:   cfg.Backend,
		notes:     cfg.Notifier,
		snapshots: cfg.Snapshots,
		batch:     cfg.Batch,
		status:    cfg.Status,
		log:       cfg.Logger,
		now:       time.Now,
		source:    domain.SourceBackend,
	}
	p.table = table.New(table.Options{
		ID:           TickerTableID,
		KeyField:     "ticker",
		Columns:      TickerColumns(),
		SearchFields: []string{"ticker", "name", "sector", "industry"},
		PageSizes:    cfg.PageSizes,
		PageSize:     cfg.PageSize,
		Formats:      cfg.Formats,
		EmptyMessage: "No tickers configured",
		ActionPath:   "/actions",
		Actions: []table.Action{
			{Name: "view", Label: "View", Icon: "bi bi-eye", Class: "btn-outline-primary", Target: "#tickerDetails"},
			{Name: "download", Label: "Download", Icon: "bi bi-download", Class: "btn-outline-success",
				Disabled: func(r table.Record) bool { return r["source"] == string(domain.SourceFallback) }},
			{Name: "remove", Label: "Remove", Icon: "bi bi-trash", Class: "btn-outline-danger",
				Confirm: "Remove this ticker and delete its data files?",
				Disabled: func(r table.Record) bool { return r["source"] == string(domain.SourceFallback) }},
		},
	})
	return p
}

// Table returns the page's table.
func (p *TickerPage) Table() *table.Table {
	return p.table
}

// Source reports whether the rows came from the backend or the local
// snapshot.
func (p *TickerPage) Source() (domain.Source, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source, p.loadedAt
}

// Render renders the current page of the table.
func (p *TickerPage) Render() (template.HTML, error) {
	return table.Render(p.table.View())
}

// ---------------------------------------------------------------------------
// State gestures
// ---------------------------------------------------------------------------

func (p *TickerPage) Search(term string) {
	p.table.Search(term)
}

func (p *TickerPage) ToggleSort(field string) bool {
	return p.table.ToggleSort(field)
}

// GoToPage moves to page n; out-of-range pages are rejected.
func (p *TickerPage) GoToPage(n int) bool {
	ok := p.table.GoToPage(n)
	if !ok {
		p.log.Debug("page change rejected", "page", n)
	}
	return ok
}

func (p *TickerPage) SetPageSize(n int) bool {
	return p.table.SetPageSize(n)
}

func (p *TickerPage) ClearFilters() {
	p.table.ClearFilters()
}

// ---------------------------------------------------------------------------
// Data gestures
// ---------------------------------------------------------------------------

// Reload fetches the ticker status list and replaces the table's records.
// When the backend fails and the table is empty, the last saved snapshot
// is shown instead and marked as fallback data.
func (p *TickerPage) Reload(ctx context.Context) error {
	statuses, err := p.backend.TickersStatus(ctx)
	if err != nil {
		p.fail(ctx, "Failed to load tickers", err)
		if p.table.Len() == 0 {
			p.loadSnapshot(ctx)
		}
		return err
	}

	now := p.now()
	tickers := make([]domain.Ticker, 0, len(statuses))
	records := make([]table.Record, 0, len(statuses))
	for _, s := range statuses {
		t := tickerFromStatus(s)
		tickers = append(tickers, t)
		records = append(records, tickerRecord(t, p.status.Badge(t.LastCloseDate, now), domain.SourceBackend))
	}
	p.table.SetData(records)

	p.mu.Lock()
	p.source, p.loadedAt = domain.SourceBackend, now
	p.mu.Unlock()

	if p.snapshots != nil {
		if err := p.snapshots.SaveSnapshot(ctx, tickers, now); err != nil {
			p.log.Warn("saving ticker snapshot", "error", err)
		}
	}
	p.log.Debug("tickers reloaded", "count", len(records))
	return nil
}

func (p *TickerPage) loadSnapshot(ctx context.Context) {
	if p.snapshots == nil {
		return
	}
	tickers, savedAt, err := p.snapshots.LoadSnapshot(ctx)
	if err != nil || len(tickers) == 0 {
		if err != nil {
			p.log.Warn("loading ticker snapshot", "error", err)
		}
		return
	}
	now := p.now()
	records := make([]table.Record, 0, len(tickers))
	for _, t := range tickers {
		records = append(records, tickerRecord(t, p.status.Badge(t.LastCloseDate, now), domain.SourceFallback))
	}
	p.table.SetData(records)

	p.mu.Lock()
	p.source, p.loadedAt = domain.SourceFallback, savedAt
	p.mu.Unlock()

	p.notes.Show(fmt.Sprintf("Backend unavailable, showing %d tickers saved %s", len(records), savedAt.Format("2006-01-02 15:04")),
		domain.LevelWarning, notifyDefault)
}

// AddTickers adds one symbol or a comma separated list. A list of more than
// one symbol runs as a batch.
func (p *TickerPage) AddTickers(ctx context.Context, input string) (*batch.Result, error) {
	symbols := batch.ParseList(input)
	if len(symbols) == 0 {
		err := fmt.Errorf("%w: enter at least one ticker", ErrInvalidTicker)
		p.notes.Show("Enter at least one ticker", domain.LevelWarning, notifyDefault)
		return nil, err
	}
	if len(symbols) == 1 {
		return nil, p.AddTicker(ctx, symbols[0])
	}
	return p.AddBatch(ctx, symbols)
}

// AddTicker adds a single symbol.
func (p *TickerPage) AddTicker(ctx context.Context, raw string) error {
	sym, err := NormalizeSymbol(raw)
	if err != nil {
		p.notes.Show("Invalid ticker: "+raw, domain.LevelWarning, notifyDefault)
		return err
	}
	res, err := p.backend.AddTicker(ctx, sym)
	if err != nil {
		p.fail(ctx, "Error adding "+sym, err)
		return err
	}
	if res.Status != tickerapi.StatusSuccess {
		p.notes.Show(res.Message, levelOf(res.Status), notifyDefault)
		return nil
	}
	p.notes.Show(res.Message, domain.LevelSuccess, notifyDefault)
	p.notes.Log(ctx, fmt.Sprintf("Ticker %s added to the configuration", sym), domain.LevelSuccess)
	return p.Reload(ctx)
}

// AddBatch adds every valid symbol, counting invalid ones as failures
// without sending them.
func (p *TickerPage) AddBatch(ctx context.Context, symbols []string) (*batch.Result, error) {
	p.notes.Show(fmt.Sprintf("Adding %d tickers...", len(symbols)), domain.LevelInfo, notifyDefault)

	res, err := p.batch.AddTickers(ctx, validatingAdder{p.backend}, symbols)
	if res == nil {
		return nil, err
	}
	for _, it := range res.Items {
		if it.OK {
			p.notes.Log(ctx, it.Ticker+" added", domain.LevelSuccess)
		} else {
			p.notes.Log(ctx, it.Ticker+": "+it.Message, domain.LevelError)
		}
	}
	if res.SuccessCount == 0 {
		p.notes.Show(fmt.Sprintf("No tickers added (%d errors)", res.ErrorCount), domain.LevelError, notifyDefault)
		return res, err
	}
	p.notes.Show(res.Message(), domain.LevelSuccess, notifyDefault)
	p.notes.Log(ctx, fmt.Sprintf("Batch add finished: %d succeeded, %d failed", res.SuccessCount, res.ErrorCount), domain.LevelSuccess)
	if rerr := p.Reload(ctx); err == nil {
		err = rerr
	}
	return res, err
}

// validatingAdder answers malformed symbols itself.
type validatingAdder struct {
	Backend
}

func (a validatingAdder) AddTicker(ctx context.Context, raw string) (*tickerapi.Result, error) {
	sym, err := NormalizeSymbol(raw)
	if err != nil {
		return &tickerapi.Result{Response: tickerapi.Response{Status: tickerapi.StatusError, Message: "Invalid ticker"}}, nil
	}
	return a.Backend.AddTicker(ctx, sym)
}

// RemoveTicker stops tracking a symbol.
func (p *TickerPage) RemoveTicker(ctx context.Context, raw string) error {
	sym, err := NormalizeSymbol(raw)
	if err != nil {
		p.notes.Show("Invalid ticker: "+raw, domain.LevelWarning, notifyDefault)
		return err
	}
	res, err := p.backend.RemoveTicker(ctx, sym)
	if err != nil {
		p.fail(ctx, "Error removing "+sym, err)
		return err
	}
	if res.Status != tickerapi.StatusSuccess {
		p.notes.Show(res.Message, levelOf(res.Status), notifyDefault)
		return nil
	}
	p.notes.Show(res.Message, domain.LevelSuccess, notifyDefault)
	p.notes.Log(ctx, fmt.Sprintf("Ticker %s removed", sym), domain.LevelInfo)
	return p.Reload(ctx)
}

// DownloadTicker refreshes one symbol's data.
func (p *TickerPage) DownloadTicker(ctx context.Context, raw string) error {
	sym, err := NormalizeSymbol(raw)
	if err != nil {
		p.notes.Show("Invalid ticker: "+raw, domain.LevelWarning, notifyDefault)
		return err
	}
	p.notes.Log(ctx, "Starting download of "+sym, domain.LevelInfo)
	res, err := p.backend.DownloadTicker(ctx, sym)
	if err != nil {
		p.fail(ctx, "Error downloading "+sym, err)
		return err
	}
	level := levelOf(res.Status)
	p.notes.Show(res.Message, level, notifyDefault)
	p.notes.Log(ctx, res.Message, level)
	if res.Status != tickerapi.StatusSuccess {
		return nil
	}
	return p.Reload(ctx)
}

// DownloadAll refreshes every symbol.
func (p *TickerPage) DownloadAll(ctx context.Context) (*tickerapi.Result, error) {
	p.notes.Show("Downloading all tickers...", domain.LevelInfo, notifyDefault)
	res, err := p.backend.DownloadAll(ctx)
	if err != nil {
		p.fail(ctx, "Error downloading all tickers", err)
		return nil, err
	}
	msg := res.Message
	if s := res.Summary; s != nil {
		msg = fmt.Sprintf("Download finished: %d of %d tickers updated, %d new records",
			s.UpdatedTickers, s.TotalTickers, s.TotalNewRecords)
	}
	level := levelOf(res.Status)
	p.notes.Show(msg, level, notifyDefault)
	p.notes.Log(ctx, msg, level)
	return res, p.Reload(ctx)
}

// UploadCSV validates content locally, then forwards it to the backend.
// An invalid file is reported without contacting the backend.
func (p *TickerPage) UploadCSV(ctx context.Context, filename string, content []byte, opts tickerapi.UploadOptions) (*csvimport.Report, error) {
	if _, err := csvimport.Validate(string(content)); err != nil {
		p.notes.Show(err.Error(), domain.LevelError, notifyDefault)
		return nil, err
	}
	res, err := p.backend.UploadCSV(ctx, filename, bytes.NewReader(content), opts)
	if err != nil {
		p.fail(ctx, "Error uploading "+filename, err)
		return nil, err
	}
	rep := csvimport.Summarize(res)
	level := levelOf(res.Status)
	p.notes.Show(res.Message, level, notifyDefault)
	p.notes.Log(ctx, rep.LogLine(res.Message), level)
	if res.Status == tickerapi.StatusSuccess {
		if err := p.Reload(ctx); err != nil {
			return &rep, err
		}
	}
	return &rep, nil
}

// RowAction dispatches a per-row button. "view" is handled by the details
// loader and is not accepted here.
func (p *TickerPage) RowAction(ctx context.Context, name, key string) error {
	if _, ok := p.table.Action(name); !ok {
		return fmt.Errorf("unknown row action %q", name)
	}
	switch name {
	case "download":
		return p.DownloadTicker(ctx, key)
	case "remove":
		return p.RemoveTicker(ctx, key)
	}
	return fmt.Errorf("row action %q is not a table mutation", name)
}

// fail reports a backend failure to the user and the activity log.
func (p *TickerPage) fail(ctx context.Context, what string, err error) {
	msg := what + ": " + UserMessage(err)
	p.log.Error(what, "error", err)
	p.notes.Show(msg, domain.LevelError, notifyDefault)
	p.notes.Log(ctx, msg, domain.LevelError)
}

// IsValidation reports whether err was raised before reaching the backend.
func IsValidation(err error) bool {
	var ve *csvimport.ValidationError
	return errors.Is(err, ErrInvalidTicker) || errors.As(err, &ve)
}
