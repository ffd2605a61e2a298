package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"stockdash/internal/domain"
	"stockdash/internal/fallback"
	"stockdash/pkg/tickerapi"
)

// HistoryLimit is how many bars the details view asks for.
const HistoryLimit = 20

// ErrBusy is returned when a details load is already in flight. The
// second trigger is dropped, not queued.
var ErrBusy = errors.New("details already loading")

// DetailsState is the state of the details view.
type DetailsState int

const (
	StateIdle DetailsState = iota
	StateLoading
	StatePopulated
	StateErrorShown
)

func (s DetailsState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePopulated:
		return "populated"
	case StateErrorShown:
		return "error"
	default:
		return fmt.Sprintf("DetailsState(%d)", int(s))
	}
}

// Details is what the details view shows for one ticker.
type Details struct {
	Info          domain.TickerInfo
	LastCloseDate string
	FirstDate     string
	TotalRecords  int
	Version       domain.Version
	Bars          []domain.Bar
	HistorySource domain.Source
}

type historyKey struct {
	symbol  string
	version domain.Version
}

// DetailsLoader loads ticker details and price history, one load at a
// time. History is cached per ticker and version.
type DetailsLoader struct {
	backend  Backend
	fallback *fallback.Source
	notes    Notifier
	log      *slog.Logger

	loading sync.Mutex

	mu      sync.Mutex
	state   DetailsState
	current *Details
	lastErr error
	cache   map[historyKey][]domain.Bar
}

// NewDetailsLoader creates an idle loader. fb may be nil, in which case
// backend failures are shown as errors.
func NewDetailsLoader(backend Backend, fb *fallback.Source, notes Notifier, log *slog.Logger) *DetailsLoader {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &DetailsLoader{
		backend:  backend,
		fallback: fb,
		notes:    notes,
		log:      log,
		cache:    make(map[historyKey][]domain.Bar),
	}
}

// State returns the current state and the last load error, if any.
func (d *DetailsLoader) State() (DetailsState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state, d.lastErr
}

// Current returns the populated details, or nil.
func (d *DetailsLoader) Current() *Details {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return nil
	}
	cp := *d.current
	return &cp
}

// Open loads symbol's details and its history in version. Cached history
// for symbol is discarded first so the view shows fresh data.
func (d *DetailsLoader) Open(ctx context.Context, raw string, version domain.Version) (*Details, error) {
	sym, err := NormalizeSymbol(raw)
	if err != nil {
		d.notes.Show("Invalid ticker: "+raw, domain.LevelWarning, notifyDefault)
		return nil, err
	}
	if !d.loading.TryLock() {
		d.log.Debug("details load ignored, already loading", "ticker", sym)
		return nil, ErrBusy
	}
	defer d.loading.Unlock()

	d.setState(StateLoading, nil, nil)
	d.ClearTickerCache(sym)

	det, err := d.details(ctx, sym)
	if err != nil {
		d.setState(StateErrorShown, nil, err)
		msg := "Error loading " + sym + ": " + UserMessage(err)
		d.notes.Show(msg, domain.LevelError, notifyDefault)
		return nil, err
	}

	bars, src, err := d.History(ctx, sym, version)
	if err != nil {
		d.setState(StateErrorShown, nil, err)
		d.notes.Show("Error loading "+sym+": "+UserMessage(err), domain.LevelError, notifyDefault)
		return nil, err
	}
	det.Version = domain.ParseVersion(string(version))
	det.Bars = bars
	det.HistorySource = src

	d.setState(StatePopulated, det, nil)
	d.log.Debug("details loaded", "ticker", sym, "version", det.Version, "bars", len(bars), "source", src)
	return det, nil
}

// SwitchVersion reloads the history of the open ticker in another version.
func (d *DetailsLoader) SwitchVersion(ctx context.Context, version domain.Version) (*Details, error) {
	if !d.loading.TryLock() {
		return nil, ErrBusy
	}
	defer d.loading.Unlock()

	cur := d.Current()
	if cur == nil {
		return nil, errors.New("no ticker open")
	}
	bars, src, err := d.History(ctx, cur.Info.Symbol, version)
	if err != nil {
		return nil, err
	}
	cur.Version = domain.ParseVersion(string(version))
	cur.Bars = bars
	cur.HistorySource = src
	d.setState(StatePopulated, cur, nil)
	return cur, nil
}

// Close returns the view to idle.
func (d *DetailsLoader) Close() {
	d.setState(StateIdle, nil, nil)
}

func (d *DetailsLoader) setState(s DetailsState, det *Details, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
	d.lastErr = err
	if s != StateLoading {
		d.current = det
	}
}

func (d *DetailsLoader) details(ctx context.Context, sym string) (*Details, error) {
	resp, err := d.backend.TickerDetails(ctx, sym)
	if err == nil {
		info := domain.TickerInfo{
			Symbol:   resp.Ticker,
			Name:     resp.Name,
			Sector:   resp.Info.Sector,
			Industry: resp.Info.Industry,
			Exchange: resp.Info.Exchange,
			Currency: resp.Info.Currency,
			Source:   domain.SourceBackend,
		}
		if info.Symbol == "" {
			info.Symbol = sym
		}
		if info.Name == "" {
			info.Name = resp.Info.Name
		}
		if c := resp.CSVInfo; c != nil {
			if info.Name == "" {
				info.Name = c.Company
			}
			if info.Sector == "" {
				info.Sector = c.Sector
			}
			if info.Industry == "" {
				info.Industry = c.Industry
			}
		}
		return &Details{
			Info:          info,
			LastCloseDate: resp.LastCloseDate,
			FirstDate:     resp.FirstDate,
			TotalRecords:  resp.TotalRecords,
		}, nil
	}
	if d.fallback == nil || ctx.Err() != nil {
		return nil, err
	}
	d.log.Warn("ticker details unavailable, using fallback", "ticker", sym, "error", err)
	info, ferr := d.fallback.TickerInfo(ctx, sym)
	if ferr != nil {
		return nil, err
	}
	return &Details{Info: info}, nil
}

// History returns bars for symbol in version from the cache, the backend,
// or the fallback source, in that order. Fallback bars are not cached.
func (d *DetailsLoader) History(ctx context.Context, symbol string, version domain.Version) ([]domain.Bar, domain.Source, error) {
	version = domain.ParseVersion(string(version))
	key := historyKey{symbol: symbol, version: version}

	d.mu.Lock()
	bars, ok := d.cache[key]
	d.mu.Unlock()
	if ok {
		return bars, domain.SourceBackend, nil
	}

	resp, err := d.backend.TickerData(ctx, symbol, tickerapi.DataOptions{Limit: HistoryLimit, Version: string(version)})
	if err == nil {
		bars = barsFromAPI(resp.Data)
		d.mu.Lock()
		d.cache[key] = bars
		d.mu.Unlock()
		if d.fallback != nil {
			d.fallback.Remember(ctx, symbol, version, bars)
		}
		return bars, domain.SourceBackend, nil
	}
	if d.fallback == nil {
		return nil, "", err
	}
	d.log.Warn("ticker history unavailable, using fallback", "ticker", symbol, "version", version, "error", err)
	bars, ferr := d.fallback.History(ctx, symbol, version, HistoryLimit)
	if ferr != nil {
		return nil, "", ferr
	}
	return bars, domain.SourceFallback, nil
}

// ClearCache drops every cached history.
func (d *DetailsLoader) ClearCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.cache)
}

// ClearTickerCache drops the cached history of one symbol in every
// version.
func (d *DetailsLoader) ClearTickerCache(symbol string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k := range d.cache {
		if k.symbol == symbol {
			delete(d.cache, k)
		}
	}
}
