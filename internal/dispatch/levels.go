package dispatch

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"stockdash/internal/domain"
	"stockdash/internal/table"
)

// DOM ids of the analysis tables.
const (
	LevelsTableID = "levels-table"
	ZonesTableID  = "zones-table"
)

// LevelsPage shows the support/resistance levels and supply/demand zones
// computed by the backend.
type LevelsPage struct {
	backend AnalysisBackend
	notes   Notifier
	log     *slog.Logger

	levels *table.Table
	zones  *table.Table

	mu        sync.RWMutex
	levelData []domain.PriceLevel
	zoneData  []domain.Zone
}

// StrengthClass is the bar colour for a strength score.
func StrengthClass(strength float64) string {
	switch {
	case strength >= 4:
		return "bg-success"
	case strength >= 3:
		return "bg-warning"
	default:
		return "bg-danger"
	}
}

func strengthBar(v any) template.HTML {
	s, ok := v.(float64)
	if !ok {
		return ""
	}
	width := min(s*20, 100)
	return template.HTML(fmt.Sprintf(
		`<div class="d-flex align-items-center"><div class="progress flex-grow-1 me-2" style="height: 8px;"><div class="progress-bar %s" style="width: %.0f%%"></div></div><small class="text-muted">%.1f</small></div>`,
		StrengthClass(s), width, s))
}

func signedPct(v any) template.HTML {
	p, ok := v.(float64)
	if !ok {
		return ""
	}
	class, sign := "text-danger", ""
	if p > 0 {
		class, sign = "text-success", "+"
	}
	return template.HTML(fmt.Sprintf(`<span class="%s">%s%.2f%%</span>`, class, sign, p))
}

// NewLevelsPage creates both tables with no data.
func NewLevelsPage(backend AnalysisBackend, notes Notifier, formats *table.Formats, pageSizes []int, pageSize int, log *slog.Logger) *LevelsPage {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	chartAction := table.Action{Name: "chart", Label: "Chart", Icon: "bi bi-graph-up", Class: "btn-outline-primary", Target: "#tickerDetails"}
	return &LevelsPage{
		backend: backend,
		notes:   notes,
		log:     log,
		levels: table.New(table.Options{
			ID:       LevelsTableID,
			KeyField: "id",
			Columns: []table.Column{
				{Key: "ticker", Title: "Ticker", Sortable: true, ClassName: "fw-bold"},
				{Key: "date", Title: "Date", Type: table.TypeDate, Format: table.FormatDate, Sortable: true},
				{Key: "type", Title: "Type", Sortable: true},
				{Key: "level", Title: "Level", Type: table.TypeNumber, Format: table.FormatCurrency, Sortable: true, ClassName: "font-monospace"},
				{Key: "strength", Title: "Strength", Type: table.TypeNumber, Sortable: true, Formatter: strengthBar},
				{Key: "touches", Title: "Touches", Type: table.TypeNumber, Sortable: true},
				{Key: "distance_pct", Title: "Distance", Type: table.TypeNumber, Sortable: true, Formatter: signedPct},
			},
			SearchFields: []string{"ticker"},
			PageSizes:    pageSizes,
			PageSize:     pageSize,
			Formats:      formats,
			EmptyMessage: "No support/resistance levels found",
			ActionPath:   "/actions/levels",
			Actions:      []table.Action{chartAction},
		}),
		zones: table.New(table.Options{
			ID:       ZonesTableID,
			KeyField: "zone_id",
			Columns: []table.Column{
				{Key: "ticker", Title: "Ticker", Sortable: true, ClassName: "fw-bold"},
				{Key: "date", Title: "Date", Type: table.TypeDate, Format: table.FormatDate, Sortable: true},
				{Key: "pattern", Title: "Pattern", Sortable: true},
				{Key: "type", Title: "Type", Sortable: true},
				{Key: "zone_bottom", Title: "Bottom", Type: table.TypeNumber, Format: table.FormatCurrency, Sortable: true},
				{Key: "zone_top", Title: "Top", Type: table.TypeNumber, Format: table.FormatCurrency, Sortable: true},
				{Key: "zone_thickness_pct", Title: "Thickness %", Type: table.TypeNumber, Format: table.FormatNumber, Sortable: true},
				{Key: "strength_score", Title: "Strength", Type: table.TypeNumber, Sortable: true, Formatter: strengthBar},
				{Key: "distance_from_current", Title: "Distance", Type: table.TypeNumber, Sortable: true, Formatter: signedPct},
				{Key: "virgin_zone", Title: "Virgin", Type: table.TypeBoolean, Format: table.FormatBoolean, Sortable: true},
			},
			SearchFields: []string{"ticker", "pattern"},
			PageSizes:    pageSizes,
			PageSize:     pageSize,
			Formats:      formats,
			EmptyMessage: "No supply/demand zones found",
			ActionPath:   "/actions/zones",
			Actions:      []table.Action{chartAction},
		}),
	}
}

// Levels returns the levels table.
func (p *LevelsPage) Levels() *table.Table { return p.levels }

// Zones returns the zones table.
func (p *LevelsPage) Zones() *table.Table { return p.zones }

// Reload fetches levels and zones concurrently. A table whose fetch fails
// keeps its previous rows.
func (p *LevelsPage) Reload(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		levels, err := p.backend.Levels(ctx)
		if err != nil {
			return fmt.Errorf("load levels: %w", err)
		}
		records := make([]table.Record, 0, len(levels))
		data := make([]domain.PriceLevel, 0, len(levels))
		for _, l := range levels {
			records = append(records, levelRecord(l))
			data = append(data, levelFromAPI(l))
		}
		p.levels.SetData(records)
		p.mu.Lock()
		p.levelData = data
		p.mu.Unlock()
		return nil
	})
	g.Go(func() error {
		zones, err := p.backend.Zones(ctx)
		if err != nil {
			return fmt.Errorf("load zones: %w", err)
		}
		records := make([]table.Record, 0, len(zones))
		data := make([]domain.Zone, 0, len(zones))
		for _, z := range zones {
			records = append(records, zoneRecord(z))
			data = append(data, zoneFromAPI(z))
		}
		p.zones.SetData(records)
		p.mu.Lock()
		p.zoneData = data
		p.mu.Unlock()
		return nil
	})
	if err := g.Wait(); err != nil {
		p.log.Error("analysis reload failed", "error", err)
		p.notes.Show("Error loading technical analysis: "+UserMessage(err), domain.LevelError, notifyDefault)
		return err
	}
	p.log.Debug("analysis reloaded", "levels", p.levels.Len(), "zones", p.zones.Len())
	return nil
}

// LevelFilter narrows the levels table. Empty fields and a zero
// MinStrength mean "any".
type LevelFilter struct {
	Ticker      string
	Type        string
	MinStrength float64
}

// FilterLevels applies f to the levels table.
func (p *LevelsPage) FilterLevels(f LevelFilter) {
	p.levels.Search(strings.ToUpper(strings.TrimSpace(f.Ticker)))
	p.levels.SetEquals("type", f.Type)
	if f.MinStrength > 0 {
		p.levels.SetMinimum("strength", f.MinStrength)
	} else {
		p.levels.ClearMinimum("strength")
	}
}

// ZoneFilter narrows the zones table.
type ZoneFilter struct {
	Ticker      string
	Type        string
	Pattern     string
	MinStrength float64
}

// FilterZones applies f to the zones table.
func (p *LevelsPage) FilterZones(f ZoneFilter) {
	p.zones.Search(strings.ToUpper(strings.TrimSpace(f.Ticker)))
	p.zones.SetEquals("type", f.Type)
	p.zones.SetEquals("pattern", f.Pattern)
	if f.MinStrength > 0 {
		p.zones.SetMinimum("strength_score", f.MinStrength)
	} else {
		p.zones.ClearMinimum("strength_score")
	}
}

// LevelsFor returns the loaded levels of symbol.
func (p *LevelsPage) LevelsFor(symbol string) []domain.PriceLevel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []domain.PriceLevel
	for _, l := range p.levelData {
		if strings.EqualFold(l.Ticker, symbol) {
			out = append(out, l)
		}
	}
	return out
}

// ZonesFor returns the loaded zones of symbol.
func (p *LevelsPage) ZonesFor(symbol string) []domain.Zone {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []domain.Zone
	for _, z := range p.zoneData {
		if strings.EqualFold(z.Ticker, symbol) {
			out = append(out, z)
		}
	}
	return out
}

// Counts summarises the loaded analysis by kind.
func (p *LevelsPage) Counts() (supports, resistances, supply, demand int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, l := range p.levelData {
		switch l.Kind {
		case domain.LevelSupport:
			supports++
		case domain.LevelResistance:
			resistances++
		}
	}
	for _, z := range p.zoneData {
		switch z.Kind {
		case domain.ZoneSupply:
			supply++
		case domain.ZoneDemand:
			demand++
		}
	}
	return supports, resistances, supply, demand
}
