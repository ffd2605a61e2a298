package httpapi

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"stockdash/internal/chart"
	"stockdash/internal/dispatch"
	"stockdash/internal/domain"
	"stockdash/internal/fullscreen"
)

// chartID is the widget and DOM id of a ticker's chart.
func chartID(sym string) string {
	return "chart-" + strings.ToLower(sym)
}

// showChart builds or refreshes the chart of sym from bars and registers
// it as a widget and a fullscreen element.
func (s *Server) showChart(sym string, version domain.Version, bars []domain.Bar) *chart.Chart {
	id := chartID(sym)

	s.chartsMu.Lock()
	c, ok := s.charts[id]
	if !ok {
		c = chart.New(sym, chart.Options{Height: s.chartHeight, Candlestick: true, Volume: true})
		s.charts[id] = c
	}
	s.chartsMu.Unlock()

	var (
		levels []domain.PriceLevel
		zones  []domain.Zone
	)
	if s.levels != nil {
		levels = s.levels.LevelsFor(sym)
		zones = s.levels.ZonesFor(sym)
	}
	c.SetData(version, bars, levels, zones)

	if !ok {
		s.widgets.Register(id, chart.NewWidget(c))
		s.fullscreen.Register(id, c, 0)
	}
	return c
}

// chartOf returns the chart of the symbol in the path, building it from
// history when the details view has not opened it yet.
func (s *Server) chartOf(ctx context.Context, raw string, version domain.Version) (*chart.Chart, error) {
	sym, err := dispatch.NormalizeSymbol(raw)
	if err != nil {
		return nil, err
	}
	s.chartsMu.Lock()
	c, ok := s.charts[chartID(sym)]
	s.chartsMu.Unlock()
	if ok && version == "" {
		return c, nil
	}
	if version == "" {
		version = domain.VersionAdjusted
	}
	bars, _, err := s.details.History(ctx, sym, version)
	if err != nil {
		return nil, err
	}
	return s.showChart(sym, version, bars), nil
}

// dropChart forgets the chart of sym.
func (s *Server) dropChart(sym string) {
	id := chartID(sym)
	s.chartsMu.Lock()
	_, ok := s.charts[id]
	delete(s.charts, id)
	s.chartsMu.Unlock()
	if !ok {
		return
	}
	s.fullscreen.Unregister(id)
	s.widgets.Remove(id)
}

func (s *Server) chartResponse(w http.ResponseWriter, r *http.Request, c *chart.Chart) {
	if isHTMX(r) {
		s.renderWidget(w, r, chartID(c.Symbol()))
		return
	}
	writeJSON(w, c.Figure())
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	var version domain.Version
	if v := r.URL.Query().Get("version"); v != "" {
		version = domain.ParseVersion(v)
	}
	c, err := s.chartOf(r.Context(), r.PathValue("symbol"), version)
	if err != nil {
		writeError(w, errorStatus(err), dispatch.UserMessage(err))
		return
	}
	s.chartResponse(w, r, c)
}

func (s *Server) handleChartMode(w http.ResponseWriter, r *http.Request) {
	c, err := s.chartOf(r.Context(), r.PathValue("symbol"), "")
	if err != nil {
		writeError(w, errorStatus(err), dispatch.UserMessage(err))
		return
	}
	if err := c.SetMode(chart.Mode(r.PathValue("mode"))); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.chartResponse(w, r, c)
}

func (s *Server) handleChartZoom(w http.ResponseWriter, r *http.Request) {
	c, err := s.chartOf(r.Context(), r.PathValue("symbol"), "")
	if err != nil {
		writeError(w, errorStatus(err), dispatch.UserMessage(err))
		return
	}
	from, to := r.FormValue("from"), r.FormValue("to")
	if from == "" || to == "" || from > to {
		writeError(w, http.StatusBadRequest, "zoom needs from <= to (YYYY-MM-DD)")
		return
	}
	c.Zoom(from, to)
	s.chartResponse(w, r, c)
}

func (s *Server) handleChartReset(w http.ResponseWriter, r *http.Request) {
	c, err := s.chartOf(r.Context(), r.PathValue("symbol"), "")
	if err != nil {
		writeError(w, errorStatus(err), dispatch.UserMessage(err))
		return
	}
	c.ResetZoom()
	s.chartResponse(w, r, c)
}

func (s *Server) handleChartExport(w http.ResponseWriter, r *http.Request) {
	c, err := s.chartOf(r.Context(), r.PathValue("symbol"), "")
	if err != nil {
		writeError(w, errorStatus(err), dispatch.UserMessage(err))
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "png"
	}
	opts, err := c.ExportImage(format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, opts)
}

func (s *Server) fullscreenState(id string) FullscreenResponse {
	resp := FullscreenResponse{ID: id, Current: s.fullscreen.Current()}
	resp.Fullscreen = resp.Current == id
	s.chartsMu.Lock()
	if c, ok := s.charts[id]; ok {
		resp.Height = c.Height()
	}
	s.chartsMu.Unlock()
	return resp
}

func (s *Server) handleFullscreenToggle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.fullscreen.Toggle(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, fullscreen.ErrUnknownElement) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	if isHTMX(r) {
		s.renderWidget(w, r, id)
		return
	}
	writeJSON(w, s.fullscreenState(id))
}

func (s *Server) handleFullscreenExit(w http.ResponseWriter, r *http.Request) {
	id := s.fullscreen.Current()
	s.fullscreen.Exit()
	if id == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if isHTMX(r) {
		s.renderWidget(w, r, id)
		return
	}
	writeJSON(w, s.fullscreenState(id))
}

// chartHTML renders the chart widget of sym, or nothing when it is missing.
func (s *Server) chartHTML(ctx context.Context, sym string) template.HTML {
	r, ok := s.widgets.Get(chartID(sym))
	if !ok {
		return ""
	}
	html, err := r.Render(ctx)
	if err != nil {
		s.log.Error("rendering chart", "symbol", sym, "error", err)
		return ""
	}
	return html
}
