// Package httpapi serves the dashboard over HTTP: full pages, HTML
// fragments for htmx gestures, a small JSON API and a WebSocket stream of
// notifications.
package httpapi

import (
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"stockdash/internal/chart"
	"stockdash/internal/component"
	"stockdash/internal/dispatch"
	"stockdash/internal/fullscreen"
	"stockdash/internal/notify"
	"stockdash/internal/refresh"
	"stockdash/internal/table"
	"stockdash/pkg/tickerapi"
)

// Options wire a Server. Levels, Client and Refresh are optional.
type Options struct {
	Title       string
	Tickers     *dispatch.TickerPage
	Details     *dispatch.DetailsLoader
	Levels      *dispatch.LevelsPage
	Notes       *notify.Manager
	Fullscreen  *fullscreen.Manager
	Client      *tickerapi.Client
	Refresh     *refresh.Scheduler
	ChartHeight int
	Logger      *slog.Logger
}

// Server serves the dashboard.
type Server struct {
	title      string
	tickers    *dispatch.TickerPage
	details    *dispatch.DetailsLoader
	levels     *dispatch.LevelsPage
	notes      *notify.Manager
	fullscreen *fullscreen.Manager
	client     *tickerapi.Client
	refresh    *refresh.Scheduler
	hub        *Hub
	widgets    *component.Registry
	log        *slog.Logger

	chartHeight int
	chartsMu    sync.Mutex
	charts      map[string]*chart.Chart
}

// Widget names in the component registry.
const (
	widgetTickers = "tickers"
	widgetLevels  = "levels"
	widgetZones   = "zones"

	widgetCSVPreview = "csv-preview"
)

// New creates a Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Fullscreen == nil {
		opts.Fullscreen = fullscreen.NewManager(opts.Logger)
	}
	if opts.Title == "" {
		opts.Title = "Stock Dashboard"
	}
	s := &Server{
		title:       opts.Title,
		tickers:     opts.Tickers,
		details:     opts.Details,
		levels:      opts.Levels,
		notes:       opts.Notes,
		fullscreen:  opts.Fullscreen,
		client:      opts.Client,
		refresh:     opts.Refresh,
		hub:         NewHub(opts.Notes, opts.Logger),
		widgets:     component.NewRegistry(opts.Logger),
		log:         opts.Logger,
		chartHeight: opts.ChartHeight,
		charts:      make(map[string]*chart.Chart),
	}
	s.widgets.Register(widgetTickers, table.NewWidget(s.tickers.Table()))
	if s.levels != nil {
		s.widgets.Register(widgetLevels, table.NewWidget(s.levels.Levels()))
		s.widgets.Register(widgetZones, table.NewWidget(s.levels.Zones()))
	}
	return s
}

// Hub returns the notification stream.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close destroys every widget.
func (s *Server) Close() {
	s.widgets.DestroyAll()
}

// RegisterRoutes registers all routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /analysis", s.handleAnalysis)

	// Ticker table.
	mux.HandleFunc("GET /fragments/tickers", s.handleTickersFragment)
	s.registerTable(mux, "/actions", widgetTickers, s.tickers.Table())
	mux.HandleFunc("POST /actions/row/{action}/{key}", s.handleTickerRow)
	mux.HandleFunc("POST /actions/tickers", s.handleAddTickers)
	mux.HandleFunc("DELETE /actions/tickers/{symbol}", s.handleRemoveTicker)
	mux.HandleFunc("POST /actions/download/{symbol}", s.handleDownloadTicker)
	mux.HandleFunc("POST /actions/download-all", s.handleDownloadAll)
	mux.HandleFunc("POST /actions/reload", s.handleReload)

	// Details and chart.
	mux.HandleFunc("GET /fragments/ticker/{symbol}", s.handleDetails)
	mux.HandleFunc("DELETE /fragments/ticker", s.handleCloseDetails)
	mux.HandleFunc("GET /api/chart/{symbol}", s.handleChart)
	mux.HandleFunc("POST /api/chart/{symbol}/mode/{mode}", s.handleChartMode)
	mux.HandleFunc("POST /api/chart/{symbol}/zoom", s.handleChartZoom)
	mux.HandleFunc("POST /api/chart/{symbol}/reset", s.handleChartReset)
	mux.HandleFunc("GET /api/chart/{symbol}/export", s.handleChartExport)
	mux.HandleFunc("POST /actions/fullscreen/{id}", s.handleFullscreenToggle)
	mux.HandleFunc("DELETE /actions/fullscreen", s.handleFullscreenExit)

	// Technical analysis.
	if s.levels != nil {
		mux.HandleFunc("GET /fragments/levels", s.handleLevelsFragment)
		mux.HandleFunc("GET /fragments/zones", s.handleZonesFragment)
		s.registerTable(mux, "/actions/levels", widgetLevels, s.levels.Levels())
		s.registerTable(mux, "/actions/zones", widgetZones, s.levels.Zones())
		mux.HandleFunc("POST /actions/levels/filter", s.handleLevelsFilter)
		mux.HandleFunc("POST /actions/zones/filter", s.handleZonesFilter)
		mux.HandleFunc("POST /actions/levels/reload", s.handleAnalysisReload)
		mux.HandleFunc("POST /actions/levels/row/{action}/{key}", s.analysisRow(s.levels.Levels()))
		mux.HandleFunc("POST /actions/zones/row/{action}/{key}", s.analysisRow(s.levels.Zones()))
	}

	// CSV import and export.
	mux.HandleFunc("POST /csv/preview", s.handleCSVPreview)
	mux.HandleFunc("POST /csv/upload", s.handleCSVUpload)
	mux.HandleFunc("GET /export/{file}", s.handleExport)

	// JSON API and push.
	mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	mux.HandleFunc("DELETE /api/notifications", s.handleClearNotifications)
	mux.HandleFunc("DELETE /api/notifications/{id}", s.handleRemoveNotification)
	mux.HandleFunc("GET /api/activities", s.handleActivities)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/connection", s.handleConnection)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.Handle("GET /ws", s.hub)
}

// Handler returns an http.Handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.logRequests(corsMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, HX-Request, HX-Target, HX-Trigger")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeHTML(w http.ResponseWriter, html template.HTML) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

// isHTMX reports whether r was issued by htmx, which expects a fragment
// even when the gesture failed.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// errorStatus maps a gesture error to an HTTP status.
func errorStatus(err error) int {
	var apiErr *tickerapi.APIError
	switch {
	case dispatch.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, tickerapi.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// renderWidget renders a registered widget as the whole response.
func (s *Server) renderWidget(w http.ResponseWriter, r *http.Request, name string) {
	runner, ok := s.widgets.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown widget "+name)
		return
	}
	html, err := runner.Render(r.Context())
	if err != nil {
		s.log.Error("rendering widget", "widget", name, "error", err)
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	writeHTML(w, html)
}

// respond finishes a gesture on a table widget. htmx callers get the
// fragment whatever the outcome, since failures reach the user as
// notifications; other callers get a JSON error.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, widget string, err error) {
	if err != nil && !isHTMX(r) {
		writeError(w, errorStatus(err), dispatch.UserMessage(err))
		return
	}
	s.renderWidget(w, r, widget)
}

// registerTable wires the state gestures of one table under prefix.
func (s *Server) registerTable(mux *http.ServeMux, prefix, widget string, t *table.Table) {
	mux.HandleFunc("POST "+prefix+"/search", func(w http.ResponseWriter, r *http.Request) {
		t.Search(r.FormValue("q"))
		s.renderWidget(w, r, widget)
	})
	mux.HandleFunc("POST "+prefix+"/sort/{field}", func(w http.ResponseWriter, r *http.Request) {
		if !t.ToggleSort(r.PathValue("field")) {
			s.log.Debug("sort ignored", "table", widget, "field", r.PathValue("field"))
		}
		s.renderWidget(w, r, widget)
	})
	mux.HandleFunc("POST "+prefix+"/page/{n}", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.PathValue("n"))
		t.GoToPage(n)
		s.renderWidget(w, r, widget)
	})
	pageSize := func(w http.ResponseWriter, r *http.Request, raw string) {
		n, _ := strconv.Atoi(raw)
		if !t.SetPageSize(n) && !isHTMX(r) {
			writeError(w, http.StatusBadRequest, "invalid page size")
			return
		}
		s.renderWidget(w, r, widget)
	}
	mux.HandleFunc("POST "+prefix+"/page-size", func(w http.ResponseWriter, r *http.Request) {
		pageSize(w, r, r.FormValue("size"))
	})
	mux.HandleFunc("POST "+prefix+"/page-size/{n}", func(w http.ResponseWriter, r *http.Request) {
		pageSize(w, r, r.PathValue("n"))
	})
	mux.HandleFunc("POST "+prefix+"/clear-filters", func(w http.ResponseWriter, r *http.Request) {
		t.ClearFilters()
		s.renderWidget(w, r, widget)
	})
}

// applyQuery replays table state carried in a fragment URL.
func applyQuery(t *table.Table, r *http.Request) {
	q := r.URL.Query()
	if q.Has("q") {
		t.Search(q.Get("q"))
	}
	if q.Has("sector") {
		t.SetEquals("sector", q.Get("sector"))
	}
	if q.Has("type") {
		t.SetEquals("type", q.Get("type"))
	}
	if f := q.Get("sort"); f != "" {
		t.SortBy(f, table.Direction(q.Get("dir")))
	}
	if n, err := strconv.Atoi(q.Get("size")); err == nil {
		t.SetPageSize(n)
	}
	if n, err := strconv.Atoi(q.Get("page")); err == nil {
		t.GoToPage(n)
	}
}
