package httpapi

import (
	"errors"
	"html/template"
	"net/http"
	"strings"

	"stockdash/internal/dispatch"
	"stockdash/internal/domain"
	"stockdash/internal/status"
)

const htmxScript = `<script src="https://unpkg.com/htmx.org@1.9.12"></script>`

var pageFuncs = template.FuncMap{
	"lower": strings.ToLower,
	"date": func(b domain.Bar) string {
		return b.Date.Format("2006-01-02")
	},
}

var layoutTmpl = template.Must(template.New("layout").Funcs(pageFuncs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css">
` + htmxScript + `
<script src="https://cdn.plot.ly/plotly-2.35.2.min.js"></script>
</head>
<body hx-headers='{"HX-Request": "true"}'>
<nav class="navbar navbar-dark bg-dark mb-3"><div class="container-fluid">
<a class="navbar-brand" href="/">{{.Title}}</a>
<div class="navbar-nav flex-row gap-3">
<a class="nav-link" href="/">Tickers</a>
{{- if .Analysis}}<a class="nav-link" href="/analysis">Technical analysis</a>{{end}}
</div>
</div></nav>
<div id="notifications" class="position-fixed top-0 end-0 p-3" style="z-index: 1080"></div>
<main class="container-fluid">
{{.Body}}
</main>
<script>
(function () {
  var box = document.getElementById("notifications");
  function show(n) {
    var el = document.createElement("div");
    el.id = "note-" + n.id;
    el.className = "alert alert-" + (n.level === "error" ? "danger" : n.level) + " alert-dismissible";
    el.textContent = n.message;
    var btn = document.createElement("button");
    btn.className = "btn-close";
    btn.onclick = function () { fetch("/api/notifications/" + n.id, {method: "DELETE"}); };
    el.appendChild(btn);
    box.appendChild(el);
  }
  function connect() {
    var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.onmessage = function (m) {
      var ev = JSON.parse(m.data);
      if (ev.type === "snapshot") { box.innerHTML = ""; (ev.active || []).forEach(show); }
      if (ev.type === "show") { show(ev.notification); }
      if (ev.type === "remove") { var el = document.getElementById("note-" + ev.id); if (el) el.remove(); }
      if (ev.type === "clear") { box.innerHTML = ""; }
    };
    ws.onclose = function () { setTimeout(connect, 3000); };
  }
  connect();
  document.addEventListener("keydown", function (e) {
    if (e.key === "Escape") { fetch("/actions/fullscreen", {method: "DELETE"}); }
  });
})();
</script>
</body>
</html>`))

var indexTmpl = template.Must(template.New("index").Funcs(pageFuncs).Parse(`
{{- if .Fallback}}
<div class="alert alert-warning">Backend unavailable. Showing {{.Tickers}} tickers saved {{.LoadedAt}}; actions are disabled.</div>
{{- end}}
<div class="row mb-3">
<div class="col"><div class="card"><div class="card-body"><h6>Tickers</h6><p class="fs-4 mb-0">{{.Tickers}}</p></div></div></div>
<div class="col"><div class="card"><div class="card-body"><h6>Updated</h6><p class="fs-4 mb-0 text-success">{{.Updated}}</p></div></div></div>
<div class="col"><div class="card"><div class="card-body"><h6>Pending</h6><p class="fs-4 mb-0 text-warning">{{.Pending}}</p></div></div></div>
</div>
<div class="row mb-3 g-2">
<form class="col-md-6 d-flex gap-2" hx-post="/actions/tickers" hx-target="#tickers-widget">
<input class="form-control" name="ticker" placeholder="AAPL or AAPL, MSFT, GOOGL" required>
<button class="btn btn-primary">Add</button>
</form>
<div class="col-md-6 d-flex gap-2 justify-content-end">
<button class="btn btn-outline-primary" hx-post="/actions/download-all" hx-target="#tickers-widget"{{if .Fallback}} disabled{{end}}>Download all</button>
<button class="btn btn-outline-secondary" hx-post="/actions/reload" hx-target="#tickers-widget">Reload</button>
<a class="btn btn-outline-secondary" href="/export/tickers.csv">CSV</a>
<a class="btn btn-outline-secondary" href="/export/tickers.parquet">Parquet</a>
</div>
</div>
<form class="mb-3" hx-post="/csv/preview" hx-target="#csvPreview" hx-encoding="multipart/form-data" hx-trigger="change from:#csvFile">
<div class="input-group">
<input class="form-control" type="file" id="csvFile" name="csvFile" accept=".csv">
<label class="input-group-text"><input class="form-check-input me-1" type="checkbox" name="downloadData" checked> download data</label>
<label class="input-group-text"><input class="form-check-input me-1" type="checkbox" name="replaceExisting"> replace existing</label>
<button class="btn btn-success" hx-post="/csv/upload" hx-target="#csvPreview" hx-encoding="multipart/form-data"{{if .Fallback}} disabled{{end}}>Upload</button>
</div>
<div id="csvPreview" class="mt-2"></div>
</form>
<div id="tickers-widget">{{.Table}}</div>
<div id="tickerDetails" class="mt-3"></div>
`))

var analysisTmpl = template.Must(template.New("analysis").Parse(`
<div class="row mb-3">
<div class="col"><div class="card"><div class="card-body"><h6>Supports</h6><p class="fs-4 mb-0 text-success">{{.Supports}}</p></div></div></div>
<div class="col"><div class="card"><div class="card-body"><h6>Resistances</h6><p class="fs-4 mb-0 text-danger">{{.Resistances}}</p></div></div></div>
<div class="col"><div class="card"><div class="card-body"><h6>Supply zones</h6><p class="fs-4 mb-0 text-danger">{{.Supply}}</p></div></div></div>
<div class="col"><div class="card"><div class="card-body"><h6>Demand zones</h6><p class="fs-4 mb-0 text-success">{{.Demand}}</p></div></div></div>
</div>
<button class="btn btn-outline-secondary mb-3" hx-post="/actions/levels/reload" hx-target="#levels-widget">Reload</button>
<h5>Support and resistance</h5>
<form class="d-flex gap-2 mb-2" hx-post="/actions/levels/filter" hx-target="#levels-widget" hx-trigger="change">
<input class="form-control" name="ticker" placeholder="Ticker">
<select class="form-select" name="type"><option value="">All types</option><option>Support</option><option>Resistance</option></select>
<input class="form-control" type="number" step="0.5" name="min_strength" placeholder="Min strength">
</form>
<div id="levels-widget">{{.Levels}}</div>
<h5 class="mt-4">Supply and demand zones</h5>
<form class="d-flex gap-2 mb-2" hx-post="/actions/zones/filter" hx-target="#zones-widget" hx-trigger="change">
<input class="form-control" name="ticker" placeholder="Ticker">
<select class="form-select" name="type"><option value="">All types</option><option>Supply</option><option>Demand</option></select>
<input class="form-control" name="pattern" placeholder="Pattern">
<input class="form-control" type="number" step="0.5" name="min_strength" placeholder="Min strength">
</form>
<div id="zones-widget">{{.Zones}}</div>
<div id="tickerDetails" class="mt-3"></div>
`))

var detailsTmpl = template.Must(template.New("details").Funcs(pageFuncs).Parse(`<div class="card" id="details-{{lower .Info.Symbol}}">
<div class="card-header d-flex justify-content-between align-items-center">
<h5 class="mb-0">{{.Info.Symbol}} <small class="text-muted">{{.Info.Name}}</small></h5>
<button class="btn-close" hx-delete="/fragments/ticker" hx-target="#tickerDetails"></button>
</div>
<div class="card-body">
{{- if eq .Info.Source "fallback"}}
<div class="alert alert-warning">Details are from local data; the backend could not be reached.</div>
{{- end}}
<dl class="row">
<dt class="col-sm-3">Sector</dt><dd class="col-sm-9">{{or .Info.Sector "-"}}</dd>
<dt class="col-sm-3">Industry</dt><dd class="col-sm-9">{{or .Info.Industry "-"}}</dd>
<dt class="col-sm-3">Exchange</dt><dd class="col-sm-9">{{or .Info.Exchange "-"}}</dd>
<dt class="col-sm-3">Period</dt><dd class="col-sm-9">{{or .FirstDate "-"}} to {{or .LastCloseDate "-"}}</dd>
<dt class="col-sm-3">Records</dt><dd class="col-sm-9">{{.TotalRecords}}</dd>
</dl>
<div class="btn-group mb-2" role="group">
<input type="radio" class="btn-check" name="version" id="v-adj" value="adjusted"{{if eq .Version "adjusted"}} checked{{end}}
 hx-get="/fragments/ticker/{{.Info.Symbol}}?version=adjusted" hx-target="#tickerDetails">
<label class="btn btn-outline-primary" for="v-adj">Adjusted</label>
<input type="radio" class="btn-check" name="version" id="v-raw" value="raw"{{if eq .Version "raw"}} checked{{end}}
 hx-get="/fragments/ticker/{{.Info.Symbol}}?version=raw" hx-target="#tickerDetails">
<label class="btn btn-outline-primary" for="v-raw">Not adjusted</label>
</div>
{{- if eq .HistorySource "fallback"}}
<div class="alert alert-info">Price history is generated locally.</div>
{{- end}}
{{.Chart}}
<table class="table table-sm mt-3">
<thead><tr><th>Date</th><th>Open</th><th>High</th><th>Low</th><th>Close</th><th>Volume</th></tr></thead>
<tbody>
{{- range .Recent}}
<tr><td>{{date .}}</td><td>{{printf "%.2f" .Open}}</td><td>{{printf "%.2f" .High}}</td><td>{{printf "%.2f" .Low}}</td><td>{{printf "%.2f" .Close}}</td><td>{{.Volume}}</td></tr>
{{- else}}
<tr><td colspan="6" class="text-muted">No price history</td></tr>
{{- end}}
</tbody>
</table>
</div>
</div>`))

// recentBars is how many rows the details table shows.
const recentBars = 10

func (s *Server) page(w http.ResponseWriter, body *template.Template, data any) {
	var b strings.Builder
	if err := body.Execute(&b, data); err != nil {
		s.log.Error("rendering page", "page", body.Name(), "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := layoutTmpl.Execute(w, map[string]any{
		"Title":    s.title,
		"Analysis": s.levels != nil,
		"Body":     template.HTML(b.String()),
	})
	if err != nil {
		s.log.Error("rendering layout", "error", err)
	}
}

// badgeCounts tallies the status badges of every loaded ticker.
func (s *Server) badgeCounts() (updated, pending int) {
	rows := s.tickers.Table().Rows()
	badges := make([]status.Badge, 0, len(rows))
	for _, r := range rows {
		if b, ok := r["status"].(status.Badge); ok {
			badges = append(badges, b)
		}
	}
	return status.Counts(badges)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.tickers.Table().Len() == 0 {
		// Failures are already notified; the page still renders.
		_ = s.tickers.Reload(r.Context())
	}
	runner, _ := s.widgets.Get(widgetTickers)
	html, err := runner.Render(r.Context())
	if err != nil {
		s.log.Error("rendering tickers", "error", err)
	}
	src, loadedAt := s.tickers.Source()
	updated, pending := s.badgeCounts()
	s.page(w, indexTmpl, map[string]any{
		"Fallback": src == domain.SourceFallback,
		"LoadedAt": loadedAt.Format("2006-01-02 15:04"),
		"Tickers":  s.tickers.Table().Len(),
		"Updated":  updated,
		"Pending":  pending,
		"Table":    html,
	})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.levels == nil {
		http.NotFound(w, r)
		return
	}
	if s.levels.Levels().Len() == 0 && s.levels.Zones().Len() == 0 {
		_ = s.levels.Reload(r.Context())
	}
	levels, _ := s.widgets.Get(widgetLevels)
	zones, _ := s.widgets.Get(widgetZones)
	lh, err := levels.Render(r.Context())
	if err != nil {
		s.log.Error("rendering levels", "error", err)
	}
	zh, err := zones.Render(r.Context())
	if err != nil {
		s.log.Error("rendering zones", "error", err)
	}
	sup, res, supply, demand := s.levels.Counts()
	s.page(w, analysisTmpl, map[string]any{
		"Supports":    sup,
		"Resistances": res,
		"Supply":      supply,
		"Demand":      demand,
		"Levels":      lh,
		"Zones":       zh,
	})
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	s.renderDetails(w, r, r.PathValue("symbol"))
}

// renderDetails opens the details view of raw and answers with its
// fragment. A request made while another load is running gets 204.
func (s *Server) renderDetails(w http.ResponseWriter, r *http.Request, raw string) {
	version := domain.ParseVersion(r.URL.Query().Get("version"))
	det, err := s.details.Open(r.Context(), raw, version)
	switch {
	case errors.Is(err, dispatch.ErrBusy):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		if !isHTMX(r) {
			writeError(w, errorStatus(err), dispatch.UserMessage(err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(alertHTML("danger", dispatch.UserMessage(err))))
		return
	}

	s.showChart(det.Info.Symbol, det.Version, det.Bars)
	if !isHTMX(r) {
		writeJSON(w, det)
		return
	}

	recent := det.Bars
	if len(recent) > recentBars {
		recent = recent[len(recent)-recentBars:]
	}
	recent = reversed(recent)
	var b strings.Builder
	err = detailsTmpl.Execute(&b, map[string]any{
		"Info":          det.Info,
		"FirstDate":     det.FirstDate,
		"LastCloseDate": det.LastCloseDate,
		"TotalRecords":  det.TotalRecords,
		"Version":       string(det.Version),
		"HistorySource": string(det.HistorySource),
		"Chart":         s.chartHTML(r.Context(), det.Info.Symbol),
		"Recent":        recent,
	})
	if err != nil {
		s.log.Error("rendering details", "symbol", det.Info.Symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	writeHTML(w, template.HTML(b.String()))
}

func reversed(bars []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, len(bars))
	for i, b := range bars {
		out[len(bars)-1-i] = b
	}
	return out
}

func (s *Server) handleCloseDetails(w http.ResponseWriter, r *http.Request) {
	s.fullscreen.Exit()
	if det := s.details.Current(); det != nil {
		s.dropChart(det.Info.Symbol)
	}
	s.details.Close()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
}
