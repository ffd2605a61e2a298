package httpapi

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"

	"stockdash/internal/csvimport"
	"stockdash/internal/dispatch"
	"stockdash/internal/table"
	"stockdash/pkg/tickerapi"
)

// maxUploadBytes bounds CSV uploads.
const maxUploadBytes = 10 << 20

func (s *Server) handleTickersFragment(w http.ResponseWriter, r *http.Request) {
	applyQuery(s.tickers.Table(), r)
	s.renderWidget(w, r, widgetTickers)
}

func (s *Server) handleTickerRow(w http.ResponseWriter, r *http.Request) {
	action, key := r.PathValue("action"), r.PathValue("key")
	if action == "view" {
		s.renderDetails(w, r, key)
		return
	}
	if _, ok := s.tickers.Table().Action(action); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown action %q", action))
		return
	}
	err := s.tickers.RowAction(r.Context(), action, key)
	s.respond(w, r, widgetTickers, err)
}

func (s *Server) handleAddTickers(w http.ResponseWriter, r *http.Request) {
	res, err := s.tickers.AddTickers(r.Context(), r.FormValue("ticker"))
	if !isHTMX(r) && err == nil {
		resp := ActionResponse{OK: true}
		if res != nil {
			resp = ActionResponse{OK: res.SuccessCount > 0, Message: res.Message()}
		}
		writeJSON(w, resp)
		return
	}
	s.respond(w, r, widgetTickers, err)
}

func (s *Server) handleRemoveTicker(w http.ResponseWriter, r *http.Request) {
	err := s.tickers.RemoveTicker(r.Context(), r.PathValue("symbol"))
	s.respond(w, r, widgetTickers, err)
}

func (s *Server) handleDownloadTicker(w http.ResponseWriter, r *http.Request) {
	err := s.tickers.DownloadTicker(r.Context(), r.PathValue("symbol"))
	s.respond(w, r, widgetTickers, err)
}

func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	res, err := s.tickers.DownloadAll(r.Context())
	if !isHTMX(r) && err == nil {
		writeJSON(w, ActionResponse{OK: true, Message: res.Message})
		return
	}
	s.respond(w, r, widgetTickers, err)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	err := s.tickers.Reload(r.Context())
	s.respond(w, r, widgetTickers, err)
}

// readCSV reads the csvFile form field.
func readCSV(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", nil, &csvimport.ValidationError{Reason: "invalid upload: " + err.Error()}
	}
	f, hdr, err := r.FormFile("csvFile")
	if err != nil {
		return "", nil, &csvimport.ValidationError{Reason: "select a CSV file"}
	}
	defer f.Close()
	if !strings.HasSuffix(strings.ToLower(hdr.Filename), ".csv") {
		return "", nil, &csvimport.ValidationError{Reason: "file must have a .csv extension"}
	}
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	return hdr.Filename, data, nil
}

func alertHTML(level, msg string) string {
	return fmt.Sprintf(`<div class="alert alert-%s" role="alert">%s</div>`, level, template.HTMLEscapeString(msg))
}

func (s *Server) handleCSVPreview(w http.ResponseWriter, r *http.Request) {
	_, data, err := readCSV(r)
	if err != nil {
		s.csvError(w, r, err)
		return
	}

	runner := s.widgets.Register(widgetCSVPreview, csvimport.NewWidget(string(data)))
	html, err := runner.Render(r.Context())
	if err != nil {
		s.widgets.Remove(widgetCSVPreview)
		s.csvError(w, r, err)
		return
	}
	p := runner.Component().(*csvimport.Widget).Preview()
	if !isHTMX(r) {
		writeJSON(w, map[string]any{"headers": p.Headers, "rows": p.Rows, "total": p.TotalRows, "symbols": p.Symbols()})
		return
	}
	writeHTML(w, html)
}

func (s *Server) handleCSVUpload(w http.ResponseWriter, r *http.Request) {
	name, data, err := readCSV(r)
	if err != nil {
		s.csvError(w, r, err)
		return
	}
	opts := tickerapi.UploadOptions{
		DownloadData:    formBool(r, "downloadData"),
		ReplaceExisting: formBool(r, "replaceExisting"),
	}
	rep, err := s.tickers.UploadCSV(r.Context(), name, data, opts)
	if err != nil && rep == nil {
		s.csvError(w, r, err)
		return
	}
	s.widgets.Remove(widgetCSVPreview)
	if !isHTMX(r) {
		writeJSON(w, rep)
		return
	}
	html, err := csvimport.RenderReport(*rep)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	writeHTML(w, html)
}

func (s *Server) csvError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	var ve *csvimport.ValidationError
	if errors.As(err, &ve) {
		status = http.StatusBadRequest
	}
	if !isHTMX(r) {
		writeError(w, status, dispatch.UserMessage(err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, alertHTML("danger", dispatch.UserMessage(err)))
}

func formBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.FormValue(key))
	return v || r.FormValue(key) == "on"
}

// exportTables maps export names to tables.
func (s *Server) exportTable(name string) (*table.Table, bool) {
	switch name {
	case "tickers":
		return s.tickers.Table(), true
	case "levels":
		if s.levels != nil {
			return s.levels.Levels(), true
		}
	case "zones":
		if s.levels != nil {
			return s.levels.Zones(), true
		}
	}
	return nil, false
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	name, ext, ok := strings.Cut(file, ".")
	t, found := s.exportTable(name)
	if !ok || !found {
		writeError(w, http.StatusNotFound, "unknown export "+file)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file))
	var err error
	switch ext {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = t.ExportCSV(w)
	case "parquet":
		w.Header().Set("Content-Type", "application/vnd.apache.parquet")
		err = t.ExportParquet(w)
	default:
		w.Header().Del("Content-Disposition")
		writeError(w, http.StatusBadRequest, "unsupported format "+ext)
		return
	}
	if err != nil {
		s.log.Error("export failed", "file", file, "error", err)
	}
}
