package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"stockdash/internal/dispatch"
	"stockdash/internal/table"
)

// ---------------------------------------------------------------------------
// Technical analysis
// ---------------------------------------------------------------------------

func (s *Server) handleLevelsFragment(w http.ResponseWriter, r *http.Request) {
	applyQuery(s.levels.Levels(), r)
	s.renderWidget(w, r, widgetLevels)
}

func (s *Server) handleZonesFragment(w http.ResponseWriter, r *http.Request) {
	applyQuery(s.levels.Zones(), r)
	s.renderWidget(w, r, widgetZones)
}

func minStrength(r *http.Request) float64 {
	v, _ := strconv.ParseFloat(r.FormValue("min_strength"), 64)
	return v
}

func (s *Server) handleLevelsFilter(w http.ResponseWriter, r *http.Request) {
	s.levels.FilterLevels(dispatch.LevelFilter{
		Ticker:      r.FormValue("ticker"),
		Type:        r.FormValue("type"),
		MinStrength: minStrength(r),
	})
	s.renderWidget(w, r, widgetLevels)
}

func (s *Server) handleZonesFilter(w http.ResponseWriter, r *http.Request) {
	s.levels.FilterZones(dispatch.ZoneFilter{
		Ticker:      r.FormValue("ticker"),
		Type:        r.FormValue("type"),
		Pattern:     r.FormValue("pattern"),
		MinStrength: minStrength(r),
	})
	s.renderWidget(w, r, widgetZones)
}

func (s *Server) handleAnalysisReload(w http.ResponseWriter, r *http.Request) {
	err := s.levels.Reload(r.Context())
	s.respond(w, r, widgetLevels, err)
}

// analysisRow opens the chart of the ticker a levels or zones row belongs
// to.
func (s *Server) analysisRow(t *table.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("action") != "chart" {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown action %q", r.PathValue("action")))
			return
		}
		row, ok := t.Row(r.PathValue("key"))
		if !ok {
			writeError(w, http.StatusNotFound, "row not found")
			return
		}
		sym, _ := row["ticker"].(string)
		s.renderDetails(w, r, sym)
	}
}

// ---------------------------------------------------------------------------
// Notifications and activity
// ---------------------------------------------------------------------------

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	active := s.notes.Active()
	out := make([]NotificationJSON, 0, len(active))
	for _, n := range active {
		out = append(out, notificationJSON(n))
	}
	writeJSON(w, out)
}

func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	s.notes.RemoveAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveNotification(w http.ResponseWriter, r *http.Request) {
	if !s.notes.Remove(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list := s.notes.Activities(limit)
	out := make([]ActivityJSON, 0, len(list))
	for _, a := range list {
		out = append(out, ActivityJSON{
			ID:      a.ID,
			Message: a.Message,
			Level:   string(a.Level),
			Time:    a.Time.UnixMilli(),
			Ago:     humanize.Time(a.Time),
		})
	}
	writeJSON(w, out)
}

// ---------------------------------------------------------------------------
// Status and backend passthrough
// ---------------------------------------------------------------------------

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	src, loadedAt := s.tickers.Source()
	updated, pending := s.badgeCounts()
	resp := StatusResponse{
		Source:     string(src),
		LoadedAt:   unixMilli(loadedAt),
		Tickers:    s.tickers.Table().Len(),
		Updated:    updated,
		Pending:    pending,
		Clients:    s.hub.Clients(),
		Fullscreen: s.fullscreen.Current(),
	}
	if s.refresh != nil {
		resp.NextRefresh = unixMilli(s.refresh.Next())
	}
	writeJSON(w, resp)
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	if s.client == nil {
		writeError(w, http.StatusServiceUnavailable, "no backend client configured")
		return
	}
	start := time.Now()
	res, err := s.client.TestConnection(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), dispatch.UserMessage(err))
		return
	}
	writeJSON(w, map[string]any{
		"status":    res.Status,
		"message":   res.Message,
		"tests":     res.Tests,
		"latencyMs": time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.client == nil {
		writeError(w, http.StatusServiceUnavailable, "no backend client configured")
		return
	}
	stats, err := s.client.Stats(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), dispatch.UserMessage(err))
		return
	}
	writeJSON(w, stats)
}
