// Package backendtest provides an in-memory stock-data backend speaking the
// REST API of pkg/tickerapi, for tests.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"stockdash/pkg/tickerapi"
)

// Backend is a fake backend, safe for concurrent use.
type Backend struct {
	mu      sync.Mutex
	tickers map[string]tickerapi.TickerStatus
	bars    map[string][]tickerapi.Bar
	levels  []tickerapi.Level
	zones   []tickerapi.Zone
	down    bool
	calls   map[string]int
}

// New returns a backend tracking the given tickers.
func New(tickers ...tickerapi.TickerStatus) *Backend {
	b := &Backend{
		tickers: make(map[string]tickerapi.TickerStatus),
		bars:    make(map[string][]tickerapi.Bar),
		calls:   make(map[string]int),
	}
	for _, t := range tickers {
		b.tickers[t.Ticker] = t
	}
	return b
}

// Start serves b on a test server closed at the end of the test and
// returns a client for it.
func (b *Backend) Start(t *testing.T) *tickerapi.Client {
	t.Helper()
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return tickerapi.NewClient(srv.URL)
}

// SetDown makes every request fail with HTTP 503.
func (b *Backend) SetDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

// SetBars sets the history returned for symbol.
func (b *Backend) SetBars(symbol string, bars []tickerapi.Bar) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bars[symbol] = bars
}

// SetAnalysis sets the technical-analysis replies.
func (b *Backend) SetAnalysis(levels []tickerapi.Level, zones []tickerapi.Zone) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.levels, b.zones = levels, zones
}

// Calls returns how many requests matched pattern, e.g. "POST /api/tickers".
func (b *Backend) Calls(pattern string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[pattern]
}

// Tickers returns the tracked symbols in order.
func (b *Backend) Tickers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.tickers))
	for s := range b.tickers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Handler returns the HTTP handler of the fake API.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			b.mu.Lock()
			b.calls[pattern]++
			down := b.down
			b.mu.Unlock()
			if down {
				writeJSON(w, http.StatusServiceUnavailable, tickerapi.Response{Status: tickerapi.StatusError, Message: "backend unavailable"})
				return
			}
			h(w, r)
		})
	}

	handle("GET /api/tickers/status", b.handleStatus)
	handle("POST /api/tickers", b.handleAdd)
	handle("DELETE /api/tickers/{symbol}", b.handleRemove)
	handle("GET /api/ticker/{symbol}/details", b.handleDetails)
	handle("GET /api/ticker/{symbol}/data", b.handleData)
	handle("GET /api/download/all", b.handleDownloadAll)
	handle("GET /api/download/{symbol}", b.handleDownload)
	handle("POST /api/upload/csv", b.handleUpload)
	handle("GET /api/test/connection", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, tickerapi.ConnectionResult{
			Response: tickerapi.Response{Status: tickerapi.StatusSuccess, Message: "connection ok"},
			Tests:    map[string]bool{"internet": true, "yahoo_finance": true},
		})
	})
	handle("GET /api/stats", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		n := len(b.tickers)
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"total_tickers": n})
	})
	handle("GET /api/technical-analysis/levels", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"levels": b.levels})
	})
	handle("GET /api/technical-analysis/zones", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"zones": b.zones})
	})
	return mux
}

func (b *Backend) handleStatus(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	out := make([]tickerapi.TickerStatus, 0, len(b.tickers))
	for _, t := range b.tickers {
		out = append(out, t)
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ticker string `json:"ticker"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Ticker == "" {
		writeJSON(w, http.StatusBadRequest, tickerapi.Response{Status: tickerapi.StatusError, Message: "Ticker required"})
		return
	}
	if strings.HasPrefix(req.Ticker, "ZZ") {
		writeJSON(w, http.StatusOK, tickerapi.Result{Response: tickerapi.Response{Status: tickerapi.StatusError, Message: "Ticker " + req.Ticker + " not found"}})
		return
	}
	b.mu.Lock()
	_, exists := b.tickers[req.Ticker]
	if !exists {
		b.tickers[req.Ticker] = tickerapi.TickerStatus{Ticker: req.Ticker, Name: req.Ticker, NeedsUpdate: true}
	}
	b.mu.Unlock()
	if exists {
		writeJSON(w, http.StatusOK, tickerapi.Result{Response: tickerapi.Response{Status: tickerapi.StatusWarning, Message: "Ticker " + req.Ticker + " already exists"}})
		return
	}
	writeJSON(w, http.StatusOK, tickerapi.Result{
		Response: tickerapi.Response{Status: tickerapi.StatusSuccess, Message: "Ticker " + req.Ticker + " added"},
		Ticker:   req.Ticker,
	})
}

func (b *Backend) handleRemove(w http.ResponseWriter, r *http.Request) {
	sym := r.PathValue("symbol")
	b.mu.Lock()
	_, ok := b.tickers[sym]
	delete(b.tickers, sym)
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, tickerapi.Response{Status: tickerapi.StatusError, Message: "Ticker " + sym + " not found"})
		return
	}
	writeJSON(w, http.StatusOK, tickerapi.Result{
		Response:     tickerapi.Response{Status: tickerapi.StatusSuccess, Message: "Ticker " + sym + " removed"},
		FilesRemoved: []string{sym + "_adjusted.csv"},
	})
}

func (b *Backend) handleDetails(w http.ResponseWriter, r *http.Request) {
	sym := r.PathValue("symbol")
	b.mu.Lock()
	t, ok := b.tickers[sym]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, tickerapi.Response{Status: tickerapi.StatusError, Message: "Ticker " + sym + " not found"})
		return
	}
	writeJSON(w, http.StatusOK, tickerapi.Details{
		Response:      tickerapi.Response{Status: tickerapi.StatusSuccess},
		Ticker:        t.Ticker,
		Name:          t.Name,
		CSVInfo:       t.CSVInfo,
		LastCloseDate: t.LastCloseDate,
		FirstDate:     t.FirstDate,
		TotalRecords:  t.TotalRecords,
	})
}

func (b *Backend) handleData(w http.ResponseWriter, r *http.Request) {
	sym := r.PathValue("symbol")
	b.mu.Lock()
	bars, ok := b.bars[sym]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, tickerapi.Response{Status: tickerapi.StatusError, Message: "No data for " + sym})
		return
	}
	writeJSON(w, http.StatusOK, tickerapi.DataResponse{
		Response: tickerapi.Response{Status: tickerapi.StatusSuccess},
		Ticker:   sym,
		Version:  r.URL.Query().Get("version"),
		Data:     bars,
	})
}

func (b *Backend) handleDownload(w http.ResponseWriter, r *http.Request) {
	sym := r.PathValue("symbol")
	b.mu.Lock()
	t, ok := b.tickers[sym]
	if ok {
		t.NeedsUpdate = false
		t.TotalRecords += 1
		b.tickers[sym] = t
	}
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, tickerapi.Response{Status: tickerapi.StatusError, Message: "Ticker " + sym + " not found"})
		return
	}
	writeJSON(w, http.StatusOK, tickerapi.Result{
		Response: tickerapi.Response{Status: tickerapi.StatusSuccess, Message: "Downloaded 1 new records for " + sym},
		Ticker:   sym,
		Records:  1,
	})
}

func (b *Backend) handleDownloadAll(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	n := len(b.tickers)
	for s, t := range b.tickers {
		t.NeedsUpdate = false
		b.tickers[s] = t
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, tickerapi.Result{
		Response: tickerapi.Response{Status: tickerapi.StatusSuccess, Message: fmt.Sprintf("Downloaded %d tickers", n)},
		Summary:  &tickerapi.Summary{TotalTickers: n, UpdatedTickers: n, TotalNewRecords: n},
	})
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	f, _, err := r.FormFile("csvFile")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, tickerapi.Response{Status: tickerapi.StatusError, Message: "No file uploaded"})
		return
	}
	defer f.Close()
	data, _ := io.ReadAll(f)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	sum := &tickerapi.Summary{}
	var details []tickerapi.Detail
	b.mu.Lock()
	for _, line := range lines[1:] {
		sym := strings.TrimSpace(strings.Split(line, ",")[0])
		if sym == "" {
			continue
		}
		sum.TotalTickers++
		if strings.HasPrefix(sym, "ZZ") {
			sum.ErrorCount++
			details = append(details, tickerapi.Detail{Ticker: sym, Status: tickerapi.StatusError, Message: "not found"})
			continue
		}
		if _, ok := b.tickers[sym]; ok {
			sum.SkippedTickers++
			details = append(details, tickerapi.Detail{Ticker: sym, Status: tickerapi.StatusWarning, Message: "already exists"})
			continue
		}
		b.tickers[sym] = tickerapi.TickerStatus{Ticker: sym, Name: sym, NeedsUpdate: true}
		sum.AddedTickers++
		details = append(details, tickerapi.Detail{Ticker: sym, Status: tickerapi.StatusSuccess, Message: "added"})
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, tickerapi.Result{
		Response: tickerapi.Response{Status: tickerapi.StatusSuccess, Message: fmt.Sprintf("Imported %d tickers", sum.AddedTickers)},
		Summary:  sum,
		Details:  details,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
