package tickerapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:5000/")
	if c.BaseURL() != "http://localhost:5000" {
		t.Errorf("BaseURL() = %q, want trailing slash trimmed", c.BaseURL())
	}
	if c.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", c.timeout, DefaultTimeout)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func TestTickersStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/tickers/status" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		io.WriteString(w, `[{"ticker":"AAPL","name":"Apple Inc.","last_close_date":"2024-03-12",
			"total_records":2500,"files_exist":{"adjusted":true,"not_adjusted":false},
			"file_sizes":{"adjusted":"120.5 KB","not_adjusted":"0 KB"},"needs_update":false,
			"csv_info":{"company":"Apple","sector":"Technology","industry":"Consumer Electronics"}},
			{"ticker":"NEW","name":"NEW","last_close_date":null,"needs_update":true,"csv_info":null}]`)
	})

	got, err := c.TickersStatus(context.Background())
	if err != nil {
		t.Fatalf("TickersStatus: %v", err)
	}
	want := []TickerStatus{
		{
			Ticker: "AAPL", Name: "Apple Inc.", LastCloseDate: "2024-03-12", TotalRecords: 2500,
			FilesExist: FilePair[bool]{Adjusted: true},
			FileSizes:  FilePair[string]{Adjusted: "120.5 KB", NotAdjusted: "0 KB"},
			CSVInfo:    &CSVInfo{Company: "Apple", Sector: "Technology", Industry: "Consumer Electronics"},
		},
		{Ticker: "NEW", Name: "NEW", NeedsUpdate: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TickersStatus mismatch (-want +got):\n%s", diff)
	}
}

func TestAddTickerSendsNormalisedSymbol(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tickers" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["ticker"] != "AAPL" {
			t.Errorf("ticker = %q, want AAPL", body["ticker"])
		}
		io.WriteString(w, `{"status":"success","message":"Ticker AAPL aggiunto"}`)
	})

	res, err := c.AddTicker(context.Background(), "  aapl ")
	if err != nil {
		t.Fatalf("AddTicker: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Errorf("Status = %q, want success", res.Status)
	}
}

func TestNon2xxUsesBodyMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"status":"warning","message":"Ticker AAPL già presente"}`)
	})

	_, err := c.AddTicker(context.Background(), "AAPL")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v is not an APIError", err)
	}
	if apiErr.StatusCode != 400 || apiErr.Status != StatusWarning {
		t.Errorf("APIError = %+v", apiErr)
	}
	if err.Error() != "Ticker AAPL già presente" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestNon2xxWithoutJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.Levels(context.Background())
	if err == nil || err.Error() != "HTTP error! status: 500" {
		t.Errorf("err = %v, want HTTP error! status: 500", err)
	}
}

func TestErrorStatusOn200(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"error","message":"Errore nel download di ZZZ"}`)
	})

	_, err := c.DownloadTicker(context.Background(), "ZZZ")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 200 {
		t.Fatalf("err = %v, want APIError with status 200", err)
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, WithTimeout(50*time.Millisecond))
	_, err := c.TickersStatus(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestTickerDataQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ticker/BRK.B/data" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if q := r.URL.Query(); q.Get("limit") != "20" || q.Get("version") != "raw" {
			t.Errorf("query = %v", q)
		}
		io.WriteString(w, `{"status":"success","ticker":"BRK.B","data":[{"date":"2024-03-12","open":1,"high":2,"low":0.5,"close":1.5,"volume":100}]}`)
	})

	res, err := c.TickerData(context.Background(), "BRK.B", DataOptions{Version: "raw"})
	if err != nil {
		t.Fatalf("TickerData: %v", err)
	}
	want := []Bar{{Date: "2024-03-12", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100}}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestUploadCSV(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		f, hdr, err := r.FormFile("csvFile")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "tickers.csv" || !strings.HasPrefix(string(data), "Ticker,") {
			t.Errorf("file %q = %q", hdr.Filename, data)
		}
		if r.FormValue("downloadData") != "true" || r.FormValue("replaceExisting") != "false" {
			t.Errorf("flags = %q/%q", r.FormValue("downloadData"), r.FormValue("replaceExisting"))
		}
		io.WriteString(w, `{"status":"success","message":"CSV importato","summary":{"total_tickers":3,"added_tickers":2,"error_count":1},
			"details":[{"ticker":"BAD","status":"error","message":"not found"}]}`)
	})

	res, err := c.UploadCSV(context.Background(), "tickers.csv",
		strings.NewReader("Ticker,Company,Sector,Industry\nAAPL,Apple,Tech,HW\n"),
		UploadOptions{DownloadData: true})
	if err != nil {
		t.Fatalf("UploadCSV: %v", err)
	}
	if res.Summary == nil || res.Summary.AddedTickers != 2 || res.Summary.ErrorCount != 1 {
		t.Errorf("summary = %+v", res.Summary)
	}
	if len(res.Details) != 1 || res.Details[0].Status != StatusError {
		t.Errorf("details = %+v", res.Details)
	}
}

func TestLevelsAndZones(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/technical-analysis/levels":
			io.WriteString(w, `{"levels":[{"id":"l1","ticker":"AAPL","type":"Support","level":170.5,"strength":3.2,"touches":4}]}`)
		case "/api/technical-analysis/zones":
			io.WriteString(w, `{"zones":[{"zone_id":"z1","ticker":"AAPL","pattern":"RBR","type":"Demand","zone_bottom":160,"zone_top":165,"virgin_zone":true}]}`)
		default:
			http.NotFound(w, r)
		}
	})

	levels, err := c.Levels(context.Background())
	if err != nil || len(levels) != 1 || levels[0].Level != 170.5 {
		t.Fatalf("Levels = %+v, %v", levels, err)
	}
	zones, err := c.Zones(context.Background())
	if err != nil || len(zones) != 1 || !zones[0].Virgin || zones[0].Pattern != "RBR" {
		t.Fatalf("Zones = %+v, %v", zones, err)
	}
}
