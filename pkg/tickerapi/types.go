package tickerapi

// Status is the outcome reported by every backend response.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusInfo    Status = "info"
	StatusWarning Status = "warning"
)

// Response is the envelope shared by all backend replies.
type Response struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

func (r *Response) envelope() *Response { return r }

// Summary carries the counts returned by mutating endpoints. Which fields
// are set depends on the endpoint.
type Summary struct {
	TotalTickers    int `json:"total_tickers"`
	AddedTickers    int `json:"added_tickers,omitempty"`
	UpdatedTickers  int `json:"updated_tickers,omitempty"`
	SkippedTickers  int `json:"skipped_tickers,omitempty"`
	ErrorCount      int `json:"error_count,omitempty"`
	TotalNewRecords int `json:"total_new_records,omitempty"`
}

// TickerConfig is the list of configured symbols.
type TickerConfig struct {
	Tickers     []string `json:"tickers"`
	LastUpdated string   `json:"last_updated"`
}

// CSVInfo is the descriptive data imported from a CSV upload.
type CSVInfo struct {
	Company    string `json:"company"`
	Sector     string `json:"sector"`
	Industry   string `json:"industry"`
	ImportedAt string `json:"imported_at"`
}

// FilePair reports a per-version property of the stored data files.
type FilePair[T any] struct {
	Adjusted    T `json:"adjusted"`
	NotAdjusted T `json:"not_adjusted"`
}

// TickerStatus is one row of the status endpoint.
type TickerStatus struct {
	Ticker        string           `json:"ticker"`
	Name          string           `json:"name"`
	LastCloseDate string           `json:"last_close_date"`
	FirstDate     string           `json:"first_date"`
	TotalRecords  int              `json:"total_records"`
	FilesExist    FilePair[bool]   `json:"files_exist"`
	FileSizes     FilePair[string] `json:"file_sizes"`
	LastUpdated   string           `json:"last_updated"`
	NeedsUpdate   bool             `json:"needs_update"`
	CSVInfo       *CSVInfo         `json:"csv_info"`
}

// Info is the market metadata of a symbol.
type Info struct {
	Name      string  `json:"name"`
	Sector    string  `json:"sector"`
	Industry  string  `json:"industry"`
	Exchange  string  `json:"exchange"`
	Currency  string  `json:"currency"`
	MarketCap float64 `json:"market_cap"`
}

// Details is the reply of the per-ticker details endpoint.
type Details struct {
	Response
	Ticker        string   `json:"ticker"`
	Name          string   `json:"name"`
	Info          Info     `json:"info"`
	CSVInfo       *CSVInfo `json:"csv_info"`
	LastCloseDate string   `json:"last_close_date"`
	FirstDate     string   `json:"first_date"`
	TotalRecords  int      `json:"total_records"`
}

// Bar is one row of historical data. Dates are YYYY-MM-DD.
type Bar struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adj_close"`
	Volume   int64   `json:"volume"`
}

// DataResponse is the reply of the historical data endpoint.
type DataResponse struct {
	Response
	Ticker  string `json:"ticker"`
	Version string `json:"version"`
	Data    []Bar  `json:"data"`
}

// Detail is the per-item outcome of a batch operation.
type Detail struct {
	Ticker  string `json:"ticker"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Result is the reply of the mutating endpoints: add, remove, download and
// upload.
type Result struct {
	Response
	Ticker       string         `json:"ticker,omitempty"`
	Records      int            `json:"records,omitempty"`
	Summary      *Summary       `json:"summary,omitempty"`
	Results      []DownloadItem `json:"results,omitempty"`
	Details      []Detail       `json:"details,omitempty"`
	FilesRemoved []string       `json:"files_removed,omitempty"`
}

// DownloadItem is one symbol's outcome inside a download-all result.
type DownloadItem struct {
	Ticker  string `json:"ticker"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Records int    `json:"records"`
}

// ConnectionResult is the reply of the connectivity test.
type ConnectionResult struct {
	Response
	Tests    map[string]bool `json:"tests"`
	TestData string          `json:"test_data"`
}

// Activity is one entry of the backend activity feed.
type Activity struct {
	Action string `json:"action"`
	Time   string `json:"time"`
	Type   string `json:"type"`
}

// Level is a support or resistance line.
type Level struct {
	ID          string  `json:"id"`
	Ticker      string  `json:"ticker"`
	Date        string  `json:"date"`
	Type        string  `json:"type"`
	Level       float64 `json:"level"`
	Strength    float64 `json:"strength"`
	Touches     int     `json:"touches"`
	DistancePct float64 `json:"distance_pct"`
}

// Zone is a supply or demand zone.
type Zone struct {
	ID                  string  `json:"zone_id"`
	Ticker              string  `json:"ticker"`
	Date                string  `json:"date"`
	Pattern             string  `json:"pattern"`
	Type                string  `json:"type"`
	Bottom              float64 `json:"zone_bottom"`
	Top                 float64 `json:"zone_top"`
	Center              float64 `json:"zone_center"`
	ThicknessPct        float64 `json:"zone_thickness_pct"`
	StrengthScore       float64 `json:"strength_score"`
	DistanceFromCurrent float64 `json:"distance_from_current"`
	Virgin              bool    `json:"virgin_zone"`
}
