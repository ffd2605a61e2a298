// Package domain defines the core types shared across the dashboard: tracked
// tickers, historical bars, technical-analysis levels and zones, and the
// activity feed.
package domain

import "time"

// Level is the severity carried by every backend response and notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Valid reports whether l is one of the four known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelSuccess, LevelError, LevelInfo, LevelWarning:
		return true
	}
	return false
}

// Version selects which price series of a ticker to read.
type Version string

const (
	VersionAdjusted Version = "adjusted"
	VersionRaw      Version = "raw"
)

// ParseVersion maps a query value to a Version, defaulting to adjusted.
func ParseVersion(s string) Version {
	if s == string(VersionRaw) || s == "not_adjusted" {
		return VersionRaw
	}
	return VersionAdjusted
}

// Source records where a piece of data came from.
type Source string

const (
	SourceBackend  Source = "backend"
	SourceFallback Source = "fallback"
)

// Ticker is one tracked symbol as listed by the backend status endpoint.
type Ticker struct {
	Symbol        string
	Name          string
	Company       string
	Sector        string
	Industry      string
	LastCloseDate string // YYYY-MM-DD, empty when never downloaded
	FirstDate     string
	TotalRecords  int
	LastUpdated   string
	NeedsUpdate   bool
	SizeAdjusted  string
	SizeRaw       string
}

// TickerInfo is the descriptive block shown in the details view.
type TickerInfo struct {
	Symbol   string
	Name     string
	Sector   string
	Industry string
	Exchange string
	Currency string
	Source   Source
}

// Bar is one daily OHLCV record of a ticker's history.
type Bar struct {
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   int64
}

// LevelKind distinguishes support from resistance lines.
type LevelKind string

const (
	LevelSupport    LevelKind = "Support"
	LevelResistance LevelKind = "Resistance"
)

// PriceLevel is a support or resistance line found by technical analysis.
type PriceLevel struct {
	ID          string
	Ticker      string
	Date        time.Time
	Kind        LevelKind
	Price       float64
	Strength    float64
	Touches     int
	DistancePct float64
}

// ZoneKind distinguishes supply from demand zones.
type ZoneKind string

const (
	ZoneSupply ZoneKind = "Supply"
	ZoneDemand ZoneKind = "Demand"
)

// Zone is a price band produced by pattern detection.
type Zone struct {
	ID           string
	Ticker       string
	Date         time.Time
	Pattern      string
	Kind         ZoneKind
	Bottom       float64
	Top          float64
	ThicknessPct float64
	Strength     float64
	DistancePct  float64
	Virgin       bool
}

// Center is the midpoint of the zone.
func (z Zone) Center() float64 {
	return (z.Bottom + z.Top) / 2
}

// Activity is one entry of the on-page activity log.
type Activity struct {
	ID      int64
	Message string
	Level   Level
	Time    time.Time
}
