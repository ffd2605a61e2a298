package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"stockdash/internal/domain"
)

// Compile-time interface check.
var _ HistoryStore = (*ParquetStore)(nil)

// ParquetStore implements HistoryStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// BarRecord is the Parquet schema for cached daily bars.
type BarRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, midnight UTC
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	AdjClose  float64 `parquet:"adj_close"`
	Volume    int64   `parquet:"volume"`
}

// WriteBars merges bars into <DataDir>/history/<SYMBOL>/<version>.parquet.
// Bars with the same date replace the cached ones.
func (s *ParquetStore) WriteBars(_ context.Context, symbol string, version domain.Version, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	records := make([]BarRecord, 0, len(bars))
	for _, b := range bars {
		records = append(records, BarRecord{
			Timestamp: dayUTC(b.Date).UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			AdjClose:  b.AdjClose,
			Volume:    b.Volume,
		})
	}

	path := s.historyPath(symbol, version)
	existing, _ := readParquetFile[BarRecord](path)
	if err := writeParquetFile(path, mergeBarRecords(existing, records)); err != nil {
		return fmt.Errorf("writing history for %s/%s: %w", symbol, version, err)
	}
	return nil
}

// ReadBars reads cached bars. A missing file yields no bars and no error.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, version domain.Version, limit int) ([]domain.Bar, error) {
	path := s.historyPath(symbol, version)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	records, err := readParquetFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading history for %s/%s: %w", symbol, version, err)
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	bars := make([]domain.Bar, 0, len(records))
	for _, r := range records {
		bars = append(bars, domain.Bar{
			Date:     time.UnixMilli(r.Timestamp).UTC(),
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			AdjClose: r.AdjClose,
			Volume:   r.Volume,
		})
	}
	return bars, nil
}

// ListSymbols lists all symbols that have cached history.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "history"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// historyPath returns the filesystem path for a history Parquet file.
// Layout: <dataDir>/history/<SYMBOL>/<version>.parquet
func (s *ParquetStore) historyPath(symbol string, version domain.Version) string {
	return filepath.Join(s.DataDir, "history", strings.ToUpper(symbol), string(version)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates by timestamp, preferring incoming records,
// and returns them in ascending time order.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

func dayUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
