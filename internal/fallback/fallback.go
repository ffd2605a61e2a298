// Package fallback supplies degraded data when the backend cannot answer:
// ticker descriptions from the last saved ticker list, and price history
// from the local cache or, failing that, deterministic placeholder bars.
// Everything it returns is marked as fallback data.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
	"unicode/utf16"

	"stockdash/internal/domain"
	"stockdash/internal/store"
)

// PlaceholderDays is how many placeholder bars History generates.
const PlaceholderDays = 5

// ErrUnknownTicker is returned when the snapshot has no entry for a symbol.
var ErrUnknownTicker = errors.New("ticker not found in local snapshot")

// Source answers ticker lookups without the backend.
type Source struct {
	snapshots store.SnapshotStore
	history   store.HistoryStore
	log       *slog.Logger
	now       func() time.Time
}

// NewSource creates a Source. Either store may be nil.
func NewSource(snapshots store.SnapshotStore, history store.HistoryStore, log *slog.Logger) *Source {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Source{snapshots: snapshots, history: history, log: log, now: time.Now}
}

// TickerInfo describes symbol from the last saved ticker list.
func (s *Source) TickerInfo(ctx context.Context, symbol string) (domain.TickerInfo, error) {
	if s.snapshots == nil {
		return domain.TickerInfo{}, ErrUnknownTicker
	}
	t, ok, err := s.snapshots.SnapshotTicker(ctx, symbol)
	if err != nil {
		return domain.TickerInfo{}, fmt.Errorf("read snapshot: %w", err)
	}
	if !ok {
		return domain.TickerInfo{}, ErrUnknownTicker
	}
	name := t.Name
	if name == "" {
		name = t.Company
	}
	if name == "" {
		name = t.Symbol
	}
	return domain.TickerInfo{
		Symbol:   t.Symbol,
		Name:     name,
		Sector:   t.Sector,
		Industry: t.Industry,
		Source:   domain.SourceFallback,
	}, nil
}

// History returns cached bars for symbol and version, newest limit first
// in date order, or placeholder bars when nothing is cached. It only fails
// when ctx is done.
func (s *Source) History(ctx context.Context, symbol string, version domain.Version, limit int) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.history != nil {
		bars, err := s.history.ReadBars(ctx, symbol, version, limit)
		if err != nil {
			s.log.Warn("reading cached history", "ticker", symbol, "error", err)
		} else if len(bars) > 0 {
			return bars, nil
		}
	}
	return Placeholder(symbol, version, s.now()), nil
}

// Remember caches bars that came from the backend so History can serve
// them later.
func (s *Source) Remember(ctx context.Context, symbol string, version domain.Version, bars []domain.Bar) {
	if s.history == nil || len(bars) == 0 {
		return
	}
	if err := s.history.WriteBars(ctx, symbol, version, bars); err != nil {
		s.log.Warn("caching history", "ticker", symbol, "error", err)
	}
}

// Placeholder generates PlaceholderDays bars for symbol and version, the
// first dated today and each following one a day earlier. The same
// symbol and version always give the same prices. AdjClose is only set
// for the adjusted version.
func Placeholder(symbol string, version domain.Version, today time.Time) []domain.Bar {
	next := seededRandom(HashCode(symbol + string(version)))
	today = today.UTC()
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	bars := make([]domain.Bar, 0, PlaceholderDays)
	for i := 0; i < PlaceholderDays; i++ {
		base := 100 + next()*50
		b := domain.Bar{
			Date:   day.AddDate(0, 0, -i),
			Open:   round2(base + next()*2 - 1),
			High:   round2(base + next()*3),
			Low:    round2(base - next()*3),
			Close:  round2(base + next()*2 - 1),
			Volume: int64(math.Floor(next()*1_000_000)) + 100_000,
		}
		if version == domain.VersionAdjusted {
			b.AdjClose = b.Close
		}
		bars = append(bars, b)
	}
	return bars
}

// HashCode is the 31-multiplier string hash over UTF-16 code units,
// wrapped to 32 bits, returned as an absolute value.
func HashCode(s string) int64 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(u)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// seededRandom is a linear congruential generator yielding values in [0, 1).
func seededRandom(seed int64) func() float64 {
	cur := seed
	return func() float64 {
		cur = (cur*9301 + 49297) % 233280
		return float64(cur) / 233280
	}
}

// round2 rounds to cents with halves going up.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
