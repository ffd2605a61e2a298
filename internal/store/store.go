// Package store defines storage interfaces for the dashboard's local state:
// the activity log, the last known ticker list, and cached price history.
// Local state only ever backs up the backend; it is never the source of
// truth.
package store

import (
	"context"
	"time"

	"stockdash/internal/domain"
)

// ActivityStore persists the on-page activity log.
type ActivityStore interface {
	// AppendActivity stores a new entry and returns it with its ID set.
	AppendActivity(ctx context.Context, a domain.Activity) (domain.Activity, error)

	// ListActivities returns the newest entries first, up to limit.
	ListActivities(ctx context.Context, limit int) ([]domain.Activity, error)

	// TrimActivities keeps only the newest keep entries.
	TrimActivities(ctx context.Context, keep int) error
}

// SnapshotStore keeps the last ticker list the backend returned.
type SnapshotStore interface {
	// SaveSnapshot replaces the stored snapshot with tickers.
	SaveSnapshot(ctx context.Context, tickers []domain.Ticker, at time.Time) error

	// LoadSnapshot returns the stored tickers and when they were saved.
	LoadSnapshot(ctx context.Context) ([]domain.Ticker, time.Time, error)

	// SnapshotTicker returns one stored ticker. ok is false when absent.
	SnapshotTicker(ctx context.Context, symbol string) (t domain.Ticker, ok bool, err error)
}

// HistoryStore caches price history per symbol and version.
type HistoryStore interface {
	// WriteBars merges bars into the cache.
	WriteBars(ctx context.Context, symbol string, version domain.Version, bars []domain.Bar) error

	// ReadBars returns the newest limit bars, oldest first. A limit of zero
	// or less returns everything.
	ReadBars(ctx context.Context, symbol string, version domain.Version, limit int) ([]domain.Bar, error)

	// ListSymbols returns all symbols with cached history.
	ListSymbols(ctx context.Context) ([]string, error)
}
