package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stockdash/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ ActivityStore = (*SQLiteStore)(nil)
var _ SnapshotStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS activities (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	message TEXT    NOT NULL,
	level   TEXT    NOT NULL,
	at      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS ticker_snapshot (
	symbol          TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	company         TEXT NOT NULL DEFAULT '',
	sector          TEXT NOT NULL DEFAULT '',
	industry        TEXT NOT NULL DEFAULT '',
	last_close_date TEXT NOT NULL DEFAULT '',
	first_date      TEXT NOT NULL DEFAULT '',
	total_records   INTEGER NOT NULL DEFAULT 0,
	last_updated    TEXT NOT NULL DEFAULT '',
	needs_update    INTEGER NOT NULL DEFAULT 0,
	size_adjusted   TEXT NOT NULL DEFAULT '',
	size_raw        TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS snapshot_meta (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	saved_at INTEGER NOT NULL
);`

// SQLiteStore implements ActivityStore and SnapshotStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates
// the tables it needs and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// ActivityStore implementation
// ---------------------------------------------------------------------------

// AppendActivity inserts a log entry.
func (s *SQLiteStore) AppendActivity(ctx context.Context, a domain.Activity) (domain.Activity, error) {
	if a.Time.IsZero() {
		a.Time = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (message, level, at) VALUES (?, ?, ?)`,
		a.Message, string(a.Level), a.Time.UnixMilli())
	if err != nil {
		return a, fmt.Errorf("insert activity: %w", err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return a, fmt.Errorf("insert activity: %w", err)
	}
	return a, nil
}

// ListActivities returns the newest entries first.
func (s *SQLiteStore) ListActivities(ctx context.Context, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message, level, at FROM activities ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		var (
			a     domain.Activity
			level string
			at    int64
		)
		if err := rows.Scan(&a.ID, &a.Message, &level, &at); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Level = domain.Level(level)
		a.Time = time.UnixMilli(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// TrimActivities deletes all but the newest keep entries.
func (s *SQLiteStore) TrimActivities(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM activities WHERE id NOT IN (SELECT id FROM activities ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return fmt.Errorf("trim activities: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// SnapshotStore implementation
// ---------------------------------------------------------------------------

const snapshotColumns = `symbol, name, company, sector, industry, last_close_date, first_date,
	total_records, last_updated, needs_update, size_adjusted, size_raw`

// SaveSnapshot replaces the snapshot in one transaction.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, tickers []domain.Ticker, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ticker_snapshot`); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO ticker_snapshot (`+snapshotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot: %w", err)
	}
	defer stmt.Close()

	for _, t := range tickers {
		if _, err := stmt.ExecContext(ctx, t.Symbol, t.Name, t.Company, t.Sector, t.Industry,
			t.LastCloseDate, t.FirstDate, t.TotalRecords, t.LastUpdated, t.NeedsUpdate,
			t.SizeAdjusted, t.SizeRaw); err != nil {
			return fmt.Errorf("insert snapshot %s: %w", t.Symbol, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshot_meta (id, saved_at) VALUES (1, ?)`, at.UnixMilli()); err != nil {
		return fmt.Errorf("stamp snapshot: %w", err)
	}
	return tx.Commit()
}

// LoadSnapshot returns the snapshot ordered by symbol. The time is zero when
// nothing was ever saved.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) ([]domain.Ticker, time.Time, error) {
	var savedAt time.Time
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT saved_at FROM snapshot_meta WHERE id = 1`).Scan(&ms)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, savedAt, nil
	case err != nil:
		return nil, savedAt, fmt.Errorf("query snapshot time: %w", err)
	}
	savedAt = time.UnixMilli(ms)

	rows, err := s.db.QueryContext(ctx, `SELECT `+snapshotColumns+` FROM ticker_snapshot ORDER BY symbol`)
	if err != nil {
		return nil, savedAt, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var out []domain.Ticker
	for rows.Next() {
		t, err := scanTicker(rows)
		if err != nil {
			return nil, savedAt, err
		}
		out = append(out, t)
	}
	return out, savedAt, rows.Err()
}

// SnapshotTicker looks up one symbol in the snapshot.
func (s *SQLiteStore) SnapshotTicker(ctx context.Context, symbol string) (domain.Ticker, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM ticker_snapshot WHERE symbol = ?`, symbol)
	t, err := scanTicker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Ticker{}, false, nil
	}
	if err != nil {
		return domain.Ticker{}, false, err
	}
	return t, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicker(sc scanner) (domain.Ticker, error) {
	var t domain.Ticker
	err := sc.Scan(&t.Symbol, &t.Name, &t.Company, &t.Sector, &t.Industry,
		&t.LastCloseDate, &t.FirstDate, &t.TotalRecords, &t.LastUpdated, &t.NeedsUpdate,
		&t.SizeAdjusted, &t.SizeRaw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("scan ticker: %w", err)
	}
	return t, err
}
