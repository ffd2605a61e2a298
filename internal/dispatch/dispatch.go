// Package dispatch turns user gestures into table state changes and backend
// calls. State gestures (search, sort, paging) only touch the table;
// mutating gestures call the backend, post a notification, and reload the
// table on success. A failure leaves the table as it was.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"stockdash/internal/domain"
	"stockdash/internal/notify"
	"stockdash/pkg/tickerapi"
)

// ErrInvalidTicker is returned, without calling the backend, for empty or
// malformed symbols.
var ErrInvalidTicker = errors.New("invalid ticker")

var symbolRe = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-^=]{0,14}$`)

// NormalizeSymbol trims and upper-cases s and checks it looks like a
// ticker symbol.
func NormalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if sym == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrInvalidTicker)
	}
	if !symbolRe.MatchString(sym) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTicker, sym)
	}
	return sym, nil
}

// Backend is the part of the ticker API the pages call.
type Backend interface {
	TickersStatus(ctx context.Context) ([]tickerapi.TickerStatus, error)
	TickerDetails(ctx context.Context, symbol string) (*tickerapi.Details, error)
	TickerData(ctx context.Context, symbol string, opts tickerapi.DataOptions) (*tickerapi.DataResponse, error)
	AddTicker(ctx context.Context, symbol string) (*tickerapi.Result, error)
	RemoveTicker(ctx context.Context, symbol string) (*tickerapi.Result, error)
	DownloadTicker(ctx context.Context, symbol string) (*tickerapi.Result, error)
	DownloadAll(ctx context.Context) (*tickerapi.Result, error)
	UploadCSV(ctx context.Context, filename string, r io.Reader, opts tickerapi.UploadOptions) (*tickerapi.Result, error)
}

// AnalysisBackend serves the technical-analysis tables.
type AnalysisBackend interface {
	Levels(ctx context.Context) ([]tickerapi.Level, error)
	Zones(ctx context.Context) ([]tickerapi.Zone, error)
}

// Notifier shows notifications and records activity.
type Notifier interface {
	Show(message string, level domain.Level, o notify.ShowOptions) notify.Notification
	Log(ctx context.Context, message string, level domain.Level) domain.Activity
}

var _ Notifier = (*notify.Manager)(nil)

var notifyDefault = notify.ShowOptions{}

// UserMessage is the text shown to the user for err.
func UserMessage(err error) string {
	var apiErr *tickerapi.APIError
	switch {
	case errors.Is(err, tickerapi.ErrTimeout):
		return tickerapi.ErrTimeout.Error()
	case errors.As(err, &apiErr):
		return apiErr.Message
	default:
		return err.Error()
	}
}

// levelOf maps a backend status to a notification level.
func levelOf(s tickerapi.Status) domain.Level {
	l := domain.Level(s)
	if !l.Valid() {
		return domain.LevelInfo
	}
	return l
}
