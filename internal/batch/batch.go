// Package batch runs a ticker operation over many symbols. Every symbol is
// attempted; a failure is recorded and the run continues.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"stockdash/internal/util"
	"stockdash/pkg/tickerapi"
)

// MaxReportedFailures bounds Result.Failures.
const MaxReportedFailures = 5

// Adder is the backend call a batch add needs.
type Adder interface {
	AddTicker(ctx context.Context, symbol string) (*tickerapi.Result, error)
}

// Item is the outcome for one symbol.
type Item struct {
	Ticker  string
	OK      bool
	Message string
}

// Result aggregates a batch run. Items keep input order.
type Result struct {
	SuccessCount int
	ErrorCount   int
	Items        []Item
	Failures     []string
}

// Message is the notification text for the whole run.
func (r *Result) Message() string {
	msg := fmt.Sprintf("Added %d tickers successfully", r.SuccessCount)
	if r.ErrorCount > 0 {
		msg += fmt.Sprintf(", %d failed", r.ErrorCount)
	}
	return msg
}

// Runner paces batch requests through a rate limiter and a bounded worker
// pool.
type Runner struct {
	workers int
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewRunner creates a Runner. workers below one means sequential; a nil
// limiter means no pacing.
func NewRunner(workers int, limiter *util.RateLimiter, log *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Runner{workers: workers, limiter: limiter, log: log}
}

// ParseList splits a comma separated symbol list, upper-casing and
// dropping empty entries.
func ParseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if sym := strings.ToUpper(strings.TrimSpace(part)); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}

// AddTickers adds each symbol through a. A reply whose status is not
// success counts as a failure. Only context cancellation stops the run
// early, and the error is then returned alongside the partial result.
func (r *Runner) AddTickers(ctx context.Context, a Adder, symbols []string) (*Result, error) {
	items := make([]Item, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, sym := range symbols {
		g.Go(func() error {
			err := gctx.Err()
			if err == nil {
				err = r.limiter.Wait(gctx)
			}
			if err != nil {
				items[i] = Item{Ticker: sym, Message: err.Error()}
				return err
			}
			items[i] = addOne(gctx, a, sym)
			if !items[i].OK {
				r.log.Warn("batch add failed", "ticker", sym, "message", items[i].Message)
			}
			return nil
		})
	}
	err := g.Wait()

	res := &Result{Items: items}
	for _, it := range items {
		if it.OK {
			res.SuccessCount++
			continue
		}
		res.ErrorCount++
		if len(res.Failures) < MaxReportedFailures {
			res.Failures = append(res.Failures, it.Ticker+": "+it.Message)
		}
	}
	r.log.Info("batch add finished", "success", res.SuccessCount, "errors", res.ErrorCount)
	return res, err
}

func addOne(ctx context.Context, a Adder, sym string) Item {
	res, err := a.AddTicker(ctx, sym)
	if err != nil {
		return Item{Ticker: sym, Message: err.Error()}
	}
	if res.Status != tickerapi.StatusSuccess {
		return Item{Ticker: sym, Message: res.Message}
	}
	return Item{Ticker: sym, OK: true, Message: res.Message}
}
