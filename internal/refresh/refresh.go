// Package refresh runs the unattended "download all" job on a cron
// schedule. It is the only place that retries backend calls.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"stockdash/internal/domain"
	"stockdash/internal/util"
	"stockdash/pkg/tickerapi"
)

// DefaultBaseDelay is the first retry delay; it doubles per attempt.
const DefaultBaseDelay = 30 * time.Second

// Downloader triggers the backend bulk download.
type Downloader interface {
	DownloadAll(ctx context.Context) (*tickerapi.Result, error)
}

// ActivityLogger records job outcomes in the activity log.
type ActivityLogger interface {
	Log(ctx context.Context, message string, level domain.Level) domain.Activity
}

// Options configure a Scheduler.
type Options struct {
	Schedule  string // standard five-field cron expression
	Attempts  int
	BaseDelay time.Duration
	Location  *time.Location
}

// Scheduler owns the cron runner.
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	backend  Downloader
	reload   func(context.Context) error
	activity ActivityLogger
	log      *slog.Logger

	cron *cron.Cron

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// New validates the schedule and returns a stopped Scheduler. reload is
// called after a successful download and may be nil.
func New(opts Options, backend Downloader, reload func(context.Context) error, activity ActivityLogger, log *slog.Logger) (*Scheduler, error) {
	sched, err := cron.ParseStandard(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", opts.Schedule, err)
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		opts:     opts,
		schedule: sched,
		backend:  backend,
		reload:   reload,
		activity: activity,
		log:      log,
	}, nil
}

// Start schedules the job. Runs that would overlap a still running one
// are skipped. ctx bounds every run.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron = cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Error("scheduled refresh failed", "error", err)
		}
	}))
	s.cron.Start()
	s.log.Info("refresh scheduled", "schedule", s.opts.Schedule, "next", s.Next())
}

// Stop stops scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Next is the next scheduled run, or the zero time when not started.
func (s *Scheduler) Next() time.Time {
	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// LastRun reports when the job last finished and its error.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// RunOnce downloads all tickers, retrying with backoff, then reloads.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	var res *tickerapi.Result
	attempt := 0
	err := util.Retry(ctx, s.opts.Attempts, s.opts.BaseDelay, func() error {
		attempt++
		var err error
		res, err = s.backend.DownloadAll(ctx)
		if err != nil {
			s.log.Warn("refresh download failed", "attempt", attempt, "error", err)
		}
		return err
	})
	if err == nil && s.reload != nil {
		if rerr := s.reload(ctx); rerr != nil {
			s.log.Warn("reload after refresh failed", "error", rerr)
		}
	}

	s.mu.Lock()
	s.lastRun, s.lastErr = time.Now(), err
	s.mu.Unlock()

	if err != nil {
		s.record(ctx, fmt.Sprintf("Scheduled refresh failed after %d attempts: %v", attempt, err), domain.LevelError)
		return fmt.Errorf("download all: %w", err)
	}
	msg := "Scheduled refresh finished"
	if sum := res.Summary; sum != nil {
		msg = fmt.Sprintf("Scheduled refresh: %d of %d tickers updated, %d new records",
			sum.UpdatedTickers, sum.TotalTickers, sum.TotalNewRecords)
	}
	s.record(ctx, msg, domain.LevelSuccess)
	s.log.Info("refresh finished", "duration", time.Since(start), "attempts", attempt)
	return nil
}

func (s *Scheduler) record(ctx context.Context, msg string, level domain.Level) {
	if s.activity != nil {
		s.activity.Log(ctx, msg, level)
	}
}
