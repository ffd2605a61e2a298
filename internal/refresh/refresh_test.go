package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockdash/internal/backendtest"
	"stockdash/internal/domain"
	"stockdash/internal/notify"
	"stockdash/pkg/tickerapi"
)

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := New(Options{Schedule: "every day"}, nil, nil, nil, nil); err == nil {
		t.Fatal("New accepted an invalid schedule")
	}
}

func TestRunOnce(t *testing.T) {
	b := backendtest.New(tickerapi.TickerStatus{Ticker: "AAPL"}, tickerapi.TickerStatus{Ticker: "MSFT"})
	notes := notify.NewManager(notify.Options{}, nil, nil)
	reloaded := 0
	s, err := New(Options{Schedule: "0 22 * * 1-5"}, b.Start(t), func(context.Context) error {
		reloaded++
		return nil
	}, notes, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if reloaded != 1 {
		t.Errorf("reload called %d times, want 1", reloaded)
	}
	acts := notes.Activities(0)
	if len(acts) != 1 || acts[0].Level != domain.LevelSuccess ||
		acts[0].Message != "Scheduled refresh: 2 of 2 tickers updated, 2 new records" {
		t.Errorf("activities = %+v", acts)
	}
	if at, err := s.LastRun(); at.IsZero() || err != nil {
		t.Errorf("LastRun() = %v, %v", at, err)
	}
}

func TestRunOnceRetries(t *testing.T) {
	b := backendtest.New()
	b.SetDown(true)
	notes := notify.NewManager(notify.Options{}, nil, nil)
	s, err := New(Options{Schedule: "@daily", Attempts: 3, BaseDelay: time.Millisecond}, b.Start(t), func(context.Context) error {
		t.Error("reload called after a failed download")
		return nil
	}, notes, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = s.RunOnce(context.Background())
	var apiErr *tickerapi.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("RunOnce error = %v, want APIError", err)
	}
	if n := b.Calls("GET /api/download/all"); n != 3 {
		t.Errorf("download calls = %d, want 3", n)
	}
	acts := notes.Activities(0)
	if len(acts) != 1 || acts[0].Level != domain.LevelError {
		t.Errorf("activities = %+v", acts)
	}
}

func TestStartSchedulesNextRun(t *testing.T) {
	s, err := New(Options{Schedule: "*/5 * * * *", Location: time.UTC}, backendtest.New().Start(t), nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !s.Next().IsZero() {
		t.Error("Next() before Start should be zero")
	}
	s.Start(context.Background())
	defer s.Stop()

	next := s.Next()
	if next.IsZero() || next.Minute()%5 != 0 || time.Until(next) > 5*time.Minute {
		t.Errorf("Next() = %v", next)
	}
}
