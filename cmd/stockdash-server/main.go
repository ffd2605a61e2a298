package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"stockdash/internal/batch"
	"stockdash/internal/config"
	"stockdash/internal/dispatch"
	"stockdash/internal/fallback"
	"stockdash/internal/fullscreen"
	"stockdash/internal/httpapi"
	"stockdash/internal/notify"
	"stockdash/internal/refresh"
	"stockdash/internal/status"
	"stockdash/internal/store"
	"stockdash/internal/table"
	"stockdash/internal/util"
	"stockdash/pkg/tickerapi"
)

func loadConfig() (*config.Config, error) {
	cfgPath := "config/stockdash.yaml"
	if p := os.Getenv("STOCKDASH_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, os.ErrNotExist) {
		return config.Defaults(), nil
	}
	return cfg, err
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Setup logging.
	logFileName := fmt.Sprintf("/tmp/stockdash-server-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, io.MultiWriter(os.Stdout, logFile))
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Local state.
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening sqlite store: %v", err)
	}
	defer db.Close()
	history := store.NewParquetStore(cfg.Storage.HistoryDir)

	notes := notify.NewManager(notify.Options{
		MaxVisible:      cfg.Notifications.MaxVisible,
		DefaultDuration: time.Duration(cfg.Notifications.DefaultDurationMS) * time.Millisecond,
		ActivityLimit:   cfg.Notifications.ActivityLimit,
	}, db, logger)
	if err := notes.Load(ctx); err != nil {
		logger.Warn("loading activity log", "error", err)
	}

	client := tickerapi.NewClient(cfg.Backend.BaseURL,
		tickerapi.WithTimeout(time.Duration(cfg.Backend.TimeoutSeconds)*time.Second))
	formats := table.NewFormats(cfg.Table.Locale, cfg.Table.Currency)
	calendar := util.NewMarketCalendar()

	tickers := dispatch.NewTickerPage(dispatch.TickerPageConfig{
		Backend:   client,
		Notifier:  notes,
		Snapshots: db,
		Batch:     batch.NewRunner(cfg.Batch.MaxWorkers, util.NewRateLimiter(cfg.Batch.RateLimitPerMin), logger),
		Status:    status.NewEvaluator(calendar),
		Formats:   formats,
		PageSizes: cfg.Table.PageSizes,
		PageSize:  cfg.Table.DefaultPageSize,
		Logger:    logger,
	})
	details := dispatch.NewDetailsLoader(client, fallback.NewSource(db, history, logger), notes, logger)
	levels := dispatch.NewLevelsPage(client, notes, formats, cfg.Table.PageSizes, cfg.Table.DefaultPageSize, logger)

	// Initial load; failures fall back to the snapshot and are notified.
	if err := tickers.Reload(ctx); err != nil {
		logger.Warn("initial ticker load failed", "error", err)
	}

	var sched *refresh.Scheduler
	if cfg.Refresh.Schedule != "" {
		sched, err = refresh.New(refresh.Options{
			Schedule: cfg.Refresh.Schedule,
			Attempts: cfg.Refresh.RetryAttempts,
			Location: calendar.Location(),
		}, client, tickers.Reload, notes, logger)
		if err != nil {
			log.Fatalf("refresh schedule: %v", err)
		}
		sched.Start(ctx)
		defer sched.Stop()
		logger.Info("scheduled refresh enabled", "schedule", cfg.Refresh.Schedule, "next", sched.Next())
	}

	srv := httpapi.New(httpapi.Options{
		Tickers:    tickers,
		Details:    details,
		Levels:     levels,
		Notes:      notes,
		Fullscreen: fullscreen.NewManager(logger),
		Client:     client,
		Refresh:    sched,
		Logger:     logger,
	})
	defer srv.Close()

	// Start HTTP server.
	httpServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler: srv.Handler(),
	}

	go func() {
		logger.Info("stockdash server listening", "addr", httpServer.Addr, "backend", client.BaseURL())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down stockdash server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	notes.RemoveAll()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
