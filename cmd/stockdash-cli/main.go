package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"stockdash/internal/config"
	"stockdash/internal/csvimport"
	"stockdash/internal/dispatch"
	"stockdash/internal/notify"
	"stockdash/internal/table"
	"stockdash/internal/util"
	"stockdash/pkg/tickerapi"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: stockdash-cli [-backend URL] <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version              Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  status               Test the backend and summarise the tickers\n")
	fmt.Fprintf(os.Stderr, "  tickers              List tickers (-q, -sort, -desc, -page, -size)\n")
	fmt.Fprintf(os.Stderr, "  add SYM[,SYM...]     Add one or more tickers\n")
	fmt.Fprintf(os.Stderr, "  remove SYM           Remove a ticker and its data\n")
	fmt.Fprintf(os.Stderr, "  download [SYM]       Download one ticker, or all of them\n")
	fmt.Fprintf(os.Stderr, "  preview FILE         Preview a CSV import file\n")
	fmt.Fprintf(os.Stderr, "  upload FILE          Import a CSV file (-download, -replace)\n")
	fmt.Fprintf(os.Stderr, "  export FILE          Export tickers as .csv or .parquet\n")
	fmt.Fprintf(os.Stderr, "  levels               List support and resistance levels (-ticker, -type)\n")
	fmt.Fprintf(os.Stderr, "\n")
}

// app bundles what every command needs.
type app struct {
	client *tickerapi.Client
	notes  *notify.Manager
	page   *dispatch.TickerPage
	cfg    *config.Config
}

func newApp(backendURL string) *app {
	cfg := config.Defaults()
	if backendURL != "" {
		cfg.Backend.BaseURL = backendURL
	}
	logger := util.NewLogger("error", "text", os.Stderr)
	client := tickerapi.NewClient(cfg.Backend.BaseURL,
		tickerapi.WithTimeout(time.Duration(cfg.Backend.TimeoutSeconds)*time.Second))
	notes := notify.NewManager(notify.Options{MaxVisible: 100, DefaultDuration: time.Hour, ErrorDuration: time.Hour}, nil, logger)
	page := dispatch.NewTickerPage(dispatch.TickerPageConfig{
		Backend:   client,
		Notifier:  notes,
		Formats:   table.NewFormats(cfg.Table.Locale, cfg.Table.Currency),
		PageSizes: cfg.Table.PageSizes,
		PageSize:  cfg.Table.DefaultPageSize,
		Logger:    logger,
	})
	return &app{client: client, notes: notes, page: page, cfg: cfg}
}

// flush prints and clears the collected notifications.
func (a *app) flush() {
	for _, n := range a.notes.Active() {
		fmt.Printf("[%s] %s\n", strings.ToUpper(string(n.Level)), n.Message)
	}
	a.notes.RemoveAll()
}

func main() {
	backendURL := flag.String("backend", os.Getenv("BACKEND_URL"), "backend base URL")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "version" {
		fmt.Printf("stockdash-cli %s\n", version)
		return
	}

	a := newApp(*backendURL)
	defer a.notes.RemoveAll()
	ctx := context.Background()

	var err error
	switch cmd {
	case "status":
		err = a.status(ctx)
	case "tickers":
		err = a.tickers(ctx, args)
	case "add":
		_, err = a.page.AddTickers(ctx, strings.Join(args, ","))
	case "remove":
		err = a.withSymbol(args, func(sym string) error { return a.page.RemoveTicker(ctx, sym) })
	case "download":
		if len(args) == 0 {
			_, err = a.page.DownloadAll(ctx)
		} else {
			err = a.page.DownloadTicker(ctx, args[0])
		}
	case "preview":
		err = preview(args)
	case "upload":
		err = a.upload(ctx, args)
	case "export":
		err = a.export(ctx, args)
	case "levels":
		err = a.levels(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		flag.Usage()
		os.Exit(1)
	}

	a.flush()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", dispatch.UserMessage(err))
		os.Exit(1)
	}
}

func (a *app) withSymbol(args []string, fn func(string) error) error {
	if len(args) != 1 {
		return errors.New("expected exactly one ticker")
	}
	return fn(args[0])
}

func (a *app) status(ctx context.Context) error {
	start := time.Now()
	conn, err := a.client.TestConnection(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("backend:  %s (%s, %s)\n", a.client.BaseURL(), conn.Status, time.Since(start).Round(time.Millisecond))
	for name, ok := range conn.Tests {
		fmt.Printf("  %-20s %v\n", name, ok)
	}
	if err := a.page.Reload(ctx); err != nil {
		return err
	}
	var records int
	for _, r := range a.page.Table().Rows() {
		if n, ok := r["total_records"].(int); ok {
			records += n
		}
	}
	fmt.Printf("tickers:  %d\n", a.page.Table().Len())
	fmt.Printf("records:  %s\n", humanize.Comma(int64(records)))
	return nil
}

func (a *app) tickers(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tickers", flag.ExitOnError)
	q := fs.String("q", "", "search term")
	sortField := fs.String("sort", "", "sort field")
	desc := fs.Bool("desc", false, "sort descending")
	page := fs.Int("page", 1, "page number")
	size := fs.Int("size", 0, "page size")
	fs.Parse(args)

	if err := a.page.Reload(ctx); err != nil && a.page.Table().Len() == 0 {
		return err
	}
	t := a.page.Table()
	t.Search(*q)
	if *sortField != "" {
		dir := table.Asc
		if *desc {
			dir = table.Desc
		}
		t.SortBy(*sortField, dir)
	}
	if *size > 0 && !t.SetPageSize(*size) {
		return fmt.Errorf("page size must be one of %v", a.cfg.Table.PageSizes)
	}
	if !t.GoToPage(*page) {
		return fmt.Errorf("page %d out of range", *page)
	}
	fmt.Print(table.RenderText(t.View()))
	return nil
}

func preview(args []string) error {
	if len(args) != 1 {
		return errors.New("expected a CSV file")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	p, err := csvimport.ParsePreview(string(data))
	if err != nil {
		return err
	}
	fmt.Println(strings.Join(p.Headers, " | "))
	for _, row := range p.Rows {
		fmt.Println(strings.Join(row, " | "))
	}
	fmt.Println(p.Stats())
	return nil
}

func (a *app) upload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	download := fs.Bool("download", true, "download data for new tickers")
	replace := fs.Bool("replace", false, "replace existing tickers")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("expected a CSV file")
	}
	name := fs.Arg(0)
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	rep, err := a.page.UploadCSV(ctx, name, data, tickerapi.UploadOptions{DownloadData: *download, ReplaceExisting: *replace})
	if rep != nil {
		fmt.Printf("%d added, %d warnings, %d errors\n", rep.SuccessCount, rep.WarningCount, rep.ErrorCount)
		for _, d := range rep.Errors {
			fmt.Printf("  %s: %s\n", d.Ticker, d.Message)
		}
		if more := rep.MoreErrors(); more > 0 {
			fmt.Printf("  ... and %d more errors\n", more)
		}
	}
	return err
}

func (a *app) export(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("expected an output file")
	}
	if err := a.page.Reload(ctx); err != nil && a.page.Table().Len() == 0 {
		return err
	}
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	switch {
	case strings.HasSuffix(args[0], ".parquet"):
		err = a.page.Table().ExportParquet(f)
	case strings.HasSuffix(args[0], ".csv"):
		err = a.page.Table().ExportCSV(f)
	default:
		return errors.New("output file must end in .csv or .parquet")
	}
	if err != nil {
		return err
	}
	fmt.Printf("exported %d tickers to %s\n", len(a.page.Table().Filtered()), args[0])
	return f.Close()
}

func (a *app) levels(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("levels", flag.ExitOnError)
	ticker := fs.String("ticker", "", "ticker filter")
	typ := fs.String("type", "", "Support or Resistance")
	minStrength := fs.Float64("min-strength", 0, "minimum strength")
	fs.Parse(args)

	p := dispatch.NewLevelsPage(a.client, a.notes, table.NewFormats(a.cfg.Table.Locale, a.cfg.Table.Currency),
		a.cfg.Table.PageSizes, 100, nil)
	if err := p.Reload(ctx); err != nil {
		return err
	}
	p.FilterLevels(dispatch.LevelFilter{Ticker: *ticker, Type: *typ, MinStrength: *minStrength})
	fmt.Print(table.RenderText(p.Levels().View()))
	return nil
}
