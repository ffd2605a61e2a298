package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"stockdash/internal/config"
	"stockdash/internal/dispatch"
	"stockdash/internal/domain"
	"stockdash/internal/fallback"
	"stockdash/internal/notify"
	"stockdash/internal/status"
	"stockdash/internal/store"
	"stockdash/internal/table"
	"stockdash/internal/util"
	"stockdash/pkg/tickerapi"
)

// Styles.
var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	cursorStyle   = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("236"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	fallbackStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("3"))
	gainStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	levelStyles   = map[domain.Level]lipgloss.Style{
		domain.LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		domain.LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		domain.LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		domain.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	}
)

// sortFields is the order the "s" key cycles through.
var sortFields = []string{"ticker", "name", "sector", "last_close_date", "total_records"}

type inputMode int

const (
	modeNormal inputMode = iota
	modeSearch
	modeAdd
)

// Messages.
type doneMsg struct{ err error }

type detailsMsg struct {
	det *dispatch.Details
	err error
}

type noteMsg notify.Event

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model.
type model struct {
	page    *dispatch.TickerPage
	details *dispatch.DetailsLoader
	notes   *notify.Manager
	events  <-chan notify.Event
	logger  *slog.Logger

	mode     inputMode
	input    textinput.Model
	cursor   int
	sortIdx  int
	busy     string
	detail   *dispatch.Details
	viewport viewport.Model
	ready    bool
	width    int
	height   int
}

func initialModel(page *dispatch.TickerPage, details *dispatch.DetailsLoader, notes *notify.Manager, events <-chan notify.Event, logger *slog.Logger) model {
	ti := textinput.New()
	ti.CharLimit = 200
	return model{
		page:    page,
		details: details,
		notes:   notes,
		events:  events,
		logger:  logger,
		input:   ti,
		sortIdx: -1,
		busy:    "loading tickers",
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.waitNote(), m.run(m.page.Reload))
}

// run performs a backend gesture off the UI goroutine.
func (m model) run(fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: fn(context.Background())}
	}
}

func (m model) waitNote() tea.Cmd {
	return func() tea.Msg {
		e, ok := <-m.events
		if !ok {
			return nil
		}
		return noteMsg(e)
	}
}

func (m model) openDetails(sym string, version domain.Version) tea.Cmd {
	return func() tea.Msg {
		det, err := m.details.Open(context.Background(), sym, version)
		return detailsMsg{det: det, err: err}
	}
}

// selected returns the key of the row under the cursor.
func (m model) selected() (string, bool) {
	recs := m.page.Table().View().Page.Records
	if m.cursor < 0 || m.cursor >= len(recs) {
		return "", false
	}
	sym, ok := recs[m.cursor]["ticker"].(string)
	return sym, ok
}

func (m *model) clampCursor() {
	n := len(m.page.Table().View().Page.Records)
	m.cursor = max(0, min(m.cursor, n-1))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case tickMsg:
		m.viewport.SetContent(m.renderContent())
		return m, tickCmd()

	case noteMsg:
		m.viewport.SetContent(m.renderContent())
		return m, m.waitNote()

	case doneMsg:
		m.busy = ""
		if msg.err != nil {
			m.logger.Warn("gesture failed", "error", msg.err)
		}
		m.clampCursor()
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case detailsMsg:
		m.busy = ""
		if msg.err == nil {
			m.detail = msg.det
		}
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case tea.KeyMsg:
		if m.mode != modeNormal {
			return m.updateInput(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeNormal
		m.input.Blur()
		return m, nil
	case "enter":
		value := m.input.Value()
		mode := m.mode
		m.mode = modeNormal
		m.input.Blur()
		switch mode {
		case modeSearch:
			m.page.Search(value)
			m.cursor = 0
			m.viewport.SetContent(m.renderContent())
			return m, nil
		case modeAdd:
			m.busy = "adding " + value
			return m, m.run(func(ctx context.Context) error {
				_, err := m.page.AddTickers(ctx, value)
				return err
			})
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "/":
		m.mode = modeSearch
		m.input.Placeholder = "search ticker, name, sector"
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink

	case "a":
		m.mode = modeAdd
		m.input.Placeholder = "AAPL or AAPL, MSFT, GOOGL"
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink

	case "s":
		m.sortIdx = (m.sortIdx + 1) % len(sortFields)
		m.page.Table().SortBy(sortFields[m.sortIdx], table.Asc)
	case "S":
		if m.sortIdx >= 0 {
			m.page.ToggleSort(sortFields[m.sortIdx])
		}
	case "c":
		m.page.ClearFilters()
		m.cursor = 0

	case "up", "k":
		m.cursor--
		m.clampCursor()
	case "down", "j":
		m.cursor++
		m.clampCursor()
	case "left":
		_, _, ps := m.page.Table().State()
		if m.page.GoToPage(ps.Page - 1) {
			m.cursor = 0
		}
	case "right":
		_, _, ps := m.page.Table().State()
		if m.page.GoToPage(ps.Page + 1) {
			m.cursor = 0
		}

	case "r":
		m.busy = "reloading"
		return m, m.run(m.page.Reload)
	case "D":
		m.busy = "downloading all tickers"
		return m, m.run(func(ctx context.Context) error {
			_, err := m.page.DownloadAll(ctx)
			return err
		})
	case "d", "x", "enter":
		sym, ok := m.selected()
		if !ok {
			return m, nil
		}
		switch msg.String() {
		case "d":
			m.busy = "downloading " + sym
			return m, m.run(func(ctx context.Context) error { return m.page.DownloadTicker(ctx, sym) })
		case "x":
			m.busy = "removing " + sym
			return m, m.run(func(ctx context.Context) error { return m.page.RemoveTicker(ctx, sym) })
		default:
			m.busy = "loading " + sym
			return m, m.openDetails(sym, domain.VersionAdjusted)
		}
	case "v":
		if m.detail != nil {
			next := domain.VersionRaw
			if m.detail.Version == domain.VersionRaw {
				next = domain.VersionAdjusted
			}
			m.busy = "switching to " + string(next)
			return m, m.openDetails(m.detail.Info.Symbol, next)
		}
	case "esc":
		if m.detail != nil {
			m.detail = nil
			m.details.Close()
		}
	}
	m.viewport.SetContent(m.renderContent())
	return m, nil
}

func (m model) View() string {
	if !m.ready {
		return "initializing..."
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(" stockdash "))
	if src, at := m.page.Source(); src == domain.SourceFallback {
		b.WriteString(" " + fallbackStyle.Render(fmt.Sprintf(" offline: snapshot from %s ", at.Format("2006-01-02 15:04"))))
	}
	if m.busy != "" {
		b.WriteString(" " + dimStyle.Render(m.busy+"..."))
	}
	b.WriteByte('\n')
	b.WriteString(m.viewport.View())
	b.WriteByte('\n')
	switch m.mode {
	case modeSearch:
		b.WriteString("search: " + m.input.View())
	case modeAdd:
		b.WriteString("add: " + m.input.View())
	default:
		b.WriteString(dimStyle.Render("↑↓ select  ←→ page  / search  s sort  S reverse  c clear  a add  d download  D all  x remove  enter details  v version  r reload  q quit"))
	}
	return b.String()
}

func (m model) renderContent() string {
	var b strings.Builder

	for _, n := range m.notes.Active() {
		b.WriteString(levelStyles[n.Level].Render("● " + n.Message))
		b.WriteByte('\n')
	}
	if len(m.notes.Active()) > 0 {
		b.WriteByte('\n')
	}

	// RenderText puts the header on the first line and one line per record
	// after it.
	lines := strings.Split(table.RenderText(m.page.Table().View()), "\n")
	for i, line := range lines {
		if i == m.cursor+1 && len(m.page.Table().View().Page.Records) > 0 {
			line = cursorStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if m.detail != nil {
		renderDetails(&b, m.detail)
	}
	return b.String()
}

func renderDetails(b *strings.Builder, d *dispatch.Details) {
	fmt.Fprintf(b, "\n%s %s\n", titleStyle.Render(" "+d.Info.Symbol+" "), d.Info.Name)
	fmt.Fprintf(b, "%s  %s  %s to %s  %d records  [%s]\n",
		d.Info.Sector, d.Info.Industry, d.FirstDate, d.LastCloseDate, d.TotalRecords, d.Version)
	if d.HistorySource == domain.SourceFallback {
		b.WriteString(fallbackStyle.Render(" generated locally ") + "\n")
	}
	bars := d.Bars
	if len(bars) > 10 {
		bars = bars[len(bars)-10:]
	}
	for i := len(bars) - 1; i >= 0; i-- {
		bar := bars[i]
		style := gainStyle
		if bar.Close < bar.Open {
			style = lossStyle
		}
		fmt.Fprintf(b, "%s  %s  o %.2f  h %.2f  l %.2f  v %d\n",
			bar.Date.Format("2006-01-02"), style.Render(fmt.Sprintf("%10.2f", bar.Close)),
			bar.Open, bar.High, bar.Low, bar.Volume)
	}
}

func main() {
	cfg := config.Defaults()
	if p := os.Getenv("STOCKDASH_CONFIG"); p != "" {
		loaded, err := config.Load(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logPath := fmt.Sprintf("/tmp/stockdash-tui-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := util.NewLogger(cfg.Logging.Level, "text", logFile)

	// The snapshot lets the TUI start while the backend is down.
	var snaps store.SnapshotStore
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		logger.Warn("sqlite store unavailable, running without snapshot", "error", err)
	} else {
		defer db.Close()
		snaps = db
	}

	client := tickerapi.NewClient(cfg.Backend.BaseURL,
		tickerapi.WithTimeout(time.Duration(cfg.Backend.TimeoutSeconds)*time.Second))
	notes := notify.NewManager(notify.Options{
		MaxVisible:      3,
		DefaultDuration: time.Duration(cfg.Notifications.DefaultDurationMS) * time.Millisecond,
	}, nil, logger)
	subID, events := notes.Subscribe(16)
	defer notes.Unsubscribe(subID)

	page := dispatch.NewTickerPage(dispatch.TickerPageConfig{
		Backend:   client,
		Notifier:  notes,
		Snapshots: snaps,
		Status:    status.NewEvaluator(util.NewMarketCalendar()),
		Formats:   table.NewFormats(cfg.Table.Locale, cfg.Table.Currency),
		PageSizes: cfg.Table.PageSizes,
		PageSize:  cfg.Table.DefaultPageSize,
		Logger:    logger,
	})
	var fb *fallback.Source
	if snaps != nil {
		fb = fallback.NewSource(snaps, store.NewParquetStore(cfg.Storage.HistoryDir), logger)
	}
	details := dispatch.NewDetailsLoader(client, fb, notes, logger)

	p := tea.NewProgram(
		initialModel(page, details, notes, events, logger),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	notes.RemoveAll()
}
