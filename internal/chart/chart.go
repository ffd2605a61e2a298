// Package chart builds Plotly figure specifications for a ticker's price
// history with its support/resistance levels and supply/demand zones. The
// browser only draws what this package describes; zoom, pan, reset and
// export are expressed as figure mutations.
package chart

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"stockdash/internal/domain"
)

// Mode is the drag interaction of the plot.
type Mode string

const (
	ModeZoom   Mode = "zoom"
	ModePan    Mode = "pan"
	ModeSelect Mode = "select"
)

// ExportFormats lists the image formats the renderer can export.
var ExportFormats = []string{"png", "svg", "jpeg", "webp"}

const dateLayout = "2006-01-02"

// Line styles a trace or shape outline.
type Line struct {
	Color string  `json:"color,omitempty"`
	Width float64 `json:"width,omitempty"`
	Dash  string  `json:"dash,omitempty"`
}

// Marker styles bar traces.
type Marker struct {
	Color string `json:"color,omitempty"`
}

// Trace is one data series.
type Trace struct {
	Type  string    `json:"type"`
	Name  string    `json:"name"`
	X     []string  `json:"x"`
	Y     []float64 `json:"y,omitempty"`
	Open  []float64 `json:"open,omitempty"`
	High  []float64 `json:"high,omitempty"`
	Low   []float64 `json:"low,omitempty"`
	Close []float64 `json:"close,omitempty"`
	Mode  string    `json:"mode,omitempty"`
	YAxis string    `json:"yaxis,omitempty"`
	Line  *Line     `json:"line,omitempty"`
	Mark  *Marker   `json:"marker,omitempty"`
}

// Axis configures one plot axis. A nil Range with Autorange true lets the
// renderer fit the data.
type Axis struct {
	Title     string    `json:"title,omitempty"`
	Type      string    `json:"type,omitempty"`
	Autorange bool      `json:"autorange"`
	Range     []string  `json:"range,omitempty"`
	Domain    []float64 `json:"domain,omitempty"`
	ShowGrid  bool      `json:"showgrid"`
}

// Shape is a line or rectangle drawn in data coordinates.
type Shape struct {
	Type      string  `json:"type"`
	XRef      string  `json:"xref"`
	YRef      string  `json:"yref"`
	X0        string  `json:"x0"`
	X1        string  `json:"x1"`
	Y0        float64 `json:"y0"`
	Y1        float64 `json:"y1"`
	Line      Line    `json:"line"`
	FillColor string  `json:"fillcolor,omitempty"`
	Layer     string  `json:"layer,omitempty"`
	Name      string  `json:"name,omitempty"`
}

// Layout is the figure layout.
type Layout struct {
	Title      string  `json:"title"`
	Height     int     `json:"height"`
	DragMode   Mode    `json:"dragmode"`
	ShowLegend bool    `json:"showlegend"`
	XAxis      Axis    `json:"xaxis"`
	YAxis      Axis    `json:"yaxis"`
	YAxis2     *Axis   `json:"yaxis2,omitempty"`
	Shapes     []Shape `json:"shapes,omitempty"`
}

// ImageOptions parameterises an image export.
type ImageOptions struct {
	Format   string `json:"format"`
	Filename string `json:"filename"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Scale    int    `json:"scale"`
}

// Config is the renderer configuration.
type Config struct {
	Responsive     bool         `json:"responsive"`
	DisplayModeBar bool         `json:"displayModeBar"`
	DisplayLogo    bool         `json:"displaylogo"`
	ToImage        ImageOptions `json:"toImageButtonOptions"`
}

// Figure is everything the renderer needs.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
	Config Config  `json:"config"`
}

// Options configures a Chart.
type Options struct {
	Height      int
	Candlestick bool
	Volume      bool
}

// Chart holds the data and view state of one ticker chart. It is safe for
// concurrent use.
type Chart struct {
	mu      sync.Mutex
	symbol  string
	version domain.Version
	opts    Options
	bars    []domain.Bar
	levels  []domain.PriceLevel
	zones   []domain.Zone
	mode    Mode
	xRange  []string
	height  int
	export  ImageOptions
}

// New creates an empty chart for symbol.
func New(symbol string, opts Options) *Chart {
	if opts.Height <= 0 {
		opts.Height = 600
	}
	return &Chart{
		symbol: symbol,
		opts:   opts,
		mode:   ModeZoom,
		height: opts.Height,
		export: ImageOptions{Format: "png", Filename: symbol + "_chart", Width: 1200, Height: 800, Scale: 1},
	}
}

// Symbol returns the charted ticker.
func (c *Chart) Symbol() string {
	return c.symbol
}

// SetData replaces the plotted data. Bars may arrive in any order; they
// are plotted oldest first.
func (c *Chart) SetData(version domain.Version, bars []domain.Bar, levels []domain.PriceLevel, zones []domain.Zone) {
	sorted := slices.Clone(bars)
	slices.SortStableFunc(sorted, func(a, b domain.Bar) int { return a.Date.Compare(b.Date) })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = version
	c.bars = sorted
	c.levels = slices.Clone(levels)
	c.zones = slices.Clone(zones)
	c.xRange = nil
}

// SetMode switches the drag interaction.
func (c *Chart) SetMode(m Mode) error {
	switch m {
	case ModeZoom, ModePan, ModeSelect:
	default:
		return fmt.Errorf("unknown chart mode %q", m)
	}
	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()
	return nil
}

// Zoom restricts the x axis to [from, to] given as YYYY-MM-DD.
func (c *Chart) Zoom(from, to string) {
	c.mu.Lock()
	c.xRange = []string{from, to}
	c.mu.Unlock()
}

// ResetZoom returns both axes to autorange.
func (c *Chart) ResetZoom() {
	c.mu.Lock()
	c.xRange = nil
	c.mu.Unlock()
}

// SetHeight changes the plot height. Fullscreen handling calls it on
// enter and exit.
func (c *Chart) SetHeight(h int) {
	c.mu.Lock()
	if h <= 0 {
		h = c.opts.Height
	}
	c.height = h
	c.mu.Unlock()
}

// Height returns the current plot height.
func (c *Chart) Height() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// ExportImage prepares an export in format and returns the options the
// renderer should download with.
func (c *Chart) ExportImage(format string) (ImageOptions, error) {
	if !slices.Contains(ExportFormats, format) {
		return ImageOptions{}, fmt.Errorf("unsupported export format %q", format)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.export.Format = format
	return c.export, nil
}

// Figure builds the current figure.
func (c *Chart) Figure() Figure {
	c.mu.Lock()
	defer c.mu.Unlock()

	dates := make([]string, len(c.bars))
	for i, b := range c.bars {
		dates[i] = b.Date.Format(dateLayout)
	}

	fig := Figure{
		Layout: Layout{
			Title:      fmt.Sprintf("%s (%s)", c.symbol, c.versionLabel()),
			Height:     c.height,
			DragMode:   c.mode,
			ShowLegend: true,
			XAxis:      Axis{Type: "date", Autorange: c.xRange == nil, Range: c.xRange},
			YAxis:      Axis{Title: "Price", Autorange: true, ShowGrid: true},
		},
		Config: Config{Responsive: true, DisplayModeBar: true, ToImage: c.export},
	}

	fig.Data = append(fig.Data, c.priceTrace(dates))
	if c.opts.Volume && len(c.bars) > 0 {
		vol := make([]float64, len(c.bars))
		for i, b := range c.bars {
			vol[i] = float64(b.Volume)
		}
		fig.Data = append(fig.Data, Trace{
			Type: "bar", Name: "Volume", X: dates, Y: vol, YAxis: "y2",
			Mark: &Marker{Color: "rgba(108,117,125,0.4)"},
		})
		fig.Layout.YAxis.Domain = []float64{0.25, 1}
		fig.Layout.YAxis2 = &Axis{Title: "Volume", Autorange: true, Domain: []float64{0, 0.2}}
	}

	if len(dates) > 0 {
		first, last := dates[0], dates[len(dates)-1]
		for _, l := range c.levels {
			fig.Layout.Shapes = append(fig.Layout.Shapes, levelShape(l, first, last))
		}
		for _, z := range c.zones {
			fig.Layout.Shapes = append(fig.Layout.Shapes, zoneShape(z, last))
		}
	}
	return fig
}

// JSON marshals the current figure.
func (c *Chart) JSON() ([]byte, error) {
	return json.Marshal(c.Figure())
}

func (c *Chart) versionLabel() string {
	if c.version == domain.VersionRaw {
		return "raw"
	}
	return "adjusted"
}

func (c *Chart) priceTrace(dates []string) Trace {
	closes := make([]float64, len(c.bars))
	for i, b := range c.bars {
		closes[i] = b.Close
		if c.version != domain.VersionRaw && b.AdjClose != 0 {
			closes[i] = b.AdjClose
		}
	}
	if !c.opts.Candlestick {
		return Trace{Type: "scatter", Mode: "lines", Name: c.symbol, X: dates, Y: closes,
			Line: &Line{Color: "#0d6efd", Width: 2}}
	}
	t := Trace{Type: "candlestick", Name: c.symbol, X: dates, Close: closes}
	for _, b := range c.bars {
		t.Open = append(t.Open, b.Open)
		t.High = append(t.High, b.High)
		t.Low = append(t.Low, b.Low)
	}
	return t
}

func levelShape(l domain.PriceLevel, first, last string) Shape {
	color := "#198754"
	if l.Kind == domain.LevelResistance {
		color = "#dc3545"
	}
	return Shape{
		Type: "line", XRef: "x", YRef: "y", X0: first, X1: last, Y0: l.Price, Y1: l.Price,
		Line: Line{Color: color, Width: 1 + l.Strength/5, Dash: "dash"},
		Name: fmt.Sprintf("%s %.2f", l.Kind, l.Price),
	}
}

func zoneShape(z domain.Zone, last string) Shape {
	fill, edge := "rgba(25,135,84,0.15)", "rgba(25,135,84,0.6)"
	if z.Kind == domain.ZoneSupply {
		fill, edge = "rgba(220,53,69,0.15)", "rgba(220,53,69,0.6)"
	}
	start := z.Date.Format(dateLayout)
	if z.Date.IsZero() {
		start = last
	}
	return Shape{
		Type: "rect", XRef: "x", YRef: "y", X0: start, X1: last, Y0: z.Bottom, Y1: z.Top,
		Line: Line{Color: edge, Width: 1}, FillColor: fill, Layer: "below",
		Name: fmt.Sprintf("%s %s", z.Kind, z.Pattern),
	}
}
