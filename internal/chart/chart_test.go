package chart

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"stockdash/internal/component"
	"stockdash/internal/domain"
)

func sampleBars() []domain.Bar {
	d := func(day int) time.Time { return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC) }
	return []domain.Bar{
		{Date: d(6), Open: 11, High: 12, Low: 10, Close: 11.5, AdjClose: 11.4, Volume: 2000},
		{Date: d(4), Open: 10, High: 11, Low: 9, Close: 10.5, AdjClose: 10.4, Volume: 1000},
		{Date: d(5), Open: 10.5, High: 11.5, Low: 10, Close: 11, AdjClose: 10.9, Volume: 1500},
	}
}

func TestFigureLine(t *testing.T) {
	c := New("AAPL", Options{})
	c.SetData(domain.VersionAdjusted, sampleBars(), nil, nil)
	fig := c.Figure()

	if len(fig.Data) != 1 || fig.Data[0].Type != "scatter" {
		t.Fatalf("traces = %+v, want one line", fig.Data)
	}
	if diff := cmp.Diff([]string{"2024-03-04", "2024-03-05", "2024-03-06"}, fig.Data[0].X); diff != "" {
		t.Errorf("x mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{10.4, 10.9, 11.4}, fig.Data[0].Y); diff != "" {
		t.Errorf("adjusted y mismatch (-want +got):\n%s", diff)
	}
	if fig.Layout.Title != "AAPL (adjusted)" || fig.Layout.Height != 600 || fig.Layout.DragMode != ModeZoom {
		t.Errorf("layout = %+v", fig.Layout)
	}

	c.SetData(domain.VersionRaw, sampleBars(), nil, nil)
	if y := c.Figure().Data[0].Y; y[0] != 10.5 {
		t.Errorf("raw y[0] = %v, want close 10.5", y[0])
	}
}

func TestFigureCandlestickVolumeAndShapes(t *testing.T) {
	c := New("MSFT", Options{Candlestick: true, Volume: true})
	levels := []domain.PriceLevel{
		{Kind: domain.LevelSupport, Price: 9.5, Strength: 5},
		{Kind: domain.LevelResistance, Price: 12.5, Strength: 10},
	}
	zones := []domain.Zone{{Kind: domain.ZoneSupply, Pattern: "DBR", Bottom: 11.8, Top: 12.2, Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)}}
	c.SetData(domain.VersionRaw, sampleBars(), levels, zones)
	fig := c.Figure()

	if len(fig.Data) != 2 || fig.Data[0].Type != "candlestick" || fig.Data[1].YAxis != "y2" {
		t.Fatalf("traces = %+v", fig.Data)
	}
	if diff := cmp.Diff([]float64{9, 10, 10}, fig.Data[0].Low); diff != "" {
		t.Errorf("low mismatch (-want +got):\n%s", diff)
	}
	if fig.Layout.YAxis2 == nil {
		t.Fatal("volume axis missing")
	}
	if len(fig.Layout.Shapes) != 3 {
		t.Fatalf("shapes = %d, want 3", len(fig.Layout.Shapes))
	}
	res := fig.Layout.Shapes[1]
	if res.Type != "line" || res.Y0 != 12.5 || res.Line.Color != "#dc3545" || res.X0 != "2024-03-04" || res.X1 != "2024-03-06" {
		t.Errorf("resistance shape = %+v", res)
	}
	zone := fig.Layout.Shapes[2]
	if zone.Type != "rect" || zone.X0 != "2024-03-05" || zone.Y0 != 11.8 || zone.Y1 != 12.2 || !strings.Contains(zone.FillColor, "220,53,69") {
		t.Errorf("zone shape = %+v", zone)
	}
}

func TestInteractions(t *testing.T) {
	c := New("AAPL", Options{Height: 400})
	c.SetData(domain.VersionAdjusted, sampleBars(), nil, nil)

	if err := c.SetMode(ModePan); err != nil {
		t.Fatalf("SetMode(pan): %v", err)
	}
	if err := c.SetMode("lasso"); err == nil {
		t.Error("SetMode(lasso) accepted")
	}
	c.Zoom("2024-03-05", "2024-03-06")
	fig := c.Figure()
	if fig.Layout.DragMode != ModePan || fig.Layout.XAxis.Autorange || len(fig.Layout.XAxis.Range) != 2 {
		t.Errorf("after pan+zoom layout = %+v", fig.Layout)
	}
	c.ResetZoom()
	if fig := c.Figure(); !fig.Layout.XAxis.Autorange || fig.Layout.XAxis.Range != nil {
		t.Errorf("after reset xaxis = %+v", fig.Layout.XAxis)
	}

	opts, err := c.ExportImage("svg")
	if err != nil {
		t.Fatalf("ExportImage: %v", err)
	}
	if opts.Format != "svg" || opts.Filename != "AAPL_chart" {
		t.Errorf("export options = %+v", opts)
	}
	if _, err := c.ExportImage("pdf"); err == nil {
		t.Error("ExportImage(pdf) accepted")
	}

	c.SetHeight(900)
	if c.Height() != 900 {
		t.Errorf("Height() = %d, want 900", c.Height())
	}
	c.SetHeight(0)
	if c.Height() != 400 {
		t.Errorf("Height() after reset = %d, want 400", c.Height())
	}
}

func TestJSON(t *testing.T) {
	c := New("AAPL", Options{})
	c.SetData(domain.VersionAdjusted, sampleBars(), nil, nil)
	data, err := c.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	layout := decoded["layout"].(map[string]any)
	if layout["dragmode"] != "zoom" {
		t.Errorf("dragmode = %v", layout["dragmode"])
	}
	if _, ok := decoded["config"].(map[string]any)["toImageButtonOptions"]; !ok {
		t.Error("config lacks toImageButtonOptions")
	}
}

func TestWidget(t *testing.T) {
	c := New("BRK.B", Options{})
	c.SetData(domain.VersionAdjusted, sampleBars(), nil, nil)
	w := NewWidget(c)
	html, err := component.NewRunner("chart", w, nil).Render(context.Background())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	s := string(html)
	for _, want := range []string{`id="chart-brk.b"`, `data-chart-mode="zoom">`, `"dragmode":"zoom"`, "height: 600px"} {
		if !strings.Contains(s, want) {
			t.Errorf("chart html missing %q", want)
		}
	}
}
